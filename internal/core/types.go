package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Difficulty string

const (
	// DifficultyEasy draws the correct track from the most popular band
	DifficultyEasy Difficulty = "easy"
	// DifficultyMedium draws the correct track from moderately known tracks
	DifficultyMedium Difficulty = "medium"
	// DifficultyHard draws the correct track from obscure picks
	DifficultyHard Difficulty = "hard"
)

// AnyStyle disables the genre filter
const AnyStyle = "any"

// Difficulties returns every supported difficulty in ascending order
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}
}

// ParseDifficulty converts user input into a Difficulty
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q (must be easy, medium or hard)", s)
	}
}

// RoundDuration is how long the preview plays before the player must answer
func (d Difficulty) RoundDuration() time.Duration {
	switch d {
	case DifficultyMedium:
		return 20 * time.Second
	case DifficultyHard:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

// Points awarded for a correct answer
func (d Difficulty) Points() int {
	switch d {
	case DifficultyMedium:
		return 10
	case DifficultyHard:
		return 15
	default:
		return 5
	}
}

type Track struct {
	ID         string
	Title      string
	ArtistName string
	PreviewURL string
	Rank       int
	Genres     []string
	Duration   time.Duration // zero when unknown
	Explicit   bool
	Source     string
}

// HasPreview reports whether the track carries any preview reference at all
func (t Track) HasPreview() bool {
	return strings.TrimSpace(t.PreviewURL) != ""
}

type Artist struct {
	ID      string
	Name    string
	Genres  []string
	Country string
	Tracks  []Track
}

// SelectionResult is one multiple-choice round. Options holds the correct track and
// three decoys in random order.
type SelectionResult struct {
	Correct   Track
	Options   [4]Track
	Relaxed   bool
	Broadened bool
}

// CorrectIndex returns the position of the correct track within Options
func (r *SelectionResult) CorrectIndex() int {
	for i := range r.Options {
		if r.Options[i].ID == r.Correct.ID {
			return i
		}
	}
	return -1
}

type Pool int

const (
	// PoolCorrect supplies candidates for the correct track
	PoolCorrect Pool = iota
	// PoolDecoy supplies candidates for wrong options
	PoolDecoy
)

func (p Pool) String() string {
	if p == PoolDecoy {
		return "decoy"
	}
	return "correct"
}

type CandidateRequest struct {
	Difficulty Difficulty
	Style      string
	Country    string
	Pool       Pool
	Limit      int
}

// CandidateSource yields filtered, playable-looking candidates. Implementations absorb
// upstream failures and return an empty slice instead of an error.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, req CandidateRequest) []Track
	FetchArtists(ctx context.Context, genre string) []Artist
}

type PreviewChecker interface {
	IsPlayable(ctx context.Context, previewURL string) bool
}

// HistoryStore persists per-player selection histories. Callers must hold Lock for the
// player across a load-select-save cycle.
type HistoryStore interface {
	Lock(playerID string) (unlock func())
	Load(ctx context.Context, playerID string, difficulty Difficulty) (SelectionHistory, error)
	Save(ctx context.Context, playerID string, difficulty Difficulty, history SelectionHistory) error
	Reset(ctx context.Context, playerID string) error
	Size() int
}
