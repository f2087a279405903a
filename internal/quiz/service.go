// Package quiz plays rounds for players, keeping each player's history between rounds.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"musicquiz/internal/core"
	"musicquiz/internal/selection"
)

// ErrMissingPlayer is returned when a round is requested without a player id
var ErrMissingPlayer = errors.New("player id is required")

type RoundSelector interface {
	SelectRound(
		ctx context.Context,
		req selection.Request,
		hist core.SelectionHistory,
	) (*core.SelectionResult, core.SelectionHistory, error)
}

// Round is a selected round plus how it is scored
type Round struct {
	core.SelectionResult
	Difficulty core.Difficulty
	Duration   time.Duration
	Points     int
}

type Service struct {
	selector RoundSelector
	sessions core.HistoryStore
	logger   *zap.Logger
}

func NewService(selector RoundSelector, sessions core.HistoryStore, logger *zap.Logger) *Service {
	return &Service{
		selector: selector,
		sessions: sessions,
		logger:   logger,
	}
}

// Play selects a round for playerID. The player's history is locked for the whole
// load-select-save cycle, so concurrent requests from one player never lose updates.
// Selection failures are returned as *selection.Error after the (possibly reset) history
// has been stored. A history that cannot be stored is logged and does not fail the round.
func (s *Service) Play(ctx context.Context, playerID string, req selection.Request) (*Round, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, ErrMissingPlayer
	}

	unlock := s.sessions.Lock(playerID)
	defer unlock()

	hist, err := s.sessions.Load(ctx, playerID, req.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	result, updated, selectErr := s.selector.SelectRound(ctx, req, hist)

	if err := s.sessions.Save(ctx, playerID, req.Difficulty, updated); err != nil {
		// The round stands; the player may hear these tracks again.
		s.logger.Warn("Failed to save history",
			zap.String("player", playerID),
			zap.String("difficulty", string(req.Difficulty)),
			zap.Error(err))
	}

	if selectErr != nil {
		return nil, selectErr
	}

	return &Round{
		SelectionResult: *result,
		Difficulty:      req.Difficulty,
		Duration:        req.Difficulty.RoundDuration(),
		Points:          req.Difficulty.Points(),
	}, nil
}

// Reset forgets every difficulty of a player
func (s *Service) Reset(ctx context.Context, playerID string) error {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return ErrMissingPlayer
	}

	unlock := s.sessions.Lock(playerID)
	defer unlock()

	return s.sessions.Reset(ctx, playerID)
}

// ActivePlayers returns the number of players held in memory
func (s *Service) ActivePlayers() int {
	return s.sessions.Size()
}
