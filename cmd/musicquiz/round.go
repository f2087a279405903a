package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"musicquiz/internal/core"
	"musicquiz/internal/i18n"
	"musicquiz/internal/quiz"
	"musicquiz/internal/selection"
	"musicquiz/internal/store"
)

const cliPlayer = "cli"

var roundCmd = &cobra.Command{
	Use:   "round",
	Short: "Select rounds and print them as JSON",
	Long: `Select one or more rounds against the configured catalog and print them as JSON.
Consecutive rounds share an in-memory history, so --count shows how repeats are avoided.`,
	RunE: runRound,
}

func init() {
	roundCmd.Flags().String("difficulty", string(core.DifficultyEasy), "Round difficulty (easy, medium, hard)")
	roundCmd.Flags().String("style", core.AnyStyle, "Music style, or \"any\"")
	roundCmd.Flags().String("country", "", "Two-letter country code")
	roundCmd.Flags().Int("count", 1, "Number of rounds to select")
}

type cliTrack struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Artist  string `json:"artist"`
	Preview string `json:"preview_url"`
	Rank    int    `json:"rank"`
}

type cliRound struct {
	Number       int        `json:"round"`
	Difficulty   string     `json:"difficulty"`
	Correct      cliTrack   `json:"correct"`
	Options      []cliTrack `json:"options"`
	DurationSecs int        `json:"duration_secs"`
	Points       int        `json:"points"`
	Relaxed      bool       `json:"history_relaxed,omitempty"`
	Broadened    bool       `json:"style_broadened,omitempty"`
}

type cliError struct {
	Number  int    `json:"round"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func runRound(cmd *cobra.Command, _ []string) error {
	difficultyFlag, _ := cmd.Flags().GetString("difficulty")
	style, _ := cmd.Flags().GetString("style")
	country, _ := cmd.Flags().GetString("country")
	count, _ := cmd.Flags().GetInt("count")

	difficulty, err := core.ParseDifficulty(difficultyFlag)
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := buildPipeline(core.NopMetrics{})
	if err != nil {
		return err
	}
	sessions, err := store.NewSessionStore(1, config.History.Capacity, nil, logger.Named("store"))
	if err != nil {
		return err
	}
	svc := quiz.NewService(p.engine, sessions, logger.Named("quiz"))

	req := selection.Request{Difficulty: difficulty, Style: style, Country: country}
	return playRounds(ctx, svc, req, count, i18n.NewLocalizer(config.App.Language), cmd.OutOrStdout())
}

type roundPlayer interface {
	Play(ctx context.Context, playerID string, req selection.Request) (*quiz.Round, error)
}

// playRounds prints every round and stops at the first failure
func playRounds(
	ctx context.Context,
	player roundPlayer,
	req selection.Request,
	count int,
	loc *i18n.Localizer,
	out io.Writer,
) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	for n := 1; n <= count; n++ {
		round, err := player.Play(ctx, cliPlayer, req)
		if err != nil {
			var selErr *selection.Error
			if !errors.As(err, &selErr) {
				return err
			}
			reason := selection.Reason(selErr)
			if encErr := enc.Encode(cliError{Number: n, Error: reason, Message: loc.Error(reason)}); encErr != nil {
				return encErr
			}
			logger.Debug("Round failed", zap.Int("round", n), zap.Error(err))
			return fmt.Errorf("round %d: %w", n, err)
		}

		if err := enc.Encode(newCLIRound(n, round)); err != nil {
			return err
		}
	}
	return nil
}

func newCLIRound(n int, round *quiz.Round) cliRound {
	out := cliRound{
		Number:       n,
		Difficulty:   string(round.Difficulty),
		Correct:      newCLITrack(&round.Correct),
		Options:      make([]cliTrack, 0, len(round.Options)),
		DurationSecs: int(round.Duration.Seconds()),
		Points:       round.Points,
		Relaxed:      round.Relaxed,
		Broadened:    round.Broadened,
	}
	for i := range round.Options {
		out.Options = append(out.Options, newCLITrack(&round.Options[i]))
	}
	return out
}

func newCLITrack(t *core.Track) cliTrack {
	return cliTrack{
		ID:      t.ID,
		Title:   t.Title,
		Artist:  t.ArtistName,
		Preview: t.PreviewURL,
		Rank:    t.Rank,
	}
}
