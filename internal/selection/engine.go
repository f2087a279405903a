// Package selection picks the correct track and three decoys for one multiple-choice
// round, avoiding a player's recent picks and surviving an unreliable catalog.
package selection

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"musicquiz/internal/core"
	"musicquiz/internal/difficulty"
	"musicquiz/internal/history"
	"musicquiz/pkg/fuzzy"
)

const (
	// OptionCount is the number of answers offered per round
	OptionCount = 4
	// decoyCount is the number of wrong answers per round
	decoyCount = OptionCount - 1
	// titleSimilarityLimit rejects first-pass decoys whose title is this close to the correct one
	titleSimilarityLimit = 0.9
)

type Request struct {
	Difficulty core.Difficulty
	Style      string
	Country    string
}

// Engine runs round selection. It keeps no per-player state; the only shared mutable
// state is the injected random source, guarded by a mutex.
type Engine struct {
	source     core.CandidateSource
	checker    core.PreviewChecker
	tracker    *history.Tracker
	normalizer *fuzzy.Normalizer
	config     core.SelectionConfig
	logger     *zap.Logger
	metrics    core.Metrics

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewEngine(
	source core.CandidateSource,
	checker core.PreviewChecker,
	tracker *history.Tracker,
	config *core.SelectionConfig,
	rng *rand.Rand,
	logger *zap.Logger,
	metrics core.Metrics,
) *Engine {
	cfg := *config
	if cfg.OverFetchFactor <= 0 {
		cfg.OverFetchFactor = core.DefaultOverFetchFactor
	}
	if cfg.MaxCorrectAttempts <= 0 {
		cfg.MaxCorrectAttempts = core.DefaultMaxCorrectAttempts
	}
	if cfg.MaxDecoyProbes <= 0 {
		cfg.MaxDecoyProbes = core.DefaultMaxDecoyProbes
	}
	if tracker == nil {
		tracker = history.NewTracker(core.DefaultHistoryCapacity, cfg.MinPoolSize)
	}
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed)) //nolint:gosec // Quiz shuffling doesn't need crypto randomness
	}
	if metrics == nil {
		metrics = core.NopMetrics{}
	}

	return &Engine{
		source:     source,
		checker:    checker,
		tracker:    tracker,
		normalizer: fuzzy.NewNormalizer(),
		config:     cfg,
		logger:     logger,
		metrics:    metrics,
		rng:        rng,
	}
}

// round carries the state of one SelectRound call
type round struct {
	req       Request
	style     string
	history   core.SelectionHistory
	relaxed   bool
	broadened bool
	verdicts  map[string]bool     // preview reference -> playable
	excluded  map[string]struct{} // artist keys with a failed correct-track preview
	attempted []string
}

func (r *round) fail(kind error) *Error {
	return &Error{
		Kind:             kind,
		Difficulty:       r.req.Difficulty,
		Style:            r.style,
		AttemptedArtists: append([]string(nil), r.attempted...),
	}
}

// SelectRound produces one round for the request and returns the player's updated history.
// On failure the result is nil, the error unwraps to one of the package sentinels, and the
// returned history is the input unchanged, or the reset history when relaxation happened.
func (e *Engine) SelectRound(
	ctx context.Context,
	req Request,
	hist core.SelectionHistory,
) (*core.SelectionResult, core.SelectionHistory, error) {
	start := time.Now()
	result, updated, err := e.selectRound(ctx, req, hist)

	e.metrics.RecordRound(string(req.Difficulty), Reason(err))
	e.metrics.ObserveSelectionTime(string(req.Difficulty), time.Since(start))

	if err != nil {
		e.logger.Info("Round selection failed",
			zap.String("difficulty", string(req.Difficulty)),
			zap.String("style", req.Style),
			zap.String("country", req.Country),
			zap.Error(err))
		return nil, updated, err
	}

	e.logger.Debug("Round selected",
		zap.String("difficulty", string(req.Difficulty)),
		zap.String("style", req.Style),
		zap.String("correct", result.Correct.ID),
		zap.String("artist", result.Correct.ArtistName),
		zap.Bool("relaxed", result.Relaxed),
		zap.Bool("broadened", result.Broadened),
		zap.Duration("elapsed", time.Since(start)))
	return result, updated, nil
}

func (e *Engine) selectRound(
	ctx context.Context,
	req Request,
	hist core.SelectionHistory,
) (*core.SelectionResult, core.SelectionHistory, error) {
	r := &round{
		req:      req,
		style:    normalizeStyle(req.Style),
		verdicts: make(map[string]bool),
		excluded: make(map[string]struct{}),
	}

	current := hist.Clone()
	current.Normalize(e.tracker.Capacity())

	pool := e.source.FetchCandidates(ctx, e.candidateRequest(req, r.style, core.PoolCorrect))
	if len(pool) == 0 {
		return nil, hist, r.fail(ErrNoCandidates)
	}

	available, current, relaxed := e.tracker.RelaxIfNeeded(pool, current)
	r.history = current
	r.relaxed = relaxed

	// What a failed round hands back: the caller's history, or its reset form
	unchanged := hist
	if relaxed {
		unchanged = current
		e.metrics.RecordRelaxation(string(req.Difficulty))
		e.logger.Info("History relaxed, too few fresh candidates",
			zap.String("difficulty", string(req.Difficulty)),
			zap.String("style", r.style),
			zap.Int("pool", len(pool)))
	}
	if len(available) < OptionCount {
		return nil, unchanged, r.fail(ErrPoolExhausted)
	}

	policy := difficulty.For(req.Difficulty)
	ordered := difficulty.Order(available)

	correct, ok := e.pickCorrect(ctx, r, policy, ordered)
	if !ok {
		e.logger.Debug("No playable correct track, broadening to any genre",
			zap.String("style", r.style),
			zap.Strings("attempted", r.attempted))

		broad := e.source.FetchCandidates(ctx, e.candidateRequest(req, core.AnyStyle, core.PoolCorrect))
		ordered = difficulty.Order(e.tracker.Filter(broad, r.history))
		correct, ok = e.pickCorrect(ctx, r, policy, ordered)
		if !ok {
			return nil, unchanged, r.fail(ErrNoPlayableTrack)
		}
		r.broadened = true
		r.style = core.AnyStyle
	}

	decoys, err := e.pickDecoys(ctx, r, correct, ordered)
	if err != nil {
		return nil, unchanged, err
	}

	result := &core.SelectionResult{
		Correct:   correct,
		Relaxed:   r.relaxed,
		Broadened: r.broadened,
	}
	result.Options[0] = correct
	copy(result.Options[1:], decoys)
	e.shuffle(result.Options[:])

	updated := e.tracker.Record(r.history, result.Options[:]...)
	return result, updated, nil
}

// pickCorrect walks the band, most popular first. Only an empty band falls back to the
// rest of the pool, which policy.Rank leads with the best-ranked track. A failed preview
// excludes the artist from further attempts.
func (e *Engine) pickCorrect(
	ctx context.Context,
	r *round,
	policy difficulty.Policy,
	ordered []core.Track,
) (core.Track, bool) {
	candidates, rest := policy.Rank(ordered)
	if len(candidates) == 0 {
		candidates = rest
	}

	attempts := 0
	for i := range candidates {
		candidate := candidates[i]
		key := e.normalizer.ArtistKey(candidate.ArtistName)
		if _, skip := r.excluded[key]; skip {
			continue
		}
		if attempts >= e.config.MaxCorrectAttempts {
			return core.Track{}, false
		}
		attempts++

		if e.playable(ctx, r, &candidate) {
			return candidate, true
		}
		r.excluded[key] = struct{}{}
		r.attempted = append(r.attempted, candidate.ArtistName)
	}
	return core.Track{}, false
}

func (e *Engine) playable(ctx context.Context, r *round, t *core.Track) bool {
	if verdict, ok := r.verdicts[t.PreviewURL]; ok {
		return verdict
	}
	verdict := e.checker.IsPlayable(ctx, t.PreviewURL)
	r.verdicts[t.PreviewURL] = verdict
	return verdict
}

func (e *Engine) candidateRequest(req Request, style string, pool core.Pool) core.CandidateRequest {
	return core.CandidateRequest{
		Difficulty: req.Difficulty,
		Style:      style,
		Country:    req.Country,
		Pool:       pool,
		Limit:      e.config.OverFetchFactor * OptionCount,
	}
}

func (e *Engine) shuffle(tracks []core.Track) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	e.rng.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}

func normalizeStyle(style string) string {
	style = strings.ToLower(strings.TrimSpace(style))
	if style == "" {
		return core.AnyStyle
	}
	return style
}
