package catalog

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"musicquiz/internal/core"
)

// DefaultBuildConcurrency is the number of preview probes a build runs in parallel
const DefaultBuildConcurrency = 8

// ErrEmptySnapshot is returned when no artist kept a playable track
var ErrEmptySnapshot = errors.New("snapshot would be empty")

// Builder assembles a snapshot from a live catalog, keeping only tracks whose preview
// currently plays.
type Builder struct {
	source      core.CandidateSource
	checker     core.PreviewChecker
	logger      *zap.Logger
	concurrency int
}

func NewBuilder(source core.CandidateSource, checker core.PreviewChecker, concurrency int, logger *zap.Logger) *Builder {
	if concurrency <= 0 {
		concurrency = DefaultBuildConcurrency
	}
	return &Builder{
		source:      source,
		checker:     checker,
		logger:      logger,
		concurrency: concurrency,
	}
}

// Build collects the artists of every genre. An artist listed under several genres is
// merged into one entry carrying all of them.
func (b *Builder) Build(ctx context.Context, genres []string) ([]core.Artist, error) {
	var (
		artists []core.Artist
		byID    = make(map[string]int)
	)

	for _, genre := range genres {
		key := GenreKey(genre)
		if key == "" {
			continue
		}

		listed := b.source.FetchArtists(ctx, key)
		b.logger.Info("Fetched genre artists", zap.String("genre", key), zap.Int("artists", len(listed)))

		for i := range listed {
			a := listed[i]
			if idx, ok := byID[a.ID]; ok {
				artists[idx].Genres = appendUnique(artists[idx].Genres, key)
				continue
			}
			a.Genres = appendUnique(append([]string(nil), a.Genres...), key)
			byID[a.ID] = len(artists)
			artists = append(artists, a)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if err := b.validate(ctx, artists); err != nil {
		return nil, err
	}

	kept := artists[:0]
	for i := range artists {
		if len(artists[i].Tracks) > 0 {
			kept = append(kept, artists[i])
		}
	}
	if len(kept) == 0 {
		return nil, ErrEmptySnapshot
	}
	return kept, nil
}

// validate drops tracks whose preview does not play, probing in parallel
func (b *Builder) validate(ctx context.Context, artists []core.Artist) error {
	type verdict struct {
		artist, track int
	}

	var (
		mu       sync.Mutex
		playable = make(map[verdict]bool)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := range artists {
		for j := range artists[i].Tracks {
			preview := artists[i].Tracks[j].PreviewURL
			key := verdict{artist: i, track: j}
			g.Go(func() error {
				ok := b.checker.IsPlayable(gctx, preview)
				mu.Lock()
				playable[key] = ok
				mu.Unlock()
				return gctx.Err()
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range artists {
		tracks := artists[i].Tracks[:0]
		for j := range artists[i].Tracks {
			if playable[verdict{artist: i, track: j}] {
				tracks = append(tracks, artists[i].Tracks[j])
			} else {
				b.logger.Debug("Dropping track without playable preview",
					zap.String("artist", artists[i].Name),
					zap.String("title", artists[i].Tracks[j].Title))
			}
		}
		artists[i].Tracks = tracks
	}
	return nil
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}
