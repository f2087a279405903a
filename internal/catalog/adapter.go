package catalog

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"musicquiz/internal/core"
	"musicquiz/internal/difficulty"
)

// Adapter turns a Backend into a core.CandidateSource. It picks the page offset for the
// requested difficulty and pool, retries a rate-limited page once, filters unusable tracks
// and caches pages. Upstream failures are logged and surface as empty results.
type Adapter struct {
	backend Backend
	logger  *zap.Logger
	metrics core.Metrics
	timeout time.Duration
	backoff time.Duration
	pages   *expirable.LRU[string, []core.Track]

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewAdapter(
	backend Backend,
	config *core.CatalogConfig,
	rng *rand.Rand,
	logger *zap.Logger,
	metrics core.Metrics,
) *Adapter {
	if metrics == nil {
		metrics = core.NopMetrics{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // Page choice doesn't need crypto randomness
	}

	a := &Adapter{
		backend: backend,
		logger:  logger,
		metrics: metrics,
		timeout: config.Timeout,
		backoff: config.RateLimitBackoff,
		rng:     rng,
	}
	if backend.Paged() && config.PageCacheSize > 0 {
		a.pages = expirable.NewLRU[string, []core.Track](config.PageCacheSize, nil, config.PageCacheTTL)
	}
	return a
}

// Name returns the backend name
func (a *Adapter) Name() string {
	return a.backend.Name()
}

// FetchCandidates returns filtered tracks for one pool. The slice is never nil.
func (a *Adapter) FetchCandidates(ctx context.Context, req core.CandidateRequest) []core.Track {
	q := Query{
		Style:   strings.ToLower(strings.TrimSpace(req.Style)),
		Country: strings.ToUpper(strings.TrimSpace(req.Country)),
		Limit:   req.Limit,
	}
	if q.Style == "" {
		q.Style = core.AnyStyle
	}
	if a.backend.Paged() {
		q.Offset = a.pickOffset(difficulty.For(req.Difficulty).Page(req.Pool))
	}

	key := pageKey(a.backend.Name(), q)
	if a.pages != nil {
		if cached, ok := a.pages.Get(key); ok {
			a.metrics.RecordCatalogFetch(a.backend.Name(), "cache_hit")
			return append([]core.Track(nil), cached...)
		}
	}

	tracks, err := withRateLimitRetry(ctx, a.timeout, a.backoff, a.logger,
		func(ctx context.Context) ([]core.Track, error) {
			return a.backend.Search(ctx, q)
		})
	if err != nil {
		a.recordFailure("Catalog search failed", err,
			zap.String("style", q.Style),
			zap.String("country", q.Country),
			zap.String("pool", req.Pool.String()),
			zap.Int("offset", q.Offset))
		return []core.Track{}
	}

	kept := filter(tracks, a.onReject)
	a.metrics.RecordCatalogFetch(a.backend.Name(), "success")
	a.logger.Debug("Catalog page loaded",
		zap.String("style", q.Style),
		zap.String("pool", req.Pool.String()),
		zap.Int("offset", q.Offset),
		zap.Int("fetched", len(tracks)),
		zap.Int("kept", len(kept)))

	if a.pages != nil {
		a.pages.Add(key, kept)
	}
	return append([]core.Track(nil), kept...)
}

// FetchArtists returns the artists of a genre with their usable tracks. Artists left
// without tracks are kept so callers can see the whole roster.
func (a *Adapter) FetchArtists(ctx context.Context, genre string) []core.Artist {
	genre = strings.ToLower(strings.TrimSpace(genre))
	if genre == "" {
		genre = core.AnyStyle
	}

	// Artist listings fan out into many requests, each bounded by the backend's own client
	artists, err := withRateLimitRetry(ctx, 0, a.backoff, a.logger,
		func(ctx context.Context) ([]core.Artist, error) {
			return a.backend.Artists(ctx, genre)
		})
	if err != nil {
		a.recordFailure("Catalog artist listing failed", err, zap.String("genre", genre))
		return []core.Artist{}
	}

	for i := range artists {
		artists[i].Tracks = filter(artists[i].Tracks, a.onReject)
	}
	a.metrics.RecordCatalogFetch(a.backend.Name(), "success")
	return artists
}

func (a *Adapter) recordFailure(msg string, err error, fields ...zap.Field) {
	status := "error"
	if errors.Is(err, ErrRateLimited) {
		status = "rate_limited"
	}
	a.metrics.RecordCatalogFetch(a.backend.Name(), status)
	a.logger.Warn(msg, append(fields, zap.String("backend", a.backend.Name()), zap.Error(err))...)
}

func (a *Adapter) onReject(t *core.Track, reason string) {
	a.metrics.RecordFilteredTrack(reason)
	a.logger.Debug("Dropping track",
		zap.String("id", t.ID),
		zap.String("title", t.Title),
		zap.String("reason", reason))
}

func (a *Adapter) pickOffset(r difficulty.PageRange) int {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return r.Pick(a.rng)
}

func pageKey(backend string, q Query) string {
	return strings.Join([]string{
		backend,
		q.Style,
		q.Country,
		strconv.Itoa(q.Offset),
		strconv.Itoa(q.Limit),
	}, "|")
}
