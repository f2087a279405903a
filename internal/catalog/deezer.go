package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"musicquiz/internal/core"
)

const (
	// deezerQuotaErrorCode is the API error code Deezer returns when the quota is exceeded
	deezerQuotaErrorCode = 4
	// deezerArtistTopLimit is how many top tracks are read per artist
	deezerArtistTopLimit = 20
	// deezerMaxErrorBody caps how much of an error body is kept for logs
	deezerMaxErrorBody = 512
)

// DeezerBackend reads the public Deezer API: popularity-ordered search for a style,
// country charts, and genre artist listings.
type DeezerBackend struct {
	config  *core.DeezerConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewDeezerBackend(config *core.DeezerConfig, catalog *core.CatalogConfig, logger *zap.Logger) *DeezerBackend {
	return &DeezerBackend{
		config:  config,
		client:  &http.Client{Timeout: catalog.Timeout},
		limiter: newLimiter(catalog.RequestsPerSec),
		logger:  logger,
	}
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

func (d *DeezerBackend) Name() string { return core.BackendDeezer }

func (d *DeezerBackend) Paged() bool { return true }

type deezerArtist struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
}

type deezerTrack struct {
	ID       json.Number  `json:"id"`
	Title    string       `json:"title"`
	Duration int          `json:"duration"`
	Rank     int          `json:"rank"`
	Explicit bool         `json:"explicit_lyrics"`
	Preview  string       `json:"preview"`
	Artist   deezerArtist `json:"artist"`
}

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerPage[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// Search reads one page. A configured country chart takes precedence over the style search.
func (d *DeezerBackend) Search(ctx context.Context, q Query) ([]core.Track, error) {
	var (
		path   string
		params = url.Values{}
	)

	if chartID, ok := d.config.ChartIDs[q.Country]; ok && q.Country != "" {
		path = fmt.Sprintf("/chart/%d/tracks", chartID)
	} else {
		path = "/search"
		query := q.Style
		if isAnyStyle(query) {
			query = d.config.AnyQuery
		}
		params.Set("q", query)
		params.Set("order", "RANKING")
	}
	params.Set("index", strconv.Itoa(q.Offset))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	var page deezerPage[deezerTrack]
	if err := d.get(ctx, path, params, &page); err != nil {
		return nil, err
	}

	genres := []string(nil)
	if !isAnyStyle(q.Style) {
		genres = []string{q.Style}
	}
	tracks := make([]core.Track, 0, len(page.Data))
	for i := range page.Data {
		tracks = append(tracks, page.Data[i].toTrack(genres))
	}
	return tracks, nil
}

// Artists lists the artists of a configured genre and their top tracks. Artists whose top
// tracks cannot be read are skipped.
func (d *DeezerBackend) Artists(ctx context.Context, genre string) ([]core.Artist, error) {
	genreID := 0
	if !isAnyStyle(genre) {
		id, ok := d.config.GenreIDs[genre]
		if !ok {
			return nil, fmt.Errorf("no deezer genre id configured for %q", genre)
		}
		genreID = id
	}

	var listing deezerPage[deezerArtist]
	if err := d.get(ctx, fmt.Sprintf("/genre/%d/artists", genreID), url.Values{}, &listing); err != nil {
		return nil, err
	}

	genres := []string(nil)
	if !isAnyStyle(genre) {
		genres = []string{genre}
	}

	artists := make([]core.Artist, 0, len(listing.Data))
	for _, a := range listing.Data {
		var top deezerPage[deezerTrack]
		params := url.Values{}
		params.Set("limit", strconv.Itoa(deezerArtistTopLimit))
		if err := d.get(ctx, "/artist/"+a.ID.String()+"/top", params, &top); err != nil {
			if errors.Is(err, ErrRateLimited) || ctx.Err() != nil {
				return nil, err
			}
			d.logger.Debug("Skipping artist without readable top tracks",
				zap.String("artist", a.Name),
				zap.Error(err))
			continue
		}

		artist := core.Artist{
			ID:     a.ID.String(),
			Name:   a.Name,
			Genres: genres,
			Tracks: make([]core.Track, 0, len(top.Data)),
		}
		for i := range top.Data {
			artist.Tracks = append(artist.Tracks, top.Data[i].toTrack(genres))
		}
		artists = append(artists, artist)
	}
	return artists, nil
}

func (t *deezerTrack) toTrack(genres []string) core.Track {
	return core.Track{
		ID:         t.ID.String(),
		Title:      t.Title,
		ArtistName: t.Artist.Name,
		PreviewURL: t.Preview,
		Rank:       max(t.Rank, 0),
		Genres:     genres,
		Duration:   time.Duration(t.Duration) * time.Second,
		Explicit:   t.Explicit,
		Source:     core.BackendDeezer,
	}
}

func (d *DeezerBackend) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	endpoint := strings.TrimRight(d.config.BaseURL, "/") + path
	if encoded := params.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("deezer request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("deezer %s: %w", path, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, deezerMaxErrorBody))
		return fmt.Errorf("deezer %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read deezer response: %w", err)
	}

	// Deezer reports API errors, the quota included, inside a 200 response
	var envelope struct {
		Error *deezerError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode deezer response: %w", err)
	}
	if envelope.Error != nil {
		if envelope.Error.Code == deezerQuotaErrorCode {
			return fmt.Errorf("deezer %s: %s: %w", path, envelope.Error.Message, ErrRateLimited)
		}
		return fmt.Errorf("deezer %s: %s (code %d)", path, envelope.Error.Message, envelope.Error.Code)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode deezer response: %w", err)
	}
	return nil
}
