package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"musicquiz/internal/core"
)

const (
	// spotifyMaxPageSize is the largest page the search endpoint accepts
	spotifyMaxPageSize = 50
	// spotifyMaxArtists bounds how many artists a genre listing reads top tracks for
	spotifyMaxArtists = 20
	// spotifyAnyQuery is used when no style is requested; search needs a non-empty query
	spotifyAnyQuery = "year:1960-2030"
)

// SpotifyBackend searches the Spotify Web API with app-only client credentials
type SpotifyBackend struct {
	config  *core.SpotifyConfig
	client  *spotify.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSpotifyBackend builds a backend authenticated with the client credentials flow. The
// token is fetched lazily on the first request.
func NewSpotifyBackend(config *core.SpotifyConfig, catalog *core.CatalogConfig, logger *zap.Logger) (*SpotifyBackend, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, errors.New("spotify client id and secret are required")
	}

	credentials := &clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: catalog.Timeout})
	httpClient := credentials.Client(tokenCtx)
	httpClient.Timeout = catalog.Timeout

	return newSpotifyBackend(config, spotify.New(httpClient), catalog.RequestsPerSec, logger), nil
}

func newSpotifyBackend(config *core.SpotifyConfig, client *spotify.Client, perSecond float64, logger *zap.Logger) *SpotifyBackend {
	return &SpotifyBackend{
		config:  config,
		client:  client,
		limiter: newLimiter(perSecond),
		logger:  logger,
	}
}

func (s *SpotifyBackend) Name() string { return core.BackendSpotify }

func (s *SpotifyBackend) Paged() bool { return true }

func (s *SpotifyBackend) market(country string) string {
	if len(country) == 2 {
		return country
	}
	return s.config.DefaultMarket
}

func (s *SpotifyBackend) Search(ctx context.Context, q Query) ([]core.Track, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	query := spotifyAnyQuery
	genres := []string(nil)
	if !isAnyStyle(q.Style) {
		query = fmt.Sprintf("genre:%q", q.Style)
		genres = []string{q.Style}
	}

	limit := q.Limit
	if limit <= 0 || limit > spotifyMaxPageSize {
		limit = spotifyMaxPageSize
	}

	opts := []spotify.RequestOption{spotify.Limit(limit), spotify.Offset(q.Offset)}
	if market := s.market(q.Country); market != "" {
		opts = append(opts, spotify.Market(market))
	}

	results, err := s.client.Search(ctx, query, spotify.SearchTypeTrack, opts...)
	if err != nil {
		return nil, classifySpotifyError("search", err)
	}
	if results.Tracks == nil {
		return []core.Track{}, nil
	}

	tracks := make([]core.Track, 0, len(results.Tracks.Tracks))
	for i := range results.Tracks.Tracks {
		tracks = append(tracks, convertSpotifyTrack(&results.Tracks.Tracks[i], genres))
	}
	return tracks, nil
}

// Artists searches artists tagged with the genre and reads each one's top tracks
func (s *SpotifyBackend) Artists(ctx context.Context, genre string) ([]core.Artist, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	query := spotifyAnyQuery
	if !isAnyStyle(genre) {
		query = fmt.Sprintf("genre:%q", genre)
	}

	results, err := s.client.Search(ctx, query, spotify.SearchTypeArtist, spotify.Limit(spotifyMaxArtists))
	if err != nil {
		return nil, classifySpotifyError("artist search", err)
	}
	if results.Artists == nil {
		return []core.Artist{}, nil
	}

	market := s.market("")
	artists := make([]core.Artist, 0, len(results.Artists.Artists))
	for i := range results.Artists.Artists {
		found := &results.Artists.Artists[i]

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}
		top, err := s.client.GetArtistsTopTracks(ctx, found.ID, market)
		if err != nil {
			classified := classifySpotifyError("top tracks", err)
			if errors.Is(classified, ErrRateLimited) || ctx.Err() != nil {
				return nil, classified
			}
			s.logger.Debug("Skipping artist without readable top tracks",
				zap.String("artist", found.Name),
				zap.Error(err))
			continue
		}

		artist := core.Artist{
			ID:     string(found.ID),
			Name:   found.Name,
			Genres: append([]string(nil), found.Genres...),
			Tracks: make([]core.Track, 0, len(top)),
		}
		for j := range top {
			artist.Tracks = append(artist.Tracks, convertSpotifyTrack(&top[j], artist.Genres))
		}
		artists = append(artists, artist)
	}
	return artists, nil
}

func convertSpotifyTrack(track *spotify.FullTrack, genres []string) core.Track {
	artistName := ""
	if len(track.Artists) > 0 {
		artistName = track.Artists[0].Name
	}

	return core.Track{
		ID:         string(track.ID),
		Title:      track.Name,
		ArtistName: artistName,
		PreviewURL: track.PreviewURL,
		Rank:       max(int(track.Popularity), 0),
		Genres:     genres,
		Duration:   time.Duration(track.Duration) * time.Millisecond,
		Explicit:   track.Explicit,
		Source:     core.BackendSpotify,
	}
}

func classifySpotifyError(op string, err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests {
		return fmt.Errorf("spotify %s: %s: %w", op, strings.TrimSpace(apiErr.Message), ErrRateLimited)
	}
	return fmt.Errorf("spotify %s failed: %w", op, err)
}
