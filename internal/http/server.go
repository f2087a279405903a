package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/justinas/alice"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"musicquiz/internal/core"
	"musicquiz/internal/flood"
	"musicquiz/internal/i18n"
	"musicquiz/internal/quiz"
	"musicquiz/internal/selection"
)

// PlayerHeader identifies the player a round is selected for
const PlayerHeader = "X-Player-ID"

type RoundPlayer interface {
	Play(ctx context.Context, playerID string, req selection.Request) (*quiz.Round, error)
	Reset(ctx context.Context, playerID string) error
	ActivePlayers() int
}

// Dependencies wires the server to the rest of the service. Flood and Ready may be nil.
type Dependencies struct {
	Rounds   RoundPlayer
	Flood    *flood.Floodgate
	Metrics  *Metrics
	Ready    func(ctx context.Context) error
	Language string
}

type Server struct {
	config  *core.ServerConfig
	deps    Dependencies
	logger  *zap.Logger
	server  *http.Server
	matcher language.Matcher
}

func NewServer(config *core.ServerConfig, deps Dependencies, logger *zap.Logger) *Server {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}

	s := &Server{
		config:  config,
		deps:    deps,
		logger:  logger,
		matcher: newLanguageMatcher(deps.Language),
	}
	s.server = createHTTPServer(config, s.setupRoutes())
	return s
}

// newLanguageMatcher prefers the configured language when Accept-Language matches nothing
func newLanguageMatcher(preferred string) language.Matcher {
	if !i18n.IsSupported(preferred) {
		preferred = i18n.DefaultLanguage
	}
	tags := []language.Tag{language.Make(preferred)}
	for _, code := range i18n.GetSupportedLanguages() {
		if code != preferred {
			tags = append(tags, language.Make(code))
		}
	}
	return language.NewMatcher(tags)
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok", "service": "musicquiz"})
	})
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	mux.HandleFunc("GET /api/round", s.handleRound)
	mux.HandleFunc("DELETE /api/history", s.handleReset)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /{$}", homeHandler(s.logger))

	standard := alice.New(s.recoverPanic, s.logRequest)
	return standard.Then(mux)
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.deps.Metrics
}

type trackResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	PreviewURL string `json:"preview_url"`
	Rank       int    `json:"rank"`
}

type roundResponse struct {
	Difficulty   string          `json:"difficulty"`
	Correct      trackResponse   `json:"correct"`
	CorrectIndex int             `json:"correct_index"`
	Options      []trackResponse `json:"options"`
	DurationSecs int             `json:"duration_secs"`
	Points       int             `json:"points"`
	Prompt       string          `json:"prompt"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func newTrackResponse(t *core.Track) trackResponse {
	return trackResponse{
		ID:         t.ID,
		Title:      t.Title,
		Artist:     t.ArtistName,
		PreviewURL: t.PreviewURL,
		Rank:       t.Rank,
	}
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	loc := s.localizer(r)
	query := r.URL.Query()

	playerID := strings.TrimSpace(r.Header.Get(PlayerHeader))
	if playerID == "" {
		writeError(w, s.logger, http.StatusBadRequest, "missing_player", loc.T("error.missing_player"))
		return
	}

	raw := query.Get("difficulty")
	if strings.TrimSpace(raw) == "" {
		raw = string(core.DifficultyEasy)
	}
	difficulty, err := core.ParseDifficulty(raw)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "bad_difficulty", loc.T("error.bad_difficulty", raw))
		return
	}

	if s.deps.Flood != nil {
		if ok, retryAfter := s.deps.Flood.Allow(playerID); !ok {
			s.deps.Metrics.RecordFloodBlocked()
			seconds := max(int(math.Ceil(retryAfter.Seconds())), 1)
			w.Header().Set("Retry-After", fmt.Sprint(seconds))
			writeError(w, s.logger, http.StatusTooManyRequests, "flood", loc.T("error.flood", seconds))
			return
		}
	}

	round, err := s.deps.Rounds.Play(r.Context(), playerID, selection.Request{
		Difficulty: difficulty,
		Style:      query.Get("style"),
		Country:    query.Get("country"),
	})
	s.deps.Metrics.SetActivePlayers(s.deps.Rounds.ActivePlayers())

	if err != nil {
		var selErr *selection.Error
		if errors.As(err, &selErr) {
			reason := selection.Reason(selErr)
			writeError(w, s.logger, http.StatusUnprocessableEntity, reason, loc.Error(reason))
			return
		}
		s.logger.Error("Round request failed",
			zap.String("player", playerID),
			zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "internal", loc.Error("internal"))
		return
	}

	resp := roundResponse{
		Difficulty:   string(round.Difficulty),
		Correct:      newTrackResponse(&round.Correct),
		CorrectIndex: round.CorrectIndex(),
		Options:      make([]trackResponse, 0, len(round.Options)),
		DurationSecs: int(round.Duration.Seconds()),
		Points:       round.Points,
		Prompt:       loc.T("round.prompt", int(round.Duration.Seconds())),
	}
	for i := range round.Options {
		resp.Options = append(resp.Options, newTrackResponse(&round.Options[i]))
	}
	writeJSON(w, s.logger, http.StatusOK, resp)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	loc := s.localizer(r)

	playerID := strings.TrimSpace(r.Header.Get(PlayerHeader))
	if playerID == "" {
		writeError(w, s.logger, http.StatusBadRequest, "missing_player", loc.T("error.missing_player"))
		return
	}

	if err := s.deps.Rounds.Reset(r.Context(), playerID); err != nil {
		s.logger.Error("History reset failed",
			zap.String("player", playerID),
			zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "internal", loc.Error("internal"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := struct {
		ActivePlayers int          `json:"active_players"`
		Flood         *flood.Stats `json:"flood,omitempty"`
	}{
		ActivePlayers: s.deps.Rounds.ActivePlayers(),
	}
	if s.deps.Flood != nil {
		fs := s.deps.Flood.GetStats()
		stats.Flood = &fs
	}
	writeJSON(w, s.logger, http.StatusOK, stats)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn("Readiness check failed", zap.Error(err))
			writeJSON(w, s.logger, http.StatusServiceUnavailable,
				map[string]string{"status": "unavailable", "service": "musicquiz"})
			return
		}
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready", "service": "musicquiz"})
}

// localizer picks the message language: ?lang=, then Accept-Language, then the default
func (s *Server) localizer(r *http.Request) *i18n.Localizer {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return i18n.NewLocalizer(lang)
	}
	tag, _ := language.MatchStrings(s.matcher, r.Header.Get("Accept-Language"))
	base, _ := tag.Base()
	return i18n.NewLocalizer(base.String())
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, code, message string) {
	writeJSON(w, logger, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>musicquiz</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">🎵 musicquiz</h1>
    <p>Guess the track from a short preview</p>

    <h2>Endpoints</h2>
    <div class="endpoint">🎲 GET /api/round?difficulty=easy&amp;style=rock - New round (X-Player-ID header)</div>
    <div class="endpoint">🧹 DELETE /api/history - Forget a player's history</div>
    <div class="endpoint">📈 <a href="/api/stats">Stats</a> - Player and flood statistics</div>
    <div class="endpoint">📊 <a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint">💚 <a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint">✅ <a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`)); err != nil {
			logger.Debug("Failed to write home page", zap.Error(err))
		}
	}
}
