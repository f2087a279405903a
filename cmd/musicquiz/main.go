// Package main provides the musicquiz CLI application entry point.
package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"musicquiz/internal/core"
	"musicquiz/internal/i18n"
)

const envPrefix = "MUSICQUIZ"

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "musicquiz",
	Short: "musicquiz - guess the track from a short preview",
	Long: `musicquiz serves multiple-choice music quiz rounds: one correct track and three decoys,
chosen by difficulty and style from Deezer, Spotify or a local artist snapshot.`,
	RunE: runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", defaults.Log.Format, "log format (json, console)")

	// Catalog
	flags.String("catalog-backend", defaults.Catalog.Backend, "Catalog backend (deezer, spotify, snapshot)")
	flags.Duration("catalog-timeout", defaults.Catalog.Timeout, "Timeout for one catalog request")
	flags.Duration("catalog-rate-limit-backoff", defaults.Catalog.RateLimitBackoff, "Delay before retrying a rate-limited catalog request")
	flags.Float64("catalog-requests-per-sec", defaults.Catalog.RequestsPerSec, "Maximum catalog requests per second (0 disables throttling)")
	flags.Int("catalog-page-cache-size", defaults.Catalog.PageCacheSize, "Number of catalog pages kept in memory (0 disables caching)")
	flags.Duration("catalog-page-cache-ttl", defaults.Catalog.PageCacheTTL, "How long a cached catalog page stays fresh")
	flags.String("deezer-base-url", defaults.Catalog.Deezer.BaseURL, "Deezer API base URL")
	flags.String("deezer-any-query", defaults.Catalog.Deezer.AnyQuery, "Search query used when no style is requested")
	flags.String("deezer-chart-ids", formatIntMap(defaults.Catalog.Deezer.ChartIDs), "Country chart playlists, e.g. FR=1109890291,DE=1111143121")
	flags.String("deezer-genre-ids", formatIntMap(defaults.Catalog.Deezer.GenreIDs), "Style to Deezer genre id mapping, e.g. rock=152,pop=132")
	flags.String("spotify-client-id", "", "Spotify client ID")
	flags.String("spotify-client-secret", "", "Spotify client secret")
	flags.String("spotify-market", defaults.Catalog.Spotify.DefaultMarket, "Spotify market used when no country is requested")
	flags.String("snapshot-path", defaults.Catalog.Snapshot.Path, "Artist snapshot file for the snapshot backend")
	flags.Bool("snapshot-watch", defaults.Catalog.Snapshot.Watch, "Reload the snapshot when the file changes")

	// Preview validation
	flags.Duration("preview-timeout", defaults.Preview.Timeout, "Timeout for one preview check")
	flags.Int("preview-cache-size", defaults.Preview.CacheSize, "Number of preview verdicts kept in memory")
	flags.Duration("preview-positive-ttl", defaults.Preview.PositiveTTL, "How long a playable verdict is trusted")
	flags.Duration("preview-negative-ttl", defaults.Preview.NegativeTTL, "How long an unplayable verdict is trusted")

	// Selection
	flags.Int("over-fetch-factor", defaults.Selection.OverFetchFactor, "Candidates requested per option slot")
	flags.Int("max-correct-attempts", defaults.Selection.MaxCorrectAttempts, "Preview checks per pool when choosing the correct track")
	flags.Int("max-decoy-probes", defaults.Selection.MaxDecoyProbes, "Preview checks spent on decoys per round")
	flags.Int("min-pool-size", defaults.Selection.MinPoolSize, "Fresh candidates below which a player's history is cleared")
	flags.Int64("seed", 0, "Random seed (0 seeds from the clock)")

	// History
	flags.Int("history-capacity", defaults.History.Capacity, "Track ids and artists remembered per player and difficulty")
	flags.Int("history-max-sessions", defaults.History.MaxSessions, "Player histories kept in memory")
	flags.String("history-db-path", defaults.History.DBPath, "SQLite file for player histories (empty keeps them in memory)")

	// Server
	flags.String("server-host", defaults.Server.Host, "HTTP server host")
	flags.Int("server-port", defaults.Server.Port, "HTTP server port")
	flags.Duration("server-read-timeout", defaults.Server.ReadTimeout, "HTTP read timeout")
	flags.Duration("server-write-timeout", defaults.Server.WriteTimeout, "HTTP write timeout")

	supportedLangs := strings.Join(i18n.GetSupportedLanguages(), ", ")
	flags.String("language", i18n.DefaultLanguage, fmt.Sprintf("Default message language (%s)", supportedLangs))
	flags.Int("flood-limit-per-minute", defaults.App.FloodLimitPerMinute, "Maximum rounds per player per minute")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd, roundCmd, snapshotCmd)
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		// Don't exit if .env file doesn't exist, just warn
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level, config.Log.Format)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureCatalog(cfg)
	configurePreview(cfg)
	configureSelection(cfg)
	configureHistory(cfg)
	configureServer(cfg)
	configureApp(cfg)

	return cfg
}

func configureCatalog(cfg *core.Config) {
	c := &cfg.Catalog

	c.Backend = strings.ToLower(strings.TrimSpace(viper.GetString("catalog-backend")))
	switch c.Backend {
	case core.BackendDeezer, core.BackendSpotify, core.BackendSnapshot:
	default:
		warnf("Unsupported catalog backend '%s', falling back to '%s'", c.Backend, core.BackendDeezer)
		c.Backend = core.BackendDeezer
	}

	c.Timeout = positiveDuration("catalog-timeout", c.Timeout)
	c.RateLimitBackoff = nonNegativeDuration("catalog-rate-limit-backoff", c.RateLimitBackoff)
	if rps := viper.GetFloat64("catalog-requests-per-sec"); rps >= 0 {
		c.RequestsPerSec = rps
	} else {
		warnf("Invalid catalog-requests-per-sec (%v), using default (%v)", rps, c.RequestsPerSec)
	}
	c.PageCacheSize = nonNegativeInt("catalog-page-cache-size", c.PageCacheSize)
	c.PageCacheTTL = positiveDuration("catalog-page-cache-ttl", c.PageCacheTTL)

	c.Deezer.BaseURL = strings.TrimRight(viper.GetString("deezer-base-url"), "/")
	if c.Deezer.BaseURL == "" {
		c.Deezer.BaseURL = core.DefaultConfig().Catalog.Deezer.BaseURL
	}
	if q := strings.TrimSpace(viper.GetString("deezer-any-query")); q != "" {
		c.Deezer.AnyQuery = q
	}
	if ids, err := parseIntMap(viper.GetString("deezer-chart-ids"), strings.ToUpper); err != nil {
		warnf("Invalid deezer-chart-ids: %v", err)
	} else {
		c.Deezer.ChartIDs = ids
	}
	if ids, err := parseIntMap(viper.GetString("deezer-genre-ids"), strings.ToLower); err != nil {
		warnf("Invalid deezer-genre-ids: %v", err)
	} else if len(ids) > 0 {
		c.Deezer.GenreIDs = ids
	}

	c.Spotify.ClientID = viper.GetString("spotify-client-id")
	c.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	if market := strings.ToUpper(strings.TrimSpace(viper.GetString("spotify-market"))); len(market) == 2 {
		c.Spotify.DefaultMarket = market
	} else if market != "" {
		warnf("Invalid spotify-market '%s', using default (%s)", market, c.Spotify.DefaultMarket)
	}

	if path := viper.GetString("snapshot-path"); path != "" {
		c.Snapshot.Path = path
	}
	c.Snapshot.Watch = viper.GetBool("snapshot-watch")
}

func configurePreview(cfg *core.Config) {
	p := &cfg.Preview
	p.Timeout = positiveDuration("preview-timeout", p.Timeout)
	p.CacheSize = nonNegativeInt("preview-cache-size", p.CacheSize)
	p.PositiveTTL = positiveDuration("preview-positive-ttl", p.PositiveTTL)
	p.NegativeTTL = positiveDuration("preview-negative-ttl", p.NegativeTTL)
}

func configureSelection(cfg *core.Config) {
	s := &cfg.Selection
	s.OverFetchFactor = positiveInt("over-fetch-factor", s.OverFetchFactor)
	s.MaxCorrectAttempts = positiveInt("max-correct-attempts", s.MaxCorrectAttempts)
	s.MaxDecoyProbes = positiveInt("max-decoy-probes", s.MaxDecoyProbes)
	s.MinPoolSize = positiveInt("min-pool-size", s.MinPoolSize)
	s.Seed = viper.GetInt64("seed")
}

func configureHistory(cfg *core.Config) {
	h := &cfg.History
	h.Capacity = positiveInt("history-capacity", h.Capacity)
	h.MaxSessions = positiveInt("history-max-sessions", h.MaxSessions)
	h.DBPath = strings.TrimSpace(viper.GetString("history-db-path"))
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = core.DefaultConfig().Server.Host
	}
	if port := viper.GetInt("server-port"); port > 0 && port <= 65535 {
		cfg.Server.Port = port
	} else {
		warnf("Invalid server port (%d), using default (%d)", port, cfg.Server.Port)
	}
	cfg.Server.ReadTimeout = positiveDuration("server-read-timeout", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = positiveDuration("server-write-timeout", cfg.Server.WriteTimeout)

	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = strings.ToLower(viper.GetString("log-format"))
}

func configureApp(cfg *core.Config) {
	cfg.App.Language = strings.ToLower(strings.TrimSpace(viper.GetString("language")))
	if cfg.App.Language == "" {
		cfg.App.Language = i18n.DefaultLanguage
	}
	if !i18n.IsSupported(cfg.App.Language) {
		warnf("Unsupported language '%s', falling back to '%s'. Supported languages: %s",
			cfg.App.Language, i18n.DefaultLanguage, strings.Join(i18n.GetSupportedLanguages(), ", "))
		cfg.App.Language = i18n.DefaultLanguage
	}

	cfg.App.FloodLimitPerMinute = positiveInt("flood-limit-per-minute", cfg.App.FloodLimitPerMinute)
}

func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

func positiveInt(key string, def int) int {
	v := viper.GetInt(key)
	if v <= 0 {
		warnf("Invalid %s (%d), using default (%d)", key, v, def)
		return def
	}
	return v
}

func nonNegativeInt(key string, def int) int {
	v := viper.GetInt(key)
	if v < 0 {
		warnf("Invalid %s (%d), using default (%d)", key, v, def)
		return def
	}
	return v
}

func positiveDuration(key string, def time.Duration) time.Duration {
	v := viper.GetDuration(key)
	if v <= 0 {
		warnf("Invalid %s (%v), using default (%v)", key, v, def)
		return def
	}
	return v
}

func nonNegativeDuration(key string, def time.Duration) time.Duration {
	v := viper.GetDuration(key)
	if v < 0 {
		warnf("Invalid %s (%v), using default (%v)", key, v, def)
		return def
	}
	return v
}

// parseIntMap reads "key=id,key=id" lists used for Deezer chart and genre ids
func parseIntMap(s string, normalizeKey func(string) string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = normalizeKey(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=id, got %q", pair)
		}
		id, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid id for %q: %q", key, value)
		}
		out[key] = id
	}
	return out, nil
}

func formatIntMap(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(pairs, ",")
}

func buildLogger(level, format string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}
	return builtLogger
}
