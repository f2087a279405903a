package core

import (
	"time"
)

const (
	// DefaultServerPort is the HTTP port when none is configured
	DefaultServerPort = 8080
	// DefaultOverFetchFactor multiplies the number of tracks a round needs when asking the catalog
	DefaultOverFetchFactor = 5
	// DefaultMaxCorrectAttempts bounds preview checks per pool when choosing the correct track
	DefaultMaxCorrectAttempts = 10
	// DefaultMaxDecoyProbes bounds preview checks spent on decoys per round
	DefaultMaxDecoyProbes = 30
	// DefaultMinPoolSize is the number of fresh candidates below which history is relaxed
	DefaultMinPoolSize = 4
	// DefaultRateLimitBackoff is the fixed delay before the single rate-limit retry
	DefaultRateLimitBackoff = 2 * time.Second
	// DefaultPreviewTimeout bounds one preview probe
	DefaultPreviewTimeout = 3 * time.Second
	// DefaultCatalogTimeout bounds one catalog page request
	DefaultCatalogTimeout = 5 * time.Second
	// DefaultFloodLimitPerMinute caps round requests per player per minute
	DefaultFloodLimitPerMinute = 20
	// DefaultMaxSessions is the number of player sessions kept in memory
	DefaultMaxSessions = 10000
)

// Catalog backends
const (
	BackendDeezer   = "deezer"
	BackendSpotify  = "spotify"
	BackendSnapshot = "snapshot"
)

type Config struct {
	Catalog   CatalogConfig
	Preview   PreviewConfig
	Selection SelectionConfig
	History   HistoryConfig
	Server    ServerConfig
	Log       LogConfig
	App       AppConfig
}

type CatalogConfig struct {
	Backend          string
	Timeout          time.Duration
	RateLimitBackoff time.Duration
	RequestsPerSec   float64
	PageCacheSize    int
	PageCacheTTL     time.Duration
	Deezer           DeezerConfig
	Spotify          SpotifyConfig
	Snapshot         SnapshotConfig
}

type DeezerConfig struct {
	BaseURL  string
	AnyQuery string
	// ChartIDs maps a country code to a Deezer chart/editorial id
	ChartIDs map[string]int
	// GenreIDs maps a style name to a Deezer genre id, used when building snapshots
	GenreIDs map[string]int
}

type SpotifyConfig struct {
	ClientID      string
	ClientSecret  string
	DefaultMarket string
}

type SnapshotConfig struct {
	Path  string
	Watch bool
}

type PreviewConfig struct {
	Timeout     time.Duration
	CacheSize   int
	PositiveTTL time.Duration
	NegativeTTL time.Duration
}

type SelectionConfig struct {
	OverFetchFactor    int
	MaxCorrectAttempts int
	MaxDecoyProbes     int
	MinPoolSize        int
	Seed               int64 // zero seeds from the clock
}

type HistoryConfig struct {
	Capacity    int
	MaxSessions int
	DBPath      string // empty keeps histories in memory only
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Language            string
	FloodLimitPerMinute int
}

func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Backend:          BackendDeezer,
			Timeout:          DefaultCatalogTimeout,
			RateLimitBackoff: DefaultRateLimitBackoff,
			RequestsPerSec:   10,
			PageCacheSize:    512,
			PageCacheTTL:     5 * time.Minute,
			Deezer: DeezerConfig{
				BaseURL:  "https://api.deezer.com",
				AnyQuery: "top",
				ChartIDs: map[string]int{},
				GenreIDs: map[string]int{
					"pop":         132,
					"rap":         116,
					"rock":        152,
					"dance":       113,
					"rnb":         165,
					"alternative": 85,
					"electro":     106,
					"jazz":        129,
					"metal":       464,
				},
			},
			Spotify: SpotifyConfig{
				DefaultMarket: "US",
			},
			Snapshot: SnapshotConfig{
				Path: "./artists.json",
			},
		},
		Preview: PreviewConfig{
			Timeout:     DefaultPreviewTimeout,
			CacheSize:   4096,
			PositiveTTL: 30 * time.Minute,
			NegativeTTL: 5 * time.Minute,
		},
		Selection: SelectionConfig{
			OverFetchFactor:    DefaultOverFetchFactor,
			MaxCorrectAttempts: DefaultMaxCorrectAttempts,
			MaxDecoyProbes:     DefaultMaxDecoyProbes,
			MinPoolSize:        DefaultMinPoolSize,
		},
		History: HistoryConfig{
			Capacity:    DefaultHistoryCapacity,
			MaxSessions: DefaultMaxSessions,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		App: AppConfig{
			Language:            "en",
			FloodLimitPerMinute: DefaultFloodLimitPerMinute,
		},
	}
}
