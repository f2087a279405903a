package main

import (
	"context"
	"fmt"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"musicquiz/internal/catalog"
	"musicquiz/internal/core"
	"musicquiz/internal/flood"
	"musicquiz/internal/history"
	httpserver "musicquiz/internal/http"
	"musicquiz/internal/preview"
	"musicquiz/internal/quiz"
	"musicquiz/internal/selection"
	"musicquiz/internal/store"
)

const version = "1.0.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve quiz rounds over HTTP (default)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting musicquiz",
		zap.String("version", version),
		zap.String("catalog", config.Catalog.Backend),
		zap.String("language", config.App.Language),
		zap.Bool("persistent_history", config.History.DBPath != ""))

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	return runServices(ctx, svcs)
}

type services struct {
	metrics    *httpserver.Metrics
	snapshot   *catalog.SnapshotBackend
	persister  *store.SQLitePersister
	floodgate  *flood.Floodgate
	quiz       *quiz.Service
	httpServer *httpserver.Server
}

func (s *services) close() {
	if s.floodgate != nil {
		s.floodgate.Stop()
	}
	if s.persister != nil {
		if err := s.persister.Close(); err != nil {
			logger.Debug("Failed to close history database", zap.Error(err))
		}
	}
}

// pipeline is the selection stack shared by serve and round
type pipeline struct {
	adapter  *catalog.Adapter
	snapshot *catalog.SnapshotBackend
	engine   *selection.Engine
}

func buildPipeline(metrics core.Metrics) (*pipeline, error) {
	backend, snapshot, err := createBackend()
	if err != nil {
		return nil, err
	}

	var catalogRng, selectionRng *rand.Rand
	if seed := config.Selection.Seed; seed != 0 {
		catalogRng = rand.New(rand.NewSource(seed))       //nolint:gosec // Reproducible runs only
		selectionRng = rand.New(rand.NewSource(seed + 1)) //nolint:gosec // Reproducible runs only
	}

	adapter := catalog.NewAdapter(backend, &config.Catalog, catalogRng, logger.Named("catalog"), metrics)
	validator := preview.NewValidator(&config.Preview, logger.Named("preview"), metrics)
	tracker := history.NewTracker(config.History.Capacity, config.Selection.MinPoolSize)
	engine := selection.NewEngine(adapter, validator, tracker, &config.Selection, selectionRng,
		logger.Named("selection"), metrics)

	return &pipeline{adapter: adapter, snapshot: snapshot, engine: engine}, nil
}

// createBackend returns the configured catalog backend, plus the snapshot backend when
// that is the one in use so callers can watch it.
func createBackend() (catalog.Backend, *catalog.SnapshotBackend, error) {
	switch config.Catalog.Backend {
	case core.BackendSpotify:
		backend, err := catalog.NewSpotifyBackend(&config.Catalog.Spotify, &config.Catalog, logger.Named("spotify"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Spotify backend: %w", err)
		}
		return backend, nil, nil
	case core.BackendSnapshot:
		snapshot := catalog.NewSnapshotBackend(config.Catalog.Snapshot.Path, logger.Named("snapshot"))
		return snapshot, snapshot, nil
	default:
		return catalog.NewDeezerBackend(&config.Catalog.Deezer, &config.Catalog, logger.Named("deezer")), nil, nil
	}
}

func openSessions(ctx context.Context) (*store.SessionStore, *store.SQLitePersister, error) {
	var (
		persister store.Persister
		db        *store.SQLitePersister
	)
	if config.History.DBPath != "" {
		var err error
		db, err = store.OpenSQLite(ctx, config.History.DBPath, config.History.MaxSessions, logger.Named("store"))
		if err != nil {
			return nil, nil, err
		}
		persister = db
	}

	sessions, err := store.NewSessionStore(config.History.MaxSessions, config.History.Capacity, persister,
		logger.Named("store"))
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, nil, err
	}
	return sessions, db, nil
}

func initializeServices(ctx context.Context) (*services, error) {
	metrics := httpserver.NewMetrics()

	p, err := buildPipeline(metrics)
	if err != nil {
		return nil, err
	}

	sessions, db, err := openSessions(ctx)
	if err != nil {
		return nil, err
	}

	svcs := &services{
		metrics:   metrics,
		snapshot:  p.snapshot,
		persister: db,
		floodgate: flood.New(config.App.FloodLimitPerMinute),
		quiz:      quiz.NewService(p.engine, sessions, logger.Named("quiz")),
	}

	deps := httpserver.Dependencies{
		Rounds:   svcs.quiz,
		Flood:    svcs.floodgate,
		Metrics:  metrics,
		Language: config.App.Language,
	}
	if db != nil {
		deps.Ready = func(ctx context.Context) error {
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return db.Ping(pingCtx)
		}
	}
	svcs.httpServer = httpserver.NewServer(&config.Server, deps, logger.Named("http"))

	return svcs, nil
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	if svcs.snapshot != nil && config.Catalog.Snapshot.Watch {
		g.Go(func() error {
			return svcs.snapshot.Watch(gCtx)
		})
	}

	logger.Info("musicquiz started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("musicquiz stopped with error", zap.Error(err))
		return err
	}

	logger.Info("musicquiz stopped gracefully")
	return nil
}
