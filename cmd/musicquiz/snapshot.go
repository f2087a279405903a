package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"musicquiz/internal/catalog"
	"musicquiz/internal/core"
	"musicquiz/internal/preview"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage the local artist snapshot",
}

var snapshotBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an artist snapshot from the live catalog",
	Long: `Fetch the artists of each genre with their top tracks from the live catalog (Deezer
unless --catalog-backend=spotify), keep only tracks whose preview currently plays and
write the result in the snapshot format served by --catalog-backend=snapshot.`,
	RunE: runSnapshotBuild,
}

func init() {
	snapshotBuildCmd.Flags().StringSlice("genres", nil, "Genres to include (default: every configured Deezer genre)")
	snapshotBuildCmd.Flags().String("out", "", "Output file (default: --snapshot-path)")
	snapshotBuildCmd.Flags().Int("concurrency", catalog.DefaultBuildConcurrency, "Parallel preview checks")
	snapshotCmd.AddCommand(snapshotBuildCmd)
}

func runSnapshotBuild(cmd *cobra.Command, _ []string) error {
	genres, _ := cmd.Flags().GetStringSlice("genres")
	out, _ := cmd.Flags().GetString("out")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	if len(genres) == 0 {
		genres = configuredGenres(config.Catalog.Deezer.GenreIDs)
	}
	if out == "" {
		out = config.Catalog.Snapshot.Path
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	backend, err := createLiveBackend()
	if err != nil {
		return err
	}

	adapter := catalog.NewAdapter(backend, &config.Catalog, nil, logger.Named("catalog"), core.NopMetrics{})
	validator := preview.NewValidator(&config.Preview, logger.Named("preview"), core.NopMetrics{})
	builder := catalog.NewBuilder(adapter, validator, concurrency, logger.Named("builder"))

	logger.Info("Building snapshot",
		zap.String("catalog", backend.Name()),
		zap.Strings("genres", genres),
		zap.String("out", out))

	artists, err := builder.Build(ctx, genres)
	if err != nil {
		return fmt.Errorf("failed to build snapshot: %w", err)
	}
	if err := catalog.WriteSnapshot(out, artists); err != nil {
		return err
	}

	tracks := 0
	for i := range artists {
		tracks += len(artists[i].Tracks)
	}
	logger.Info("Snapshot written",
		zap.String("path", out),
		zap.Int("artists", len(artists)),
		zap.Int("tracks", tracks))
	return nil
}

// createLiveBackend picks the backend a snapshot is built from; the snapshot backend
// itself cannot be a source.
func createLiveBackend() (catalog.Backend, error) {
	if config.Catalog.Backend == core.BackendSpotify {
		backend, err := catalog.NewSpotifyBackend(&config.Catalog.Spotify, &config.Catalog, logger.Named("spotify"))
		if err != nil {
			return nil, fmt.Errorf("failed to create Spotify backend: %w", err)
		}
		return backend, nil
	}
	return catalog.NewDeezerBackend(&config.Catalog.Deezer, &config.Catalog, logger.Named("deezer")), nil
}

func configuredGenres(ids map[string]int) []string {
	genres := make([]string, 0, len(ids))
	for genre := range ids {
		genres = append(genres, genre)
	}
	sort.Strings(genres)
	return genres
}
