package catalog

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

const reloadedFixture = `[
  {"id": 1, "name": "Blondie", "genre": "rock", "tracks": [{"id": 11, "title": "Call Me", "rank": 5}]},
  {"id": 2, "name": "Ramones", "genre": "rock", "tracks": [{"id": 21, "title": "Blitzkrieg Bop", "rank": 4}]}
]`

func TestSnapshotBackend_WatchReloadsOnChange(t *testing.T) {
	path := writeFixture(t, snapshotFixture)
	backend := NewSnapshotBackend(path, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- backend.Watch(ctx)
	}()

	// Give the watcher time to register the directory before writing
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(reloadedFixture), 0o600); err != nil {
		t.Fatalf("failed to rewrite fixture: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		artists, err := backend.Artists(context.Background(), "rock")
		if err == nil && len(artists) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot was not reloaded, rock has %d artists", len(artists))
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not return after cancellation")
	}
}

func TestSnapshotBackend_WatchMissingDirectory(t *testing.T) {
	backend := NewSnapshotBackend("/nonexistent-musicquiz-dir/artists.json", zap.NewNop())

	if err := backend.Watch(context.Background()); err == nil {
		t.Fatal("Watch() on a missing directory should fail")
	}
}
