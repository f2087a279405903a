package store

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"musicquiz/internal/core"
)

func openTestDB(t *testing.T, path string) *SQLitePersister {
	t.Helper()
	p, err := OpenSQLite(context.Background(), path, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p
}

func TestSQLitePersister_SaveAndLoad(t *testing.T) {
	p := openTestDB(t, filepath.Join(t.TempDir(), "history.db"))
	ctx := context.Background()

	if _, found, err := p.Load(ctx, "alice"); err != nil || found {
		t.Fatalf("Load() of unknown player = found %v, err %v", found, err)
	}

	history := core.PlayerHistory{
		core.DifficultyEasy: {UsedTrackIDs: []string{"t1", "t2"}, UsedArtists: []string{"Muse"}},
		core.DifficultyHard: {UsedTrackIDs: []string{"t9"}, UsedArtists: []string{}},
	}
	if err := p.Save(ctx, "alice", history); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, found, err := p.Load(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("Load() = found %v, err %v", found, err)
	}
	if len(got[core.DifficultyEasy].UsedTrackIDs) != 2 || got[core.DifficultyHard].UsedTrackIDs[0] != "t9" {
		t.Errorf("Load() = %v, want the saved history", got)
	}

	// Upsert replaces the document
	if err := p.Save(ctx, "alice", core.PlayerHistory{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, _, _ = p.Load(ctx, "alice")
	if len(got) != 0 {
		t.Errorf("Load() after overwrite = %v, want empty", got)
	}
}

func TestSQLitePersister_KnownPlayersSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	first, err := OpenSQLite(ctx, path, 100, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := first.Save(ctx, "alice", core.PlayerHistory{
		core.DifficultyMedium: {UsedTrackIDs: []string{"t1"}, UsedArtists: []string{"Blur"}},
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	_ = first.Close()

	second := openTestDB(t, path)
	got, found, err := second.Load(ctx, "alice")
	if err != nil || !found {
		t.Fatalf("Load() after reopen = found %v, err %v", found, err)
	}
	if got[core.DifficultyMedium].UsedArtists[0] != "Blur" {
		t.Errorf("Load() = %v, want alice's medium history", got)
	}
}

func TestSQLitePersister_CorruptRowResets(t *testing.T) {
	p := openTestDB(t, filepath.Join(t.TempDir(), "history.db"))
	ctx := context.Background()

	if err := p.Save(ctx, "alice", core.PlayerHistory{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := p.db.ExecContext(ctx,
		`UPDATE player_history SET history = ? WHERE player_id = ?`, `{"easy": 42`, "alice"); err != nil {
		t.Fatalf("failed to corrupt row: %v", err)
	}

	got, found, err := p.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load() error = %v, want corrupt rows to reset", err)
	}
	if !found || len(got) != 0 {
		t.Errorf("Load() = %v (found %v), want an empty history", got, found)
	}
}

func TestSQLitePersister_DropsUnknownDifficulties(t *testing.T) {
	p := openTestDB(t, filepath.Join(t.TempDir(), "history.db"))
	ctx := context.Background()

	if err := p.Save(ctx, "alice", core.PlayerHistory{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	raw := `{"easy": {"used_track_ids": ["t1", ""], "used_artists": null}, "nightmare": {"used_track_ids": ["x"]}}`
	if _, err := p.db.ExecContext(ctx,
		`UPDATE player_history SET history = ? WHERE player_id = ?`, raw, "alice"); err != nil {
		t.Fatalf("failed to rewrite row: %v", err)
	}

	got, _, err := p.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Load() = %v, want only the easy history", got)
	}
	easy := got[core.DifficultyEasy]
	if len(easy.UsedTrackIDs) != 1 || easy.UsedArtists == nil {
		t.Errorf("easy history = %#v, want repaired lists", easy)
	}
}

func TestSessionStore_WithSQLite(t *testing.T) {
	p := openTestDB(t, filepath.Join(t.TempDir(), "history.db"))
	ctx := context.Background()

	store, err := NewSessionStore(1, 100, p, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionStore() error = %v", err)
	}

	_ = store.Save(ctx, "p1", core.DifficultyEasy, core.SelectionHistory{UsedTrackIDs: []string{"t1"}})
	_ = store.Save(ctx, "p2", core.DifficultyEasy, core.SelectionHistory{UsedTrackIDs: []string{"t2"}})

	h, err := store.Load(ctx, "p1", core.DifficultyEasy)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(h.UsedTrackIDs) != 1 || h.UsedTrackIDs[0] != "t1" {
		t.Errorf("Load() = %v, want p1's history back from SQLite", h)
	}
}
