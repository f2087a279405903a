package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"musicquiz/internal/core"
)

// snapshotFilePermission is the permission for written snapshot files
const snapshotFilePermission = 0o644

// stringList decodes either a single JSON string or a list of strings
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

// MarshalJSON writes a single entry as a plain string
func (l stringList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}

// flexID decodes an id written either as a JSON number or a string
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = flexID(n.String())
	return nil
}

type snapshotTrack struct {
	ID       flexID `json:"id"`
	Title    string `json:"title"`
	Preview  string `json:"preview,omitempty"`
	Rank     int    `json:"rank,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Explicit bool   `json:"explicit_lyrics,omitempty"`

	// bare marks entries written as a plain title string
	bare bool
}

func (t *snapshotTrack) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		*t = snapshotTrack{bare: true}
		return json.Unmarshal(trimmed, &t.Title)
	}
	type plain snapshotTrack
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*t = snapshotTrack(p)
	return nil
}

type snapshotArtist struct {
	ID      flexID          `json:"id"`
	Name    string          `json:"name"`
	Genre   stringList      `json:"genre,omitempty"`
	Genres  stringList      `json:"genres,omitempty"`
	Country string          `json:"country,omitempty"`
	Tracks  []snapshotTrack `json:"tracks"`
}

// Snapshot is a parsed artist file partitioned by normalized genre key
type Snapshot struct {
	artists []core.Artist
	byGenre map[string][]int
}

// ParseSnapshot decodes the JSON array format. Track ids are namespaced with the artist
// id; bare title strings become rank 0 placeholders without a preview.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var raw []snapshotArtist
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	snap := &Snapshot{
		artists: make([]core.Artist, 0, len(raw)),
		byGenre: make(map[string][]int),
	}

	for i := range raw {
		a := &raw[i]
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		artistID := strings.TrimSpace(string(a.ID))
		if artistID == "" {
			artistID = "a" + strconv.Itoa(i)
		}

		genres := make([]string, 0, len(a.Genre)+len(a.Genres))
		seen := make(map[string]struct{})
		for _, g := range append(append([]string(nil), a.Genre...), a.Genres...) {
			key := GenreKey(g)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			genres = append(genres, key)
		}

		artist := core.Artist{
			ID:      artistID,
			Name:    name,
			Genres:  genres,
			Country: strings.ToUpper(strings.TrimSpace(a.Country)),
			Tracks:  make([]core.Track, 0, len(a.Tracks)),
		}
		for j := range a.Tracks {
			artist.Tracks = append(artist.Tracks, a.Tracks[j].toTrack(&artist, j))
		}

		idx := len(snap.artists)
		snap.artists = append(snap.artists, artist)
		for _, g := range genres {
			snap.byGenre[g] = append(snap.byGenre[g], idx)
		}
	}

	return snap, nil
}

func (t *snapshotTrack) toTrack(artist *core.Artist, index int) core.Track {
	track := core.Track{
		Title:      strings.TrimSpace(t.Title),
		ArtistName: artist.Name,
		Genres:     artist.Genres,
		Source:     core.BackendSnapshot,
	}
	if t.bare || t.ID == "" {
		track.ID = artist.ID + ":s" + strconv.Itoa(index)
		return track
	}
	track.ID = artist.ID + ":" + string(t.ID)
	track.PreviewURL = t.Preview
	track.Rank = max(t.Rank, 0)
	track.Duration = time.Duration(max(t.Duration, 0)) * time.Second
	track.Explicit = t.Explicit
	return track
}

// LoadSnapshot reads and parses a snapshot file
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

// Artists returns the artists of a genre in file order; "any" returns every artist
func (s *Snapshot) Artists(genre string) []core.Artist {
	if isAnyStyle(genre) {
		return append([]core.Artist(nil), s.artists...)
	}
	indexes := s.byGenre[GenreKey(genre)]
	out := make([]core.Artist, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, s.artists[idx])
	}
	return out
}

// Genres returns the genre keys present in the snapshot
func (s *Snapshot) Genres() []string {
	genres := make([]string, 0, len(s.byGenre))
	for g := range s.byGenre {
		genres = append(genres, g)
	}
	return genres
}

// GenreKey folds genre labels so "Hip-Hop", "hip hop" and "HIPHOP" share one partition,
// and "R&B" matches "rnb".
func GenreKey(genre string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(genre)) {
		switch {
		case r == '&':
			b.WriteRune('n')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WriteSnapshot writes artists in the snapshot format. The file is replaced atomically so
// a watching server never reads a half-written snapshot.
func WriteSnapshot(path string, artists []core.Artist) error {
	raw := make([]snapshotArtist, 0, len(artists))
	for i := range artists {
		a := &artists[i]
		entry := snapshotArtist{
			ID:      flexID(a.ID),
			Name:    a.Name,
			Genres:  stringList(a.Genres),
			Country: a.Country,
			Tracks:  make([]snapshotTrack, 0, len(a.Tracks)),
		}
		if len(a.Genres) > 0 {
			entry.Genre = stringList{a.Genres[0]}
		}
		for j := range a.Tracks {
			t := &a.Tracks[j]
			entry.Tracks = append(entry.Tracks, snapshotTrack{
				ID:       flexID(strings.TrimPrefix(t.ID, a.ID+":")),
				Title:    t.Title,
				Preview:  t.PreviewURL,
				Rank:     t.Rank,
				Duration: int(t.Duration.Seconds()),
				Explicit: t.Explicit,
			})
		}
		raw = append(raw, entry)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, snapshotFilePermission); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// SnapshotBackend serves candidates from an in-memory snapshot. It is not paged: every
// request returns the whole genre partition and the engine stratifies it.
type SnapshotBackend struct {
	path   string
	logger *zap.Logger

	mu   sync.RWMutex
	snap *Snapshot
}

// NewSnapshotBackend loads the snapshot at path. A missing or corrupt file leaves the
// backend empty rather than failing, so rounds fail with no candidates until Reload works.
func NewSnapshotBackend(path string, logger *zap.Logger) *SnapshotBackend {
	b := &SnapshotBackend{
		path:   path,
		logger: logger,
		snap:   &Snapshot{byGenre: map[string][]int{}},
	}
	if err := b.Reload(); err != nil {
		logger.Warn("Snapshot not loaded, serving an empty catalog",
			zap.String("path", path),
			zap.Error(err))
	}
	return b
}

// Reload re-reads the snapshot file. On failure the previous snapshot stays active.
func (b *SnapshotBackend) Reload() error {
	snap, err := LoadSnapshot(b.path)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.snap = snap
	b.mu.Unlock()

	b.logger.Info("Snapshot loaded",
		zap.String("path", b.path),
		zap.Int("artists", len(snap.artists)),
		zap.Int("genres", len(snap.byGenre)))
	return nil
}

func (b *SnapshotBackend) current() *Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

func (b *SnapshotBackend) Name() string { return core.BackendSnapshot }

func (b *SnapshotBackend) Paged() bool { return false }

// Search flattens the tracks of the style's artists. A country narrows the pool to artists
// from that country or without one.
func (b *SnapshotBackend) Search(ctx context.Context, q Query) ([]core.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	artists := b.current().Artists(q.Style)
	tracks := make([]core.Track, 0, len(artists)*4)
	for i := range artists {
		if q.Country != "" && artists[i].Country != "" && !strings.EqualFold(artists[i].Country, q.Country) {
			continue
		}
		tracks = append(tracks, artists[i].Tracks...)
	}
	return tracks, nil
}

func (b *SnapshotBackend) Artists(ctx context.Context, genre string) ([]core.Artist, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	artists := b.current().Artists(genre)
	if len(artists) == 0 && !isAnyStyle(genre) {
		return nil, errors.New("no artists for genre " + strconv.Quote(genre))
	}
	for i := range artists {
		artists[i].Tracks = append([]core.Track(nil), artists[i].Tracks...)
	}
	return artists, nil
}
