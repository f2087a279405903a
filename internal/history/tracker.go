// Package history decides which candidates a player has already heard recently and
// when that memory has to be dropped to keep the game going.
package history

import (
	"musicquiz/internal/core"
	"musicquiz/pkg/fuzzy"
)

// Tracker applies a per-difficulty SelectionHistory to candidate pools. It holds no
// per-player state and is safe for concurrent use.
type Tracker struct {
	capacity     int
	minAvailable int
	normalizer   *fuzzy.Normalizer
}

// NewTracker creates a tracker that keeps at most capacity entries per list and relaxes
// the history once fewer than minAvailable candidates remain.
func NewTracker(capacity, minAvailable int) *Tracker {
	if capacity <= 0 {
		capacity = core.DefaultHistoryCapacity
	}
	if minAvailable <= 0 {
		minAvailable = core.DefaultMinPoolSize
	}
	return &Tracker{
		capacity:     capacity,
		minAvailable: minAvailable,
		normalizer:   fuzzy.NewNormalizer(),
	}
}

// Capacity returns the per-list bound
func (t *Tracker) Capacity() int {
	return t.capacity
}

// index is a lookup view over a history
type index struct {
	ids     map[string]struct{}
	artists map[string]struct{}
}

func (t *Tracker) index(h core.SelectionHistory) index {
	idx := index{
		ids:     make(map[string]struct{}, len(h.UsedTrackIDs)),
		artists: make(map[string]struct{}, len(h.UsedArtists)),
	}
	for _, id := range h.UsedTrackIDs {
		idx.ids[id] = struct{}{}
	}
	for _, name := range h.UsedArtists {
		idx.artists[t.normalizer.ArtistKey(name)] = struct{}{}
	}
	return idx
}

func (t *Tracker) available(idx index, track core.Track) bool {
	if _, used := idx.ids[track.ID]; used {
		return false
	}
	_, used := idx.artists[t.normalizer.ArtistKey(track.ArtistName)]
	return !used
}

// IsAvailable reports whether neither the track nor its artist appear in the history
func (t *Tracker) IsAvailable(track core.Track, h core.SelectionHistory) bool {
	return t.available(t.index(h), track)
}

// Filter returns the candidates that are available under h, preserving order
func (t *Tracker) Filter(candidates []core.Track, h core.SelectionHistory) []core.Track {
	idx := t.index(h)
	filtered := make([]core.Track, 0, len(candidates))
	for i := range candidates {
		if t.available(idx, candidates[i]) {
			filtered = append(filtered, candidates[i])
		}
	}
	return filtered
}

// Record returns a copy of h with the tracks' ids and artist names appended. Entries that
// are already present move to the newest end, and both lists are truncated from the
// oldest end to the tracker's capacity.
func (t *Tracker) Record(h core.SelectionHistory, tracks ...core.Track) core.SelectionHistory {
	out := h.Clone()
	for i := range tracks {
		if tracks[i].ID != "" {
			out.UsedTrackIDs = moveToNewest(out.UsedTrackIDs, tracks[i].ID, func(a, b string) bool { return a == b })
		}
		if tracks[i].ArtistName != "" {
			out.UsedArtists = moveToNewest(out.UsedArtists, tracks[i].ArtistName, t.normalizer.SameArtist)
		}
	}
	out.Normalize(t.capacity)
	return out
}

// RelaxIfNeeded filters candidates by h. When fewer than the minimum remain, the history
// is discarded and the original candidates are returned with relaxed set.
func (t *Tracker) RelaxIfNeeded(
	candidates []core.Track,
	h core.SelectionHistory,
) (filtered []core.Track, updated core.SelectionHistory, relaxed bool) {
	filtered = t.Filter(candidates, h)
	if len(filtered) >= t.minAvailable {
		return filtered, h, false
	}
	if h.IsEmpty() {
		return filtered, h, false
	}
	return append([]core.Track(nil), candidates...), core.SelectionHistory{
		UsedTrackIDs: []string{},
		UsedArtists:  []string{},
	}, true
}

func moveToNewest(values []string, value string, equal func(a, b string) bool) []string {
	out := values[:0]
	for _, v := range values {
		if !equal(v, value) {
			out = append(out, v)
		}
	}
	return append(out, value)
}
