package core

import "strings"

// DefaultHistoryCapacity bounds how many track ids and artist names a history remembers
const DefaultHistoryCapacity = 100

// SelectionHistory is the rolling memory of one player for one difficulty. Entries are
// ordered oldest first.
type SelectionHistory struct {
	UsedTrackIDs []string `json:"used_track_ids"`
	UsedArtists  []string `json:"used_artists"`
}

// PlayerHistory groups a player's histories by difficulty
type PlayerHistory map[Difficulty]SelectionHistory

// Clone returns a deep copy so callers can mutate without aliasing the original
func (h SelectionHistory) Clone() SelectionHistory {
	return SelectionHistory{
		UsedTrackIDs: append(make([]string, 0, len(h.UsedTrackIDs)), h.UsedTrackIDs...),
		UsedArtists:  append(make([]string, 0, len(h.UsedArtists)), h.UsedArtists...),
	}
}

// Len returns the number of remembered track ids
func (h SelectionHistory) Len() int {
	return len(h.UsedTrackIDs)
}

// IsEmpty reports whether nothing has been recorded
func (h SelectionHistory) IsEmpty() bool {
	return len(h.UsedTrackIDs) == 0 && len(h.UsedArtists) == 0
}

// Normalize repairs a history in place: nil slices become empty, blank entries are
// dropped and both lists are truncated to capacity from the oldest end.
func (h *SelectionHistory) Normalize(capacity int) {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	h.UsedTrackIDs = truncateOldest(compact(h.UsedTrackIDs), capacity)
	h.UsedArtists = truncateOldest(compact(h.UsedArtists), capacity)
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func truncateOldest(values []string, capacity int) []string {
	if len(values) <= capacity {
		return values
	}
	return append([]string(nil), values[len(values)-capacity:]...)
}
