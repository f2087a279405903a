package catalog

import (
	"time"

	"musicquiz/internal/core"
)

// MinTrackDuration is the shortest track worth quizzing on. Shorter entries are mostly
// skits and intros.
const MinTrackDuration = 30 * time.Second

// Reasons a track is dropped before it reaches the engine
const (
	reasonNoPreview = "no_preview"
	reasonTooShort  = "too_short"
	reasonExplicit  = "explicit"
	reasonDuplicate = "duplicate"
	reasonNoID      = "no_id"
)

func rejectReason(t *core.Track) string {
	switch {
	case t.ID == "":
		return reasonNoID
	case !t.HasPreview():
		return reasonNoPreview
	case t.Duration > 0 && t.Duration < MinTrackDuration:
		return reasonTooShort
	case t.Explicit:
		return reasonExplicit
	default:
		return ""
	}
}

// filter drops unusable tracks and duplicate ids, keeping catalog order. Each drop is
// reported to onReject.
func filter(tracks []core.Track, onReject func(t *core.Track, reason string)) []core.Track {
	seen := make(map[string]struct{}, len(tracks))
	kept := make([]core.Track, 0, len(tracks))
	for i := range tracks {
		t := &tracks[i]
		reason := rejectReason(t)
		if reason == "" {
			if _, dup := seen[t.ID]; dup {
				reason = reasonDuplicate
			}
		}
		if reason != "" {
			onReject(t, reason)
			continue
		}
		seen[t.ID] = struct{}{}
		kept = append(kept, *t)
	}
	return kept
}
