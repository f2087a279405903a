// Package flood throttles how often a single player may request new rounds.
package flood

import (
	"sync"
	"time"
)

const (
	// window is the sliding window requests are counted over
	window = time.Minute
	// cleanupInterval is how often idle players are forgotten
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long a player may stay quiet before their entry is dropped
	idleTimeout = 10 * time.Minute
)

// Floodgate limits round requests per player with a sliding one-minute window
type Floodgate struct {
	limitPerMinute int
	now            func() time.Time

	mutex   sync.Mutex
	players map[string]*playerEntry

	stopOnce    sync.Once
	stopCleanup chan struct{}
}

type playerEntry struct {
	requests []time.Time // oldest first
	lastSeen time.Time
}

// New creates a Floodgate allowing limitPerMinute rounds per player. A limit of zero or
// less blocks every request.
func New(limitPerMinute int) *Floodgate {
	fg := newFloodgate(limitPerMinute, time.Now)
	go fg.cleanup()
	return fg
}

func newFloodgate(limitPerMinute int, now func() time.Time) *Floodgate {
	return &Floodgate{
		limitPerMinute: limitPerMinute,
		now:            now,
		players:        make(map[string]*playerEntry),
		stopCleanup:    make(chan struct{}),
	}
}

// Stop ends the background cleanup loop. It is safe to call more than once.
func (fg *Floodgate) Stop() {
	fg.stopOnce.Do(func() {
		close(fg.stopCleanup)
	})
}

// Allow records a round request for playerID. When the player is over the limit it
// returns false and how long until the oldest request leaves the window.
func (fg *Floodgate) Allow(playerID string) (bool, time.Duration) {
	now := fg.now()

	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	entry, ok := fg.players[playerID]
	if !ok {
		entry = &playerEntry{requests: make([]time.Time, 0, max(fg.limitPerMinute, 0)+1)}
		fg.players[playerID] = entry
	}
	entry.lastSeen = now

	windowStart := now.Add(-window)
	kept := entry.requests[:0]
	for _, ts := range entry.requests {
		if ts.After(windowStart) {
			kept = append(kept, ts)
		}
	}
	entry.requests = kept

	if fg.limitPerMinute <= 0 {
		return false, window
	}
	if len(entry.requests) >= fg.limitPerMinute {
		return false, entry.requests[0].Sub(windowStart)
	}

	entry.requests = append(entry.requests, now)
	return true, 0
}

func (fg *Floodgate) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fg.performCleanup()
		case <-fg.stopCleanup:
			return
		}
	}
}

func (fg *Floodgate) performCleanup() {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	cutoff := fg.now().Add(-idleTimeout)
	for id, entry := range fg.players {
		if entry.lastSeen.Before(cutoff) {
			delete(fg.players, id)
		}
	}
}

// GetStats returns floodgate statistics for monitoring
func (fg *Floodgate) GetStats() Stats {
	fg.mutex.Lock()
	defer fg.mutex.Unlock()

	return Stats{
		ActivePlayers:  len(fg.players),
		LimitPerMinute: fg.limitPerMinute,
		WindowSeconds:  int(window.Seconds()),
	}
}

type Stats struct {
	ActivePlayers  int `json:"active_players"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
}
