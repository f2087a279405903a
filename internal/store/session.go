// Package store keeps per-player selection histories in memory with optional persistence.
package store

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"musicquiz/internal/core"
)

// Persister saves player histories beyond the in-memory window
type Persister interface {
	Load(ctx context.Context, playerID string) (core.PlayerHistory, bool, error)
	Save(ctx context.Context, playerID string, history core.PlayerHistory) error
}

type playerLock struct {
	mu   sync.Mutex
	refs int
}

// SessionStore provides thread-safe per-player history storage. The least recently used
// players are evicted from memory once maxSessions is reached; with a persister they are
// read back on their next round.
type SessionStore struct {
	sessions  *lru.Cache[string, core.PlayerHistory]
	persister Persister
	capacity  int
	logger    *zap.Logger

	locksMu sync.Mutex
	locks   map[string]*playerLock
}

// NewSessionStore creates a store for up to maxSessions players. persister may be nil.
func NewSessionStore(maxSessions, historyCapacity int, persister Persister, logger *zap.Logger) (*SessionStore, error) {
	if maxSessions <= 0 {
		maxSessions = core.DefaultMaxSessions
	}
	if historyCapacity <= 0 {
		historyCapacity = core.DefaultHistoryCapacity
	}

	sessions, err := lru.New[string, core.PlayerHistory](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}

	return &SessionStore{
		sessions:  sessions,
		persister: persister,
		capacity:  historyCapacity,
		logger:    logger,
		locks:     make(map[string]*playerLock),
	}, nil
}

// Lock serializes load-select-save cycles of one player. The returned function releases
// the lock and must be called exactly once.
func (s *SessionStore) Lock(playerID string) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[playerID]
	if !ok {
		l = &playerLock{}
		s.locks[playerID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			s.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, playerID)
			}
			s.locksMu.Unlock()
		})
	}
}

// Load returns the player's history for one difficulty. Unknown players get an empty
// history; corrupt shapes are repaired.
func (s *SessionStore) Load(ctx context.Context, playerID string, difficulty core.Difficulty) (core.SelectionHistory, error) {
	player, err := s.player(ctx, playerID)
	if err != nil {
		return core.SelectionHistory{}, err
	}

	h := player[difficulty].Clone()
	h.Normalize(s.capacity)
	return h, nil
}

// Save replaces the player's history for one difficulty
func (s *SessionStore) Save(
	ctx context.Context,
	playerID string,
	difficulty core.Difficulty,
	history core.SelectionHistory,
) error {
	player, err := s.player(ctx, playerID)
	if err != nil {
		return err
	}

	updated := make(core.PlayerHistory, len(player)+1)
	for d, h := range player {
		updated[d] = h
	}
	h := history.Clone()
	h.Normalize(s.capacity)
	updated[difficulty] = h

	s.sessions.Add(playerID, updated)

	if s.persister != nil {
		if err := s.persister.Save(ctx, playerID, updated); err != nil {
			return fmt.Errorf("failed to persist history: %w", err)
		}
	}
	return nil
}

// Reset forgets every difficulty of a player
func (s *SessionStore) Reset(ctx context.Context, playerID string) error {
	s.sessions.Remove(playerID)
	if s.persister != nil {
		if err := s.persister.Save(ctx, playerID, core.PlayerHistory{}); err != nil {
			return fmt.Errorf("failed to persist history: %w", err)
		}
	}
	return nil
}

// Size returns the number of players held in memory
func (s *SessionStore) Size() int {
	return s.sessions.Len()
}

func (s *SessionStore) player(ctx context.Context, playerID string) (core.PlayerHistory, error) {
	if player, ok := s.sessions.Get(playerID); ok {
		return player, nil
	}
	if s.persister == nil {
		return core.PlayerHistory{}, nil
	}

	player, found, err := s.persister.Load(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if !found || player == nil {
		player = core.PlayerHistory{}
	}

	s.logger.Debug("Loaded persisted history",
		zap.String("player", playerID),
		zap.Bool("found", found),
		zap.Int("difficulties", len(player)))
	s.sessions.Add(playerID, player)
	return player, nil
}
