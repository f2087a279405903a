package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"musicquiz/internal/core"
)

const (
	// knownPlayersFalsePositiveRate is the bloom filter error rate for the known-player set
	knownPlayersFalsePositiveRate = 0.001

	schema = `
CREATE TABLE IF NOT EXISTS player_history (
	player_id  TEXT PRIMARY KEY,
	history    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`
)

// SQLitePersister stores each player's histories as one JSON document. A bloom filter of
// known player ids lets brand-new players skip the database entirely.
type SQLitePersister struct {
	db     *sql.DB
	logger *zap.Logger

	mu    sync.RWMutex
	known *bloom.BloomFilter
}

// OpenSQLite opens (and creates) the database at path. expectedPlayers sizes the bloom
// filter.
func OpenSQLite(ctx context.Context, path string, expectedPlayers int, logger *zap.Logger) (*SQLitePersister, error) {
	if expectedPlayers <= 0 {
		expectedPlayers = core.DefaultMaxSessions
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	p := &SQLitePersister{
		db:     db,
		logger: logger,
		known:  bloom.NewWithEstimates(uint(expectedPlayers), knownPlayersFalsePositiveRate),
	}
	if err := p.warm(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *SQLitePersister) warm(ctx context.Context) error {
	rows, err := p.db.QueryContext(ctx, `SELECT player_id FROM player_history`)
	if err != nil {
		return fmt.Errorf("failed to list players: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	count := 0
	p.mu.Lock()
	defer p.mu.Unlock()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan player id: %w", err)
		}
		p.known.AddString(id)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list players: %w", err)
	}

	p.logger.Info("History database opened", zap.Int("players", count))
	return nil
}

// Load reads a player's histories. A row that no longer decodes is treated as an empty
// history rather than an error.
func (p *SQLitePersister) Load(ctx context.Context, playerID string) (core.PlayerHistory, bool, error) {
	p.mu.RLock()
	maybeKnown := p.known.TestString(playerID)
	p.mu.RUnlock()
	if !maybeKnown {
		return nil, false, nil
	}

	var raw string
	err := p.db.QueryRowContext(ctx,
		`SELECT history FROM player_history WHERE player_id = ?`, playerID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read history: %w", err)
	}

	return p.decode(playerID, raw), true, nil
}

func (p *SQLitePersister) decode(playerID, raw string) core.PlayerHistory {
	var decoded map[string]core.SelectionHistory
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		p.logger.Warn("Resetting undecodable history",
			zap.String("player", playerID),
			zap.Error(err))
		return core.PlayerHistory{}
	}

	player := make(core.PlayerHistory, len(decoded))
	for key, h := range decoded {
		d, err := core.ParseDifficulty(key)
		if err != nil {
			continue
		}
		h.Normalize(core.DefaultHistoryCapacity)
		player[d] = h
	}
	return player
}

// Save upserts a player's histories
func (p *SQLitePersister) Save(ctx context.Context, playerID string, history core.PlayerHistory) error {
	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
INSERT INTO player_history (player_id, history, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(player_id) DO UPDATE SET
	history = excluded.history,
	updated_at = excluded.updated_at`,
		playerID, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	p.mu.Lock()
	p.known.AddString(playerID)
	p.mu.Unlock()
	return nil
}

// Ping checks the database connection
func (p *SQLitePersister) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
