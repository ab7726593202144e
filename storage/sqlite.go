// Package storage persists actor behavior baselines so learned profiles
// survive restarts.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"argus/core"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	defaultBaselineCacheSize = 1024

	createBaselinesTable = `
CREATE TABLE IF NOT EXISTS baselines (
	actor_id TEXT PRIMARY KEY,
	profile TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`
)

// SQLiteBaselineStore stores one JSON-encoded baseline row per actor. It
// implements audit.BaselineStore. A small LRU cache serves repeated Get
// calls without touching the database.
type SQLiteBaselineStore struct {
	db     *sql.DB
	cache  *lru.Cache[string, *core.UserBehaviorBaseline]
	logger *zap.SugaredLogger
}

// NewSQLiteBaselineStore opens (creating if needed) the baseline database
// at dbPath and runs the schema migration. cacheSize bounds the read
// cache; zero or negative falls back to the default.
func NewSQLiteBaselineStore(dbPath string, cacheSize int, logger *zap.SugaredLogger) (*SQLiteBaselineStore, error) {
	if cacheSize <= 0 {
		cacheSize = defaultBaselineCacheSize
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Connection string pragmas are unreliable with this driver; set them
	// explicitly after opening.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	if _, err := db.Exec(createBaselinesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create baselines table: %w", err)
	}

	cache, err := lru.New[string, *core.UserBehaviorBaseline](cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create baseline cache: %w", err)
	}

	logger.Infow("Baseline store opened", "path", dbPath)
	return &SQLiteBaselineStore{db: db, cache: cache, logger: logger}, nil
}

// Save upserts one actor's baseline.
func (s *SQLiteBaselineStore) Save(ctx context.Context, b *core.UserBehaviorBaseline) error {
	profile, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline for %s: %w", b.ActorID, err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO baselines (actor_id, profile, updated_at) VALUES (?, ?, ?)
ON CONFLICT(actor_id) DO UPDATE SET profile = excluded.profile, updated_at = excluded.updated_at`,
		b.ActorID, string(profile), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save baseline for %s: %w", b.ActorID, err)
	}

	s.cache.Add(b.ActorID, b.Clone())
	return nil
}

// Load returns all persisted baselines keyed by actor ID.
func (s *SQLiteBaselineStore) Load(ctx context.Context) (map[string]*core.UserBehaviorBaseline, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT actor_id, profile FROM baselines`)
	if err != nil {
		return nil, fmt.Errorf("failed to load baselines: %w", err)
	}
	defer rows.Close()

	baselines := make(map[string]*core.UserBehaviorBaseline)
	for rows.Next() {
		var actorID, profile string
		if err := rows.Scan(&actorID, &profile); err != nil {
			return nil, fmt.Errorf("failed to scan baseline row: %w", err)
		}
		var b core.UserBehaviorBaseline
		if err := json.Unmarshal([]byte(profile), &b); err != nil {
			// A corrupt row should not block startup.
			s.logger.Warnf("Skipping corrupt baseline for %s: %v", actorID, err)
			continue
		}
		if b.ActionFrequency == nil {
			b.ActionFrequency = make(map[string]int64)
		}
		if b.ResourceFrequency == nil {
			b.ResourceFrequency = make(map[string]int64)
		}
		baselines[actorID] = &b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate baselines: %w", err)
	}
	return baselines, nil
}

// Get returns one actor's baseline, or nil if none is persisted.
func (s *SQLiteBaselineStore) Get(ctx context.Context, actorID string) (*core.UserBehaviorBaseline, error) {
	if b, ok := s.cache.Get(actorID); ok {
		return b.Clone(), nil
	}

	var profile string
	err := s.db.QueryRowContext(ctx,
		`SELECT profile FROM baselines WHERE actor_id = ?`, actorID).Scan(&profile)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline for %s: %w", actorID, err)
	}

	var b core.UserBehaviorBaseline
	if err := json.Unmarshal([]byte(profile), &b); err != nil {
		return nil, fmt.Errorf("failed to decode baseline for %s: %w", actorID, err)
	}
	s.cache.Add(actorID, b.Clone())
	return &b, nil
}

// Count returns the number of persisted baselines.
func (s *SQLiteBaselineStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM baselines`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count baselines: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteBaselineStore) Close() error {
	return s.db.Close()
}
