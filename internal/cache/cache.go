// Package cache is the client-side durable snapshot store: one row per
// room in a local SQLite database, each row carrying an expiry. It lets
// a client bootstrap a room it saw recently before the first sync reply
// arrives. Cache failures are never fatal; callers log and continue
// purely in-memory.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultTTL bounds how long a saved room snapshot stays loadable.
const DefaultTTL = 3 * time.Hour

// Cache is a TTL-bounded key-value store of room snapshots.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

// New opens (or creates) the snapshot database at dbPath. A zero ttl
// selects DefaultTTL.
func New(ctx context.Context, dbPath string, ttl time.Duration) (*Cache, error) {
	if dbPath == "" {
		dbPath = "./data/sketchsync.db"
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	c := &Cache{db: db, ttl: ttl}
	if err := c.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		room_id TEXT PRIMARY KEY,
		state BLOB NOT NULL,
		saved_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_expires ON snapshots(expires_at);
	`
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Close closes the underlying database.
func (c *Cache) Close() {
	c.db.Close()
}

// Save overwrites the snapshot row for roomID. Superseded rows are
// replaced, never appended.
func (c *Cache) Save(ctx context.Context, roomID string, state []byte) error {
	now := time.Now()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO snapshots (room_id, state, saved_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			state = excluded.state,
			saved_at = excluded.saved_at,
			expires_at = excluded.expires_at
	`, roomID, state, now.UnixMilli(), now.Add(c.ttl).UnixMilli())
	return err
}

// Load returns the saved snapshot for roomID, or ok == false when there
// is none or it has expired. An expired row is deleted on the spot.
func (c *Cache) Load(ctx context.Context, roomID string) ([]byte, bool, error) {
	var state []byte
	var expiresAt int64
	err := c.db.QueryRowContext(ctx, `
		SELECT state, expires_at FROM snapshots WHERE room_id = ?
	`, roomID).Scan(&state, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if time.Now().UnixMilli() > expiresAt {
		_, _ = c.db.ExecContext(ctx, `DELETE FROM snapshots WHERE room_id = ?`, roomID)
		return nil, false, nil
	}
	return state, true, nil
}

// Sweep deletes all expired rows. Best-effort housekeeping: Load already
// guards against stale reads, so a failed sweep costs nothing.
func (c *Cache) Sweep(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE expires_at < ?
	`, time.Now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
