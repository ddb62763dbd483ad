package recovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS recovery_records (
    account_id   TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    region       TEXT NOT NULL,
    is_local     INTEGER NOT NULL,
    created_at   INTEGER NOT NULL
);`

// SQLiteCache is a Cache backed by a single SQLite file, so recovery records
// survive a process restart on the same device. It is not shared across
// devices; a user who signs up here and verifies elsewhere relies on profile
// reconstruction instead.
type SQLiteCache struct {
	db   *sql.DB
	ttl  time.Duration
	nowF func() time.Time
}

// OpenSQLite opens (creating if needed) the recovery cache at path.
// ttl <= 0 uses DefaultTTL. Caller must Close when done.
func OpenSQLite(path string, ttl time.Duration) (*SQLiteCache, error) {
	if path == "" {
		return nil, errors.New("recovery: sqlite path is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("recovery: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recovery: ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recovery: create schema: %w", err)
	}
	return &SQLiteCache{db: db, ttl: ttl, nowF: time.Now().UTC}, nil
}

// Close releases the underlying database.
func (c *SQLiteCache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Put stores rec for accountID, overwriting any previous record.
func (c *SQLiteCache) Put(ctx context.Context, accountID string, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = c.nowF()
	}
	isLocal := 0
	if rec.IsLocal {
		isLocal = 1
	}
	query := `
INSERT INTO recovery_records (account_id, display_name, region, is_local, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (account_id) DO UPDATE SET
    display_name = excluded.display_name,
    region       = excluded.region,
    is_local     = excluded.is_local,
    created_at   = excluded.created_at`
	_, err := c.db.ExecContext(ctx, query,
		accountID, rec.DisplayName, rec.Region, isLocal, rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("recovery: put: %w", err)
	}
	return nil
}

// Get returns the record for accountID, or (nil, nil) when missing or older
// than the TTL. Expired records are left in place.
func (c *SQLiteCache) Get(ctx context.Context, accountID string) (*Record, error) {
	query := `
SELECT display_name, region, is_local, created_at
FROM recovery_records
WHERE account_id = ?`
	var (
		rec       Record
		isLocal   int
		createdMS int64
	)
	err := c.db.QueryRowContext(ctx, query, accountID).
		Scan(&rec.DisplayName, &rec.Region, &isLocal, &createdMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("recovery: get: %w", err)
	}
	rec.IsLocal = isLocal != 0
	rec.CreatedAt = time.UnixMilli(createdMS).UTC()
	if c.nowF().Sub(rec.CreatedAt) > c.ttl {
		return nil, nil
	}
	return &rec, nil
}

// Delete removes the record for accountID. Deleting a missing record is a no-op.
func (c *SQLiteCache) Delete(ctx context.Context, accountID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM recovery_records WHERE account_id = ?`, accountID)
	if err != nil {
		return fmt.Errorf("recovery: delete: %w", err)
	}
	return nil
}
