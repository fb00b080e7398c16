package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	key           TEXT PRIMARY KEY,
	value         BLOB NOT NULL,
	created_at    INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL,
	hit_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER NOT NULL,
	size_bytes    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_expires_at ON entries(expires_at);
CREATE INDEX IF NOT EXISTS idx_entries_last_accessed ON entries(last_accessed);
`

// SQLiteBackend is the durable cache backend: a single SQLite file holding
// one row per entry, indexed on expiry and last access for cleanup and LRU
// eviction.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the cache database under dir.
// An empty dir defaults to ~/.cache/depsentry.
func NewSQLiteBackend(dir string) (*SQLiteBackend, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, ".cache", "depsentry")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "artifacts.db"))
	if err != nil {
		return nil, err
	}
	// The Cache front serializes access; a single connection avoids
	// SQLITE_BUSY from concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Name() string { return "sqlite" }

func (s *SQLiteBackend) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, value, created_at, expires_at, hit_count, last_accessed, size_bytes
		 FROM entries WHERE key = ?`, key)

	var e Entry
	var created, expires, accessed int64
	err := row.Scan(&e.Key, &e.Value, &created, &expires, &e.HitCount, &accessed, &e.SizeBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(0, created)
	e.ExpiresAt = time.Unix(0, expires)
	e.LastAccessed = time.Unix(0, accessed)
	return &e, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (key, value, created_at, expires_at, hit_count, last_accessed, size_bytes)
		 VALUES (?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			hit_count = 0,
			last_accessed = excluded.last_accessed,
			size_bytes = excluded.size_bytes`,
		e.Key, e.Value, e.CreatedAt.UnixNano(), e.ExpiresAt.UnixNano(),
		e.LastAccessed.UnixNano(), e.SizeBytes)
	return err
}

func (s *SQLiteBackend) Touch(ctx context.Context, key string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE entries SET hit_count = hit_count + 1, last_accessed = ? WHERE key = ?`,
		at.UnixNano(), key)
	return err
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	return err
}

func (s *SQLiteBackend) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteBackend) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries`)
	return err
}

func (s *SQLiteBackend) TotalSize(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(size_bytes) FROM entries`).Scan(&total)
	return total.Int64, err
}

func (s *SQLiteBackend) EvictLRU(ctx context.Context, need int64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT key, size_bytes FROM entries ORDER BY last_accessed ASC`)
	if err != nil {
		return 0, err
	}
	var victims []string
	var freed int64
	for rows.Next() {
		var key string
		var size int64
		if err := rows.Scan(&key, &size); err != nil {
			rows.Close()
			return 0, err
		}
		victims = append(victims, key)
		if freed += size; freed >= need {
			break
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, key := range victims {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
			return 0, err
		}
	}
	return len(victims), tx.Commit()
}

func (s *SQLiteBackend) Stats(ctx context.Context, now time.Time) (BackendStats, error) {
	var st BackendStats
	var size, hits sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0), COALESCE(SUM(hit_count), 0),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		 FROM entries`, now.UnixNano()).
		Scan(&st.Entries, &size, &hits, &st.ExpiredEntries)
	st.TotalSizeBytes = size.Int64
	st.TotalHits = hits.Int64
	return st, err
}

func (s *SQLiteBackend) Close() error { return s.db.Close() }
