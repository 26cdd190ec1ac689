package stylestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"inkpost/internal/domain"
)

// StyleKey is the single key the style table is stored under.
const StyleKey = "handwritingStyle"

// SQLiteStore keeps the style table in a key/value table.
type SQLiteStore struct {
	db    *sql.DB
	clock func() time.Time
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load returns the stored table or domain.ErrNoStyleTable.
func (s *SQLiteStore) Load(ctx context.Context) (domain.StyleTable, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, StyleKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoStyleTable
	}
	if err != nil {
		return nil, fmt.Errorf("load style table: %w", err)
	}

	var table domain.StyleTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("decode style table: %w", err)
	}
	if len(table) == 0 {
		return nil, domain.ErrNoStyleTable
	}
	return table, nil
}

// Replace overwrites the stored table in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, table domain.StyleTable) error {
	raw, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode style table: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		StyleKey, raw, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("store style table: %w", err)
	}
	return tx.Commit()
}
