package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type dialect struct {
	name   string
	schema string
	load   string
	save   string
}

var (
	sqliteDialect = dialect{
		name: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			entry      BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		load: `SELECT entry FROM cache_entries WHERE key = ?`,
		save: `INSERT INTO cache_entries (key, entry, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET entry = excluded.entry, updated_at = excluded.updated_at`,
	}

	postgresDialect = dialect{
		name: "postgres",
		schema: `CREATE TABLE IF NOT EXISTS cache_entries (
			key        TEXT PRIMARY KEY,
			entry      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		load: `SELECT entry FROM cache_entries WHERE key = $1`,
		save: `INSERT INTO cache_entries (key, entry, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET entry = EXCLUDED.entry, updated_at = EXCLUDED.updated_at`,
	}
)

// SQLStore keeps entries in a cache_entries table.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// OpenSQLite opens (or creates) a SQLite database at path with WAL journaling.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return newSQLStore(ctx, db, sqliteDialect)
}

// OpenPostgres connects through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return newSQLStore(ctx, db, postgresDialect)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to %s cache: %w", d.name, err)
	}
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating %s cache schema: %w", d.name, err)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// Load reads the entry for key.
func (s *SQLStore) Load(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, s.dialect.load, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save upserts the entry for key.
func (s *SQLStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, s.dialect.save, key, data)
	return err
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
