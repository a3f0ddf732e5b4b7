package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Connection pool settings for the Postgres backend.
const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists history in a shared Postgres database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history migrations: %w", err)
	}
	slog.Debug("postgres history store ready")
	return &PostgresStore{db: db}, nil
}

// RecordUpload implements Store.
func (s *PostgresStore) RecordUpload(rec Record) error {
	rec = stamp(rec)
	_, err := s.db.Exec(
		`INSERT INTO post_history (id, content_type, value, caption, platform, success, post_id, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.ContentType, rec.Value, rec.Caption, string(rec.Platform), rec.Success,
		nilIfEmpty(rec.PostID), nilIfEmpty(rec.Error), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// ListRecent implements Store.
func (s *PostgresStore) ListRecent(limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	rows, err := s.db.Query(
		`SELECT id, content_type, value, caption, platform, success, post_id, error, created_at
		 FROM post_history ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
