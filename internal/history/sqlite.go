package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/DailyProgress/YearReel/internal/models"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists history in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite history database.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create history database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history migrations: %w", err)
	}
	slog.Debug("sqlite history store ready", "path", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

// RecordUpload implements Store.
func (s *SQLiteStore) RecordUpload(rec Record) error {
	rec = stamp(rec)
	_, err := s.db.Exec(
		`INSERT INTO post_history (id, content_type, value, caption, platform, success, post_id, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ContentType, rec.Value, rec.Caption, string(rec.Platform), rec.Success,
		nilIfEmpty(rec.PostID), nilIfEmpty(rec.Error), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

// ListRecent implements Store.
func (s *SQLiteStore) ListRecent(limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	rows, err := s.db.Query(
		`SELECT id, content_type, value, caption, platform, success, post_id, error, created_at
		 FROM post_history ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nilIfEmpty maps empty strings to NULL for nullable columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanRecords reads Record rows, shared by both SQL backends.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		var platform string
		var postID, errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ContentType, &rec.Value, &rec.Caption, &platform,
			&rec.Success, &postID, &errMsg, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		rec.Platform = models.Platform(platform)
		rec.PostID = postID.String
		rec.Error = errMsg.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return out, nil
}
