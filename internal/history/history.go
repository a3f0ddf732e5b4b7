// Package history records per-platform upload outcomes for operational review.
//
// History is strictly best-effort: the main flow logs and ignores history
// errors, so a broken database never blocks a post. Backends: SQLite for the
// common single-host deployment, Postgres where a shared database exists, and
// an in-memory store for tests and history-less runs.
package history

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DailyProgress/YearReel/internal/models"
)

// Record is one platform's outcome for one posted value.
type Record struct {
	ID          string
	ContentType string
	Value       string
	Caption     string
	Platform    models.Platform
	Success     bool
	PostID      string
	Error       string
	CreatedAt   time.Time
}

// Store persists upload outcomes.
type Store interface {
	// RecordUpload saves one outcome. A zero ID and CreatedAt are filled in.
	RecordUpload(rec Record) error
	// ListRecent returns up to limit records, newest first.
	ListRecent(limit int) ([]Record, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds storage configuration.
type Opts struct {
	DSN string
}

// Option configures a history store.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the backend.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a Postgres connection string as the backend.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for connection-string DSNs and "sqlite"
// for file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore builds a store for the configured DSN, defaulting to in-memory
// when no DSN is set.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}

// stamp fills in generated fields.
func stamp(rec Record) Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return rec
}

// InMemoryStore keeps records in process memory.
type InMemoryStore struct {
	mu      sync.Mutex
	records []Record
}

// NewInMemoryStore creates an empty in-memory history store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// RecordUpload implements Store.
func (s *InMemoryStore) RecordUpload(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, stamp(rec))
	return nil
}

// ListRecent implements Store.
func (s *InMemoryStore) ListRecent(limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error { return nil }
