// Package sqlitestore implements eventlog.Store on an embedded SQLite
// database, using the pure-Go modernc.org/sqlite driver (no cgo).
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/duskfall/eventlog/pkg/store/sqlitestore/migrate"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed eventlog.Store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

type config struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

func defaultConfig() config {
	return config{
		dsn:          "eventlog.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
	}
}

// Option configures a Store at construction time.
type Option func(*config)

// WithDSN sets the data source name (file path or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *config) { c.dsn = dsn }
}

// WithMemoryDatabase points the store at an in-memory database.
func WithMemoryDatabase() Option {
	return func(c *config) { c.dsn = ":memory:" }
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(c *config) { c.maxOpenConns = n }
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(c *config) { c.maxIdleConns = n }
}

// WithWALMode toggles write-ahead logging. Ignored for :memory:.
func WithWALMode(enabled bool) Option {
	return func(c *config) { c.walMode = enabled }
}

// WithAutoMigrate toggles running pending migrations on Open.
func WithAutoMigrate(enabled bool) Option {
	return func(c *config) { c.autoMigrate = enabled }
}

// Open opens (and, by default, migrates) a SQLite-backed Store.
func Open(opts ...Option) (*Store, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %q: %w", cfg.dsn, err)
	}

	if cfg.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db}

	if cfg.walMode && cfg.dsn != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: set WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: enable foreign keys: %w", err)
	}

	if cfg.autoMigrate {
		migrator := migrate.New(db, "schema_migrations")
		if err := migrator.LoadFromFS(migrationsFS, "migrations"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: load migrations: %w", err)
		}
		if err := migrator.Up(); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: run migrations: %w", err)
		}
	}

	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append implements eventlog.Store.
func (s *Store) Append(ctx context.Context, attempt eventlog.CommitAttempt) (eventlog.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(attempt.Events) == 0 {
		return eventlog.Commit{}, fmt.Errorf("sqlitestore: %w: commit attempt has no events", eventlog.ErrIO)
	}

	eventsBlob, err := json.Marshal(attempt.Events)
	if err != nil {
		return eventlog.Commit{}, eventlog.WrapEncoding(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eventlog.Commit{}, eventlog.WrapIO(err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO commits
			(commit_id, aggregate_id, aggregate_type, aggregate_version,
			 commit_sequence, commit_timestamp, events_count, metadata, events, dispatched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		attempt.CommitID,
		attempt.AggregateID.String(),
		attempt.AggregateType,
		attempt.AggregateVersion,
		attempt.CommitSequence,
		attempt.CreatedAt.UnixNano(),
		len(attempt.Events),
		attempt.Metadata,
		eventsBlob,
	)
	if err != nil {
		if kind, ok := conflictKind(err); ok {
			return eventlog.Commit{}, eventlog.NewConflictError(kind)
		}
		return eventlog.Commit{}, eventlog.WrapIO(err)
	}

	commitNumber, err := result.LastInsertId()
	if err != nil {
		return eventlog.Commit{}, eventlog.WrapIO(err)
	}

	if err := tx.Commit(); err != nil {
		if kind, ok := conflictKind(err); ok {
			return eventlog.Commit{}, eventlog.NewConflictError(kind)
		}
		return eventlog.Commit{}, eventlog.WrapIO(err)
	}

	return eventlog.Commit{
		CommitNumber:     commitNumber,
		CommitID:         attempt.CommitID,
		AggregateID:      attempt.AggregateID,
		AggregateType:    attempt.AggregateType,
		AggregateVersion: attempt.AggregateVersion,
		CommitSequence:   attempt.CommitSequence,
		Events:           attempt.Events,
		Metadata:         attempt.Metadata,
		CreatedAt:        attempt.CreatedAt,
		Dispatched:       false,
	}, nil
}

// conflictKind maps a SQLite unique-constraint-violation error to the
// abstract conflict taxonomy by inspecting which index or columns it names, the
// way the original Rust implementation matches on the backend driver's
// error variant (original_source/src/store/sqlite.rs).
func conflictKind(err error) (eventlog.ConflictKind, bool) {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return "", false
	}
	switch {
	case strings.Contains(msg, "idx_commits_commit_id"), strings.Contains(msg, "commits.commit_id"):
		return eventlog.CommitIDConflict, true
	case strings.Contains(msg, "idx_commits_aggregate_version"), strings.Contains(msg, "commits.aggregate_version"):
		return eventlog.AggregateVersionConflict, true
	case strings.Contains(msg, "idx_commits_aggregate_sequence"), strings.Contains(msg, "commits.commit_sequence"):
		return eventlog.CommitSequenceConflict, true
	default:
		return eventlog.CommitSequenceConflict, true
	}
}

// GetRange implements eventlog.Store.
func (s *Store) GetRange(ctx context.Context, aggregateID uuid.UUID, afterSequence int64) ([]eventlog.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT commit_number, commit_id, aggregate_id, aggregate_type, aggregate_version,
		       commit_sequence, commit_timestamp, metadata, events, dispatched
		FROM commits
		WHERE aggregate_id = ? AND commit_sequence > ?
		ORDER BY commit_sequence ASC`,
		aggregateID.String(), afterSequence)
	if err != nil {
		return nil, eventlog.WrapIO(err)
	}
	defer rows.Close()

	return scanCommits(rows)
}

// GetCommit implements eventlog.Store.
func (s *Store) GetCommit(ctx context.Context, commitID string) (eventlog.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT commit_number, commit_id, aggregate_id, aggregate_type, aggregate_version,
		       commit_sequence, commit_timestamp, metadata, events, dispatched
		FROM commits WHERE commit_id = ?`, commitID)

	commit, err := scanCommit(row)
	if err == sql.ErrNoRows {
		return eventlog.Commit{}, eventlog.NewNotFoundError(commitID)
	}
	if err != nil {
		return eventlog.Commit{}, eventlog.WrapIO(err)
	}
	return commit, nil
}

// GetUndispatched implements eventlog.Store.
func (s *Store) GetUndispatched(ctx context.Context, limit int) ([]eventlog.Commit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT commit_number, commit_id, aggregate_id, aggregate_type, aggregate_version,
		       commit_sequence, commit_timestamp, metadata, events, dispatched
		FROM commits WHERE dispatched = 0 ORDER BY commit_number ASC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eventlog.WrapIO(err)
	}
	defer rows.Close()

	return scanCommits(rows)
}

// MarkDispatched implements eventlog.Store.
func (s *Store) MarkDispatched(ctx context.Context, commitID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE commits SET dispatched = 1 WHERE commit_id = ?`, commitID)
	if err != nil {
		return eventlog.WrapIO(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommit(row rowScanner) (eventlog.Commit, error) {
	var (
		commit      eventlog.Commit
		aggregateID string
		timestampNS int64
		metadata    []byte
		eventsBlob  []byte
		dispatchedI int
	)
	if err := row.Scan(
		&commit.CommitNumber, &commit.CommitID, &aggregateID, &commit.AggregateType,
		&commit.AggregateVersion, &commit.CommitSequence, &timestampNS, &metadata,
		&eventsBlob, &dispatchedI,
	); err != nil {
		return eventlog.Commit{}, err
	}

	id, err := uuid.Parse(aggregateID)
	if err != nil {
		return eventlog.Commit{}, fmt.Errorf("sqlitestore: parse aggregate_id: %w", err)
	}
	commit.AggregateID = id
	commit.CreatedAt = time.Unix(0, timestampNS)
	commit.Metadata = metadata
	commit.Dispatched = dispatchedI != 0

	if len(eventsBlob) > 0 {
		if err := json.Unmarshal(eventsBlob, &commit.Events); err != nil {
			return eventlog.Commit{}, fmt.Errorf("sqlitestore: decode events: %w", err)
		}
	}

	return commit, nil
}

func scanCommits(rows *sql.Rows) ([]eventlog.Commit, error) {
	var out []eventlog.Commit
	for rows.Next() {
		commit, err := scanCommit(rows)
		if err != nil {
			return nil, eventlog.WrapIO(err)
		}
		out = append(out, commit)
	}
	if err := rows.Err(); err != nil {
		return nil, eventlog.WrapIO(err)
	}
	return out, nil
}

var _ eventlog.Store = (*Store)(nil)
