// Package store owns the embedded SQLite database: schema, migrations,
// write serialization, and read concurrency.
//
// The discipline is single-writer, multi-reader. All writes go through
// WriterTxn, which holds a process-wide mutex for the duration of the
// transaction; reads run on an independent connection pool. Every
// connection enables WAL, enforces foreign keys, and sets a 5 second busy
// timeout, so a second process falling back to direct writes is safe, just
// slow.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/claude-slack/claude-slack/internal/types"
)

// busyTimeoutMS is applied to every connection.
const busyTimeoutMS = 5000

// Querier is the read surface shared by reader connections and write
// transactions. Model packages run their SQL against a Querier so the same
// query helpers work inside and outside a transaction. Only context-aware
// methods are exposed; queries without a deadline are a compile error.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store is the handle to the embedded database.
type Store struct {
	path    string
	writer  *sql.DB
	reader  *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if needed) the database at path and migrates it to
// the current schema version.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	writer, err := openConn(path, false)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	// A single writer connection keeps database/sql from handing write
	// statements to more than one underlying SQLite connection.
	writer.SetMaxOpenConns(1)

	if err := Migrate(writer); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	reader, err := openConn(path, true)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &Store{path: path, writer: writer, reader: reader}, nil
}

// openConn opens one connection pool with the required pragmas.
func openConn(path string, readOnly bool) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)",
		path, busyTimeoutMS)
	if readOnly {
		dsn += "&mode=ro"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Reader returns the concurrent read connection pool. A reader observes a
// write only after the write transaction commits.
func (s *Store) Reader() Querier { return s.reader }

// Ping verifies both pools are reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.reader.PingContext(ctx); err != nil {
		return fmt.Errorf("ping reader: %w", err)
	}
	return s.writer.PingContext(ctx)
}

// WriterTxn runs fn inside a write transaction. Transactions are totally
// ordered by the process-wide writer mutex. A rollback follows any error
// from fn; SQLITE_BUSY surfaces as types.ErrStoreBusy.
func (s *Store) WriterTxn(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	var firstErr error
	if err := s.reader.Close(); err != nil {
		firstErr = err
	}
	if err := s.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// classify maps driver errors onto domain error kinds. Domain errors pass
// through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var de *types.DomainError
	if errors.As(err, &de) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked"):
		return fmt.Errorf("%w: %s", types.ErrStoreBusy, msg)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", types.ErrDuplicate, msg)
	default:
		return err
	}
}
