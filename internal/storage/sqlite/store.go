// Package sqlite implements the engine's persistence over a single SQLite
// file. WAL journaling gives readers snapshot isolation against in-flight
// fork and merge transactions; unique partial indexes enforce the one-root
// and one-open-interval invariants at the schema level.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
	"github.com/louisbranch/timeloom/internal/platform/id"
	"github.com/louisbranch/timeloom/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/timeloom/internal/storage"
	"github.com/louisbranch/timeloom/internal/storage/sqlite/migrations"
	"github.com/louisbranch/timeloom/internal/timeline"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides SQLite-backed branch, version, and merge persistence.
type Store struct {
	sqlDB *sql.DB
	tx    *sql.Tx
	now   func() time.Time
	newID func() (string, error)
}

var _ storage.Store = (*Store)(nil)

// Open opens the store at the provided path and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		sqlDB: sqlDB,
		now:   time.Now,
		newID: id.NewID,
	}, nil
}

// Close releases the underlying SQLite database.
//
// Close is nil-safe so callers can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// db returns the active querier: the bound transaction inside InTx, the
// database otherwise.
func (s *Store) db() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.sqlDB
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return apperrors.New(apperrors.CodeStoreUnavailable, "storage is not configured")
	}
	return nil
}

// InTx runs fn against a transaction-bound view of the store. Nested calls
// join the ambient transaction.
func (s *Store) InTx(ctx context.Context, fn func(storage.Store) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("transaction function is required")
	}
	if s.tx != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return classifyError("begin tx", err)
	}
	defer tx.Rollback()

	bound := &Store{sqlDB: s.sqlDB, tx: tx, now: s.now, newID: s.newID}
	if err := fn(bound); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classifyError("commit tx", err)
	}
	return nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func fromNullTime(value sql.NullInt64) *timeline.Time {
	if !value.Valid {
		return nil
	}
	t := timeline.Time(value.Int64)
	return &t
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// classifyError maps storage failures onto domain codes: lock and unique
// races become ConcurrentModification for caller-driven retry, a closed
// database becomes StoreUnavailable, everything else wraps verbatim.
func classifyError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return err
	case isBusyError(err) || isConstraintError(err):
		return apperrors.Wrap(apperrors.CodeConcurrentModification, op+" lost a write race", err)
	case errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone):
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, op+" on closed store", err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
