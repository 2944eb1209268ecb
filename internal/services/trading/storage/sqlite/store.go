// Package sqlite provides a SQLite-backed trading storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/catmarket/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/catmarket/internal/services/trading/storage"
	"github.com/louisbranch/catmarket/internal/services/trading/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Write transactions start IMMEDIATE so concurrent writers queue on the busy
// timeout instead of failing on lock upgrade. The read pool opens the same
// file through a URI so SQLite honors mode=ro.
const (
	writeDSNParams = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	readDSNParams  = "?mode=ro&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists trading state in SQLite.
type Store struct {
	reader
	sqlDB   *sql.DB
	replica *reader
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// Open opens the trading store at path, applies embedded migrations and
// opens a read-only pool for replica reads.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	sqlDB, err := sql.Open("sqlite", cleanPath+writeDSNParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	readDB, err := sql.Open("sqlite", "file:"+cleanPath+readDSNParams)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open sqlite read pool: %w", err)
	}
	return &Store{reader: reader{q: sqlDB}, sqlDB: sqlDB, replica: &reader{q: readDB}}, nil
}

// Close closes both pools.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	var replicaErr error
	if s.replica != nil {
		if db, ok := s.replica.q.(*sql.DB); ok {
			replicaErr = db.Close()
		}
	}
	return errors.Join(s.sqlDB.Close(), replicaErr)
}

// DB exposes the primary handle for collaborators that share the database
// file, such as the credit wallet settler.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// ReadReplica returns the read-only connection pool over the same database
// file. In WAL mode it sees every committed write; it only keeps listing
// queries off the writer's connection.
func (s *Store) ReadReplica() storage.Reader {
	if s.replica == nil {
		return &s.reader
	}
	return s.replica
}

// WithTx runs fn inside one IMMEDIATE transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	sqlTx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trading write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := sqlTx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback trading write: %v", cause, rollbackErr)
		}
		return cause
	}
	if err := fn(ctx, &txStore{reader: reader{q: sqlTx}}); err != nil {
		return rollbackWith(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit trading write: %w", err)
	}
	return nil
}

// txStore implements storage.Tx on an open transaction.
type txStore struct {
	reader
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func rowsChanged(result sql.Result, op string) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return affected > 0, nil
}

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*txStore)(nil)
)
