// Package sqldb implements the storage interfaces on top of database/sql.
//
// The SQL is written once with "?" placeholders; a Dialect supplies the
// placeholder style and the driver-specific error classification, so the
// sqlite and postgres backends only differ in how they open the database
// and which schema they apply.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/scrypster/familytree/internal/storage"
)

// Dialect captures the differences between SQL backends.
type Dialect struct {
	// Name identifies the backend in error messages ("sqlite", "postgres").
	Name string

	// NumberedPlaceholders rewrites "?" into "$1, $2, ..." when true.
	NumberedPlaceholders bool

	// IsUniqueViolation reports whether err is a unique constraint violation.
	IsUniqueViolation func(err error) bool

	// IsUndefinedColumn reports whether err is caused by a missing column.
	IsUndefinedColumn func(err error) bool
}

// DB implements storage.Store and storage.MemberWriter for a Dialect.
type DB struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger

	// readMetadata is true when the relations table has a metadata column.
	// It is probed once when the store is opened and only steers reads;
	// writes report ErrMetadataUnsupported and let the caller decide.
	readMetadata atomic.Bool
}

// New wraps an open database. The schema must already be applied.
func New(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) (*DB, error) {
	if db == nil {
		return nil, fmt.Errorf("%s: database connection is required", dialect.Name)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dialect.IsUniqueViolation == nil {
		dialect.IsUniqueViolation = func(error) bool { return false }
	}
	if dialect.IsUndefinedColumn == nil {
		dialect.IsUndefinedColumn = func(error) bool { return false }
	}

	s := &DB{db: db, dialect: dialect, logger: logger}

	ok, err := s.SupportsMetadata(ctx)
	if err != nil {
		return nil, err
	}
	s.readMetadata.Store(ok)
	if !ok {
		logger.Warn(dialect.Name + ": relations.metadata column not present, relation metadata disabled")
	}

	return s, nil
}

// GetDB returns the underlying database connection.
func (s *DB) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *DB) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SupportsMetadata probes whether the relations table has a metadata column.
// The probe is a zero-row select, so re-probing is cheap and always yields
// the same answer for a given schema.
func (s *DB) SupportsMetadata(ctx context.Context) (bool, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT metadata FROM relations WHERE 1 = 0"))
	if err != nil {
		if s.dialect.IsUndefinedColumn(err) {
			return false, nil
		}
		return false, fmt.Errorf("%s: failed to probe metadata column: %w", s.dialect.Name, err)
	}
	defer rows.Close()
	return true, rows.Err()
}

// rebind converts "?" placeholders to the dialect's placeholder style.
func (s *DB) rebind(query string) string {
	if !s.dialect.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// withTx runs fn inside a transaction, committing on success and rolling back
// on error.
func (s *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to begin transaction: %w", s.dialect.Name, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error(s.dialect.Name+": rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: failed to commit transaction: %w", s.dialect.Name, err)
	}
	return nil
}

// classify maps driver errors onto storage sentinels.
func (s *DB) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case s.dialect.IsUniqueViolation(err):
		return fmt.Errorf("%s: %s: %w", s.dialect.Name, op, storage.ErrDuplicate)
	case s.dialect.IsUndefinedColumn(err):
		return fmt.Errorf("%s: %s: %w: %v", s.dialect.Name, op, storage.ErrMetadataUnsupported, err)
	default:
		return fmt.Errorf("%s: %s: %w", s.dialect.Name, op, err)
	}
}

// inClause returns n comma-separated "?" placeholders and the args slice.
func inClause(ids []string) (string, []interface{}) {
	args := make([]interface{}, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		marks[i] = "?"
	}
	return strings.Join(marks, ","), args
}

// dateLayout is the storage format for calendar dates.
const dateLayout = "2006-01-02"

// nullableDate converts a date pointer to a "YYYY-MM-DD" sql.NullString.
func nullableDate(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

// parseDate accepts plain dates and full timestamps (drivers that return
// DATE columns as time.Time render them as RFC 3339 when scanned to string).
func parseDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	for _, layout := range []string{dateLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v.String); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", v.String)
}

// nullableString converts a string to sql.NullString.
// An empty string is treated as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
