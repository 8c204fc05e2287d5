package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/orql/orql-mapper/internal/sqltpl"
)

// Dialect names understood by the driver factory.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// Connection is one physical database session. Statements run sequentially;
// a Connection is not safe for concurrent use.
type Connection interface {
	// Dialect returns the dialect name (MySQL, Postgres or SQLite).
	Dialect() string

	// Query runs a read and returns its rows keyed by field name.
	Query(ctx context.Context, stmt sqltpl.Statement) (*Rows, error)

	// Exec runs a write or DDL statement.
	Exec(ctx context.Context, stmt sqltpl.Statement) (Result, error)

	Begin(ctx context.Context) error

	// Commit commits the open transaction. If the commit is rejected a
	// rollback is attempted and the outcome is returned as a *TxError.
	Commit(ctx context.Context) error

	Rollback(ctx context.Context) error

	// Close releases the session, rolling back any open transaction.
	Close(ctx context.Context) error
}

// Result is the metadata of a write.
type Result struct {
	RowsAffected int64
	InsertID     int64 // 0 where the driver reports none
}

// Rows is a fully materialised result set.
type Rows struct {
	Fields  []string
	Records []Record
}

// Record is one row keyed by field name. Use the typed accessors or QueryAs to
// project it into a concrete type.
type Record map[string]any

// String returns the field as a string. NULL is the empty string.
func (r Record) String(field string) string {
	s, _ := r.NullString(field)
	return s
}

// NullString returns the field as a string and whether it was non-NULL.
func (r Record) NullString(field string) (string, bool) {
	switch v := r[field].(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return fmt.Sprint(v), true
	}
}

// Int returns the field as an int64. NULL and unparsable values are 0.
func (r Record) Int(field string) int64 {
	n, _ := r.NullInt(field)
	return n
}

// NullInt returns the field as an int64 and whether it held a number.
func (r Record) NullInt(field string) (int64, bool) {
	switch v := r[field].(type) {
	case nil:
		return 0, false
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case int:
		return int64(v), true
	case uint64:
		return int64(v), true //nolint:gosec // catalog values are small
	case uint32:
		return int64(v), true
	case float64:
		return int64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string, []byte:
		s, _ := r.NullString(field)
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// Bool returns the field as a bool. Strings such as "YES", "true" and "1"
// are true.
func (r Record) Bool(field string) bool {
	switch v := r[field].(type) {
	case bool:
		return v
	case string, []byte:
		s, _ := r.NullString(field)
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "t", "true", "y", "yes":
			return true
		}
		return false
	default:
		n, ok := r.NullInt(field)
		return ok && n != 0
	}
}

// QueryAs runs stmt and maps each record through fn.
func QueryAs[T any](ctx context.Context, conn Connection, stmt sqltpl.Statement, fn func(Record) (T, error)) ([]T, error) {
	rows, err := conn.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(rows.Records))
	for _, rec := range rows.Records {
		v, err := fn(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Insert runs stmt and returns the generated identity value.
func Insert(ctx context.Context, conn Connection, stmt sqltpl.Statement) (int64, error) {
	res, err := conn.Exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return res.InsertID, nil
}

// Update runs stmt and returns the number of rows it affected.
func Update(ctx context.Context, conn Connection, stmt sqltpl.Statement) (int64, error) {
	res, err := conn.Exec(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}
