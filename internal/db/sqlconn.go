package db

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/orql/orql-mapper/internal/sqltpl"
)

// sqlConn implements Connection on database/sql for MySQL and SQLite. The
// pool is capped at one connection and a *sql.Conn is pinned so every
// statement runs on the same physical session.
type sqlConn struct {
	dialect string
	db      *sql.DB
	conn    *sql.Conn
	tx      *sql.Tx
}

func newSQLConn(ctx context.Context, dialect, driverName, dsn string) (*sqlConn, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, &ConnectionError{Dialect: dialect, Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1)

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Dialect: dialect, Op: "ping", Err: err}
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Dialect: dialect, Op: "acquire session", Err: err}
	}

	return &sqlConn{dialect: dialect, db: db, conn: conn}, nil
}

func (c *sqlConn) Dialect() string { return c.dialect }

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *sqlConn) target() execQueryer {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

func (c *sqlConn) Query(ctx context.Context, stmt sqltpl.Statement) (*Rows, error) {
	query, args, err := stmt.Bind(sqltpl.Question)
	if err != nil {
		return nil, err
	}
	slog.Debug("query", "dialect", c.dialect, "sql", stmt.String())

	rows, err := c.target().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Rows{Fields: fields}
	for rows.Next() {
		values := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(Record, len(fields))
		for i, field := range fields {
			rec[field] = values[i]
		}
		result.Records = append(result.Records, rec)
	}

	return result, rows.Err()
}

func (c *sqlConn) Exec(ctx context.Context, stmt sqltpl.Statement) (Result, error) {
	query, args, err := stmt.Bind(sqltpl.Question)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("exec", "dialect", c.dialect, "sql", stmt.String())

	res, err := c.target().ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}

	var out Result
	// Not every statement reports both values; DDL reports neither.
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		out.InsertID = id
	}
	return out, nil
}

func (c *sqlConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return &TxError{Op: "begin", Err: errors.New("transaction already open")}
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return &TxError{Op: "begin", Err: err}
	}
	c.tx = tx
	return nil
}

func (c *sqlConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return &TxError{Op: "commit", Err: errors.New("no transaction open")}
	}
	tx := c.tx
	c.tx = nil

	if err := tx.Commit(); err != nil {
		rbErr := tx.Rollback()
		// database/sql marks the Tx done even when the driver left the
		// transaction open on the session, so end it on the pinned conn.
		if errors.Is(rbErr, sql.ErrTxDone) {
			rbErr = c.rollbackSession(context.WithoutCancel(ctx))
		}
		return &TxError{Op: "commit", Err: err, RollbackErr: rbErr}
	}
	return nil
}

// rollbackSession issues ROLLBACK directly on the session. A session with no
// open transaction counts as rolled back.
func (c *sqlConn) rollbackSession(ctx context.Context) error {
	_, err := c.conn.ExecContext(ctx, "ROLLBACK")
	if err != nil && isNoActiveTx(err) {
		return nil
	}
	return err
}

func isNoActiveTx(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no transaction is active") ||
		strings.Contains(msg, "no transaction in progress")
}

func (c *sqlConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil

	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return &TxError{Op: "rollback", Err: err}
	}
	return nil
}

func (c *sqlConn) Close(ctx context.Context) error {
	rbErr := c.Rollback(ctx)
	connErr := c.conn.Close()
	dbErr := c.db.Close()

	for _, err := range []error{rbErr, connErr, dbErr} {
		if err != nil {
			return err
		}
	}
	return nil
}
