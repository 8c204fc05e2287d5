package db

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/orql/orql-mapper/internal/sqltpl"
)

func init() {
	Register(Postgres, openPostgres)
}

// postgresConn implements Connection on a single pgx.Conn.
type postgresConn struct {
	conn *pgx.Conn
	tx   pgx.Tx
}

func openPostgres(ctx context.Context, opts Options) (Connection, error) {
	dsn := opts.DSN
	if dsn == "" {
		dsn = postgresURL(opts)
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, &ConnectionError{Dialect: Postgres, Op: "connect", Err: err}
	}

	// Test the connection
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, &ConnectionError{Dialect: Postgres, Op: "ping", Err: err}
	}

	return &postgresConn{conn: conn}, nil
}

func postgresURL(opts Options) string {
	host := opts.Host
	if host == "" {
		host = "localhost"
	}
	port := opts.Port
	if port == 0 {
		port = 5432
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + opts.Database,
	}
	if opts.Username != "" {
		u.User = url.UserPassword(opts.Username, opts.Password)
	}
	q := url.Values{}
	for k, v := range opts.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *postgresConn) Dialect() string { return Postgres }

func (c *postgresConn) Query(ctx context.Context, stmt sqltpl.Statement) (*Rows, error) {
	query, args, err := stmt.Bind(sqltpl.Dollar)
	if err != nil {
		return nil, err
	}
	slog.Debug("query", "dialect", Postgres, "sql", stmt.String())

	var rows pgx.Rows
	if c.tx != nil {
		rows, err = c.tx.Query(ctx, query, args...)
	} else {
		rows, err = c.conn.Query(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	fields := make([]string, len(descs))
	for i, d := range descs {
		fields[i] = d.Name
	}

	result := &Rows{Fields: fields}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
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

func (c *postgresConn) Exec(ctx context.Context, stmt sqltpl.Statement) (Result, error) {
	query, args, err := stmt.Bind(sqltpl.Dollar)
	if err != nil {
		return Result{}, err
	}
	slog.Debug("exec", "dialect", Postgres, "sql", stmt.String())

	if c.tx != nil {
		tag, err := c.tx.Exec(ctx, query, args...)
		if err != nil {
			return Result{}, err
		}
		return Result{RowsAffected: tag.RowsAffected()}, nil
	}

	tag, err := c.conn.Exec(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	// PostgreSQL reports generated keys only through RETURNING.
	return Result{RowsAffected: tag.RowsAffected()}, nil
}

func (c *postgresConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return &TxError{Op: "begin", Err: errors.New("transaction already open")}
	}
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return &TxError{Op: "begin", Err: err}
	}
	c.tx = tx
	return nil
}

func (c *postgresConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return &TxError{Op: "commit", Err: errors.New("no transaction open")}
	}
	tx := c.tx
	c.tx = nil

	if err := tx.Commit(ctx); err != nil {
		rbErr := tx.Rollback(ctx)
		if errors.Is(rbErr, pgx.ErrTxClosed) {
			rbErr = nil
		}
		return &TxError{Op: "commit", Err: err, RollbackErr: rbErr}
	}
	return nil
}

func (c *postgresConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil

	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return &TxError{Op: "rollback", Err: err}
	}
	return nil
}

func (c *postgresConn) Close(ctx context.Context) error {
	rbErr := c.Rollback(ctx)
	if err := c.conn.Close(ctx); err != nil {
		return err
	}
	return rbErr
}
