// Package migrate reconciles the declared schemas of a Registry against a
// live database.
package migrate

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/dialect"
	"github.com/orql/orql-mapper/internal/schema"
)

// Mode selects a reconciliation pass.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
	ModeDrop   Mode = "drop"
)

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(name); m {
	case ModeCreate, ModeUpdate, ModeDrop:
		return m, nil
	}
	return "", errors.Errorf("unknown mode %q (want create, update or drop)", name)
}

// Options tune an Engine.
type Options struct {
	// SchemaName is the PostgreSQL schema or MySQL database to reconcile.
	// Empty selects "public" on PostgreSQL and the connection's database on
	// MySQL.
	SchemaName string
}

// Engine applies a Registry to databases. It holds no connection state and
// may be shared; each run works on the Connection it is given.
type Engine struct {
	reg  *schema.Registry
	opts Options

	newIntrospector func(db.Connection, string) (db.Introspector, error)
}

// New returns an engine for reg.
func New(reg *schema.Registry, opts Options) *Engine {
	return &Engine{
		reg:             reg,
		opts:            opts,
		newIntrospector: db.NewIntrospector,
	}
}

// Session binds the engine to conn for calling the single-object
// primitives directly. The caller manages the transaction.
func (e *Engine) Session(conn db.Connection) (*Session, error) {
	d, err := dialect.For(conn.Dialect())
	if err != nil {
		return nil, err
	}
	in, err := e.newIntrospector(conn, e.opts.SchemaName)
	if err != nil {
		return nil, err
	}

	_, dry := conn.(*db.DryRunConn)
	return &Session{
		reg:     e.reg,
		conn:    conn,
		dialect: d,
		in:      in,
		dry:     dry,
		report:  &Report{},
		created: map[string]bool{},
		renamed: map[string]string{},
		rebuilt: map[string]bool{},
	}, nil
}

// Create creates missing tables, adds missing columns, then adds missing
// foreign keys once every table exists.
func (e *Engine) Create(ctx context.Context, conn db.Connection) (*Report, error) {
	return e.run(ctx, conn, ModeCreate, true)
}

// Update brings every declared table, column and foreign key in line with
// the registry, renaming where a previous name is declared.
func (e *Engine) Update(ctx context.Context, conn db.Connection) (*Report, error) {
	return e.run(ctx, conn, ModeUpdate, true)
}

// Drop drops every declared table, referencing tables first.
func (e *Engine) Drop(ctx context.Context, conn db.Connection) (*Report, error) {
	return e.run(ctx, conn, ModeDrop, true)
}

// Plan runs mode against a recorder and rolls back, returning the steps the
// run would take. Nothing is written.
func (e *Engine) Plan(ctx context.Context, conn db.Connection, mode Mode) (*Report, error) {
	return e.run(ctx, db.DryRun(conn), mode, false)
}

func (e *Engine) run(ctx context.Context, conn db.Connection, mode Mode, commit bool) (*Report, error) {
	if err := e.reg.Validate(); err != nil {
		return nil, err
	}

	sess, err := e.Session(conn)
	if err != nil {
		return nil, err
	}
	sess.report.Mode = mode

	pass := map[Mode]func(*Session, context.Context) error{
		ModeCreate: (*Session).create,
		ModeUpdate: (*Session).update,
		ModeDrop:   (*Session).drop,
	}[mode]
	if pass == nil {
		return nil, errors.Errorf("unknown mode %q", mode)
	}

	slog.Info("reconciling schema", "mode", mode, "dialect", conn.Dialect(), "dry_run", sess.dry)

	if err := conn.Begin(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	if err := pass(sess, ctx); err != nil {
		// the run's context may be the reason it failed
		if rbErr := conn.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return sess.report, &db.TxError{Op: string(mode), Err: err, RollbackErr: rbErr}
		}
		slog.Warn("schema reconciliation rolled back", "mode", mode, "error", err)
		return sess.report, err
	}

	if !commit {
		if err := conn.Rollback(ctx); err != nil {
			return sess.report, err
		}
		return sess.report, nil
	}

	if err := conn.Commit(ctx); err != nil {
		return sess.report, err
	}

	slog.Info("schema reconciled", "mode", mode, "steps", len(sess.report.Steps))
	return sess.report, nil
}
