package migrate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

func openSQLite(t *testing.T) db.Connection {
	t.Helper()

	ctx := context.Background()
	conn, err := db.Open(ctx, db.Options{
		Dialect:      db.SQLite,
		Database:     filepath.Join(t.TempDir(), "migrate.db"),
		SQLiteDriver: "modernc",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(ctx) })
	return conn
}

func mustRegistry(t *testing.T, schemas ...*schema.Schema) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(schemas...)
	require.NoError(t, err)
	return reg
}

// userAndRole declares user before role so the foreign key is a forward
// reference.
func userAndRole(nameLength int) []*schema.Schema {
	return []*schema.Schema{
		{
			Name: "user",
			Columns: []*schema.Column{
				{Name: "id", Type: schema.TypeNumber, Identity: true},
				{Name: "name", Type: schema.TypeString, Length: nameLength},
				{Name: "roleId", Type: schema.TypeNumber, Nullable: true, Association: &schema.Association{Name: "role", Target: "role", TargetKey: "id"}},
			},
		},
		{
			Name: "role",
			Columns: []*schema.Column{
				{Name: "id", Type: schema.TypeNumber, Identity: true},
				{Name: "name", Type: schema.TypeString, Length: 50},
			},
		},
	}
}

// recordingConn is a Connection that records every statement and
// transaction call. Reads return no rows.
type recordingConn struct {
	dialect string
	execs   []string
	calls   []string

	failOn      string
	rollbackErr error
}

func (c *recordingConn) Dialect() string { return c.dialect }

func (c *recordingConn) Query(context.Context, sqltpl.Statement) (*db.Rows, error) {
	return &db.Rows{}, nil
}

func (c *recordingConn) Exec(_ context.Context, stmt sqltpl.Statement) (db.Result, error) {
	if c.failOn != "" && strings.Contains(stmt.Text, c.failOn) {
		return db.Result{}, errors.New("statement rejected")
	}
	c.execs = append(c.execs, stmt.Text)
	return db.Result{}, nil
}

func (c *recordingConn) Begin(context.Context) error {
	c.calls = append(c.calls, "begin")
	return nil
}

func (c *recordingConn) Commit(context.Context) error {
	c.calls = append(c.calls, "commit")
	return nil
}

func (c *recordingConn) Rollback(context.Context) error {
	c.calls = append(c.calls, "rollback")
	return c.rollbackErr
}

func (c *recordingConn) Close(context.Context) error { return nil }

// failingConn passes everything to a real connection but rejects
// statements containing failOn.
type failingConn struct {
	db.Connection
	failOn string
}

func (c *failingConn) Exec(ctx context.Context, stmt sqltpl.Statement) (db.Result, error) {
	if strings.Contains(stmt.Text, c.failOn) {
		return db.Result{}, errors.New("injected failure")
	}
	return c.Connection.Exec(ctx, stmt)
}

// fakeCatalog is a fixed Introspector.
type fakeCatalog struct {
	tables map[string]*schema.Table
}

func newFakeCatalog(tables ...schema.Table) *fakeCatalog {
	cat := &fakeCatalog{tables: map[string]*schema.Table{}}
	for i := range tables {
		cat.tables[tables[i].Name] = &tables[i]
	}
	return cat
}

func (f *fakeCatalog) Tables(context.Context) ([]string, error) {
	var names []string
	for name := range f.tables {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeCatalog) TableExists(_ context.Context, table string) (bool, error) {
	_, ok := f.tables[table]
	return ok, nil
}

func (f *fakeCatalog) Columns(_ context.Context, table string) ([]schema.DatabaseColumn, error) {
	if t, ok := f.tables[table]; ok {
		return t.Columns, nil
	}
	return nil, nil
}

func (f *fakeCatalog) ForeignKeys(_ context.Context, table string) ([]schema.DatabaseFK, error) {
	if t, ok := f.tables[table]; ok {
		return t.ForeignKeys, nil
	}
	return nil, nil
}

// withCatalog makes e introspect cat instead of the connection.
func withCatalog(e *Engine, cat db.Introspector) *Engine {
	e.newIntrospector = func(db.Connection, string) (db.Introspector, error) {
		return cat, nil
	}
	return e
}
