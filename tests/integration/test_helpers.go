//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orqlmapper "github.com/orql/orql-mapper"
	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/dialect"
	"github.com/orql/orql-mapper/internal/migrate"
	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

const initialSchema = `
schemas:
  - name: role
    columns:
      - {name: id, type: number, identity: true}
      - {name: name, type: string, length: 50, nullable: false}
  - name: user
    columns:
      - {name: id, type: number, identity: true}
      - {name: name, type: string, length: 50}
      - {name: active, type: boolean}
      - name: roleId
        type: number
        association: {schema: role}
`

const evolvedSchema = `
schemas:
  - name: role
    columns:
      - {name: id, type: number, identity: true}
      - {name: name, type: string, length: 100, nullable: false}
      - {name: description, type: string}
  - name: user
    table: account
    renamedFrom: user
    columns:
      - {name: id, type: number, identity: true}
      - {name: fullName, type: string, length: 50, renamedFrom: name}
      - {name: active, type: boolean}
      - name: roleId
        type: number
        association: {schema: role}
`

func mustParse(t *testing.T, doc string) *schema.Registry {
	t.Helper()
	reg, err := schema.Parse([]byte(doc))
	require.NoError(t, err)
	return reg
}

// runLifecycle drives a database through create, evolve and drop and checks
// the catalog after each step.
func runLifecycle(t *testing.T, conn db.Connection, schemaName string) {
	t.Helper()
	ctx := context.Background()
	opts := &orqlmapper.Options{SchemaName: schemaName}

	initial := mustParse(t, initialSchema)
	report, err := orqlmapper.Reconcile(ctx, conn, initial, orqlmapper.ModeUpdate, opts)
	require.NoError(t, err)
	assert.False(t, report.Empty())

	snapshot, err := orqlmapper.Inspect(ctx, conn, schemaName, []string{"role", "user"})
	require.NoError(t, err)
	verifyTablesExist(t, snapshot, []string{"role", "user"})

	user := findTable(snapshot, "user")
	require.NotNil(t, user)
	verifyPrimaryKey(t, user, []string{"id"})
	verifyColumns(t, user, []string{"id", "name", "active", "roleId"})
	verifyForeignKey(t, snapshot, "user", "roleId", "role")

	again, err := orqlmapper.Reconcile(ctx, conn, initial, orqlmapper.ModeUpdate, opts)
	require.NoError(t, err)
	assert.True(t, again.Empty(), "second update should be a no-op, got %+v", again.Steps)

	q, err := dialect.For(conn.Dialect())
	require.NoError(t, err)
	_, err = conn.Exec(ctx, sqltpl.New(
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (:name)", q.Quote("role"), q.Quote("name")),
		sqltpl.Params{"name": "admin"},
	))
	require.NoError(t, err)

	evolved := mustParse(t, evolvedSchema)
	plan, err := orqlmapper.Plan(ctx, conn, evolved, orqlmapper.ModeUpdate, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Count(migrate.OpRenameTable))

	report, err = orqlmapper.Reconcile(ctx, conn, evolved, orqlmapper.ModeUpdate, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(migrate.OpRenameTable))
	assert.Equal(t, 1, report.Count(migrate.OpAddColumn))

	snapshot, err = orqlmapper.Inspect(ctx, conn, schemaName, []string{"role", "account"})
	require.NoError(t, err)
	verifyTablesExist(t, snapshot, []string{"role", "account"})
	verifyColumns(t, findTable(snapshot, "account"), []string{"id", "fullName", "active", "roleId"})
	verifyColumns(t, findTable(snapshot, "role"), []string{"id", "name", "description"})
	verifyForeignKey(t, snapshot, "account", "roleId", "role")
	assert.Equal(t, 100, findTable(snapshot, "role").FindColumn("name").Length)

	rows, err := conn.Query(ctx, sqltpl.Raw(
		fmt.Sprintf("SELECT %s FROM %s", q.Quote("name"), q.Quote("role")),
	))
	require.NoError(t, err)
	require.Len(t, rows.Records, 1)
	assert.Equal(t, "admin", rows.Records[0].String("name"))

	settled, err := orqlmapper.Reconcile(ctx, conn, evolved, orqlmapper.ModeUpdate, opts)
	require.NoError(t, err)
	assert.True(t, settled.Empty(), "update after evolve should be a no-op, got %+v", settled.Steps)

	dropped, err := orqlmapper.Reconcile(ctx, conn, evolved, orqlmapper.ModeDrop, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped.Count(migrate.OpDropTable))

	snapshot, err = orqlmapper.Inspect(ctx, conn, schemaName, nil)
	require.NoError(t, err)
	assert.Nil(t, findTable(snapshot, "account"))
	assert.Nil(t, findTable(snapshot, "role"))
}

// verifyTablesExist checks that all expected tables are present in the snapshot
func verifyTablesExist(t *testing.T, s *schema.Snapshot, expectedTables []string) {
	t.Helper()

	tableMap := make(map[string]bool)
	for _, table := range s.Tables {
		tableMap[table.Name] = true
	}

	for _, tableName := range expectedTables {
		if !tableMap[tableName] {
			t.Errorf("Expected table %s not found in schema", tableName)
		}
	}
}

// verifyColumns checks that expected columns exist in a table
func verifyColumns(t *testing.T, table *schema.Table, expectedColumns []string) {
	t.Helper()
	require.NotNil(t, table)

	for _, colName := range expectedColumns {
		if table.FindColumn(colName) == nil {
			t.Errorf("Expected column %s not found in %s table", colName, table.Name)
		}
	}
}

// verifyPrimaryKey checks that a table has the expected primary key
func verifyPrimaryKey(t *testing.T, table *schema.Table, expectedPK []string) {
	t.Helper()
	assert.Equal(t, expectedPK, table.PrimaryKey)
}

// verifyForeignKey checks that a foreign key relationship exists
func verifyForeignKey(t *testing.T, s *schema.Snapshot, tableName, columnName, refTable string) {
	t.Helper()

	table := findTable(s, tableName)
	if table == nil {
		t.Fatalf("Table %s not found", tableName)
	}

	for _, fk := range table.ForeignKeys {
		if fk.Column == columnName && fk.RefTable == refTable {
			return
		}
	}
	t.Errorf("Expected foreign key from %s.%s to %s not found", tableName, columnName, refTable)
}

// findTable finds a table by name in the snapshot
func findTable(s *schema.Snapshot, name string) *schema.Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}
