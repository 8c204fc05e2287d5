package migrate

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

func sqliteTables(t *testing.T, conn db.Connection) []string {
	t.Helper()
	tables, err := db.NewSQLiteExtractor(conn).Tables(context.Background())
	require.NoError(t, err)
	return tables
}

func TestCreateUserAndRole(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	engine := New(mustRegistry(t, userAndRole(50)...), Options{})

	report, err := engine.Create(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, ModeCreate, report.Mode)
	assert.Equal(t, 2, report.Count(OpCreateTable))
	assert.Equal(t, []string{"role", "user"}, sqliteTables(t, conn))

	fks, err := db.NewSQLiteExtractor(conn).ForeignKeys(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, []schema.DatabaseFK{{Name: "fk_user_roleId", Column: "roleId", RefTable: "role", RefKey: "id"}}, fks)

	_, err = db.Insert(ctx, conn, sqltpl.New(`INSERT INTO "role" ("name") VALUES (:name)`, sqltpl.Params{"name": "admin"}))
	require.NoError(t, err)
}

func TestRunsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	engine := New(mustRegistry(t, userAndRole(50)...), Options{})

	_, err := engine.Update(ctx, conn)
	require.NoError(t, err)

	report, err := engine.Update(ctx, conn)
	require.NoError(t, err)
	assert.True(t, report.Empty(), "%+v", report.Steps)

	report, err = engine.Create(ctx, conn)
	require.NoError(t, err)
	assert.True(t, report.Empty(), "%+v", report.Steps)
}

func TestUpdateLengthChangeIsOneColumnUpdate(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	_, err := New(mustRegistry(t, userAndRole(50)...), Options{}).Create(ctx, conn)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, sqltpl.New(`INSERT INTO "user" ("name") VALUES (:name)`, sqltpl.Params{"name": "ada"}))
	require.NoError(t, err)

	report, err := New(mustRegistry(t, userAndRole(100)...), Options{}).Update(ctx, conn)
	require.NoError(t, err)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, OpUpdateColumn, report.Steps[0].Op)
	assert.Equal(t, "user.name", report.Steps[0].Target())

	col, err := db.NewSQLiteExtractor(conn).Columns(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, 100, schema.FindColumn(col, "name").Length)

	names, err := db.QueryAs(ctx, conn, sqltpl.Raw(`SELECT "name" AS name FROM "user"`), func(r db.Record) (string, error) {
		return r.String("name"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ada"}, names)
}

func TestUpdateAddsOneStepPerMissingColumn(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	_, err := New(mustRegistry(t, userAndRole(50)...), Options{}).Create(ctx, conn)
	require.NoError(t, err)

	schemas := userAndRole(50)
	schemas[0].Columns = append(schemas[0].Columns,
		&schema.Column{Name: "email", Type: schema.TypeString, Length: 120, Nullable: true},
		&schema.Column{Name: "age", Type: schema.TypeNumber},
	)
	engine := New(mustRegistry(t, schemas...), Options{})

	report, err := engine.Update(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(OpAddColumn))
	assert.Len(t, report.Steps, 2)

	report, err = engine.Update(ctx, conn)
	require.NoError(t, err)
	assert.True(t, report.Empty(), "%+v", report.Steps)
}

func TestUpdateRenamesTableAndColumn(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	before := &schema.Schema{
		Name: "users",
		Columns: []*schema.Column{
			{Name: "id", Type: schema.TypeNumber, Identity: true},
			{Name: "title", Type: schema.TypeString, Length: 50},
		},
	}
	_, err := New(mustRegistry(t, before), Options{}).Create(ctx, conn)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, sqltpl.Raw(`INSERT INTO "users" ("title") VALUES ('ada')`))
	require.NoError(t, err)

	after := &schema.Schema{
		Name:     "user",
		Previous: "users",
		Columns: []*schema.Column{
			{Name: "id", Type: schema.TypeNumber, Identity: true},
			{Name: "name", Type: schema.TypeString, Length: 50, Previous: "title"},
		},
	}
	report, err := New(mustRegistry(t, after), Options{}).Update(ctx, conn)
	require.NoError(t, err)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, OpRenameTable, report.Steps[0].Op)
	assert.Equal(t, OpUpdateColumn, report.Steps[1].Op)
	assert.Equal(t, []string{"user"}, sqliteTables(t, conn))

	names, err := db.QueryAs(ctx, conn, sqltpl.Raw(`SELECT "name" AS name FROM "user"`), func(r db.Record) (string, error) {
		return r.String("name"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ada"}, names)
}

func TestUpdateDropsUndeclaredForeignKey(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	_, err := New(mustRegistry(t, userAndRole(50)...), Options{}).Create(ctx, conn)
	require.NoError(t, err)

	schemas := userAndRole(50)
	schemas[0].Columns[2].Association = nil
	report, err := New(mustRegistry(t, schemas...), Options{}).Update(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(OpDropFK))

	fks, err := db.NewSQLiteExtractor(conn).ForeignKeys(ctx, "user")
	require.NoError(t, err)
	assert.Empty(t, fks)
}

func TestDropRemovesReferrersFirst(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	engine := New(mustRegistry(t, userAndRole(50)...), Options{})

	_, err := engine.Create(ctx, conn)
	require.NoError(t, err)

	report, err := engine.Drop(ctx, conn)
	require.NoError(t, err)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, "user", report.Steps[0].Table)
	assert.Equal(t, "role", report.Steps[1].Table)
	assert.Empty(t, sqliteTables(t, conn))

	report, err = engine.Drop(ctx, conn)
	require.NoError(t, err)
	assert.True(t, report.Empty())
}

func TestPlanWritesNothing(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	engine := New(mustRegistry(t, userAndRole(50)...), Options{})

	report, err := engine.Plan(ctx, conn, ModeUpdate)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(OpCreateTable))
	assert.Len(t, report.Steps, 2)
	assert.Contains(t, report.Steps[0].SQL, `CREATE TABLE "user"`)
	assert.Empty(t, sqliteTables(t, conn))
}

func TestPlanAfterRenameDoesNotReaddColumns(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	before := &schema.Schema{Name: "users", Columns: []*schema.Column{
		{Name: "id", Type: schema.TypeNumber, Identity: true},
		{Name: "name", Type: schema.TypeString, Length: 50},
	}}
	_, err := New(mustRegistry(t, before), Options{}).Create(ctx, conn)
	require.NoError(t, err)

	after := &schema.Schema{Name: "user", Previous: "users", Columns: before.Columns}
	report, err := New(mustRegistry(t, after), Options{}).Plan(ctx, conn, ModeUpdate)
	require.NoError(t, err)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, OpRenameTable, report.Steps[0].Op)
	assert.Equal(t, []string{"users"}, sqliteTables(t, conn))
}

func TestPlanMatchesUpdateAfterRenameWithAssociation(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	_, err := New(mustRegistry(t, userAndRole(50)...), Options{}).Create(ctx, conn)
	require.NoError(t, err)

	renamed := userAndRole(50)
	renamed[0].Name = "member"
	renamed[0].Previous = "user"
	engine := New(mustRegistry(t, renamed...), Options{})

	plan, err := engine.Plan(ctx, conn, ModeUpdate)
	require.NoError(t, err)
	report, err := engine.Update(ctx, conn)
	require.NoError(t, err)

	steps := func(r *Report) []string {
		var out []string
		for _, step := range r.Steps {
			out = append(out, string(step.Op)+" "+step.Target())
		}
		return out
	}
	assert.Equal(t, []string{"rename_table member"}, steps(report))
	assert.Equal(t, steps(report), steps(plan))
}

func TestRebuildKeepsIndexesTriggersAndDefaults(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)

	_, err := New(mustRegistry(t, userAndRole(50)...), Options{}).Create(ctx, conn)
	require.NoError(t, err)
	for _, stmt := range []string{
		`ALTER TABLE "user" ADD COLUMN "score" DECIMAL(10,2) DEFAULT 5`,
		`CREATE UNIQUE INDEX "idx_user_name" ON "user" ("name")`,
		`CREATE TABLE "audit" ("userId" INTEGER)`,
		`CREATE TRIGGER "trg_user_audit" AFTER INSERT ON "user" BEGIN INSERT INTO "audit" VALUES (NEW."id"); END`,
	} {
		_, err := conn.Exec(ctx, sqltpl.Raw(stmt))
		require.NoError(t, err)
	}

	report, err := New(mustRegistry(t, userAndRole(100)...), Options{}).Update(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(OpUpdateColumn))

	objects, err := db.QueryAs(ctx, conn, sqltpl.Raw(
		`SELECT name FROM sqlite_master WHERE tbl_name = 'user' AND type IN ('index', 'trigger') ORDER BY name`,
	), func(r db.Record) (string, error) { return r.String("name"), nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"idx_user_name", "trg_user_audit"}, objects)

	cols, err := db.NewSQLiteExtractor(conn).Columns(ctx, "user")
	require.NoError(t, err)
	score := schema.FindColumn(cols, "score")
	require.NotNil(t, score)
	assert.Equal(t, "DECIMAL(10,2)", score.Declared)
	require.NotNil(t, score.Default)
	assert.Equal(t, "5", *score.Default)

	_, err = conn.Exec(ctx, sqltpl.Raw(`INSERT INTO "user" ("name") VALUES ('ada')`))
	require.NoError(t, err)
	_, err = conn.Exec(ctx, sqltpl.Raw(`INSERT INTO "user" ("name") VALUES ('ada')`))
	assert.Error(t, err, "unique index must survive the rebuild")

	rows, err := conn.Query(ctx, sqltpl.Raw(`SELECT COUNT(*) AS n FROM "audit"`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows.Records[0].Int("n"))
}

func TestFailedStatementRollsBackEarlierDDL(t *testing.T) {
	ctx := context.Background()
	conn := openSQLite(t)
	engine := New(mustRegistry(t, userAndRole(50)...), Options{})

	report, err := engine.Create(ctx, &failingConn{Connection: conn, failOn: `CREATE TABLE "role"`})
	require.Error(t, err)

	var ddlErr *DDLError
	require.True(t, errors.As(err, &ddlErr))
	assert.Equal(t, OpCreateTable, ddlErr.Op)
	assert.Equal(t, "role", ddlErr.Table)
	assert.Contains(t, ddlErr.Statement, `CREATE TABLE "role"`)

	// the user table was created, then rolled back
	assert.Equal(t, 1, report.Count(OpCreateTable))
	assert.Empty(t, sqliteTables(t, conn))
}

func TestFailedRollbackIsReported(t *testing.T) {
	conn := &recordingConn{dialect: db.Postgres, failOn: "CREATE TABLE", rollbackErr: errors.New("connection reset")}
	engine := withCatalog(New(mustRegistry(t, userAndRole(50)...), Options{}), newFakeCatalog())

	_, err := engine.Update(context.Background(), conn)

	var txErr *db.TxError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, "update", txErr.Op)
	assert.False(t, txErr.RolledBack())

	var ddlErr *DDLError
	assert.True(t, errors.As(err, &ddlErr))
}

func TestConfigurationErrorIssuesNoStatements(t *testing.T) {
	schemas := userAndRole(50)
	schemas[0].Columns[2].Association.Target = "group"
	conn := &recordingConn{dialect: db.MySQL}

	_, err := New(mustRegistry(t, schemas...), Options{}).Update(context.Background(), conn)

	var cfgErr *schema.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "roleId", cfgErr.Column)
	assert.Empty(t, conn.calls)
	assert.Empty(t, conn.execs)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("drop")
	require.NoError(t, err)
	assert.Equal(t, ModeDrop, m)

	_, err = ParseMode("truncate")
	assert.Error(t, err)
}
