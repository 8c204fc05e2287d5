package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orql/orql-mapper/internal/schema"
)

func TestFilterExcludedTables(t *testing.T) {
	tests := []struct {
		name        string
		snapshot    *schema.Snapshot
		excludeList []string
		wantTables  []string
	}{
		{
			name: "exclude single table",
			snapshot: &schema.Snapshot{
				Tables: []schema.Table{
					{Name: "users"},
					{Name: "posts"},
					{Name: "comments"},
				},
			},
			excludeList: []string{"posts"},
			wantTables:  []string{"users", "comments"},
		},
		{
			name: "exclude multiple tables",
			snapshot: &schema.Snapshot{
				Tables: []schema.Table{
					{Name: "users"},
					{Name: "posts"},
					{Name: "comments"},
					{Name: "likes"},
				},
			},
			excludeList: []string{"posts", "likes"},
			wantTables:  []string{"users", "comments"},
		},
		{
			name: "exclude no tables",
			snapshot: &schema.Snapshot{
				Tables: []schema.Table{
					{Name: "users"},
					{Name: "posts"},
				},
			},
			excludeList: []string{},
			wantTables:  []string{"users", "posts"},
		},
		{
			name: "exclude non-existent table",
			snapshot: &schema.Snapshot{
				Tables: []schema.Table{
					{Name: "users"},
					{Name: "posts"},
				},
			},
			excludeList: []string{"products"},
			wantTables:  []string{"users", "posts"},
		},
		{
			name: "exclude all tables",
			snapshot: &schema.Snapshot{
				Tables: []schema.Table{
					{Name: "users"},
					{Name: "posts"},
				},
			},
			excludeList: []string{"users", "posts"},
			wantTables:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filterExcludedTables(tt.snapshot, tt.excludeList)

			if len(tt.snapshot.Tables) != len(tt.wantTables) {
				t.Errorf("filterExcludedTables() resulted in %d tables, want %d", len(tt.snapshot.Tables), len(tt.wantTables))
				return
			}

			for i, table := range tt.snapshot.Tables {
				if table.Name != tt.wantTables[i] {
					t.Errorf("filterExcludedTables() table[%d] = %s, want %s", i, table.Name, tt.wantTables[i])
				}
			}
		})
	}
}

func TestParseTableList(t *testing.T) {
	tests := []struct {
		name       string
		tablesStr  string
		wantTables []string
	}{
		{
			name:       "single table",
			tablesStr:  "users",
			wantTables: []string{"users"},
		},
		{
			name:       "multiple tables",
			tablesStr:  "users,posts,comments",
			wantTables: []string{"users", "posts", "comments"},
		},
		{
			name:       "tables with spaces",
			tablesStr:  "users, posts, comments",
			wantTables: []string{"users", "posts", "comments"},
		},
		{
			name:       "empty string",
			tablesStr:  "",
			wantTables: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotTables := parseTableList(tt.tablesStr)

			if len(gotTables) != len(tt.wantTables) {
				t.Errorf("parseTableList() returned %d tables, want %d", len(gotTables), len(tt.wantTables))
				return
			}

			for i, table := range gotTables {
				if table != tt.wantTables[i] {
					t.Errorf("parseTableList() table[%d] = %s, want %s", i, table, tt.wantTables[i])
				}
			}
		})
	}
}

const cliSchema = `
schemas:
  - name: role
    columns:
      - {name: id, type: number, identity: true}
      - {name: name, type: string, length: 50}
  - name: user
    columns:
      - {name: id, type: number, identity: true}
      - {name: roleId, type: number, association: {schema: role}}
`

func runCLI(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out := filepath.Join(dir, "out.txt")
	base := []string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--db-url", "sqlite://" + filepath.Join(dir, "app.db") + "?driver=modernc",
		"--schema-file", filepath.Join(dir, "schema.yaml"),
		"--log-level", "warn",
		"--output", out,
	}
	rootCmd.SetArgs(append(append([]string{args[0]}, base...), args[1:]...))
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	return string(data)
}

func TestCommands(t *testing.T) {
	t.Setenv("ORQL_DATABASE_URL", "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.yaml"), []byte(cliSchema), 0o600))

	plan := runCLI(t, dir, "plan", "update")
	assert.Contains(t, plan, "CREATE_TABLE role")
	assert.Contains(t, plan, "CREATE_TABLE user")

	applied := runCLI(t, dir, "update")
	assert.Contains(t, applied, "CREATE TABLE")

	again := runCLI(t, dir, "update")
	assert.Equal(t, "Schema is up to date.\n", again)

	inspected := runCLI(t, dir, "inspect", "--exclude", "role")
	assert.Contains(t, inspected, "TABLE user")
	assert.NotContains(t, inspected, "TABLE role")

	dropped := runCLI(t, dir, "drop", "--no-lock")
	assert.Contains(t, dropped, "DROP_TABLE user")
}
