package db

import (
	"context"
	"strings"

	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

// MySQLExtractor reads table structure from MySQL's information_schema
type MySQLExtractor struct {
	conn       Connection
	schemaName string
}

// NewMySQLExtractor creates a MySQL introspector. An empty schemaName means
// the connection's current database.
func NewMySQLExtractor(conn Connection, schemaName string) *MySQLExtractor {
	return &MySQLExtractor{
		conn:       conn,
		schemaName: schemaName,
	}
}

// schemaFilter matches the configured database or, when none is set, the
// session's current one.
const mysqlSchemaFilter = "COALESCE(NULLIF(:schema, ''), DATABASE())"

func (e *MySQLExtractor) params(table string) sqltpl.Params {
	return sqltpl.Params{"schema": e.schemaName, "table": table}
}

// Tables lists base tables ordered by name
func (e *MySQLExtractor) Tables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name AS name
		FROM information_schema.tables
		WHERE table_schema = ` + mysqlSchemaFilter + ` AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	return QueryAs(ctx, e.conn, sqltpl.New(query, e.params("")), scanTableName)
}

// TableExists reports whether the table exists
func (e *MySQLExtractor) TableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT COUNT(*) AS n
		FROM information_schema.tables
		WHERE table_schema = ` + mysqlSchemaFilter + ` AND table_name = :table
	`

	rows, err := e.conn.Query(ctx, sqltpl.New(query, e.params(table)))
	if err != nil {
		return false, err
	}
	return len(rows.Records) > 0 && rows.Records[0].Int("n") > 0, nil
}

// Columns extracts column information for a table
func (e *MySQLExtractor) Columns(ctx context.Context, table string) ([]schema.DatabaseColumn, error) {
	query := `
		SELECT
			c.column_name AS name,
			c.data_type AS data_type,
			c.is_nullable AS nullable,
			c.character_maximum_length AS length,
			c.column_key AS column_key
		FROM information_schema.columns c
		WHERE c.table_schema = ` + mysqlSchemaFilter + ` AND c.table_name = :table
		ORDER BY c.ordinal_position
	`

	return QueryAs(ctx, e.conn, sqltpl.New(query, e.params(table)), func(r Record) (schema.DatabaseColumn, error) {
		col := schema.DatabaseColumn{
			Name:     r.String("name"),
			Type:     strings.ToLower(r.String("data_type")),
			Nullable: r.Bool("nullable"),
			IsPK:     r.String("column_key") == "PRI",
		}
		if n, ok := r.NullInt("length"); ok {
			col.Length = int(n)
		}
		return col, nil
	})
}

// ForeignKeys extracts foreign key constraints
func (e *MySQLExtractor) ForeignKeys(ctx context.Context, table string) ([]schema.DatabaseFK, error) {
	query := `
		SELECT
			kcu.constraint_name AS name,
			kcu.column_name AS column_name,
			kcu.referenced_table_name AS ref_table,
			kcu.referenced_column_name AS ref_key
		FROM information_schema.key_column_usage kcu
		WHERE kcu.table_schema = ` + mysqlSchemaFilter + `
			AND kcu.table_name = :table
			AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.constraint_name, kcu.ordinal_position
	`

	return QueryAs(ctx, e.conn, sqltpl.New(query, e.params(table)), scanFK)
}

func scanFK(r Record) (schema.DatabaseFK, error) {
	return schema.DatabaseFK{
		Name:     r.String("name"),
		Column:   r.String("column_name"),
		RefTable: r.String("ref_table"),
		RefKey:   r.String("ref_key"),
	}, nil
}
