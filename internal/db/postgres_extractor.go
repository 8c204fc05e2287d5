package db

import (
	"context"

	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

const varcharType = "varchar"

// PostgresExtractor reads table structure from PostgreSQL's information_schema
type PostgresExtractor struct {
	conn   Connection
	schema string
}

// NewPostgresExtractor creates a PostgreSQL introspector for schemaName
func NewPostgresExtractor(conn Connection, schemaName string) *PostgresExtractor {
	return &PostgresExtractor{
		conn:   conn,
		schema: schemaName,
	}
}

func (e *PostgresExtractor) params(table string) sqltpl.Params {
	return sqltpl.Params{"schema": e.schema, "table": table}
}

// Tables lists base tables ordered by name
func (e *PostgresExtractor) Tables(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name::text AS name
		FROM information_schema.tables
		WHERE table_schema = :schema AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	return QueryAs(ctx, e.conn, sqltpl.New(query, e.params("")), scanTableName)
}

// TableExists reports whether the table exists
func (e *PostgresExtractor) TableExists(ctx context.Context, table string) (bool, error) {
	query := `
		SELECT COUNT(*)::int AS n
		FROM information_schema.tables
		WHERE table_schema = :schema AND table_name = :table
	`

	rows, err := e.conn.Query(ctx, sqltpl.New(query, e.params(table)))
	if err != nil {
		return false, err
	}
	return len(rows.Records) > 0 && rows.Records[0].Int("n") > 0, nil
}

// normalizePostgresType maps verbose SQL type names to the short base names
// used in DDL. Lengths are reported separately.
func normalizePostgresType(dataType, udtName string) string {
	switch dataType {
	case "timestamp with time zone":
		return "timestamptz"
	case "timestamp without time zone":
		return "timestamp"
	case "time with time zone":
		return "timetz"
	case "time without time zone":
		return "time"
	case "character varying":
		return varcharType
	case "character":
		return "char"
	case "ARRAY":
		// udt_name has underscore prefix for arrays (e.g., "_text" for text[], "_int4" for integer[])
		if len(udtName) > 0 && udtName[0] == '_' {
			return normalizeUdtName(udtName[1:]) + "[]"
		}
		return "array"
	case "USER-DEFINED":
		return udtName
	default:
		return dataType
	}
}

// normalizeUdtName converts PostgreSQL internal type names to more readable forms
func normalizeUdtName(udtName string) string {
	switch udtName {
	case "int4":
		return "integer"
	case "int8":
		return "bigint"
	case "int2":
		return "smallint"
	case "float4":
		return "real"
	case "float8":
		return "double precision"
	case "bool":
		return "boolean"
	default:
		return udtName
	}
}

// Columns extracts column information for a table
func (e *PostgresExtractor) Columns(ctx context.Context, table string) ([]schema.DatabaseColumn, error) {
	query := `
		SELECT
			c.column_name::text AS name,
			c.data_type::text AS data_type,
			c.udt_name::text AS udt_name,
			c.is_nullable::text AS nullable,
			c.character_maximum_length::int AS length,
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
					AND tc.table_name = kcu.table_name
				WHERE tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND tc.constraint_type = 'PRIMARY KEY'
					AND kcu.column_name = c.column_name
			) AS is_pk
		FROM information_schema.columns c
		WHERE c.table_schema = :schema AND c.table_name = :table
		ORDER BY c.ordinal_position
	`

	return QueryAs(ctx, e.conn, sqltpl.New(query, e.params(table)), func(r Record) (schema.DatabaseColumn, error) {
		col := schema.DatabaseColumn{
			Name:     r.String("name"),
			Type:     normalizePostgresType(r.String("data_type"), r.String("udt_name")),
			Nullable: r.Bool("nullable"),
			IsPK:     r.Bool("is_pk"),
		}
		if n, ok := r.NullInt("length"); ok {
			col.Length = int(n)
		}
		return col, nil
	})
}

// ForeignKeys extracts foreign key constraints
func (e *PostgresExtractor) ForeignKeys(ctx context.Context, table string) ([]schema.DatabaseFK, error) {
	query := `
		SELECT
			tc.constraint_name::text AS name,
			kcu.column_name::text AS column_name,
			ccu.table_name::text AS ref_table,
			ccu.column_name::text AS ref_key
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = :schema
			AND tc.table_name = :table
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	return QueryAs(ctx, e.conn, sqltpl.New(query, e.params(table)), scanFK)
}
