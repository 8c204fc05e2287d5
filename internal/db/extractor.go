package db

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/orql/orql-mapper/internal/schema"
)

// Introspector describes the live structure of a database. Every call reads
// the catalog afresh through the Connection, so it observes the caller's
// open transaction.
type Introspector interface {
	// Tables lists the base tables in the schema
	Tables(ctx context.Context) ([]string, error)

	// TableExists reports whether the table exists without changing anything
	TableExists(ctx context.Context, table string) (bool, error)

	// Columns returns the table's columns in ordinal order. A missing table
	// yields no columns.
	Columns(ctx context.Context, table string) ([]schema.DatabaseColumn, error)

	// ForeignKeys returns the table's foreign key constraints
	ForeignKeys(ctx context.Context, table string) ([]schema.DatabaseFK, error)
}

// DependentLister is implemented by introspectors whose dialect rebuilds
// tables and therefore has to recreate the objects hanging off them.
type DependentLister interface {
	Dependents(ctx context.Context, table string) ([]string, error)
}

// NewIntrospector returns the Introspector for conn's dialect. schemaName
// selects the PostgreSQL schema (default "public") or MySQL database
// (default: the connection's current database); SQLite ignores it.
func NewIntrospector(conn Connection, schemaName string) (Introspector, error) {
	switch conn.Dialect() {
	case Postgres:
		if schemaName == "" {
			schemaName = "public"
		}
		return NewPostgresExtractor(conn, schemaName), nil
	case MySQL:
		return NewMySQLExtractor(conn, schemaName), nil
	case SQLite:
		return NewSQLiteExtractor(conn), nil
	default:
		return nil, errors.Errorf("no introspector for dialect %q", conn.Dialect())
	}
}

// ExtractSchema describes the requested tables.
// If tables is empty, describes all tables in the schema
func ExtractSchema(ctx context.Context, in Introspector, tables []string) (*schema.Snapshot, error) {
	tableNames := tables
	if len(tableNames) == 0 {
		var err error
		if tableNames, err = in.Tables(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to get table names")
		}
	}

	snapshot := &schema.Snapshot{}
	for _, tableName := range tableNames {
		table, err := extractTable(ctx, in, tableName)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to extract table %s", tableName)
		}
		snapshot.Tables = append(snapshot.Tables, *table)
	}

	return snapshot, nil
}

// extractTable extracts all information for a single table
func extractTable(ctx context.Context, in Introspector, tableName string) (*schema.Table, error) {
	table := &schema.Table{Name: tableName}

	columns, err := in.Columns(ctx, tableName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract columns")
	}
	table.Columns = columns

	for _, col := range columns {
		if col.IsPK {
			table.PrimaryKey = append(table.PrimaryKey, col.Name)
		}
	}

	fks, err := in.ForeignKeys(ctx, tableName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to extract foreign keys")
	}
	table.ForeignKeys = fks

	return table, nil
}

// splitType breaks a declared type such as "VARCHAR(50)" into its lower-case
// base name and first length argument.
func splitType(raw string) (string, int) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	open := strings.Index(raw, "(")
	if open < 0 {
		return raw, 0
	}

	base := strings.TrimSpace(raw[:open])
	args := raw[open+1:]
	if end := strings.Index(args, ")"); end >= 0 {
		args = args[:end]
	}
	first, _, _ := strings.Cut(args, ",")
	n, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return base, 0
	}
	return base, n
}

func scanTableName(r Record) (string, error) {
	return r.String("name"), nil
}
