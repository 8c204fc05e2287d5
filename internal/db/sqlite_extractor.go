package db

import (
	"context"

	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

// SQLiteExtractor reads table structure from sqlite_master and the
// table-valued pragma functions
type SQLiteExtractor struct {
	conn Connection
}

// NewSQLiteExtractor creates a SQLite introspector
func NewSQLiteExtractor(conn Connection) *SQLiteExtractor {
	return &SQLiteExtractor{
		conn: conn,
	}
}

// Tables lists user tables ordered by name
func (e *SQLiteExtractor) Tables(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	return QueryAs(ctx, e.conn, sqltpl.Raw(query), scanTableName)
}

// TableExists reports whether the table exists
func (e *SQLiteExtractor) TableExists(ctx context.Context, table string) (bool, error) {
	query := `SELECT COUNT(*) AS n FROM sqlite_master WHERE type = 'table' AND name = :table COLLATE NOCASE`

	rows, err := e.conn.Query(ctx, sqltpl.New(query, sqltpl.Params{"table": table}))
	if err != nil {
		return false, err
	}
	return len(rows.Records) > 0 && rows.Records[0].Int("n") > 0, nil
}

// Columns extracts column information for a table
func (e *SQLiteExtractor) Columns(ctx context.Context, table string) ([]schema.DatabaseColumn, error) {
	query := `SELECT name, type, "notnull" AS not_null, dflt_value, pk FROM pragma_table_info(:table) ORDER BY cid`

	return QueryAs(ctx, e.conn, sqltpl.New(query, sqltpl.Params{"table": table}), func(r Record) (schema.DatabaseColumn, error) {
		base, length := splitType(r.String("type"))
		isPK := r.Int("pk") > 0
		col := schema.DatabaseColumn{
			Name:   r.String("name"),
			Type:   base,
			Length: length,
			// pragma reports notnull=0 for rowid aliases, which never hold NULL
			Nullable: r.Int("not_null") == 0 && !isPK,
			IsPK:     isPK,
			Declared: r.String("type"),
		}
		if dflt, ok := r.NullString("dflt_value"); ok {
			col.Default = &dflt
		}
		return col, nil
	})
}

// Dependents returns the CREATE statements of the table's indexes and
// triggers, indexes first. Automatic indexes have no SQL and are skipped.
func (e *SQLiteExtractor) Dependents(ctx context.Context, table string) ([]string, error) {
	query := `
		SELECT sql
		FROM sqlite_master
		WHERE tbl_name = :table COLLATE NOCASE
		  AND type IN ('index', 'trigger')
		  AND sql IS NOT NULL
		ORDER BY type, name
	`

	return QueryAs(ctx, e.conn, sqltpl.New(query, sqltpl.Params{"table": table}), func(r Record) (string, error) {
		return r.String("sql"), nil
	})
}

// ForeignKeys extracts foreign key constraints. SQLite keeps no constraint
// names, so each key is named by the deterministic table/column convention.
func (e *SQLiteExtractor) ForeignKeys(ctx context.Context, table string) ([]schema.DatabaseFK, error) {
	query := `
		SELECT "table" AS ref_table, "from" AS column_name, "to" AS ref_key
		FROM pragma_foreign_key_list(:table)
		ORDER BY id, seq
	`

	fks, err := QueryAs(ctx, e.conn, sqltpl.New(query, sqltpl.Params{"table": table}), func(r Record) (schema.DatabaseFK, error) {
		column := r.String("column_name")
		return schema.DatabaseFK{
			Name:     schema.FKName(table, column),
			Column:   column,
			RefTable: r.String("ref_table"),
			RefKey:   r.String("ref_key"),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	// A reference without a column list points at the parent's primary key
	for i := range fks {
		if fks[i].RefKey != "" {
			continue
		}
		cols, err := e.Columns(ctx, fks[i].RefTable)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			if c.IsPK {
				fks[i].RefKey = c.Name
				break
			}
		}
	}

	return fks, nil
}
