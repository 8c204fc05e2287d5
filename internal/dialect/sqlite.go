package dialect

import (
	"fmt"
	"strings"

	"github.com/orql/orql-mapper/internal/compare"
	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

// rebuildSuffix names the shadow table used while a table is recreated.
const rebuildSuffix = "__orql_rebuild"

// SQLite emits DDL for SQLite. Foreign keys only exist as part of CREATE
// TABLE, and columns cannot be altered in place, so those changes go through
// RebuildTable.
type SQLite struct {
	base
}

func NewSQLite() *SQLite {
	return &SQLite{base{
		name:  db.SQLite,
		quote: `"`,
		types: compare.TypeTable{
			schema.TypeString:  {Native: "VARCHAR", Aliases: []string{"varchar"}, LengthBearing: true, DefaultLength: 255},
			schema.TypeNumber:  {Native: "INTEGER", Aliases: []string{"integer", "int"}},
			schema.TypeDate:    {Native: "DATETIME", Aliases: []string{"datetime"}},
			schema.TypeBoolean: {Native: "BOOLEAN", Aliases: []string{"boolean"}},
			schema.TypeBinary:  {Native: "BLOB", Aliases: []string{"blob"}},
		},
	}}
}

func (d *SQLite) InlineForeignKeys() bool { return true }

func (d *SQLite) columnDef(c *schema.Column) (string, error) {
	if c.Identity {
		return d.Quote(c.Name) + " INTEGER PRIMARY KEY AUTOINCREMENT", nil
	}
	return d.base.columnDef(c)
}

func (d *SQLite) CreateTable(s *schema.Schema, fks []schema.ForeignKey) (sqltpl.Statement, error) {
	return d.createTable(s, fks, d.columnDef)
}

func (d *SQLite) RenameTable(from, to string) sqltpl.Statement {
	return sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(from), d.Quote(to)))
}

// AddColumn appends a nullable column. SQLite rejects NOT NULL columns
// without a default, so those need a rebuild.
func (d *SQLite) AddColumn(table string, c *schema.Column) ([]sqltpl.Statement, error) {
	if !c.Nullable || c.Identity {
		return nil, ErrRebuildRequired
	}
	def, err := d.columnDef(c)
	if err != nil {
		return nil, err
	}
	return []sqltpl.Statement{sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), def))}, nil
}

func (d *SQLite) UpdateColumn(string, *schema.Column, string) ([]sqltpl.Statement, error) {
	return nil, ErrRebuildRequired
}

func (d *SQLite) AddForeignKey(schema.ForeignKey) (sqltpl.Statement, error) {
	return sqltpl.Statement{}, ErrRebuildRequired
}

func (d *SQLite) DropForeignKey(string, string) (sqltpl.Statement, error) {
	return sqltpl.Statement{}, ErrRebuildRequired
}

// RebuildTable creates a shadow table with the declared shape, copies the
// rows across (following column renames), drops the original, renames the
// shadow into its place and recreates the original's indexes and triggers.
func (d *SQLite) RebuildTable(s *schema.Schema, fks []schema.ForeignKey, current []schema.DatabaseColumn, dependents []string) ([]sqltpl.Statement, error) {
	table := s.TableName()
	shadow := table + rebuildSuffix

	var (
		defs    []string
		targets []string
		sources []string
		claimed = make(map[string]bool, len(current))
	)

	for _, c := range s.Columns {
		def, err := d.columnDef(c)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)

		src := schema.FindColumn(current, c.Name)
		if src == nil && c.Previous != "" {
			src = schema.FindColumn(current, c.Previous)
		}
		if src == nil {
			continue
		}
		claimed[strings.ToLower(src.Name)] = true
		targets = append(targets, c.Name)
		sources = append(sources, src.Name)
	}

	for _, col := range current {
		if claimed[strings.ToLower(col.Name)] {
			continue
		}
		defs = append(defs, d.carriedDef(col))
		targets = append(targets, col.Name)
		sources = append(sources, col.Name)
	}

	for _, fk := range fks {
		defs = append(defs, d.fkConstraint(fk))
	}

	stmts := []sqltpl.Statement{
		sqltpl.Raw("DROP TABLE IF EXISTS " + d.Quote(shadow)),
		sqltpl.Raw(fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.Quote(shadow), strings.Join(defs, ",\n  "))),
	}
	if len(targets) > 0 {
		stmts = append(stmts, sqltpl.Raw(fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			d.Quote(shadow), d.quoteAll(targets), d.quoteAll(sources), d.Quote(table))))
	}
	stmts = append(stmts,
		sqltpl.Raw("DROP TABLE "+d.Quote(table)),
		d.RenameTable(shadow, table),
	)
	for _, ddl := range dependents {
		stmts = append(stmts, sqltpl.Raw(ddl))
	}
	return stmts, nil
}

// carriedDef re-declares a column the schema no longer names, as found.
func (d *SQLite) carriedDef(col schema.DatabaseColumn) string {
	def := d.Quote(col.Name)
	switch {
	case col.Declared != "":
		def += " " + col.Declared
	case col.Type != "":
		def += " " + strings.ToUpper(col.Type)
		if col.Length > 0 {
			def += fmt.Sprintf("(%d)", col.Length)
		}
	}
	if !col.Nullable {
		def += " NOT NULL"
	}
	if col.Default != nil {
		def += " DEFAULT (" + *col.Default + ")"
	}
	return def
}
