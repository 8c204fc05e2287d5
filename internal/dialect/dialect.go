// Package dialect synthesises DDL for each supported database engine and
// holds the type-equivalence table the comparators read.
package dialect

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/orql/orql-mapper/internal/compare"
	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

// ErrRebuildRequired is returned when an engine cannot apply a change with
// ALTER TABLE and the table has to be recreated through a Rebuilder.
var ErrRebuildRequired = errors.New("table rebuild required")

// Dialect turns schema changes into statements for one engine. Methods only
// build statements; they never touch a connection.
type Dialect interface {
	Name() string

	// Quote returns ident as a quoted identifier.
	Quote(ident string) string

	Types() compare.TypeTable

	// InlineForeignKeys reports whether foreign keys must be declared inside
	// CREATE TABLE because the engine cannot add them afterwards.
	InlineForeignKeys() bool

	// CreateTable creates the table with every declared column. fks are
	// emitted as table constraints.
	CreateTable(s *schema.Schema, fks []schema.ForeignKey) (sqltpl.Statement, error)

	RenameTable(from, to string) sqltpl.Statement

	// DropTable drops the table if it exists.
	DropTable(table string) sqltpl.Statement

	AddColumn(table string, c *schema.Column) ([]sqltpl.Statement, error)

	// UpdateColumn brings an existing column, currently named oldName, in
	// line with c.
	UpdateColumn(table string, c *schema.Column, oldName string) ([]sqltpl.Statement, error)

	AddForeignKey(fk schema.ForeignKey) (sqltpl.Statement, error)
	DropForeignKey(table, name string) (sqltpl.Statement, error)
}

// Rebuilder is implemented by dialects that recreate tables instead of
// altering them.
type Rebuilder interface {
	// RebuildTable recreates the table from s and fks, copying every row.
	// current lists the table's columns as introspected; columns that s no
	// longer declares are carried over unchanged.
	// dependents are the CREATE statements of the table's indexes and
	// triggers; they are replayed once the rebuilt table is in place.
	RebuildTable(s *schema.Schema, fks []schema.ForeignKey, current []schema.DatabaseColumn, dependents []string) ([]sqltpl.Statement, error)
}

// For returns the dialect registered under name.
func For(name string) (Dialect, error) {
	switch name {
	case db.MySQL:
		return NewMySQL(), nil
	case db.Postgres:
		return NewPostgres(), nil
	case db.SQLite:
		return NewSQLite(), nil
	default:
		return nil, errors.Errorf("unsupported dialect %q", name)
	}
}

// base carries what every dialect shares: identifier quoting and the type
// table.
type base struct {
	name  string
	quote string
	types compare.TypeTable
}

func (b base) Name() string { return b.name }

func (b base) Types() compare.TypeTable { return b.types }

func (b base) Quote(ident string) string {
	return b.quote + strings.ReplaceAll(ident, b.quote, b.quote+b.quote) + b.quote
}

func (b base) quoteAll(idents []string) string {
	quoted := make([]string, len(idents))
	for i, ident := range idents {
		quoted[i] = b.Quote(ident)
	}
	return strings.Join(quoted, ", ")
}

// nativeType returns the DDL type for c, with its length where the type
// carries one.
func (b base) nativeType(c *schema.Column) (string, error) {
	spec, ok := b.types[c.Type]
	if !ok {
		return "", errors.Errorf("%s: no native type for %q", b.name, c.Type)
	}
	if spec.LengthBearing {
		return fmt.Sprintf("%s(%d)", spec.Native, b.types.Length(c)), nil
	}
	return spec.Native, nil
}

// columnDef renders "name TYPE [NOT NULL]" for a non-identity column.
func (b base) columnDef(c *schema.Column) (string, error) {
	typ, err := b.nativeType(c)
	if err != nil {
		return "", err
	}
	def := b.Quote(c.Name) + " " + typ
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def, nil
}

func (b base) fkConstraint(fk schema.ForeignKey) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		b.Quote(fk.Name), b.Quote(fk.Column), b.Quote(fk.RefTable), b.Quote(fk.RefColumn))
}

// createTable assembles CREATE TABLE from column definitions produced by def.
func (b base) createTable(s *schema.Schema, fks []schema.ForeignKey, def func(*schema.Column) (string, error)) (sqltpl.Statement, error) {
	parts := make([]string, 0, len(s.Columns)+len(fks))
	for _, c := range s.Columns {
		d, err := def(c)
		if err != nil {
			return sqltpl.Statement{}, err
		}
		parts = append(parts, d)
	}
	for _, fk := range fks {
		parts = append(parts, b.fkConstraint(fk))
	}

	return sqltpl.Raw(fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", b.Quote(s.TableName()), strings.Join(parts, ",\n  "))), nil
}

func (b base) DropTable(table string) sqltpl.Statement {
	return sqltpl.Raw("DROP TABLE IF EXISTS " + b.Quote(table))
}
