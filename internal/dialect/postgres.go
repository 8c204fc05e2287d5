package dialect

import (
	"fmt"
	"strings"

	"github.com/orql/orql-mapper/internal/compare"
	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

// Postgres emits DDL for PostgreSQL. All of it is transactional.
type Postgres struct {
	base
}

func NewPostgres() *Postgres {
	return &Postgres{base{
		name:  db.Postgres,
		quote: `"`,
		types: compare.TypeTable{
			schema.TypeString:  {Native: "VARCHAR", Aliases: []string{"varchar"}, LengthBearing: true, DefaultLength: 255},
			schema.TypeNumber:  {Native: "INTEGER", Aliases: []string{"integer", "int"}},
			schema.TypeDate:    {Native: "TIMESTAMP", Aliases: []string{"timestamp"}},
			schema.TypeBoolean: {Native: "BOOLEAN", Aliases: []string{"boolean"}},
			schema.TypeBinary:  {Native: "BYTEA", Aliases: []string{"bytea"}},
		},
	}}
}

func (d *Postgres) InlineForeignKeys() bool { return false }

func (d *Postgres) columnDef(c *schema.Column) (string, error) {
	if c.Identity {
		return d.Quote(c.Name) + " SERIAL PRIMARY KEY", nil
	}
	return d.base.columnDef(c)
}

func (d *Postgres) CreateTable(s *schema.Schema, fks []schema.ForeignKey) (sqltpl.Statement, error) {
	return d.createTable(s, fks, d.columnDef)
}

func (d *Postgres) RenameTable(from, to string) sqltpl.Statement {
	return sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(from), d.Quote(to)))
}

func (d *Postgres) AddColumn(table string, c *schema.Column) ([]sqltpl.Statement, error) {
	def, err := d.columnDef(c)
	if err != nil {
		return nil, err
	}
	return []sqltpl.Statement{sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), def))}, nil
}

// UpdateColumn renames first, then alters type and nullability in one
// statement.
func (d *Postgres) UpdateColumn(table string, c *schema.Column, oldName string) ([]sqltpl.Statement, error) {
	typ, err := d.nativeType(c)
	if err != nil {
		return nil, err
	}

	var stmts []sqltpl.Statement
	if oldName != "" && oldName != c.Name {
		stmts = append(stmts, sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			d.Quote(table), d.Quote(oldName), d.Quote(c.Name))))
	}

	col := d.Quote(c.Name)
	clauses := []string{fmt.Sprintf("ALTER COLUMN %s TYPE %s USING %s::%s", col, typ, col, typ)}
	if c.Nullable {
		clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", col))
	} else {
		clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", col))
	}
	stmts = append(stmts, sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s %s", d.Quote(table), strings.Join(clauses, ", "))))

	return stmts, nil
}

func (d *Postgres) AddForeignKey(fk schema.ForeignKey) (sqltpl.Statement, error) {
	return sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(fk.Table), d.fkConstraint(fk))), nil
}

func (d *Postgres) DropForeignKey(table, name string) (sqltpl.Statement, error) {
	return sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", d.Quote(table), d.Quote(name))), nil
}
