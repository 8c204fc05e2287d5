package dialect

import (
	"fmt"

	"github.com/orql/orql-mapper/internal/compare"
	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

// MySQL emits DDL for MySQL 5.7 and later. MySQL commits each DDL statement
// implicitly, so a failed run cannot undo statements already applied.
type MySQL struct {
	base
}

func NewMySQL() *MySQL {
	return &MySQL{base{
		name:  db.MySQL,
		quote: "`",
		types: compare.TypeTable{
			schema.TypeString:  {Native: "VARCHAR", Aliases: []string{"varchar"}, LengthBearing: true, DefaultLength: 255},
			schema.TypeNumber:  {Native: "INT", Aliases: []string{"int", "integer"}},
			schema.TypeDate:    {Native: "DATETIME", Aliases: []string{"datetime"}},
			schema.TypeBoolean: {Native: "TINYINT(1)", Aliases: []string{"tinyint", "boolean", "bool"}},
			schema.TypeBinary:  {Native: "BLOB", Aliases: []string{"blob"}},
		},
	}}
}

func (d *MySQL) InlineForeignKeys() bool { return false }

func (d *MySQL) columnDef(c *schema.Column) (string, error) {
	if c.Identity {
		return d.Quote(c.Name) + " INT NOT NULL AUTO_INCREMENT PRIMARY KEY", nil
	}
	return d.base.columnDef(c)
}

func (d *MySQL) CreateTable(s *schema.Schema, fks []schema.ForeignKey) (sqltpl.Statement, error) {
	return d.createTable(s, fks, d.columnDef)
}

func (d *MySQL) RenameTable(from, to string) sqltpl.Statement {
	return sqltpl.Raw(fmt.Sprintf("RENAME TABLE %s TO %s", d.Quote(from), d.Quote(to)))
}

func (d *MySQL) AddColumn(table string, c *schema.Column) ([]sqltpl.Statement, error) {
	def, err := d.columnDef(c)
	if err != nil {
		return nil, err
	}
	return []sqltpl.Statement{sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.Quote(table), def))}, nil
}

func (d *MySQL) UpdateColumn(table string, c *schema.Column, oldName string) ([]sqltpl.Statement, error) {
	def, err := d.columnDef(c)
	if err != nil {
		return nil, err
	}
	if oldName == "" || oldName == c.Name {
		return []sqltpl.Statement{sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.Quote(table), def))}, nil
	}
	return []sqltpl.Statement{sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s CHANGE COLUMN %s %s", d.Quote(table), d.Quote(oldName), def))}, nil
}

func (d *MySQL) AddForeignKey(fk schema.ForeignKey) (sqltpl.Statement, error) {
	return sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s ADD %s", d.Quote(fk.Table), d.fkConstraint(fk))), nil
}

func (d *MySQL) DropForeignKey(table, name string) (sqltpl.Statement, error) {
	return sqltpl.Raw(fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", d.Quote(table), d.Quote(name))), nil
}
