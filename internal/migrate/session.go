package migrate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pkg/errors"

	"github.com/orql/orql-mapper/internal/compare"
	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/dialect"
	"github.com/orql/orql-mapper/internal/schema"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

// Session applies single-object changes over one Connection and records
// each in its Report. Introspection is repeated on every call so it sees
// earlier changes of the same transaction.
type Session struct {
	reg     *schema.Registry
	conn    db.Connection
	dialect dialect.Dialect
	in      db.Introspector
	report  *Report

	// dry is set on a recorder connection, whose catalog never reflects the
	// recorded changes. The maps below stand in for that state.
	dry     bool
	created map[string]bool
	renamed map[string]string // new name -> old name
	rebuilt map[string]bool
}

// Report returns the steps applied so far.
func (s *Session) Report() *Report { return s.report }

// Dialect returns the DDL dialect of the session's connection.
func (s *Session) Dialect() dialect.Dialect { return s.dialect }

// liveName maps a table to the name the catalog knows it by.
func (s *Session) liveName(table string) string {
	if old, ok := s.renamed[table]; ok && s.dry {
		return old
	}
	return table
}

// ExistsTable reports whether table exists.
func (s *Session) ExistsTable(ctx context.Context, table string) (bool, error) {
	if s.dry && s.created[table] {
		return true, nil
	}
	ok, err := s.in.TableExists(ctx, s.liveName(table))
	if err != nil {
		return false, errors.Wrapf(err, "failed to check table %s", table)
	}
	return ok, nil
}

// QueryAllColumn returns the table's columns. A missing table has none.
func (s *Session) QueryAllColumn(ctx context.Context, table string) ([]schema.DatabaseColumn, error) {
	cols, err := s.in.Columns(ctx, s.liveName(table))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read columns of %s", table)
	}
	return cols, nil
}

// QueryColumn returns the named column, or nil when it does not exist.
func (s *Session) QueryColumn(ctx context.Context, table, column string) (*schema.DatabaseColumn, error) {
	cols, err := s.QueryAllColumn(ctx, table)
	if err != nil {
		return nil, err
	}
	return schema.FindColumn(cols, column), nil
}

// QueryAllFK returns the table's foreign keys.
func (s *Session) QueryAllFK(ctx context.Context, table string) ([]schema.DatabaseFK, error) {
	live := s.liveName(table)
	fks, err := s.in.ForeignKeys(ctx, live)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read foreign keys of %s", table)
	}

	// Inline foreign keys are named after the table they are read from. A
	// planned rename has not happened yet, so name them as the rename will.
	if live != table && s.dialect.InlineForeignKeys() {
		for i := range fks {
			if strings.EqualFold(fks[i].Name, schema.FKName(live, fks[i].Column)) {
				fks[i].Name = schema.FKName(table, fks[i].Column)
			}
		}
	}
	return fks, nil
}

// QueryFK returns the named constraint, or nil when it does not exist.
func (s *Session) QueryFK(ctx context.Context, table, name string) (*schema.DatabaseFK, error) {
	fks, err := s.QueryAllFK(ctx, table)
	if err != nil {
		return nil, err
	}
	return schema.FindFK(fks, name), nil
}

// ShouldUpdateColumn compares c with dbCol using the dialect's type table.
func (s *Session) ShouldUpdateColumn(c *schema.Column, dbCol schema.DatabaseColumn) bool {
	return compare.ShouldUpdateColumn(s.dialect.Types(), c, dbCol)
}

// ShouldUpdateFK compares a declared foreign key with a database one.
func (s *Session) ShouldUpdateFK(fk schema.ForeignKey, dbFK schema.DatabaseFK) bool {
	return compare.ShouldUpdateFK(fk, dbFK)
}

// CreateTable creates the table for sc. Dialects that cannot add foreign
// keys later get them inline.
func (s *Session) CreateTable(ctx context.Context, sc *schema.Schema) error {
	var fks []schema.ForeignKey
	if s.dialect.InlineForeignKeys() {
		var err error
		if fks, err = s.reg.ForeignKeys(sc); err != nil {
			return err
		}
	}

	stmt, err := s.dialect.CreateTable(sc, fks)
	if err != nil {
		return err
	}
	if err := s.apply(ctx, Step{Op: OpCreateTable, Table: sc.TableName()}, stmt); err != nil {
		return err
	}
	s.created[sc.TableName()] = true
	return nil
}

// RenameTable renames a table.
func (s *Session) RenameTable(ctx context.Context, from, to string) error {
	if err := s.apply(ctx, Step{Op: OpRenameTable, Table: to}, s.dialect.RenameTable(from, to)); err != nil {
		return err
	}
	s.renamed[to] = from
	return nil
}

// DropTable drops a table if it exists.
func (s *Session) DropTable(ctx context.Context, table string) error {
	return s.apply(ctx, Step{Op: OpDropTable, Table: table}, s.dialect.DropTable(table))
}

// AddColumn adds column c to sc's table.
func (s *Session) AddColumn(ctx context.Context, sc *schema.Schema, c *schema.Column) error {
	step := Step{Op: OpAddColumn, Table: sc.TableName(), Column: c.Name}
	if s.skip(step.Table) {
		return nil
	}

	stmts, err := s.dialect.AddColumn(step.Table, c)
	if errors.Is(err, dialect.ErrRebuildRequired) {
		return s.rebuild(ctx, step, sc)
	}
	if err != nil {
		return err
	}
	return s.apply(ctx, step, stmts...)
}

// UpdateColumn alters the column currently named oldName to match c,
// renaming it when the names differ.
func (s *Session) UpdateColumn(ctx context.Context, sc *schema.Schema, c *schema.Column, oldName string) error {
	step := Step{Op: OpUpdateColumn, Table: sc.TableName(), Column: c.Name}
	if s.skip(step.Table) {
		return nil
	}

	stmts, err := s.dialect.UpdateColumn(step.Table, c, oldName)
	if errors.Is(err, dialect.ErrRebuildRequired) {
		return s.rebuild(ctx, step, withPrevious(sc, c, oldName))
	}
	if err != nil {
		return err
	}
	return s.apply(ctx, step, stmts...)
}

// AddFK adds the foreign key declared by column c of sc.
func (s *Session) AddFK(ctx context.Context, sc *schema.Schema, c *schema.Column) error {
	fk, err := s.reg.ForeignKey(sc, c)
	if err != nil {
		return err
	}
	step := Step{Op: OpAddFK, Table: fk.Table, Column: fk.Column, Constraint: fk.Name}
	if s.skip(step.Table) {
		return nil
	}

	stmt, err := s.dialect.AddForeignKey(fk)
	if errors.Is(err, dialect.ErrRebuildRequired) {
		return s.rebuild(ctx, step, sc)
	}
	if err != nil {
		return err
	}
	return s.apply(ctx, step, stmt)
}

// UpdateFK replaces the foreign key declared by column c of sc.
func (s *Session) UpdateFK(ctx context.Context, sc *schema.Schema, c *schema.Column) error {
	fk, err := s.reg.ForeignKey(sc, c)
	if err != nil {
		return err
	}
	step := Step{Op: OpUpdateFK, Table: fk.Table, Column: fk.Column, Constraint: fk.Name}
	if s.skip(step.Table) {
		return nil
	}

	drop, dropErr := s.dialect.DropForeignKey(fk.Table, fk.Name)
	add, addErr := s.dialect.AddForeignKey(fk)
	if errors.Is(dropErr, dialect.ErrRebuildRequired) || errors.Is(addErr, dialect.ErrRebuildRequired) {
		return s.rebuild(ctx, step, sc)
	}
	if dropErr != nil {
		return dropErr
	}
	if addErr != nil {
		return addErr
	}
	return s.apply(ctx, step, drop, add)
}

// DropFK drops the named constraint from table.
func (s *Session) DropFK(ctx context.Context, table, name string) error {
	step := Step{Op: OpDropFK, Table: table, Constraint: name}
	if s.skip(table) {
		return nil
	}

	stmt, err := s.dialect.DropForeignKey(table, name)
	if errors.Is(err, dialect.ErrRebuildRequired) {
		sc := s.schemaForTable(table)
		if sc == nil {
			return errors.Errorf("cannot drop %s: table %s is not declared and must be rebuilt", name, table)
		}
		return s.rebuild(ctx, step, sc)
	}
	if err != nil {
		return err
	}
	return s.apply(ctx, step, stmt)
}

// skip reports whether a recorded rebuild already covers every change to
// table. Only plans need this: after a real rebuild nothing differs.
func (s *Session) skip(table string) bool {
	return s.dry && s.rebuilt[table]
}

// rebuild recreates sc's table in its declared shape with all declared
// foreign keys, recording the rebuild under step.
func (s *Session) rebuild(ctx context.Context, step Step, sc *schema.Schema) error {
	rb, ok := s.dialect.(dialect.Rebuilder)
	if !ok {
		return errors.Errorf("%s: %s requires a table rebuild, which the dialect does not support", s.dialect.Name(), step.Op)
	}

	current, err := s.QueryAllColumn(ctx, sc.TableName())
	if err != nil {
		return err
	}
	fks, err := s.reg.ForeignKeys(sc)
	if err != nil {
		return err
	}

	var dependents []string
	if dl, ok := s.in.(db.DependentLister); ok {
		if dependents, err = dl.Dependents(ctx, s.liveName(sc.TableName())); err != nil {
			return errors.Wrapf(err, "failed to read indexes and triggers of %s", sc.TableName())
		}
	}

	stmts, err := rb.RebuildTable(sc, fks, current, dependents)
	if err != nil {
		return err
	}
	if err := s.apply(ctx, step, stmts...); err != nil {
		return err
	}
	s.rebuilt[sc.TableName()] = true
	return nil
}

// apply executes stmts in order and records them as one step.
func (s *Session) apply(ctx context.Context, step Step, stmts ...sqltpl.Statement) error {
	texts := make([]string, 0, len(stmts))
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return &DDLError{
				Op:         step.Op,
				Table:      step.Table,
				Column:     step.Column,
				Constraint: step.Constraint,
				Statement:  stmt.Text,
				Err:        err,
			}
		}
		texts = append(texts, stmt.Text)
	}
	step.SQL = strings.Join(texts, ";\n")
	s.report.Steps = append(s.report.Steps, step)

	if s.dry {
		slog.Debug("planned schema change", "op", step.Op, "target", step.Target())
	} else {
		slog.Info("applied schema change", "op", step.Op, "target", step.Target())
	}
	return nil
}

func (s *Session) schemaForTable(table string) *schema.Schema {
	for _, sc := range s.reg.Schemas() {
		if strings.EqualFold(sc.TableName(), table) {
			return sc
		}
	}
	return nil
}

// withPrevious returns a copy of sc in which column c is marked as renamed
// from oldName.
func withPrevious(sc *schema.Schema, c *schema.Column, oldName string) *schema.Schema {
	if oldName == "" || oldName == c.Name || oldName == c.Previous {
		return sc
	}

	cp := *sc
	cp.Columns = make([]*schema.Column, len(sc.Columns))
	for i, col := range sc.Columns {
		if col == c {
			renamed := *col
			renamed.Previous = oldName
			col = &renamed
		}
		cp.Columns[i] = col
	}
	return &cp
}
