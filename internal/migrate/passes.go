package migrate

import (
	"context"
	"strings"

	"github.com/orql/orql-mapper/internal/schema"
)

func (s *Session) create(ctx context.Context) error {
	schemas := s.reg.Schemas()

	for _, sc := range schemas {
		exists, err := s.ExistsTable(ctx, sc.TableName())
		if err != nil {
			return err
		}
		if !exists {
			if err := s.CreateTable(ctx, sc); err != nil {
				return err
			}
			continue
		}

		for _, c := range sc.Columns {
			dbCol, err := s.QueryColumn(ctx, sc.TableName(), c.Name)
			if err != nil {
				return err
			}
			if dbCol == nil {
				if err := s.AddColumn(ctx, sc, c); err != nil {
					return err
				}
			}
		}
	}

	// Foreign keys last, so references to tables declared later resolve.
	for _, sc := range schemas {
		if s.hasInlineFKs(sc) {
			continue
		}
		for _, c := range sc.AssociationColumns() {
			if _, err := s.ensureFK(ctx, sc, c, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Session) update(ctx context.Context) error {
	schemas := s.reg.Schemas()

	// Tables
	for _, sc := range schemas {
		table := sc.TableName()
		exists, err := s.ExistsTable(ctx, table)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		if sc.Previous != "" {
			prev, err := s.ExistsTable(ctx, sc.Previous)
			if err != nil {
				return err
			}
			if prev {
				if err := s.RenameTable(ctx, sc.Previous, table); err != nil {
					return err
				}
				continue
			}
		}
		if err := s.CreateTable(ctx, sc); err != nil {
			return err
		}
	}

	// Columns
	for _, sc := range schemas {
		if s.created[sc.TableName()] {
			continue
		}
		if err := s.updateColumns(ctx, sc); err != nil {
			return err
		}
	}

	// Foreign keys
	for _, sc := range schemas {
		if s.hasInlineFKs(sc) {
			continue
		}
		if err := s.updateFKs(ctx, sc); err != nil {
			return err
		}
	}
	return nil
}

// updateColumns adds missing columns first, then renames and alters.
// Identity columns are never altered.
func (s *Session) updateColumns(ctx context.Context, sc *schema.Schema) error {
	table := sc.TableName()

	for _, c := range sc.Columns {
		dbCol, err := s.QueryColumn(ctx, table, c.Name)
		if err != nil {
			return err
		}
		if dbCol != nil {
			continue
		}
		if c.Previous != "" {
			prev, err := s.QueryColumn(ctx, table, c.Previous)
			if err != nil {
				return err
			}
			if prev != nil {
				continue
			}
		}
		if err := s.AddColumn(ctx, sc, c); err != nil {
			return err
		}
	}

	for _, c := range sc.Columns {
		if c.Identity {
			continue
		}
		dbCol, err := s.QueryColumn(ctx, table, c.Name)
		if err != nil {
			return err
		}

		if dbCol == nil {
			if c.Previous == "" {
				continue
			}
			prev, err := s.QueryColumn(ctx, table, c.Previous)
			if err != nil {
				return err
			}
			if prev != nil {
				if err := s.UpdateColumn(ctx, sc, c, prev.Name); err != nil {
					return err
				}
			}
			continue
		}

		if s.ShouldUpdateColumn(c, *dbCol) {
			if err := s.UpdateColumn(ctx, sc, c, dbCol.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// updateFKs adds or replaces every declared foreign key of sc, then drops
// constraints the registry no longer declares.
func (s *Session) updateFKs(ctx context.Context, sc *schema.Schema) error {
	declared := make(map[string]bool)
	for _, c := range sc.AssociationColumns() {
		name, err := s.ensureFK(ctx, sc, c, true)
		if err != nil {
			return err
		}
		declared[strings.ToLower(name)] = true
	}

	dbFKs, err := s.QueryAllFK(ctx, sc.TableName())
	if err != nil {
		return err
	}
	for _, dbFK := range dbFKs {
		if declared[strings.ToLower(dbFK.Name)] {
			continue
		}
		if err := s.DropFK(ctx, sc.TableName(), dbFK.Name); err != nil {
			return err
		}
	}
	return nil
}

// ensureFK adds the foreign key of column c when missing and, if replace is
// set, replaces it when it points elsewhere. It returns the constraint name.
func (s *Session) ensureFK(ctx context.Context, sc *schema.Schema, c *schema.Column, replace bool) (string, error) {
	fk, err := s.reg.ForeignKey(sc, c)
	if err != nil {
		return "", err
	}

	dbFK, err := s.QueryFK(ctx, fk.Table, fk.Name)
	if err != nil {
		return "", err
	}
	switch {
	case dbFK == nil:
		err = s.AddFK(ctx, sc, c)
	case replace && s.ShouldUpdateFK(fk, *dbFK):
		err = s.UpdateFK(ctx, sc, c)
	}
	return fk.Name, err
}

// hasInlineFKs reports whether sc's table was created in this run with its
// foreign keys declared inline.
func (s *Session) hasInlineFKs(sc *schema.Schema) bool {
	return s.dialect.InlineForeignKeys() && s.created[sc.TableName()]
}

func (s *Session) drop(ctx context.Context) error {
	ordered, cyclic := dropOrder(s.reg)

	// Break reference cycles. SQLite migration sessions do not enforce
	// foreign keys, so its tables drop in any order.
	if !s.dialect.InlineForeignKeys() {
		for _, sc := range cyclic {
			exists, err := s.ExistsTable(ctx, sc.TableName())
			if err != nil {
				return err
			}
			if !exists {
				continue
			}
			fks, err := s.QueryAllFK(ctx, sc.TableName())
			if err != nil {
				return err
			}
			for _, fk := range fks {
				if err := s.DropFK(ctx, sc.TableName(), fk.Name); err != nil {
					return err
				}
			}
		}
	}

	for _, sc := range append(ordered, cyclic...) {
		exists, err := s.ExistsTable(ctx, sc.TableName())
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := s.DropTable(ctx, sc.TableName()); err != nil {
			return err
		}
	}
	return nil
}

// dropOrder sorts the schemas so every table comes before the tables it
// references. Schemas left over because they sit on (or behind) a reference
// cycle are returned separately in declaration order.
func dropOrder(reg *schema.Registry) (ordered, cyclic []*schema.Schema) {
	schemas := reg.Schemas()

	referrers := make(map[string]int, len(schemas))
	for _, sc := range schemas {
		for _, target := range reg.References(sc) {
			referrers[target]++
		}
	}

	done := make(map[string]bool, len(schemas))
	for progress := true; progress; {
		progress = false
		for _, sc := range schemas {
			if done[sc.Name] || referrers[sc.Name] > 0 {
				continue
			}
			done[sc.Name] = true
			ordered = append(ordered, sc)
			for _, target := range reg.References(sc) {
				referrers[target]--
			}
			progress = true
		}
	}

	for _, sc := range schemas {
		if !done[sc.Name] {
			cyclic = append(cyclic, sc)
		}
	}
	return ordered, cyclic
}
