package schema

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError reports a declared schema set that cannot be reconciled.
// It is raised before any statement reaches the database.
type ConfigurationError struct {
	Schema string
	Column string
	Reason string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("schema %s: column %s: %s", e.Schema, e.Column, e.Reason)
	case e.Schema != "":
		return fmt.Sprintf("schema %s: %s", e.Schema, e.Reason)
	default:
		return e.Reason
	}
}

// Registry is the process-wide set of declared schemas. It is built once and
// read concurrently afterwards; nothing mutates it during reconciliation.
type Registry struct {
	order  []*Schema
	byName map[string]*Schema
}

// NewRegistry returns a registry holding the given schemas in order.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		if err := r.Add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add appends a schema. Associations are not resolved until Validate, so
// mutually referencing schemas may be added in any order.
func (r *Registry) Add(s *Schema) error {
	if s == nil || s.Name == "" {
		return &ConfigurationError{Reason: "schema name is required"}
	}
	if _, ok := r.byName[s.Name]; ok {
		return &ConfigurationError{Schema: s.Name, Reason: "declared more than once"}
	}
	if r.byName == nil {
		r.byName = make(map[string]*Schema)
	}
	r.byName[s.Name] = s
	r.order = append(r.order, s)
	return nil
}

// GetSchema looks a schema up by name.
func (r *Registry) GetSchema(name string) (*Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// Schemas returns the schemas in declaration order.
func (r *Registry) Schemas() []*Schema {
	out := make([]*Schema, len(r.order))
	copy(out, r.order)
	return out
}

// Validate checks every invariant that must hold before DDL is issued.
func (r *Registry) Validate() error {
	tables := make(map[string]string, len(r.order))
	for _, s := range r.order {
		if prev, ok := tables[s.TableName()]; ok {
			return &ConfigurationError{Schema: s.Name, Reason: fmt.Sprintf("table %s is also declared by schema %s", s.TableName(), prev)}
		}
		tables[s.TableName()] = s.Name

		if err := validateColumns(s); err != nil {
			return err
		}
	}

	for _, s := range r.order {
		for _, c := range s.AssociationColumns() {
			if _, err := r.ForeignKey(s, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateColumns(s *Schema) error {
	if len(s.Columns) == 0 {
		return &ConfigurationError{Schema: s.Name, Reason: "no columns declared"}
	}

	seen := make(map[string]bool, len(s.Columns))
	identities := 0
	for _, c := range s.Columns {
		if c.Name == "" {
			return &ConfigurationError{Schema: s.Name, Reason: "column name is required"}
		}
		if seen[c.Name] {
			return &ConfigurationError{Schema: s.Name, Column: c.Name, Reason: "declared more than once"}
		}
		seen[c.Name] = true

		if !c.Type.Valid() {
			return &ConfigurationError{Schema: s.Name, Column: c.Name, Reason: fmt.Sprintf("unknown type %q", c.Type)}
		}
		if c.Length < 0 {
			return &ConfigurationError{Schema: s.Name, Column: c.Name, Reason: "length must not be negative"}
		}
		if c.Identity {
			identities++
			if c.Type != TypeNumber {
				return &ConfigurationError{Schema: s.Name, Column: c.Name, Reason: "identity column must be a number"}
			}
			if c.Association != nil {
				return &ConfigurationError{Schema: s.Name, Column: c.Name, Reason: "identity column cannot carry an association"}
			}
		}
	}
	if identities > 1 {
		return &ConfigurationError{Schema: s.Name, Reason: "more than one identity column"}
	}
	return nil
}

// ForeignKey resolves the association on column c of schema s through the
// registry.
func (r *Registry) ForeignKey(s *Schema, c *Column) (ForeignKey, error) {
	if c.Association == nil {
		return ForeignKey{}, errors.Errorf("column %s.%s has no association", s.Name, c.Name)
	}

	target, ok := r.GetSchema(c.Association.Target)
	if !ok {
		return ForeignKey{}, &ConfigurationError{
			Schema: s.Name,
			Column: c.Name,
			Reason: fmt.Sprintf("association %s targets unknown schema %q", c.Association.Name, c.Association.Target),
		}
	}

	key := c.Association.TargetKey
	if key == "" {
		id := target.IDColumn()
		if id == nil {
			return ForeignKey{}, &ConfigurationError{
				Schema: s.Name,
				Column: c.Name,
				Reason: fmt.Sprintf("association %s names no key and schema %s has no identity column", c.Association.Name, target.Name),
			}
		}
		key = id.Name
	}

	refCol := target.GetColumn(key)
	if refCol == nil {
		return ForeignKey{}, &ConfigurationError{
			Schema: s.Name,
			Column: c.Name,
			Reason: fmt.Sprintf("association %s targets unknown column %s.%s", c.Association.Name, target.Name, key),
		}
	}

	return ForeignKey{
		Name:      FKName(s.TableName(), c.Name),
		Table:     s.TableName(),
		Column:    c.Name,
		RefTable:  target.TableName(),
		RefColumn: refCol.Name,
	}, nil
}

// ForeignKeys resolves every association declared on s.
func (r *Registry) ForeignKeys(s *Schema) ([]ForeignKey, error) {
	var fks []ForeignKey
	for _, c := range s.AssociationColumns() {
		fk, err := r.ForeignKey(s, c)
		if err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, nil
}

// References returns the names of the schemas that s points at, excluding
// self references.
func (r *Registry) References(s *Schema) []string {
	var names []string
	seen := make(map[string]bool)
	for _, c := range s.AssociationColumns() {
		t := c.Association.Target
		if t == s.Name || seen[t] {
			continue
		}
		if _, ok := r.byName[t]; !ok {
			continue
		}
		seen[t] = true
		names = append(names, t)
	}
	return names
}
