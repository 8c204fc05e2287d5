// Package schema holds the declared table model, the registry that resolves
// associations by name, and the snapshot types produced by introspection.
package schema

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"
)

// ColumnType is the semantic type of a declared column.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
	TypeBinary  ColumnType = "binary"
)

// Valid reports whether t is one of the known semantic types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeDate, TypeBoolean, TypeBinary:
		return true
	}
	return false
}

type (
	// Schema is the declared definition of one table.
	Schema struct {
		Name string

		// Table overrides the table name. Empty means Name.
		Table string

		// Previous is the table's former name. When the table is missing and a
		// table with this name exists, reconciliation renames it.
		Previous string

		Columns []*Column
	}

	// Column is a declared column.
	Column struct {
		Name     string
		Type     ColumnType
		Nullable bool

		// Length applies to length-bearing types; 0 selects the dialect default.
		Length int

		Identity bool

		// Previous is the column's former name, used to rename in place.
		Previous string

		Association *Association
	}

	// Association is a belongs-to edge from a column to another schema's key
	// column. The target is referenced by name and resolved via the Registry.
	Association struct {
		Name      string
		Target    string
		TargetKey string
	}

	// ForeignKey is an association resolved against the registry.
	ForeignKey struct {
		Name      string
		Table     string
		Column    string
		RefTable  string
		RefColumn string
	}
)

// TableName returns the name of the table backing the schema.
func (s *Schema) TableName() string {
	if s.Table != "" {
		return s.Table
	}
	return s.Name
}

// IDColumn returns the identity column, or nil.
func (s *Schema) IDColumn() *Column {
	for _, c := range s.Columns {
		if c.Identity {
			return c
		}
	}
	return nil
}

// GetColumn returns the named column, or nil.
func (s *Schema) GetColumn(name string) *Column {
	for _, c := range s.Columns {
		if equalFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// GetAssociation returns the column carrying the named association, or nil.
func (s *Schema) GetAssociation(name string) *Column {
	for _, c := range s.Columns {
		if c.Association != nil && c.Association.Name == name {
			return c
		}
	}
	return nil
}

// AssociationColumns returns the columns that carry an association, in
// declaration order.
func (s *Schema) AssociationColumns() []*Column {
	var cols []*Column
	for _, c := range s.Columns {
		if c.Association != nil {
			cols = append(cols, c)
		}
	}
	return cols
}

// MaxIdentifierLength is the longest identifier every supported engine
// keeps intact: PostgreSQL truncates past 63 bytes and MySQL rejects
// names over 64 characters.
const MaxIdentifierLength = 63

// FKName is the deterministic constraint name for a foreign key on
// table.column. Constraints are matched across runs by this name. Names
// longer than MaxIdentifierLength keep a prefix and end in a hash of the
// full name.
func FKName(table, column string) string {
	name := fmt.Sprintf("fk_%s_%s", table, column)
	if len(name) <= MaxIdentifierLength {
		return name
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	suffix := fmt.Sprintf("_%08x", h.Sum32())

	cut := MaxIdentifierLength - len(suffix)
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut] + suffix
}

func equalFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
