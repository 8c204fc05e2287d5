// Package compare decides whether a declared column or foreign key differs
// from what the database reports. It issues no statements.
package compare

import (
	"strconv"
	"strings"

	"github.com/orql/orql-mapper/internal/schema"
)

// TypeSpec describes how one semantic type is stored by a dialect.
type TypeSpec struct {
	// Native is the type emitted in DDL, without a length.
	Native string

	// Aliases are the normalised type names that count as this type when
	// read back from the catalog.
	Aliases []string

	// LengthBearing types are compared by length as well as by name.
	LengthBearing bool

	// DefaultLength is used when the declared length is 0.
	DefaultLength int
}

// TypeTable maps every semantic type to its native storage for a dialect.
type TypeTable map[schema.ColumnType]TypeSpec

// Matches reports whether the normalised native type is an alias of t.
func (tt TypeTable) Matches(t schema.ColumnType, native string) bool {
	spec, ok := tt[t]
	if !ok {
		return false
	}
	for _, alias := range spec.Aliases {
		if alias == native {
			return true
		}
	}
	return false
}

// Length returns the effective declared length of c, or 0 when its type
// carries none.
func (tt TypeTable) Length(c *schema.Column) int {
	spec := tt[c.Type]
	if !spec.LengthBearing {
		return 0
	}
	if c.Length > 0 {
		return c.Length
	}
	return spec.DefaultLength
}

var vendorSpellings = map[string]string{
	"character varying":           "varchar",
	"character":                   "char",
	"int2":                        "smallint",
	"int4":                        "integer",
	"int8":                        "bigint",
	"serial4":                     "integer",
	"serial":                      "integer",
	"bool":                        "boolean",
	"float4":                      "real",
	"float8":                      "double precision",
	"timestamp without time zone": "timestamp",
	"timestamp with time zone":    "timestamptz",
	"time without time zone":      "time",
	"time with time zone":         "timetz",
}

// NormalizeType lower-cases a catalog type name, strips a "(n)" suffix and
// maps vendor spellings onto one canonical name. The stripped length is
// returned, 0 when absent.
func NormalizeType(raw string) (string, int) {
	t := strings.ToLower(strings.TrimSpace(raw))
	length := 0

	if open := strings.Index(t, "("); open >= 0 {
		args := t[open+1:]
		rest := ""
		if end := strings.Index(args, ")"); end >= 0 {
			rest = strings.TrimSpace(args[end+1:])
			args = args[:end]
		}
		first, _, _ := strings.Cut(args, ",")
		length, _ = strconv.Atoi(strings.TrimSpace(first))
		t = strings.TrimSpace(t[:open])
		// keep trailing qualifiers such as "unsigned"
		if rest != "" {
			t += " " + rest
		}
	}

	if canonical, ok := vendorSpellings[t]; ok {
		t = canonical
	}
	return t, length
}

// ShouldUpdateColumn reports whether dbCol differs from c: nullability, a
// native type outside c's alias set, or a length mismatch on length-bearing
// types. Column position is not compared.
func ShouldUpdateColumn(types TypeTable, c *schema.Column, dbCol schema.DatabaseColumn) bool {
	if c.Nullable != dbCol.Nullable {
		return true
	}

	native, rawLength := NormalizeType(dbCol.Type)
	if !types.Matches(c.Type, native) {
		return true
	}

	if !types[c.Type].LengthBearing {
		return false
	}
	dbLength := dbCol.Length
	if dbLength == 0 {
		dbLength = rawLength
	}
	return types.Length(c) != dbLength
}

// ShouldUpdateFK reports whether the database constraint points somewhere
// other than the declared one. Names are matched by the caller.
func ShouldUpdateFK(fk schema.ForeignKey, dbFK schema.DatabaseFK) bool {
	return !strings.EqualFold(fk.Column, dbFK.Column) ||
		!strings.EqualFold(fk.RefTable, dbFK.RefTable) ||
		!strings.EqualFold(fk.RefColumn, dbFK.RefKey)
}
