package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orql/orql-mapper/internal/schema"
)

var mysqlTypes = TypeTable{
	schema.TypeString:  {Native: "VARCHAR", Aliases: []string{"varchar"}, LengthBearing: true, DefaultLength: 255},
	schema.TypeNumber:  {Native: "INT", Aliases: []string{"int", "integer"}},
	schema.TypeDate:    {Native: "DATETIME", Aliases: []string{"datetime"}},
	schema.TypeBoolean: {Native: "TINYINT(1)", Aliases: []string{"tinyint", "boolean", "bool"}},
	schema.TypeBinary:  {Native: "BLOB", Aliases: []string{"blob"}},
}

func TestNormalizeType(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		length int
	}{
		{"VARCHAR(255)", "varchar", 255},
		{"character varying", "varchar", 0},
		{"int4", "integer", 0},
		{"bool", "boolean", 0},
		{"timestamp without time zone", "timestamp", 0},
		{"TINYINT(1)", "tinyint", 1},
		{"int(11) unsigned", "int unsigned", 11},
		{"DECIMAL(10,2)", "decimal", 10},
		{"  Blob ", "blob", 0},
	}

	for _, tt := range tests {
		got, length := NormalizeType(tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
		assert.Equal(t, tt.length, length, tt.raw)
	}
}

func TestShouldUpdateColumn(t *testing.T) {
	tests := []struct {
		name string
		col  schema.Column
		db   schema.DatabaseColumn
		want bool
	}{
		{
			name: "identical",
			col:  schema.Column{Name: "name", Type: schema.TypeString, Length: 50},
			db:   schema.DatabaseColumn{Name: "name", Type: "varchar", Length: 50},
			want: false,
		},
		{
			name: "length grows",
			col:  schema.Column{Name: "name", Type: schema.TypeString, Length: 100},
			db:   schema.DatabaseColumn{Name: "name", Type: "varchar", Length: 50},
			want: true,
		},
		{
			name: "default length",
			col:  schema.Column{Name: "name", Type: schema.TypeString, Nullable: true},
			db:   schema.DatabaseColumn{Name: "name", Type: "varchar", Length: 255, Nullable: true},
			want: false,
		},
		{
			name: "length read from type string",
			col:  schema.Column{Name: "name", Type: schema.TypeString, Length: 80},
			db:   schema.DatabaseColumn{Name: "name", Type: "VARCHAR(80)"},
			want: false,
		},
		{
			name: "nullability",
			col:  schema.Column{Name: "age", Type: schema.TypeNumber, Nullable: true},
			db:   schema.DatabaseColumn{Name: "age", Type: "int"},
			want: true,
		},
		{
			name: "alias counts as equal",
			col:  schema.Column{Name: "active", Type: schema.TypeBoolean},
			db:   schema.DatabaseColumn{Name: "active", Type: "tinyint", Length: 0},
			want: false,
		},
		{
			name: "integer alias",
			col:  schema.Column{Name: "age", Type: schema.TypeNumber},
			db:   schema.DatabaseColumn{Name: "age", Type: "integer"},
			want: false,
		},
		{
			name: "type outside alias set",
			col:  schema.Column{Name: "age", Type: schema.TypeNumber},
			db:   schema.DatabaseColumn{Name: "age", Type: "varchar", Length: 10},
			want: true,
		},
		{
			name: "length ignored on non length-bearing types",
			col:  schema.Column{Name: "data", Type: schema.TypeBinary, Nullable: true},
			db:   schema.DatabaseColumn{Name: "data", Type: "blob", Length: 65535, Nullable: true},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := tt.col
			assert.Equal(t, tt.want, ShouldUpdateColumn(mysqlTypes, &col, tt.db))
		})
	}
}

func TestShouldUpdateFK(t *testing.T) {
	fk := schema.ForeignKey{Name: "fk_user_roleId", Table: "user", Column: "roleId", RefTable: "role", RefColumn: "id"}

	assert.False(t, ShouldUpdateFK(fk, schema.DatabaseFK{Name: "fk_user_roleId", Column: "roleId", RefTable: "role", RefKey: "id"}))
	assert.False(t, ShouldUpdateFK(fk, schema.DatabaseFK{Name: "fk_user_roleId", Column: "ROLEID", RefTable: "Role", RefKey: "ID"}))
	assert.True(t, ShouldUpdateFK(fk, schema.DatabaseFK{Name: "fk_user_roleId", Column: "roleId", RefTable: "group", RefKey: "id"}))
	assert.True(t, ShouldUpdateFK(fk, schema.DatabaseFK{Name: "fk_user_roleId", Column: "roleId", RefTable: "role", RefKey: "uuid"}))
	assert.True(t, ShouldUpdateFK(fk, schema.DatabaseFK{Name: "fk_user_roleId", Column: "ownerId", RefTable: "role", RefKey: "id"}))
}

func TestTypeTableLength(t *testing.T) {
	assert.Equal(t, 255, mysqlTypes.Length(&schema.Column{Type: schema.TypeString}))
	assert.Equal(t, 40, mysqlTypes.Length(&schema.Column{Type: schema.TypeString, Length: 40}))
	assert.Equal(t, 0, mysqlTypes.Length(&schema.Column{Type: schema.TypeNumber, Length: 40}))
}
