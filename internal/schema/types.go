package schema

// Snapshot is the introspected structure of a set of tables
type Snapshot struct {
	Tables []Table
}

// Table is an introspected database table
type Table struct {
	Name        string
	Columns     []DatabaseColumn
	ForeignKeys []DatabaseFK
	PrimaryKey  []string
}

// DatabaseColumn is a column as reported by the database catalog
type DatabaseColumn struct {
	Name     string
	Nullable bool
	Type     string // lower-case base type, e.g. "varchar"
	Length   int    // 0 when the type carries no length
	IsPK     bool

	// Declared is the type as written in the DDL, e.g. "DECIMAL(10,2)", and
	// Default the default expression. Only SQLite reports them; a rebuild
	// needs both to re-declare a column it does not manage.
	Declared string
	Default  *string
}

// DatabaseFK is a foreign key constraint as reported by the database catalog
type DatabaseFK struct {
	Name     string
	Column   string
	RefTable string
	RefKey   string
}

// FindColumn returns the column with the given name, or nil
func (t *Table) FindColumn(name string) *DatabaseColumn {
	return FindColumn(t.Columns, name)
}

// FindColumn looks a column up by case-insensitive name
func FindColumn(columns []DatabaseColumn, name string) *DatabaseColumn {
	for i := range columns {
		if equalFold(columns[i].Name, name) {
			return &columns[i]
		}
	}
	return nil
}

// FindFK looks a foreign key up by constraint name
func FindFK(fks []DatabaseFK, name string) *DatabaseFK {
	for i := range fks {
		if equalFold(fks[i].Name, name) {
			return &fks[i]
		}
	}
	return nil
}
