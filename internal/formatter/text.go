package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/orql/orql-mapper/internal/migrate"
	"github.com/orql/orql-mapper/internal/schema"
)

// TextFormatter formats snapshots and reports as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the snapshot in compact text format
func (f *TextFormatter) Format(s *schema.Snapshot) error {
	for i, table := range s.Tables {
		if i > 0 {
			_, _ = fmt.Fprintln(f.writer) // Blank line between tables
		}
		f.formatTable(table)
	}
	return nil
}

func (f *TextFormatter) formatTable(table schema.Table) {
	// Table header with primary key
	pkStr := ""
	if len(table.PrimaryKey) > 0 {
		pkStr = fmt.Sprintf(" (PK: %s)", strings.Join(table.PrimaryKey, ", "))
	}
	_, _ = fmt.Fprintf(f.writer, "TABLE %s%s\n", table.Name, pkStr)

	for _, col := range table.Columns {
		_, _ = fmt.Fprintf(f.writer, "  %s\n", formatColumn(col))
	}

	if len(table.ForeignKeys) > 0 {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "  FOREIGN KEYS:")
		for _, fk := range table.ForeignKeys {
			_, _ = fmt.Fprintf(f.writer, "    %s: %s → %s.%s\n", fk.Name, fk.Column, fk.RefTable, fk.RefKey)
		}
	}
}

func formatColumn(col schema.DatabaseColumn) string {
	parts := []string{col.Name + ":", columnType(col)}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	return strings.Join(parts, " ")
}

func columnType(col schema.DatabaseColumn) string {
	if col.Length > 0 {
		return fmt.Sprintf("%s(%d)", col.Type, col.Length)
	}
	return col.Type
}

// FormatReport writes one line per step followed by its statements
func (f *TextFormatter) FormatReport(r *migrate.Report) error {
	if r.Empty() {
		_, _ = fmt.Fprintln(f.writer, "Schema is up to date.")
		return nil
	}

	for i, step := range r.Steps {
		if i > 0 {
			_, _ = fmt.Fprintln(f.writer)
		}
		_, _ = fmt.Fprintf(f.writer, "%s %s\n", strings.ToUpper(string(step.Op)), step.Target())
		for _, stmt := range step.Statements() {
			_, _ = fmt.Fprintf(f.writer, "  %s;\n", indent(stmt, "  "))
		}
	}
	return nil
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
