package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/orql/orql-mapper/internal/migrate"
	"github.com/orql/orql-mapper/internal/schema"
)

// MarkdownFormatter formats snapshots and reports as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the snapshot in markdown format
func (f *MarkdownFormatter) Format(s *schema.Snapshot) error {
	_, _ = fmt.Fprintln(f.writer, "# Database Schema")
	_, _ = fmt.Fprintln(f.writer)

	for _, table := range s.Tables {
		f.FormatTable(table)
	}
	return nil
}

// FormatTable formats a single table (exported for use by multifile formatter)
func (f *MarkdownFormatter) FormatTable(table schema.Table) {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", table.Name)

	_, _ = fmt.Fprintln(f.writer, "### Columns")
	_, _ = fmt.Fprintln(f.writer)
	for _, col := range table.Columns {
		constraintStr := formatConstraints(col)
		if constraintStr != "" {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s, %s\n", col.Name, columnType(col), constraintStr)
		} else {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", col.Name, columnType(col))
		}
	}
	_, _ = fmt.Fprintln(f.writer)

	if len(table.ForeignKeys) > 0 {
		_, _ = fmt.Fprintln(f.writer, "### References")
		_, _ = fmt.Fprintln(f.writer)
		for _, fk := range table.ForeignKeys {
			_, _ = fmt.Fprintf(f.writer, "- %s → %s.%s (`%s`)\n", fk.Column, fk.RefTable, fk.RefKey, fk.Name)
		}
		_, _ = fmt.Fprintln(f.writer)
	}
}

func formatConstraints(col schema.DatabaseColumn) string {
	var constraints []string
	if col.IsPK {
		constraints = append(constraints, "PK")
	}
	if !col.Nullable {
		constraints = append(constraints, "NOT NULL")
	}
	return strings.Join(constraints, ", ")
}

// FormatReport writes the report as a table of steps followed by the SQL
func (f *MarkdownFormatter) FormatReport(r *migrate.Report) error {
	title := "Schema plan"
	if r != nil && r.Mode != "" {
		title = fmt.Sprintf("Schema plan (%s)", r.Mode)
	}
	_, _ = fmt.Fprintf(f.writer, "# %s\n\n", title)

	if r.Empty() {
		_, _ = fmt.Fprintln(f.writer, "Schema is up to date.")
		return nil
	}

	_, _ = fmt.Fprintln(f.writer, "| # | Operation | Target |")
	_, _ = fmt.Fprintln(f.writer, "|---|---|---|")
	for i, step := range r.Steps {
		_, _ = fmt.Fprintf(f.writer, "| %d | %s | `%s` |\n", i+1, step.Op, step.Target())
	}
	_, _ = fmt.Fprintln(f.writer)

	_, _ = fmt.Fprintln(f.writer, "```sql")
	for _, step := range r.Steps {
		for _, stmt := range step.Statements() {
			_, _ = fmt.Fprintf(f.writer, "%s;\n", stmt)
		}
	}
	_, _ = fmt.Fprintln(f.writer, "```")
	return nil
}
