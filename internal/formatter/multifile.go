package formatter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/orql/orql-mapper/internal/schema"
)

const (
	formatMarkdown = "markdown"
	formatText     = "text"
)

// MultiFileFormatter writes a snapshot to one file per table plus an
// overview
type MultiFileFormatter struct {
	OutputDir    string
	OutputFormat string // "text" or "markdown"
}

// NewMultiFileFormatter creates a new multi-file formatter
func NewMultiFileFormatter(outputDir, format string) *MultiFileFormatter {
	return &MultiFileFormatter{
		OutputDir:    outputDir,
		OutputFormat: format,
	}
}

// Format writes the snapshot to multiple files
func (f *MultiFileFormatter) Format(s *schema.Snapshot) error {
	if f.OutputFormat != formatMarkdown && f.OutputFormat != formatText {
		return errors.Errorf("invalid format: %s (must be 'text' or 'markdown')", f.OutputFormat)
	}
	if err := os.MkdirAll(f.OutputDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	if err := f.writeFile("_overview", func(w io.Writer) { f.writeOverview(w, s) }); err != nil {
		return errors.Wrap(err, "failed to write overview")
	}

	for _, table := range s.Tables {
		table := table
		if err := f.writeFile(table.Name, func(w io.Writer) { f.writeTable(w, table, s) }); err != nil {
			return errors.Wrapf(err, "failed to write table file for %s", table.Name)
		}
	}
	return nil
}

func (f *MultiFileFormatter) writeFile(name string, write func(io.Writer)) error {
	file, err := os.Create(filepath.Join(f.OutputDir, name+f.getFileExtension()))
	if err != nil {
		return err
	}
	write(file)
	return file.Close()
}

func (f *MultiFileFormatter) writeOverview(w io.Writer, s *schema.Snapshot) {
	if f.OutputFormat == formatMarkdown {
		_, _ = fmt.Fprintf(w, "# Schema Overview\n\n")
		_, _ = fmt.Fprintf(w, "Each table has a corresponding file: `<table_name>%s`\n\n", f.getFileExtension())
		_, _ = fmt.Fprintf(w, "## Tables\n\n")
	} else {
		_, _ = fmt.Fprintf(w, "SCHEMA OVERVIEW\n")
		_, _ = fmt.Fprintf(w, "Each table has a file: <table_name>%s\n\n", f.getFileExtension())
	}

	// Sort tables alphabetically
	sortedTables := make([]schema.Table, len(s.Tables))
	copy(sortedTables, s.Tables)
	sort.Slice(sortedTables, func(i, j int) bool {
		return sortedTables[i].Name < sortedTables[j].Name
	})

	for _, table := range sortedTables {
		if f.OutputFormat == formatMarkdown {
			_, _ = fmt.Fprintf(w, "- **%s**", table.Name)
		} else {
			_, _ = fmt.Fprintf(w, "%s", table.Name)
		}
		if targets := referencedTables(table); len(targets) > 0 {
			_, _ = fmt.Fprintf(w, " (references: %s)", strings.Join(targets, ", "))
		}
		_, _ = fmt.Fprintln(w)
	}
}

func (f *MultiFileFormatter) writeTable(w io.Writer, table schema.Table, s *schema.Snapshot) {
	incoming := findIncomingReferences(table.Name, s)

	if f.OutputFormat == formatText {
		NewTextFormatter(w).formatTable(table)
		if len(incoming) > 0 {
			_, _ = fmt.Fprintln(w)
			_, _ = fmt.Fprintln(w, "  REFERENCED BY:")
			for _, ref := range incoming {
				_, _ = fmt.Fprintf(w, "    %s.%s → %s\n", ref.SourceTable, ref.Column, ref.RefKey)
			}
		}
		return
	}

	NewMarkdownFormatter(w).FormatTable(table)
	if len(incoming) > 0 {
		_, _ = fmt.Fprintf(w, "### Referenced by\n\n")
		for _, ref := range incoming {
			_, _ = fmt.Fprintf(w, "- %s.%s → %s\n", ref.SourceTable, ref.Column, ref.RefKey)
		}
		_, _ = fmt.Fprintln(w)
	}
}

// IncomingReference is a foreign key on another table pointing at this one
type IncomingReference struct {
	SourceTable string
	schema.DatabaseFK
}

// findIncomingReferences finds all foreign keys pointing to this table
func findIncomingReferences(tableName string, s *schema.Snapshot) []IncomingReference {
	var incoming []IncomingReference
	for _, table := range s.Tables {
		for _, fk := range table.ForeignKeys {
			if fk.RefTable == tableName {
				incoming = append(incoming, IncomingReference{SourceTable: table.Name, DatabaseFK: fk})
			}
		}
	}
	return incoming
}

func referencedTables(table schema.Table) []string {
	var targets []string
	seen := map[string]bool{}
	for _, fk := range table.ForeignKeys {
		if !seen[fk.RefTable] {
			seen[fk.RefTable] = true
			targets = append(targets, fk.RefTable)
		}
	}
	return targets
}

func (f *MultiFileFormatter) getFileExtension() string {
	if f.OutputFormat == formatMarkdown {
		return ".md"
	}
	return ".txt"
}
