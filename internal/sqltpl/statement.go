// Package sqltpl implements named-parameter SQL templates. Statements are
// written with :name placeholders and bound to the positional placeholder
// style of the target driver.
package sqltpl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Style is a positional placeholder syntax.
type Style int

const (
	// Question binds parameters as ? (MySQL, SQLite).
	Question Style = iota
	// Dollar binds parameters as $1, $2, ... (PostgreSQL).
	Dollar
)

// Params maps placeholder names to values.
type Params map[string]any

// Statement is a SQL text with :name placeholders and their values.
type Statement struct {
	Text   string
	Params Params
}

// New returns a statement for text bound to params.
func New(text string, params Params) Statement {
	return Statement{Text: text, Params: params}
}

// Raw returns a statement without parameters.
func Raw(text string) Statement {
	return Statement{Text: text}
}

// Bind rewrites the placeholders to style and returns the positional text
// together with the ordered parameter values. A name used twice yields two
// positional parameters. Placeholders inside quoted literals or identifiers
// and PostgreSQL :: casts are left untouched. Statements without parameters
// are returned as written, so replayed DDL never needs escaping.
func (s Statement) Bind(style Style) (string, []any, error) {
	if len(s.Params) == 0 {
		return s.Text, nil, nil
	}

	bindType := sqlx.QUESTION
	if style == Dollar {
		bindType = sqlx.DOLLAR
	}
	query, args, err := sqlx.BindNamed(bindType, escapeColons(s.Text), map[string]any(s.Params))
	if err != nil {
		return "", nil, errors.Wrap(err, "failed to bind parameters")
	}
	if len(args) == 0 {
		args = nil
	}
	return query, args, nil
}

// escapeColons doubles every colon sqlx must not read as a placeholder:
// colons inside quoted sections and both colons of a :: cast. A cast that
// directly follows a placeholder is split from it by a space.
func escapeColons(text string) string {
	var (
		out         strings.Builder
		placeholder bool
	)
	out.Grow(len(text) + 8)

	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			end := closingQuote(text, i)
			out.WriteString(strings.ReplaceAll(text[i:end], ":", "::"))
			i = end - 1
			placeholder = false
		case ch == ':' && i+1 < len(text) && text[i+1] == ':':
			if placeholder {
				out.WriteByte(' ')
			}
			out.WriteString("::::")
			i++
			placeholder = false
		case ch == ':':
			out.WriteByte(ch)
			placeholder = true
		default:
			out.WriteByte(ch)
			placeholder = placeholder && isNamePart(ch)
		}
	}
	return out.String()
}

func isNamePart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// String renders the statement for logs: the text followed by its
// parameters in name order.
func (s Statement) String() string {
	if len(s.Params) == 0 {
		return s.Text
	}
	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, s.Params[name]))
	}
	return s.Text + " [" + strings.Join(parts, ", ") + "]"
}

// closingQuote returns the index just past the quoted section starting at i.
// A doubled quote character is an escaped quote.
func closingQuote(text string, i int) int {
	q := text[i]
	for j := i + 1; j < len(text); j++ {
		if text[j] != q {
			continue
		}
		if j+1 < len(text) && text[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(text)
}
