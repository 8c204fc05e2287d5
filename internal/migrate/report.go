package migrate

import (
	"fmt"
	"strings"
)

// Op identifies a schema change.
type Op string

const (
	OpCreateTable  Op = "create_table"
	OpRenameTable  Op = "rename_table"
	OpDropTable    Op = "drop_table"
	OpAddColumn    Op = "add_column"
	OpUpdateColumn Op = "update_column"
	OpAddFK        Op = "add_foreign_key"
	OpUpdateFK     Op = "update_foreign_key"
	OpDropFK       Op = "drop_foreign_key"
)

// Step is one applied (or, in a plan, recorded) change. SQL holds every
// statement the change took, separated by ";\n". A change the engine could
// only make by rebuilding the table lists the rebuild statements.
type Step struct {
	Op         Op
	Table      string
	Column     string
	Constraint string
	SQL        string
}

// Statements splits SQL back into its statements.
func (s Step) Statements() []string {
	if s.SQL == "" {
		return nil
	}
	return strings.Split(s.SQL, ";\n")
}

// Target names the object the step changed.
func (s Step) Target() string {
	switch {
	case s.Constraint != "":
		return s.Table + "." + s.Constraint
	case s.Column != "":
		return s.Table + "." + s.Column
	default:
		return s.Table
	}
}

// Report lists the steps of a run in execution order. It is empty when the
// database already matched.
type Report struct {
	Mode  Mode
	Steps []Step
}

// Empty reports whether the run changed nothing.
func (r *Report) Empty() bool {
	return r == nil || len(r.Steps) == 0
}

// Count returns the number of steps with the given op.
func (r *Report) Count(op Op) int {
	if r == nil {
		return 0
	}
	n := 0
	for _, s := range r.Steps {
		if s.Op == op {
			n++
		}
	}
	return n
}

// DDLError is a statement the database rejected. The run's transaction has
// been rolled back when the error reaches the caller.
type DDLError struct {
	Op         Op
	Table      string
	Column     string
	Constraint string
	Statement  string
	Err        error
}

func (e *DDLError) Error() string {
	target := Step{Table: e.Table, Column: e.Column, Constraint: e.Constraint}.Target()
	return fmt.Sprintf("%s %s: %v", e.Op, target, e.Err)
}

func (e *DDLError) Unwrap() error { return e.Err }
