package db

import (
	"fmt"
)

// ConnectionError is a transport or authentication failure while opening or
// using a session. It is never retried here.
type ConnectionError struct {
	Dialect string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Dialect, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TxError is a failed commit or rollback. The session's final state is
// uncertain unless RolledBack reports true.
type TxError struct {
	// Op is "begin", "commit" or "rollback".
	Op  string
	Err error

	// RollbackErr is set when a rollback attempted after a failed commit (or
	// after a failed run) also failed.
	RollbackErr error
}

func (e *TxError) Error() string {
	if e.RollbackErr != nil {
		return fmt.Sprintf("%s failed: %v (rollback also failed: %v)", e.Op, e.Err, e.RollbackErr)
	}
	if e.Op == "commit" {
		return fmt.Sprintf("commit failed: %v (rolled back)", e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() []error {
	if e.RollbackErr != nil {
		return []error{e.Err, e.RollbackErr}
	}
	return []error{e.Err}
}

// RolledBack reports whether a failed commit was followed by a successful
// rollback.
func (e *TxError) RolledBack() bool {
	return e.Op == "commit" && e.RollbackErr == nil
}
