package db

import (
	"context"

	"github.com/orql/orql-mapper/internal/sqltpl"
)

// DryRunConn forwards reads and transaction control to the wrapped
// Connection and records writes instead of executing them.
type DryRunConn struct {
	Connection
	Recorded []sqltpl.Statement
}

// DryRun wraps conn so that Exec only records.
func DryRun(conn Connection) *DryRunConn {
	return &DryRunConn{Connection: conn}
}

// Exec records stmt and reports an empty result.
func (d *DryRunConn) Exec(_ context.Context, stmt sqltpl.Statement) (Result, error) {
	d.Recorded = append(d.Recorded, stmt)
	return Result{}, nil
}
