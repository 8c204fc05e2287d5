//go:build integration
// +build integration

package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orql/orql-mapper/internal/db"
)

func TestSQLiteLifecycle(t *testing.T) {
	for _, driver := range []string{"sqlite3", "modernc"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			conn, err := db.Open(ctx, db.Options{
				Dialect:      db.SQLite,
				Database:     filepath.Join(t.TempDir(), "app.db"),
				SQLiteDriver: driver,
			})
			require.NoError(t, err)
			defer conn.Close(ctx)

			runLifecycle(t, conn, "")
		})
	}
}
