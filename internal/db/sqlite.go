package db

import (
	"context"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	sqliteMattn   = "sqlite3"
	sqliteModernc = "sqlite"
)

func init() {
	Register(SQLite, openSQLite)
}

// openSQLite opens the database file named by opts.Database (or opts.DSN).
// Foreign key enforcement is left at SQLite's default (off) on migration
// sessions so tables can be rebuilt while other tables reference them.
func openSQLite(ctx context.Context, opts Options) (Connection, error) {
	path := opts.DSN
	if path == "" {
		path = opts.Database
	}

	driverName := opts.SQLiteDriver
	switch driverName {
	case "", "mattn", sqliteMattn:
		driverName = sqliteMattn
	case "modernc", sqliteModernc:
		driverName = sqliteModernc
	}

	c, err := newSQLConn(ctx, SQLite, driverName, path)
	if err != nil {
		return nil, err
	}
	return c, nil
}
