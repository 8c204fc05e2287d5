// Package lock serialises reconciliation runs that target the same database.
package lock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/orql/orql-mapper/internal/db"
	"github.com/orql/orql-mapper/internal/sqltpl"
)

// ErrTimeout is returned when the lock stays held by someone else for the
// whole wait.
var ErrTimeout = errors.New("timed out waiting for schema lock")

// Locker provides mutual exclusion for schema runs across processes.
type Locker interface {
	// Acquire obtains the lock for key, waiting at most timeout (0 waits
	// until ctx is done). The returned release function must be called to
	// release the lock.
	Acquire(ctx context.Context, key string, timeout time.Duration) (release func(), err error)
}

// For returns the Locker for conn's dialect. Locks are session scoped and
// are taken on conn itself.
func For(conn db.Connection) (Locker, error) {
	switch conn.Dialect() {
	case db.MySQL:
		return NewMySQLLock(conn), nil
	case db.Postgres:
		return NewPostgresLock(conn), nil
	case db.SQLite:
		return NewSQLiteLock(), nil
	default:
		return nil, errors.Errorf("no schema lock for dialect %q", conn.Dialect())
	}
}

// MySQLLock implements Locker with GET_LOCK.
type MySQLLock struct {
	conn db.Connection
}

func NewMySQLLock(conn db.Connection) *MySQLLock {
	return &MySQLLock{conn: conn}
}

// Acquire calls GET_LOCK, which waits server-side. A negative wait means
// forever.
func (l *MySQLLock) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	wait := -1
	if timeout > 0 {
		wait = int((timeout + time.Second - 1) / time.Second)
	}

	rows, err := l.conn.Query(ctx, sqltpl.New(`SELECT GET_LOCK(:key, :wait) AS acquired`, sqltpl.Params{"key": key, "wait": wait}))
	if err != nil {
		return nil, errors.Wrapf(err, "GET_LOCK(%s)", key)
	}
	if len(rows.Records) == 0 || rows.Records[0].Int("acquired") != 1 {
		return nil, ErrTimeout
	}

	release := func() {
		stmt := sqltpl.New(`SELECT RELEASE_LOCK(:key) AS released`, sqltpl.Params{"key": key})
		if _, err := l.conn.Query(context.Background(), stmt); err != nil {
			slog.Warn("failed to release schema lock", "key", key, "error", err)
		}
	}
	return release, nil
}

// PostgresLock implements Locker with session-level advisory locks.
type PostgresLock struct {
	conn db.Connection

	// PollInterval is the wait between pg_try_advisory_lock attempts.
	PollInterval time.Duration
}

func NewPostgresLock(conn db.Connection) *PostgresLock {
	return &PostgresLock{conn: conn, PollInterval: 250 * time.Millisecond}
}

// Acquire polls pg_try_advisory_lock so that the wait honours both timeout
// and ctx. The key is hashed to an int64.
func (l *PostgresLock) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	lockID := hashLockKey(key)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(l.PollInterval)
	defer ticker.Stop()

	for {
		rows, err := l.conn.Query(ctx, sqltpl.New(`SELECT pg_try_advisory_lock(:id) AS acquired`, sqltpl.Params{"id": lockID}))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrTimeout
			}
			return nil, errors.Wrapf(err, "pg_try_advisory_lock(%d)", lockID)
		}
		if len(rows.Records) > 0 && rows.Records[0].Bool("acquired") {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}

	release := func() {
		stmt := sqltpl.New(`SELECT pg_advisory_unlock(:id) AS released`, sqltpl.Params{"id": lockID})
		if _, err := l.conn.Query(context.Background(), stmt); err != nil {
			slog.Warn("failed to release schema lock", "key", key, "error", err)
		}
	}
	return release, nil
}

// SQLiteLock implements Locker with process-local mutexes, one per key.
// SQLite's own file locking covers other processes.
type SQLiteLock struct{}

var (
	sqliteMu    sync.Mutex
	sqliteLocks = map[string]chan struct{}{}
)

func NewSQLiteLock() *SQLiteLock {
	return &SQLiteLock{}
}

func (l *SQLiteLock) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "acquire sqlite lock")
	}

	sqliteMu.Lock()
	ch, ok := sqliteLocks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		sqliteLocks[key] = ch
	}
	sqliteMu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "acquire sqlite lock")
	case <-expired:
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}

// hashLockKey produces a stable int64 hash from a string key for use with
// pg_advisory_lock. Uses FNV-1a.
func hashLockKey(key string) int64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211 // FNV prime
	}
	return int64(h & 0x7FFFFFFFFFFFFFFF) //nolint:gosec // intentional truncation for advisory lock key
}
