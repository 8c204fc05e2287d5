package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orql/orql-mapper/internal/db"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orql.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "")

	path := writeConfig(t, `
connection:
  url: postgres://app@localhost/app
schemaFile: db/schema.yaml
schemaName: tenant
log:
  level: debug
lock:
  timeout: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://app@localhost/app", cfg.Connection.URL)
	assert.Equal(t, "db/schema.yaml", cfg.SchemaFile)
	assert.Equal(t, "tenant", cfg.SchemaName)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "orql-migrate", cfg.Lock.Key)
	assert.Equal(t, 5*time.Second, cfg.Lock.Timeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(EnvDatabaseURL, "sqlite://env.db")

	cfg, err := Load(writeConfig(t, "connection:\n  url: sqlite://file.db\n"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite://env.db", cfg.Connection.URL)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "connection: [oops"))
	assert.Error(t, err)
}

func TestConnectionOptions(t *testing.T) {
	opts, err := ConnectionConfig{URL: "sqlite://app.db?driver=modernc"}.Options()
	require.NoError(t, err)
	assert.Equal(t, db.SQLite, opts.Dialect)
	assert.Equal(t, "app.db", opts.Database)

	opts, err = ConnectionConfig{Dialect: db.MySQL, Host: "db", Port: 3307, User: "root", Database: "app"}.Options()
	require.NoError(t, err)
	assert.Equal(t, db.Options{Dialect: db.MySQL, Host: "db", Port: 3307, Username: "root", Database: "app"}, opts)

	_, err = ConnectionConfig{}.Options()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "table", "user")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"table":"user"`)

	_, err = LogConfig{Level: "loud"}.NewLogger(&buf)
	assert.Error(t, err)
	_, err = LogConfig{Level: "info", Format: "xml"}.NewLogger(&buf)
	assert.Error(t, err)
}
