// Package config loads orql-migrate settings from YAML.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/orql/orql-mapper/internal/db"
)

// EnvDatabaseURL overrides connection.url when set.
const EnvDatabaseURL = "ORQL_DATABASE_URL"

// Config holds all orql-migrate configuration.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	SchemaFile string           `yaml:"schemaFile"`
	SchemaName string           `yaml:"schemaName,omitempty"` // PostgreSQL schema or MySQL database
	Log        LogConfig        `yaml:"log"`
	Lock       LockConfig       `yaml:"lock"`
}

// ConnectionConfig names the target database either by URL or by fields.
type ConnectionConfig struct {
	URL          string            `yaml:"url,omitempty"`
	Dialect      string            `yaml:"dialect,omitempty"`
	Host         string            `yaml:"host,omitempty"`
	Port         int               `yaml:"port,omitempty"`
	User         string            `yaml:"user,omitempty"`
	Password     string            `yaml:"password,omitempty"`
	Database     string            `yaml:"database,omitempty"`
	Params       map[string]string `yaml:"params,omitempty"`
	SQLiteDriver string            `yaml:"sqliteDriver,omitempty"` // "mattn" or "modernc"
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// LockConfig controls the advisory lock taken around each run.
type LockConfig struct {
	Disabled bool          `yaml:"disabled,omitempty"`
	Key      string        `yaml:"key"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		SchemaFile: "schema.yaml",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Lock: LockConfig{
			Key:     "orql-migrate",
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads a Config from the YAML file at path. A missing file yields the
// defaults. The database URL may be overridden from the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, errors.Wrap(err, "read config")
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config")
		}
	}

	if url := os.Getenv(EnvDatabaseURL); url != "" {
		cfg.Connection.URL = url
	}
	return cfg, nil
}

// Options converts the connection settings to driver options.
func (c ConnectionConfig) Options() (db.Options, error) {
	if c.URL != "" {
		return db.ParseURL(c.URL)
	}
	if c.Dialect == "" {
		return db.Options{}, errors.New("connection requires a url or a dialect")
	}
	return db.Options{
		Dialect:      c.Dialect,
		Host:         c.Host,
		Port:         c.Port,
		Username:     c.User,
		Password:     c.Password,
		Database:     c.Database,
		Params:       c.Params,
		SQLiteDriver: c.SQLiteDriver,
	}, nil
}

// NewLogger builds the configured slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", l.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(l.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, errors.Errorf("invalid log format %q (must be 'text' or 'json')", l.Format)
	}
}
