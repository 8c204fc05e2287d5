package db

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

func init() {
	Register(MySQL, openMySQL)
}

// openMySQL connects through go-sql-driver/mysql. Options without a DSN are
// assembled into one with mysql.Config so credentials are escaped properly.
func openMySQL(ctx context.Context, opts Options) (Connection, error) {
	dsn := opts.DSN
	if dsn == "" {
		dsn = mysqlConfig(opts).FormatDSN()
	}

	c, err := newSQLConn(ctx, MySQL, "mysql", dsn)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func mysqlConfig(opts Options) *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = opts.Username
	cfg.Passwd = opts.Password
	cfg.DBName = opts.Database
	cfg.Net = "tcp"

	port := opts.Port
	if port == 0 {
		port = 3306
	}
	host := opts.Host
	if host == "" {
		host = "localhost"
	}
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.ParseTime = true
	cfg.Timeout = 10 * time.Second

	if len(opts.Params) > 0 {
		cfg.Params = make(map[string]string, len(opts.Params))
		for k, v := range opts.Params {
			if k == "parseTime" {
				continue
			}
			cfg.Params[k] = v
		}
	}
	return cfg
}

// ParseDatabaseName extracts the database name from a go-sql-driver DSN.
func ParseDatabaseName(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse DSN")
	}
	if cfg.DBName == "" {
		return "", errors.New("DSN names no database")
	}
	return cfg.DBName, nil
}
