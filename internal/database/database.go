// Package database opens the optional SQL database named by a URL.
// postgres:// and postgresql:// URLs use pgx; sqlite: and file: URLs use
// the pure Go sqlite driver.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/keithlinneman/atelier-web/internal/xerrors"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

var ErrUnsupportedURL = errors.New("database: unsupported url")

const pingTimeout = 5 * time.Second

type DB struct {
	*sql.DB
	driver string
}

// Driver returns the database/sql driver name in use.
func (d *DB) Driver() string { return d.driver }

// Open connects to rawURL and verifies the connection before returning.
func Open(ctx context.Context, rawURL string) (*DB, error) {
	driver, dsn, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open %s database", driver)
	}

	switch driver {
	case DriverPostgres:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	case DriverSQLite:
		// pragmas are per connection
		db.SetMaxOpenConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, xerrors.Wrapf(err, "verify %s database connection", driver)
	}

	return &DB{DB: db, driver: driver}, nil
}

func parseURL(rawURL string) (driver, dsn string, err error) {
	u := strings.TrimSpace(rawURL)
	scheme, rest, ok := strings.Cut(u, ":")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedURL, Redact(u))
	}

	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return DriverPostgres, u, nil
	case "sqlite":
		// sqlite:///abs/path, sqlite://rel/path and sqlite:path all name a file
		rest = strings.TrimPrefix(rest, "//")
		if rest == "" {
			return "", "", fmt.Errorf("%w: sqlite url has no path", ErrUnsupportedURL)
		}
		return DriverSQLite, rest, nil
	case "file":
		return DriverSQLite, u, nil
	}
	return "", "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, scheme)
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return xerrors.Wrapf(err, "exec pragma %q", pragma)
		}
	}
	return nil
}

// Redact returns u with any credentials masked, for logs and errors.
func Redact(u string) string {
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return u
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
			return scheme + "://***@" + rest[at+1:]
		}
	}
	return u
}
