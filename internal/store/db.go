package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sql.DB and remembers which driver it was opened with.
type DB struct {
	Client *sql.DB
	Driver string
}

// OpenDB opens the database named by dsn. "postgres://" and "postgresql://"
// DSNs use pgx; "sqlite3://path" or "sqlite://path" use go-sqlite3, where
// "sqlite3://:memory:" opens a private in-memory database.
func OpenDB(ctx context.Context, dsn string) (*DB, error) {
	driver, conn, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		// one writer, and an in-memory database lives in a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &DB{Client: db, Driver: driver}, nil
}

// ParseDSN maps a DSN to a database/sql driver name and connection string.
func ParseDSN(dsn string) (driver, conn string, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, nil
	case strings.HasPrefix(dsn, "sqlite3://"):
		return "sqlite3", sqliteConn(strings.TrimPrefix(dsn, "sqlite3://")), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", sqliteConn(strings.TrimPrefix(dsn, "sqlite://")), nil
	default:
		return "", "", fmt.Errorf("store: unsupported dsn %q", dsn)
	}
}

func sqliteConn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_busy_timeout=5000"
	}
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_foreign_keys=on"
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
