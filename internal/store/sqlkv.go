package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLKV keeps keys in a table of the client database, so state survives
// between runs of the command line client.
type SQLKV struct {
	db *sql.DB
}

const kvSchema = `
CREATE TABLE IF NOT EXISTS client_state (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// NewSQLKV creates the state table when missing.
func NewSQLKV(ctx context.Context, db *sql.DB) (*SQLKV, error) {
	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		return nil, fmt.Errorf("create client_state: %w", err)
	}
	return &SQLKV{db: db}, nil
}

func (kv *SQLKV) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := kv.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE name = $1`, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return val, err
}

func (kv *SQLKV) Set(ctx context.Context, key, value string) error {
	_, err := kv.db.ExecContext(ctx, `
		INSERT INTO client_state (name, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

func (kv *SQLKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := kv.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, `DELETE FROM client_state WHERE name = $1`, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}
