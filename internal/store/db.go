package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with small pool limits; the client
// only ever touches one row.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Client: db}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

const createKV = `CREATE TABLE IF NOT EXISTS rollcall_kv (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresTokens keeps the token in the rollcall_kv table.
type PostgresTokens struct {
	db  *DB
	key string
}

// NewPostgresTokens ensures the key/value table exists.
func NewPostgresTokens(ctx context.Context, db *DB, key string) (*PostgresTokens, error) {
	if _, err := db.Client.ExecContext(ctx, createKV); err != nil {
		return nil, fmt.Errorf("create rollcall_kv: %w", err)
	}
	return &PostgresTokens{db: db, key: key}, nil
}

func (p *PostgresTokens) Load(ctx context.Context) (string, error) {
	var v string
	err := p.db.Client.QueryRowContext(ctx, `SELECT v FROM rollcall_kv WHERE k = $1`, p.key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	return v, nil
}

func (p *PostgresTokens) Save(ctx context.Context, token string) error {
	_, err := p.db.Client.ExecContext(ctx, `
		INSERT INTO rollcall_kv (k, v, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = now()`, p.key, token)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (p *PostgresTokens) Clear(ctx context.Context) error {
	if _, err := p.db.Client.ExecContext(ctx, `DELETE FROM rollcall_kv WHERE k = $1`, p.key); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

func (p *PostgresTokens) Close() error { return p.db.Close() }
