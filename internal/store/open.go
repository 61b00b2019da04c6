// Package store persists the client's auth token. Backends: a JSON file
// (default), redis, postgres and memory.
package store

import (
	"context"
	"fmt"
)

// TokenKey is the fixed key the token is stored under in every backend.
const TokenKey = "rollcall.auth_token"

// Tokens is a closable token store.
type Tokens interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Kind        string // file, redis, postgres, memory
	Path        string
	RedisAddr   string
	DatabaseURL string
}

// Open builds the backend named by opts.Kind.
func Open(ctx context.Context, opts Options) (Tokens, error) {
	switch opts.Kind {
	case "", "file":
		path := opts.Path
		if path == "" {
			path = DefaultTokenPath()
		}
		return NewFileTokens(path, TokenKey), nil
	case "memory":
		return NewMemoryTokens(), nil
	case "redis":
		r := NewRedis(opts.RedisAddr)
		if !r.Healthy(ctx) {
			r.Client.Close()
			return nil, fmt.Errorf("redis at %s is unreachable", opts.RedisAddr)
		}
		return NewRedisTokens(r, TokenKey), nil
	case "postgres":
		db, err := NewDB(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		t, err := NewPostgresTokens(ctx, db, TokenKey)
		if err != nil {
			db.Close()
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown token store %q", opts.Kind)
	}
}
