package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileTokens keeps the token in a small JSON object on disk, readable only
// by the owner.
type FileTokens struct {
	path string
	key  string
	mu   sync.Mutex
}

// NewFileTokens returns a file-backed store at path.
func NewFileTokens(path, key string) *FileTokens {
	return &FileTokens{path: path, key: key}
}

// DefaultTokenPath is ~/.rollcall/token, or ./.rollcall/token when the home
// directory is unknown.
func DefaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".rollcall", "token")
}

func (f *FileTokens) Load(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.read()
	if err != nil {
		return "", err
	}
	return values[f.key], nil
}

func (f *FileTokens) Save(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.read()
	if err != nil {
		values = map[string]string{}
	}
	values[f.key] = token
	return f.write(values)
}

func (f *FileTokens) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.read()
	if err != nil {
		// unreadable content cannot hold a usable token
		return f.write(map[string]string{})
	}
	if _, ok := values[f.key]; !ok {
		return nil
	}
	delete(values, f.key)
	return f.write(values)
}

func (f *FileTokens) Close() error { return nil }

func (f *FileTokens) read() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	if values == nil {
		// a literal null decodes to a nil map
		values = map[string]string{}
	}
	return values, nil
}

func (f *FileTokens) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
