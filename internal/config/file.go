package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// xdgDir resolves an XDG base directory, falling back to $HOME/<rel>.
func xdgDir(env, rel string) (string, bool) {
	if dir := os.Getenv(env); dir != "" {
		return dir, true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	return filepath.Join(home, rel), true
}

func defaultDataDir() string {
	dir, ok := xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if !ok {
		return "jobpilot-data"
	}
	return filepath.Join(dir, "jobpilot")
}

func configFilePath() string {
	dir, ok := xdgDir("XDG_CONFIG_HOME", ".config")
	if !ok {
		dir = "."
	}
	return filepath.Join(dir, "jobpilot", "config.json")
}

// fileBackend keeps config as one flat JSON object keyed by dotted names,
// e.g. {"server.port": 8000}. Every Set rewrites the file.
type fileBackend struct {
	path   string
	values map[string]any
}

// newFileBackend reads path if it exists. An unreadable or malformed file
// is logged and treated as empty so defaults still apply.
func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: map[string]any{}}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
	default:
		if err := json.Unmarshal(raw, &b.values); err != nil {
			slog.Warn("config file malformed, using defaults", "path", path, "error", err)
			b.values = map[string]any{}
		}
	}
	return b
}

func (b *fileBackend) Lookup(key string) (any, bool) {
	v, ok := b.values[key]
	return v, ok
}

func (b *fileBackend) Set(key string, val any) error {
	b.values[key] = val
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, out, 0o600)
}
