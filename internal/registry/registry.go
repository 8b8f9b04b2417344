// Package registry keeps the subject identifier -> display name mapping in a
// JSON document on disk.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio"
)

var ErrNotFound = errors.New("subject not found")

type Registry struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

func New(path string, logger *slog.Logger) *Registry {
	return &Registry{path: path, logger: logger}
}

// Upsert records displayName for identifier, replacing any previous name.
func (r *Registry) Upsert(identifier, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := r.read()
	data[identifier] = displayName

	buf, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}
	if err := renameio.WriteFile(r.path, buf, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

func (r *Registry) Lookup(identifier string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.read()[identifier]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, identifier)
	}
	return name, nil
}

// All returns a snapshot of every registered subject.
func (r *Registry) All() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// read never fails: a missing or corrupt document is an empty registry.
func (r *Registry) read() map[string]string {
	data := map[string]string{}

	buf, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("registry unreadable, treating as empty", "path", r.path, "err", err)
		}
		return data
	}
	var parsed map[string]string
	if err := json.Unmarshal(buf, &parsed); err != nil {
		r.logger.Warn("registry corrupt, treating as empty", "path", r.path, "err", err)
		return data
	}
	if parsed == nil {
		// a bare JSON null
		return data
	}
	return parsed
}
