package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"llamad/pkg/types"
)

// aliasNotFoundError signals an unknown model identifier (maps to 404).
type aliasNotFoundError struct{ name string }

func (e aliasNotFoundError) Error() string { return fmt.Sprintf("model %q not found", e.name) }

// ErrAliasNotFound constructs an alias-not-found error.
func ErrAliasNotFound(name string) error { return aliasNotFoundError{name: name} }

// IsAliasNotFound reports whether err indicates a missing alias.
func IsAliasNotFound(err error) bool {
	_, ok := err.(aliasNotFoundError)
	return ok
}

// Registry holds the alias table loaded from a directory of YAML files,
// one file per alias. It is read-only for callers; Reload swaps the whole
// snapshot so Resolve never observes a half-updated table.
type Registry struct {
	dir string
	log zerolog.Logger

	mu      sync.RWMutex
	aliases map[string]types.Alias
	updated map[string]time.Time
}

// LoadDir reads every *.yaml/*.yml file in dir and builds a registry.
// Alias names must be unique across files.
func LoadDir(dir string, log zerolog.Logger) (*Registry, error) {
	r := &Registry{dir: dir, log: log}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-scans the directory and atomically replaces the alias table.
// On error the previous table is kept.
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read aliases dir: %w", err)
	}
	aliases := make(map[string]types.Alias)
	updated := make(map[string]time.Time)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		p := filepath.Join(r.dir, name)
		b, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read alias file %s: %w", name, err)
		}
		var a types.Alias
		if err := yaml.Unmarshal(b, &a); err != nil {
			return fmt.Errorf("parse alias file %s: %w", name, err)
		}
		if strings.TrimSpace(a.Alias) == "" {
			return fmt.Errorf("alias file %s: missing alias name", name)
		}
		if a.Filename == "" {
			return fmt.Errorf("alias file %s: missing filename", name)
		}
		if _, dup := aliases[a.Alias]; dup {
			return fmt.Errorf("alias %q defined more than once", a.Alias)
		}
		aliases[a.Alias] = a
		if fi, err := e.Info(); err == nil {
			updated[a.Alias] = fi.ModTime()
		}
	}
	r.mu.Lock()
	r.aliases = aliases
	r.updated = updated
	r.mu.Unlock()
	r.log.Debug().Int("aliases", len(aliases)).Str("dir", r.dir).Msg("registry loaded")
	return nil
}

// Resolve returns the alias configuration for name. Matching is exact and
// case-sensitive; a qualifier after a colon is part of the alias name itself
// (e.g. "llama3:instruct"). Pure read, no I/O.
func (r *Registry) Resolve(name string) (types.Alias, error) {
	r.mu.RLock()
	a, ok := r.aliases[name]
	r.mu.RUnlock()
	if !ok {
		return types.Alias{}, ErrAliasNotFound(name)
	}
	return a, nil
}

// List returns all aliases sorted by name.
func (r *Registry) List() []types.Alias {
	r.mu.RLock()
	out := make([]types.Alias, 0, len(r.aliases))
	for _, a := range r.aliases {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// UpdatedAt returns the modtime of the file that defined alias name.
func (r *Registry) UpdatedAt(name string) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updated[name]
}

// Len returns the number of registered aliases.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.aliases)
}

// ConfigFilename returns the canonical file name for an alias,
// with path-hostile characters replaced ("llama3:instruct" -> "llama3--instruct.yaml").
func ConfigFilename(alias string) string {
	s := strings.NewReplacer(":", "--", "/", "--", "\\", "--", " ", "-").Replace(alias)
	return s + ".yaml"
}
