// Package settings keeps module configuration: the saved per-module JSON
// files under <modules>/config and the process-wide view of every module's
// current settings.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/flemzord/storemods/internal/manifest"
	"github.com/flemzord/storemods/internal/state"
)

// Dir is the configuration directory name under the modules root.
const Dir = "config"

// Registry is the process-wide map of module settings.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]map[string]any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]map[string]any)}
}

// Get returns a copy of the module's settings, or nil.
func (r *Registry) Get(module string) map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.configs[module])
}

// Set replaces the module's settings.
func (r *Registry) Set(module string, cfg map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[module] = maps.Clone(cfg)
}

// Clear drops the module's settings.
func (r *Registry) Clear(module string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.configs, module)
}

// Modules returns the names with settings.
func (r *Registry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.configs))
	for k := range r.configs {
		out = append(out, k)
	}
	return out
}

// FileStore persists module settings as <dir>/<name>_config.json and
// mirrors every save into a Registry.
type FileStore struct {
	dir      string
	registry *Registry
}

// NewFileStore creates a store under modulesRoot/config.
func NewFileStore(modulesRoot string, registry *Registry) *FileStore {
	if registry == nil {
		registry = NewRegistry()
	}
	return &FileStore{dir: filepath.Join(modulesRoot, Dir), registry: registry}
}

// Registry returns the process-wide registry the store mirrors into.
func (s *FileStore) Registry() *Registry { return s.registry }

// Path returns the settings file for module.
func (s *FileStore) Path(module string) string {
	return filepath.Join(s.dir, module+"_config.json")
}

// Save writes cfg for module and updates the registry.
func (s *FileStore) Save(module string, cfg map[string]any) error {
	if !manifest.ValidName(module) {
		return fmt.Errorf("settings: invalid module name %q", module)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("settings: create dir: %w", err)
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", module, err)
	}
	if err := state.WriteFileAtomic(s.Path(module), append(raw, '\n'), 0o600); err != nil {
		return err
	}
	s.registry.Set(module, cfg)
	return nil
}

// Load returns the saved settings for module. When nothing is saved it
// returns the defaults and false.
func (s *FileStore) Load(module string, defaults map[string]any) (map[string]any, bool, error) {
	raw, err := os.ReadFile(s.Path(module))
	if errors.Is(err, os.ErrNotExist) {
		return maps.Clone(defaults), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("settings: read %s: %w", module, err)
	}
	cfg := map[string]any{}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, false, fmt.Errorf("settings: decode %s: %w", module, err)
	}
	return cfg, true, nil
}

// Warm loads the saved settings for module into the registry, if any.
func (s *FileStore) Warm(module string) error {
	cfg, ok, err := s.Load(module, nil)
	if err != nil || !ok {
		return err
	}
	s.registry.Set(module, cfg)
	return nil
}

// Delete removes the saved settings file and the registry entry.
func (s *FileStore) Delete(module string) error {
	s.registry.Clear(module)
	if err := os.Remove(s.Path(module)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("settings: remove %s: %w", module, err)
	}
	return nil
}

// Default returns the configuration an admin form starts from when nothing
// is saved yet: the module's identity plus its manifest settings.
func Default(m *manifest.Manifest) map[string]any {
	cfg := map[string]any{
		"name":        m.Name,
		"description": m.Description,
		"version":     m.Version,
		"author":      m.Author,
		"category":    string(m.Type),
		"enabled":     true,
		"test_mode":   false,
	}
	maps.Copy(cfg, m.Settings)
	return cfg
}
