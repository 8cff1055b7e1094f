package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
)

// Adopt puts a new copy of module name into the modules root and loads it
// like LoadStrict. place must create dir and fill it with the module tree;
// dir sits next to the module's final directory, which it then replaces.
//
// The module lock is held from placement to registration, so a concurrent
// Rescan or Sync never loads a half-copied tree. When the new copy fails
// to load, the previous directory is put back and the registry keeps the
// previous instance.
func (m *Manager) Adopt(ctx context.Context, name string, place func(dir string) error) (core.Module, error) {
	if !manifest.ValidName(name) {
		return nil, fmt.Errorf("%w: invalid module name %q", ErrValidation, name)
	}
	unlock := m.locks.lock(name)
	defer unlock()

	target := m.ModuleDir(name)
	incoming := filepath.Join(m.cfg.ModulesRoot, ".incoming-"+name)
	previous := filepath.Join(m.cfg.ModulesRoot, ".previous-"+name)

	// Left over by a process that died mid-replacement.
	if dirExists(previous) && !dirExists(target) {
		if err := os.Rename(previous, target); err != nil {
			return nil, fmt.Errorf("restoring interrupted replacement of %s: %w", name, err)
		}
	}
	for _, dir := range []string{incoming, previous} {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("clearing %s: %w", dir, err)
		}
	}

	if err := place(incoming); err != nil {
		m.discard(name, incoming)
		return nil, err
	}

	replacing := dirExists(target)
	if replacing {
		if err := os.Rename(target, previous); err != nil {
			m.discard(name, incoming)
			return nil, fmt.Errorf("setting aside %s: %w", name, err)
		}
	}
	if err := os.Rename(incoming, target); err != nil {
		m.discard(name, incoming)
		m.putBack(name, previous, target, replacing)
		return nil, fmt.Errorf("placing %s: %w", name, err)
	}

	e, err := m.load(ctx, name, true)
	if err != nil {
		m.discard(name, target)
		m.putBack(name, previous, target, replacing)
		return nil, err
	}
	if replacing {
		m.discard(name, previous)
	}
	return e.module, nil
}

func (m *Manager) putBack(name, previous, target string, replacing bool) {
	if !replacing {
		return
	}
	if err := os.Rename(previous, target); err != nil {
		m.logger.Error("restoring previous module copy failed", "module", name, "dir", previous, "error", err)
	}
}

func (m *Manager) discard(name, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("removing module copy failed", "module", name, "dir", dir, "error", err)
	}
}
