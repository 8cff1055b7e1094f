package manager

import (
	"context"
	"errors"
	"slices"
)

// Sync brings the registry in line with the persisted state and the
// modules root after another process, typically the CLI, changed them.
// Modules whose directory disappeared are dropped, installed modules pick
// up the persisted enabled and uninstalled flags, saved settings are
// re-read and new directories are loaded like Rescan does.
//
// Sync mirrors transitions that already happened elsewhere, so no module
// lifecycle hook runs. It returns the names whose registration changed.
func (m *Manager) Sync(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := m.state.Snapshot()
	if err != nil {
		return nil, err
	}

	var changed []string
	var errs []error
	for _, e := range m.snapshot() {
		name := e.name
		unlock := m.locks.lock(name)
		if !dirExists(e.dir) {
			m.unregister(name)
			m.loader.Forget(name)
			m.settings.Registry().Clear(name)
			changed = append(changed, name)
			unlock()
			continue
		}

		m.mu.Lock()
		switch {
		case st.Uninstalled.Has(name):
			if e.installed || e.enabled {
				e.installed, e.enabled = false, false
				changed = append(changed, name)
			}
		case e.installed:
			if want := !st.Disabled.Has(name); e.enabled != want {
				e.enabled = want
				changed = append(changed, name)
			}
		}
		m.mu.Unlock()

		if err := m.settings.Warm(name); err != nil {
			errs = append(errs, err)
		}
		unlock()
	}

	added, err := m.Rescan(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	changed = append(changed, added...)
	slices.Sort(changed)
	changed = slices.Compact(changed)

	if len(changed) > 0 {
		m.bump()
		m.logger.Info("registry synchronized", "changed", changed)
	}
	return changed, errors.Join(errs...)
}
