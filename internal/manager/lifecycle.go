package manager

import (
	"context"
	"fmt"

	"github.com/flemzord/storemods/internal/state"
)

// Install installs a registered module: strict dependency installation,
// the module's own Install hook, then one atomic state update marking it
// installed and disabled. If the state cannot be persisted the module's
// Uninstall hook is called to undo its side effects and the registry is
// left unchanged. Installing an installed module is a no-op.
func (m *Manager) Install(ctx context.Context, name string) (err error) {
	unlock := m.locks.lock(name)
	defer unlock()
	ctx, finish := m.begin(ctx, opInstall, name)
	defer func() { finish(err) }()

	e, ok := m.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	m.mu.RLock()
	installed := e.installed
	m.mu.RUnlock()
	if installed {
		m.logger.Info("module already installed", "module", name)
		return nil
	}

	if reqs := e.manifest.Requirements(); len(reqs) > 0 {
		if _, err := m.installer.Install(ctx, e.dir, reqs); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrDependency, name, err)
		}
	}

	if err := safeCall(func() error { return e.module.Install(ctx) }); err != nil {
		return fmt.Errorf("%w: install %s: %w", ErrLifecycle, name, err)
	}

	if err := m.state.Update(ctx, func(st *state.State) error {
		st.Uninstalled.Remove(name)
		st.Disabled.Add(name)
		return nil
	}); err != nil {
		if uerr := safeCall(func() error { return e.module.Uninstall(ctx) }); uerr != nil {
			m.logger.Error("rollback of module install failed", "module", name, "error", uerr)
		}
		return fmt.Errorf("persisting install of %s: %w", name, err)
	}

	m.mu.Lock()
	e.installed = true
	e.enabled = false
	m.mu.Unlock()
	m.bump()

	m.logger.Info("module installed", "module", name)
	return nil
}

// Enable enables an installed module. Enabling an enabled module is a no-op.
func (m *Manager) Enable(ctx context.Context, name string) (err error) {
	unlock := m.locks.lock(name)
	defer unlock()
	ctx, finish := m.begin(ctx, opEnable, name)
	defer func() { finish(err) }()

	e, err := m.installedEntry(name)
	if err != nil {
		return err
	}
	m.mu.RLock()
	enabled := e.enabled
	m.mu.RUnlock()
	if enabled {
		return nil
	}

	if err := safeCall(func() error { return e.module.Enable(ctx) }); err != nil {
		return fmt.Errorf("%w: enable %s: %w", ErrLifecycle, name, err)
	}
	if err := m.state.Update(ctx, func(st *state.State) error {
		st.Disabled.Remove(name)
		return nil
	}); err != nil {
		if derr := safeCall(func() error { return e.module.Disable(ctx) }); derr != nil {
			m.logger.Error("rollback of module enable failed", "module", name, "error", derr)
		}
		return fmt.Errorf("persisting enable of %s: %w", name, err)
	}

	m.mu.Lock()
	e.enabled = true
	m.mu.Unlock()
	m.bump()

	m.logger.Info("module enabled", "module", name)
	return nil
}

// Disable disables an installed module. Disabling a disabled module is a
// no-op.
func (m *Manager) Disable(ctx context.Context, name string) (err error) {
	unlock := m.locks.lock(name)
	defer unlock()
	ctx, finish := m.begin(ctx, opDisable, name)
	defer func() { finish(err) }()

	e, err := m.installedEntry(name)
	if err != nil {
		return err
	}
	m.mu.RLock()
	enabled := e.enabled
	m.mu.RUnlock()
	if !enabled {
		return nil
	}

	if err := safeCall(func() error { return e.module.Disable(ctx) }); err != nil {
		return fmt.Errorf("%w: disable %s: %w", ErrLifecycle, name, err)
	}
	if err := m.state.Update(ctx, func(st *state.State) error {
		st.Disabled.Add(name)
		return nil
	}); err != nil {
		if eerr := safeCall(func() error { return e.module.Enable(ctx) }); eerr != nil {
			m.logger.Error("rollback of module disable failed", "module", name, "error", eerr)
		}
		return fmt.Errorf("persisting disable of %s: %w", name, err)
	}

	m.mu.Lock()
	e.enabled = false
	m.mu.Unlock()
	m.bump()

	m.logger.Info("module disabled", "module", name)
	return nil
}

func (m *Manager) installedEntry(name string) (*entry, error) {
	e, ok := m.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !e.installed {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	return e, nil
}
