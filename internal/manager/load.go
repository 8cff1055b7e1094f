package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
)

// Discover returns the names of directories under the modules root that
// contain both a manifest and a module definition file, sorted.
func (m *Manager) Discover() ([]string, error) {
	dirents, err := os.ReadDir(m.cfg.ModulesRoot)
	if err != nil {
		return nil, fmt.Errorf("reading modules root: %w", err)
	}
	var names []string
	for _, d := range dirents {
		if !d.IsDir() || !manifest.ValidName(d.Name()) {
			continue
		}
		dir := m.ModuleDir(d.Name())
		if fileExists(filepath.Join(dir, manifest.FileName)) && fileExists(filepath.Join(dir, manifest.DefinitionFile)) {
			names = append(names, d.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// Load validates the module directory, installs its dependencies, resolves
// its implementation and registers it. A freshly loaded module is neither
// installed nor enabled. Reloading a registered module keeps its flags.
//
// Dependency installation failures are logged and do not fail the load.
func (m *Manager) Load(ctx context.Context, name string) (core.Module, error) {
	if !manifest.ValidName(name) {
		return nil, fmt.Errorf("%w: invalid module name %q", ErrValidation, name)
	}
	unlock := m.locks.lock(name)
	defer unlock()

	e, err := m.load(ctx, name, false)
	if err != nil {
		return nil, err
	}
	return e.module, nil
}

// LoadStrict is Load with strict dependency installation: a failed
// install aborts the load with ErrDependency. The upload pipeline uses it.
func (m *Manager) LoadStrict(ctx context.Context, name string) (core.Module, error) {
	if !manifest.ValidName(name) {
		return nil, fmt.Errorf("%w: invalid module name %q", ErrValidation, name)
	}
	unlock := m.locks.lock(name)
	defer unlock()

	e, err := m.load(ctx, name, true)
	if err != nil {
		return nil, err
	}
	return e.module, nil
}

// LoadAll discovers every module directory and loads those not marked
// uninstalled. Loaded modules are installed, and enabled unless listed in
// the disabled set. Failures are logged and skipped; the returned error
// joins them.
func (m *Manager) LoadAll(ctx context.Context) (map[string]core.Module, error) {
	names, err := m.Discover()
	if err != nil {
		return nil, err
	}
	st, err := m.state.Snapshot()
	if err != nil {
		return nil, err
	}

	loaded := make(map[string]core.Module, len(names))
	var errs []error
	for _, name := range names {
		if st.Uninstalled.Has(name) {
			m.logger.Debug("skipping uninstalled module", "module", name)
			continue
		}
		unlock := m.locks.lock(name)
		e, err := m.load(ctx, name, false)
		if err == nil {
			m.mu.Lock()
			e.installed = true
			e.enabled = !st.Disabled.Has(name)
			m.mu.Unlock()
			loaded[name] = e.module
		}
		unlock()

		if err != nil {
			m.logger.Error("module load failed", "module", name, "error", err)
			errs = append(errs, err)
		}
	}
	m.bump()
	m.logger.Info("modules loaded", "loaded", len(loaded), "failed", len(errs))
	return loaded, errors.Join(errs...)
}

// Rescan loads module directories that appeared under the modules root
// since the last scan, treating them like LoadAll does. Modules another
// operation is working on are left for the next scan. It returns the
// names it loaded.
func (m *Manager) Rescan(ctx context.Context) ([]string, error) {
	names, err := m.Discover()
	if err != nil {
		return nil, err
	}
	st, err := m.state.Snapshot()
	if err != nil {
		return nil, err
	}

	var added []string
	var errs []error
	for _, name := range names {
		if _, ok := m.lookup(name); ok || st.Uninstalled.Has(name) {
			continue
		}
		// A held lock means an upload is placing this module; it registers
		// the module itself.
		unlock, ok := m.locks.tryLock(name)
		if !ok {
			m.logger.Debug("rescan skipping busy module", "module", name)
			continue
		}
		if _, ok := m.lookup(name); ok {
			unlock()
			continue
		}
		e, err := m.load(ctx, name, false)
		if err == nil {
			m.mu.Lock()
			e.installed = true
			e.enabled = !st.Disabled.Has(name)
			m.mu.Unlock()
			added = append(added, name)
		}
		unlock()
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(added) > 0 {
		m.bump()
	}
	return added, errors.Join(errs...)
}

// load does the work of Load. The caller holds the module lock.
func (m *Manager) load(ctx context.Context, name string, strict bool) (_ *entry, err error) {
	ctx, finish := m.begin(ctx, opLoad, name)
	defer func() { finish(err) }()

	dir := m.ModuleDir(name)
	man, err := CheckStructure(dir)
	if err != nil {
		return nil, err
	}
	if man.Name != name {
		return nil, fmt.Errorf("%w: manifest name %q does not match directory %q", ErrValidation, man.Name, name)
	}
	for _, w := range man.Lint() {
		m.logger.Warn("manifest warning", "module", name, "warning", w)
	}

	if reqs := man.Requirements(); len(reqs) > 0 {
		if _, derr := m.installer.Install(ctx, dir, reqs); derr != nil {
			if strict {
				return nil, fmt.Errorf("%w: %s: %w", ErrDependency, name, derr)
			}
			m.logger.Warn("dependency install failed, continuing load", "module", name, "error", derr)
		}
	}

	var mod core.Module
	if err := safeCall(func() error {
		var lerr error
		mod, lerr = m.loader.Load(ctx, name, dir)
		return lerr
	}); err != nil {
		if errors.Is(err, ErrNoImplementation) || errors.Is(err, ErrAmbiguous) || errors.Is(err, ErrLoad) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, name, err)
	}
	if id := mod.ModuleInfo().ID; string(id) != name {
		return nil, fmt.Errorf("%w: implementation reports ID %q for module %q", ErrLoad, id, name)
	}

	if err := m.settings.Warm(name); err != nil {
		m.logger.Warn("saved settings unreadable", "module", name, "error", err)
	}

	if p, ok := mod.(core.Provisioner); ok {
		modCtx := m.appContext().ForModule(core.ModuleID(name), dir, man)
		if err := safeCall(func() error { return p.Provision(modCtx) }); err != nil {
			return nil, fmt.Errorf("%w: provisioning %s: %w", ErrLoad, name, err)
		}
	}
	if v, ok := mod.(core.Validator); ok {
		if err := safeCall(v.Validate); err != nil {
			return nil, fmt.Errorf("%w: validating %s: %w", ErrLoad, name, err)
		}
	}

	e := &entry{name: name, module: mod, manifest: man, dir: dir}
	m.mu.Lock()
	if prev, ok := m.entries[name]; ok {
		e.installed, e.enabled = prev.installed, prev.enabled
	}
	m.entries[name] = e
	m.mu.Unlock()
	m.bump()

	m.logger.Info("module loaded", "module", name, "version", man.Version, "type", man.Type)
	return e, nil
}

// CheckStructure verifies the files every module directory must hold and
// returns the parsed, valid manifest.
func CheckStructure(dir string) (*manifest.Manifest, error) {
	var missing []string
	for _, f := range manifest.RequiredFiles {
		if !fileExists(filepath.Join(dir, f)) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required files %v in %s", ErrValidation, missing, dir)
	}

	man, err := manifest.Load(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if verrs := man.Validate(); len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, manifest.Join(verrs))
	}
	if !manifest.ValidName(man.Name) {
		return nil, fmt.Errorf("%w: invalid module name %q", ErrValidation, man.Name)
	}
	return man, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
