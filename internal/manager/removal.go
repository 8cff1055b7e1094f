package manager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/storemods/internal/manifest"
	"github.com/flemzord/storemods/internal/state"
)

// sweepSkip lists directory names the name sweep never descends into.
var sweepSkip = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
	".ledger":      true,
}

// Uninstall removes an installed or broken module while keeping its upload
// archive for a later reinstall. Every step runs even if an earlier one
// fails; failures are returned as warnings in the report. The module is
// marked uninstalled last, so an interrupted uninstall leaves it looking
// installed. The returned error is non-nil only when that final mark could
// not be persisted or the module does not exist.
func (m *Manager) Uninstall(ctx context.Context, name string) (_ *Report, err error) {
	if !manifest.ValidName(name) {
		return nil, fmt.Errorf("%w: invalid module name %q", ErrValidation, name)
	}
	unlock := m.locks.lock(name)
	defer unlock()
	ctx, finish := m.begin(ctx, opUninstall, name)
	defer func() { finish(err) }()

	e, registered := m.lookup(name)
	if !registered && !dirExists(m.ModuleDir(name)) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	report := newReport(name, opUninstall)
	m.teardown(ctx, report, name, e)
	m.dropTables(ctx, report, name)
	report.step("delete module directory", m.removePath(report, m.ModuleDir(name)))
	m.unregister(name)

	if err := m.state.Update(ctx, func(st *state.State) error {
		st.Uninstalled.Add(name)
		return nil
	}); err != nil {
		return report, fmt.Errorf("persisting uninstall of %s: %w", name, err)
	}

	m.logger.Info("module uninstalled", "module", name, "warnings", len(report.Warnings()))
	return report, nil
}

// Purge removes every trace of a module: what Uninstall removes plus its
// upload archive, saved settings, recorded artifacts, project-level
// template and static folders and its persisted state. It runs for any
// valid name, cleaning leftovers of modules that are no longer registered.
func (m *Manager) Purge(ctx context.Context, name string) (_ *Report, err error) {
	if !manifest.ValidName(name) {
		return nil, fmt.Errorf("%w: invalid module name %q", ErrValidation, name)
	}
	unlock := m.locks.lock(name)
	defer unlock()
	ctx, finish := m.begin(ctx, opPurge, name)
	defer func() { finish(err) }()

	e, _ := m.lookup(name)
	report := newReport(name, opPurge)

	m.teardown(ctx, report, name, e)
	report.step("delete saved settings", m.deleteSettings(report, name))
	m.dropTables(ctx, report, name)
	m.removeArtifacts(report, name)

	for _, dir := range []string{m.cfg.TemplatesDir, m.cfg.StaticDir} {
		if dir != "" {
			p := filepath.Join(dir, name)
			report.step("delete "+p, m.removePath(report, p))
		}
	}
	for _, p := range m.archiveLocations(name) {
		report.step("delete "+filepath.Base(p), m.removePath(report, p))
	}
	if m.cfg.SweepByName && m.cfg.ProjectRoot != "" {
		report.step("sweep project by name", m.sweep(report, name))
	}

	report.step("delete module directory", m.removePath(report, m.ModuleDir(name)))
	report.step("forget artifact ledger", m.ledger.Forget(name))
	m.unregister(name)

	if err := m.state.Update(ctx, func(st *state.State) error {
		st.Uninstalled.Remove(name)
		st.Disabled.Remove(name)
		return nil
	}); err != nil {
		return report, fmt.Errorf("persisting purge of %s: %w", name, err)
	}

	m.logger.Info("module purged", "module", name, "removed", len(report.Removed), "warnings", len(report.Warnings()))
	return report, nil
}

// teardown calls the module's Uninstall hook, if it is registered, and
// drops cached code.
func (m *Manager) teardown(ctx context.Context, report *Report, name string, e *entry) {
	if e != nil {
		report.step("module uninstall hook", safeCall(func() error { return e.module.Uninstall(ctx) }))
	}
	report.step("clear loader cache", safeCall(func() error {
		m.loader.Forget(name)
		return nil
	}))
}

// dropTables drops tables named after the module or prefixed "<name>_".
func (m *Manager) dropTables(ctx context.Context, report *Report, name string) {
	if m.store == nil {
		return
	}
	tables, err := m.store.Tables(ctx, name)
	if err != nil {
		report.step("list database tables", err)
		return
	}
	var errs []error
	for _, t := range tables {
		if t != name && !strings.HasPrefix(t, name+"_") {
			continue
		}
		if err := m.store.DropTable(ctx, t); err != nil {
			errs = append(errs, err)
			continue
		}
		report.removed("table:" + t)
	}
	report.step("drop database tables", errors.Join(errs...))
}

func (m *Manager) deleteSettings(report *Report, name string) error {
	p := m.settings.Path(name)
	existed := fileExists(p)
	if err := m.settings.Delete(name); err != nil {
		return err
	}
	if existed {
		report.removed(p)
	}
	return nil
}

func (m *Manager) removeArtifacts(report *Report, name string) {
	paths, err := m.ledger.Entries(name)
	if err != nil {
		report.step("read artifact ledger", err)
		return
	}
	var errs []error
	for _, p := range paths {
		if err := m.removePath(report, p); err != nil {
			errs = append(errs, err)
		}
	}
	report.step("delete recorded artifacts", errors.Join(errs...))
}

// archiveLocations lists the preserved archive and legacy copies.
func (m *Manager) archiveLocations(name string) []string {
	root := m.cfg.ModulesRoot
	locs := []string{
		m.ArchivePath(name),
		m.ArchivePath(name) + ".sig",
		filepath.Join(root, name+".zip"),
		filepath.Join(root, name+"_backup.zip"),
		filepath.Join(root, name+"_old.zip"),
	}
	if m.cfg.MediaDir != "" {
		locs = append(locs, filepath.Join(m.cfg.MediaDir, "modules", name+".zip"))
	}
	return locs
}

func (m *Manager) sweep(report *Report, name string) error {
	downloads := m.cfg.DownloadsDir
	var matches []string
	walkErr := filepath.WalkDir(m.cfg.ProjectRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != m.cfg.ProjectRoot {
			if sweepSkip[d.Name()] || (downloads != "" && sameOrInside(path, downloads)) {
				return filepath.SkipDir
			}
		}
		if path == m.cfg.ProjectRoot || path == m.cfg.ModulesRoot {
			return nil
		}
		if matchesName(d.Name(), name) {
			matches = append(matches, path)
			if d.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	var errs []error
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	for _, p := range matches {
		if err := m.removePath(report, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func matchesName(base, name string) bool {
	return base == name ||
		strings.HasPrefix(base, name+"_") ||
		strings.HasPrefix(base, name+".")
}

// removePath deletes a file or directory tree unless it lies inside the
// downloads area or is one of the managed roots. A missing path is not an
// error.
func (m *Manager) removePath(report *Report, path string) error {
	if path == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if m.protected(abs) {
		return fmt.Errorf("%w: %s", ErrProtectedPath, abs)
	}
	if _, err := os.Lstat(abs); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := os.RemoveAll(abs); err != nil {
		return err
	}
	report.removed(abs)
	return nil
}

func (m *Manager) protected(abs string) bool {
	if d := m.cfg.DownloadsDir; d != "" && sameOrInside(abs, d) {
		return true
	}
	for _, root := range []string{m.cfg.ModulesRoot, m.cfg.ProjectRoot, m.cfg.TemplatesDir, m.cfg.StaticDir, m.cfg.MediaDir} {
		if root == "" {
			continue
		}
		if r, err := filepath.Abs(root); err == nil && r == abs {
			return true
		}
	}
	return abs == string(filepath.Separator)
}

// sameOrInside reports whether path equals dir or lies below it.
func sameOrInside(path, dir string) bool {
	p, err1 := filepath.Abs(path)
	d, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (m *Manager) unregister(name string) {
	m.mu.Lock()
	_, existed := m.entries[name]
	delete(m.entries, name)
	m.mu.Unlock()
	if existed {
		m.bump()
	}
}
