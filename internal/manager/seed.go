package manager

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
)

// SeedOptions controls Seed.
type SeedOptions struct {
	// Overwrite replaces module directories that already exist.
	Overwrite bool

	// IncludeUninstalled also seeds modules the state marks uninstalled.
	IncludeUninstalled bool
}

// Seed writes the directory of every compiled-in module that carries Files
// into the modules root so that Discover and LoadAll find it. Modules whose
// directory already exists are left alone unless opts.Overwrite is set.
// It returns the names it wrote. Seed does not load anything.
func (m *Manager) Seed(ctx context.Context, opts SeedOptions) ([]string, error) {
	st, err := m.state.Snapshot()
	if err != nil {
		return nil, err
	}

	var seeded []string
	for _, info := range core.GetModules() {
		if err := ctx.Err(); err != nil {
			return seeded, err
		}
		name := string(info.ID)
		if info.Files == nil {
			continue
		}
		if st.Uninstalled.Has(name) && !opts.IncludeUninstalled {
			m.logger.Debug("not seeding uninstalled module", "module", name)
			continue
		}

		unlock := m.locks.lock(name)
		wrote, err := m.seedOne(name, info.Files, opts.Overwrite)
		unlock()
		if err != nil {
			return seeded, fmt.Errorf("seeding %s: %w", name, err)
		}
		if wrote {
			seeded = append(seeded, name)
			m.logger.Info("module seeded", "module", name, "dir", m.ModuleDir(name))
		}
	}
	return seeded, nil
}

func (m *Manager) seedOne(name string, files fs.FS, overwrite bool) (bool, error) {
	dir := m.ModuleDir(name)
	if dirExists(dir) {
		if !overwrite {
			return false, nil
		}
		if err := os.RemoveAll(dir); err != nil {
			return false, err
		}
	}

	err := fs.WalkDir(files, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(path))
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		raw, err := fs.ReadFile(files, path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, raw, 0o644)
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		return false, err
	}

	// Compiled-in packages live inside this repository's Go module, so the
	// standalone go.mod a module directory needs is written here.
	gomod := filepath.Join(dir, manifest.PackageFile)
	if !fileExists(gomod) {
		content := fmt.Sprintf("module storemods.local/modules/%s\n\ngo 1.25\n", name)
		if err := os.WriteFile(gomod, []byte(content), 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return false, err
		}
	}
	return true, nil
}
