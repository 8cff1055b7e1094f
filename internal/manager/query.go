package manager

import (
	"cmp"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
)

// Info is the admin view of a registered module.
type Info struct {
	Name            string   `json:"name"`
	DisplayName     string   `json:"display_name"`
	Type            string   `json:"type"`
	Version         string   `json:"version"`
	Description     string   `json:"description"`
	Author          string   `json:"author"`
	Color           string   `json:"color"`
	Icon            string   `json:"icon"`
	IsInstalled     bool     `json:"is_installed"`
	IsEnabled       bool     `json:"is_enabled"`
	IsActive        bool     `json:"is_active"`
	HasManifest     bool     `json:"has_manifest"`
	HasArchive      bool     `json:"has_archive"`
	Dependencies    []string `json:"dependencies"`
	InstallRequires []string `json:"install_requires"`
	AdminConfig     bool     `json:"admin_config"`
	Migrations      bool     `json:"migrations"`
	IsConfigurable  bool     `json:"is_configurable"`
	HasAdminConfig  bool     `json:"has_admin_config"`
	Routes          int      `json:"routes"`
}

// Module returns the registered module instance.
func (m *Manager) Module(name string) (core.Module, bool) {
	e, ok := m.lookup(name)
	if !ok {
		return nil, false
	}
	return e.module, true
}

// Manifest returns the registered module's manifest.
func (m *Manager) Manifest(name string) (*manifest.Manifest, bool) {
	e, ok := m.lookup(name)
	if !ok {
		return nil, false
	}
	return e.manifest, true
}

// Info returns the admin view of a registered module.
func (m *Manager) Info(name string) (Info, bool) {
	e, ok := m.lookup(name)
	if !ok {
		return Info{}, false
	}
	return m.info(e), true
}

// AllInfo returns the admin view of every registered module.
func (m *Manager) AllInfo() map[string]Info {
	out := make(map[string]Info)
	for _, e := range m.snapshot() {
		out[e.name] = m.info(e)
	}
	return out
}

func (m *Manager) info(e *entry) Info {
	m.mu.RLock()
	installed, enabled := e.installed, e.enabled
	m.mu.RUnlock()

	// A module that panics here is listed with default presentation and
	// no routes.
	p := core.Presentation{DisplayName: core.DisplayName(e.name), Color: core.DefaultColor, Icon: core.DefaultIcon}
	var routes int
	if err := safeCall(func() error {
		p = e.module.Presentation()
		routes = len(e.module.Routes())
		return nil
	}); err != nil {
		m.logger.Error("module info failed", "module", e.name, "error", err)
	}
	man := e.manifest
	adminTpl := filepath.Join(manifest.TemplateDir(e.dir, e.name), "admin", "config.html")
	return Info{
		Name:            e.name,
		DisplayName:     p.DisplayName,
		Type:            string(man.Type),
		Version:         man.Version,
		Description:     man.Description,
		Author:          man.Author,
		Color:           p.Color,
		Icon:            p.Icon,
		IsInstalled:     installed,
		IsEnabled:       enabled,
		IsActive:        installed && enabled,
		HasManifest:     fileExists(filepath.Join(e.dir, manifest.FileName)),
		HasArchive:      fileExists(m.ArchivePath(e.name)),
		Dependencies:    slices.Clone(man.Dependencies),
		InstallRequires: man.Requirements(),
		AdminConfig:     man.AdminConfig,
		Migrations:      man.Migrations,
		IsConfigurable:  man.AdminConfig || len(man.Settings) > 0,
		HasAdminConfig:  fileExists(adminTpl),
		Routes:          routes,
	}
}

// snapshot returns registry entries sorted by name.
func (m *Manager) snapshot() []*entry {
	m.mu.RLock()
	out := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b *entry) int { return cmp.Compare(a.name, b.name) })
	return out
}

func (m *Manager) filter(keep func(e *entry) bool) []*entry {
	all := m.snapshot()
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := all[:0]
	for _, e := range all {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func names(entries []*entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

// Registered returns the names of all registered modules.
func (m *Manager) Registered() []string {
	return names(m.snapshot())
}

// Active returns the names of installed and enabled modules.
func (m *Manager) Active() []string {
	return names(m.filter(func(e *entry) bool { return e.installed && e.enabled }))
}

// Installed returns the names of installed modules.
func (m *Manager) Installed() []string {
	return names(m.filter(func(e *entry) bool { return e.installed }))
}

// ModulesByType returns active modules whose manifest declares t.
func (m *Manager) ModulesByType(t manifest.Type) []core.Module {
	var out []core.Module
	for _, e := range m.filter(func(e *entry) bool { return e.installed && e.enabled && e.manifest.Type == t }) {
		out = append(out, e.module)
	}
	return out
}

// PaymentModules returns active modules implementing core.PaymentModule.
func (m *Manager) PaymentModules() []core.PaymentModule {
	return activeOf[core.PaymentModule](m)
}

// ShippingModules returns active modules implementing core.ShippingModule.
func (m *Manager) ShippingModules() []core.ShippingModule {
	return activeOf[core.ShippingModule](m)
}

// DesignModules returns active modules implementing core.DesignModule.
func (m *Manager) DesignModules() []core.DesignModule {
	return activeOf[core.DesignModule](m)
}

func activeOf[T core.Module](m *Manager) []T {
	var out []T
	for _, e := range m.filter(func(e *entry) bool { return e.installed && e.enabled }) {
		if v, ok := e.module.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Templates returns, per active module, the template files it ships
// relative to its templates directory.
func (m *Manager) Templates() map[string][]string {
	return m.assets("templates")
}

// StaticFiles returns, per active module, the static files it ships
// relative to its static directory.
func (m *Manager) StaticFiles() map[string][]string {
	return m.assets("static")
}

func (m *Manager) assets(kind string) map[string][]string {
	out := make(map[string][]string)
	for _, e := range m.filter(func(e *entry) bool { return e.installed && e.enabled }) {
		root := filepath.Join(e.dir, kind)
		var files []string
		_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			rel, rerr := filepath.Rel(root, path)
			if rerr == nil && !strings.HasPrefix(d.Name(), ".") {
				files = append(files, filepath.ToSlash(rel))
			}
			return nil
		})
		if len(files) > 0 {
			out[e.name] = files
		}
	}
	return out
}

func (m *Manager) counts() (registered, installed, enabled int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		registered++
		if e.installed {
			installed++
			if e.enabled {
				enabled++
			}
		}
	}
	return registered, installed, enabled
}
