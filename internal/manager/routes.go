package manager

import (
	"strings"

	"github.com/flemzord/storemods/internal/core"
)

// Routes returns the routes of every enabled module with each pattern
// prefixed "<name>/" and each route name prefixed "<name>_". Modules are
// visited in name order. A module whose Routes panics is skipped.
func (m *Manager) Routes() []core.Route {
	var out []core.Route
	for _, e := range m.filter(func(e *entry) bool { return e.installed && e.enabled }) {
		var routes []core.Route
		if err := safeCall(func() error {
			routes = e.module.Routes()
			return nil
		}); err != nil {
			m.logger.Error("module routes failed", "module", e.name, "error", err)
			continue
		}
		for _, r := range routes {
			out = append(out, PrefixRoute(e.name, r))
		}
	}
	return out
}

// PrefixRoute namespaces a module route under the module name.
func PrefixRoute(module string, r core.Route) core.Route {
	r.Pattern = module + "/" + strings.TrimPrefix(r.Pattern, "/")
	if r.Name != "" {
		r.Name = module + "_" + r.Name
	}
	return r
}
