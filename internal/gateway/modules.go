package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manager"
)

// moduleMux serves the routes of enabled modules. The underlying router is
// rebuilt on the first request after the manager's generation changes.
type moduleMux struct {
	mgr    *manager.Manager
	logger *slog.Logger

	mu     sync.RWMutex
	built  uint64
	router chi.Router
}

func newModuleMux(m *manager.Manager, logger *slog.Logger) *moduleMux {
	return &moduleMux{mgr: m, logger: logger}
}

// ServeHTTP routes with a fresh chi context so state from the outer
// router's failed match does not leak in.
func (mm *moduleMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext())
	mm.current().ServeHTTP(w, r.WithContext(ctx))
}

func (mm *moduleMux) current() chi.Router {
	gen := mm.mgr.Generation()
	mm.mu.RLock()
	router, built := mm.router, mm.built
	mm.mu.RUnlock()
	if router != nil && built == gen {
		return router
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.router != nil && mm.built == gen {
		return mm.router
	}
	mm.router = mm.build(mm.mgr.Routes())
	mm.built = gen
	return mm.router
}

func (mm *moduleMux) build(routes []core.Route) chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	for _, route := range routes {
		for _, pattern := range slashVariants("/" + route.Pattern) {
			if err := mount(r, route, pattern); err != nil {
				mm.logger.Error("skipping module route", "route", route.Name, "pattern", pattern, "error", err)
			}
		}
	}
	mm.logger.Debug("module routes rebuilt", "routes", len(routes))
	return r
}

// mount registers one route. chi panics on malformed patterns and unknown
// methods; those are returned as errors.
func mount(r chi.Router, route core.Route, pattern string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%v", p)
		}
	}()
	if route.Handler == nil {
		return fmt.Errorf("route has no handler")
	}
	if route.Method == "" {
		r.Handle(pattern, route.Handler)
	} else {
		r.Method(strings.ToUpper(route.Method), pattern, route.Handler)
	}
	return nil
}

// slashVariants returns the pattern with and without its trailing slash.
func slashVariants(pattern string) []string {
	trimmed := strings.TrimSuffix(pattern, "/")
	if trimmed == "" || strings.HasSuffix(trimmed, "*") {
		return []string{pattern}
	}
	return []string{trimmed, trimmed + "/"}
}
