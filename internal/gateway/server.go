package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/storemods/internal/security"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.middleware)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))

	// Webhooks carry their own HMAC auth per module.
	r.Post("/webhooks/{module}", g.webhooks.ServeHTTP)

	// Admin endpoints, auth required. Not mounted if no auth configured.
	if g.config.Auth.Enabled() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.limiter, g.audit))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Get("/routes", g.handleListRoutes())
				r.Route("/modules", func(r chi.Router) {
					r.Get("/", g.handleListModules())
					r.With(rateLimit(g.limiter, security.KindAction, g.audit)).Post("/", g.handleModuleAction())
					r.With(rateLimit(g.limiter, security.KindUpload, g.audit)).Post("/upload", g.handleUpload())
					r.Route("/{name}", func(r chi.Router) {
						r.Get("/", g.handleModuleDetail())
						r.Get("/config", g.handleGetConfig())
						r.Get("/download", g.handleDownload())
						r.Group(func(r chi.Router) {
							r.Use(rateLimit(g.limiter, security.KindAction, g.audit))
							r.Post("/config", g.handleSaveConfig())
							r.Post("/purge", g.handlePurge())
							r.Post("/{action}", g.handleNamedAction())
						})
					})
				})
			})
		})
	} else {
		g.logger.Warn("admin API disabled: no gateway auth configured")
	}

	r.NotFound(g.modules.ServeHTTP)
	return r
}
