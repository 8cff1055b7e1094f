// Package gateway is the HTTP surface of storemods: module administration
// under /api, health and Prometheus endpoints, provider webhooks, and the
// routes contributed by enabled modules. It binds to loopback by default.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flemzord/storemods/internal/manager"
	"github.com/flemzord/storemods/internal/security"
	"github.com/flemzord/storemods/internal/upload"
)

// Gateway serves the admin API and module routes.
type Gateway struct {
	config    Config
	mgr       *manager.Manager
	uploads   *upload.Pipeline
	logger    *slog.Logger
	audit     *security.AuditLogger
	redactor  *security.Redactor
	limiter   *security.RateLimiter
	registry  *prometheus.Registry
	metrics   *Metrics
	webhooks  *WebhookDispatcher
	modules   *moduleMux
	server    *http.Server
	startedAt time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(g *Gateway) { g.logger = l } }

// WithAudit sets the audit logger for auth and configuration events.
func WithAudit(a *security.AuditLogger) Option { return func(g *Gateway) { g.audit = a } }

// WithRedactor sets the redactor used on configuration responses.
func WithRedactor(r *security.Redactor) Option { return func(g *Gateway) { g.redactor = r } }

// WithRegistry sets the Prometheus registry served on /metrics.
func WithRegistry(r *prometheus.Registry) Option { return func(g *Gateway) { g.registry = r } }

// New creates a gateway over m and p.
func New(cfg Config, m *manager.Manager, p *upload.Pipeline, opts ...Option) (*Gateway, error) {
	cfg = cfg.withDefaults()
	if _, err := net.ResolveTCPAddr("tcp", cfg.Bind); err != nil {
		return nil, fmt.Errorf("gateway: invalid bind address %q: %w", cfg.Bind, err)
	}

	g := &Gateway{
		config:  cfg,
		mgr:     m,
		uploads: p,
		metrics: &Metrics{},
		limiter: security.NewRateLimiter(cfg.RateLimit),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "gateway")
	if g.redactor == nil {
		g.redactor = security.NewRedactor()
	}
	if g.registry == nil {
		g.registry = prometheus.NewRegistry()
		g.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if err := g.registry.Register(manager.NewCollector(m, "")); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, fmt.Errorf("gateway: registering manager metrics: %w", err)
		}
	}
	if err := g.registry.Register(g.metrics.collector("")); err != nil {
		return nil, fmt.Errorf("gateway: registering gateway metrics: %w", err)
	}
	g.webhooks = NewWebhookDispatcher(m, g.logger, g.metrics)
	g.modules = newModuleMux(m, g.logger)
	return g, nil
}

// Handler returns the gateway's root handler.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start implements core.Service. It listens on the configured address and
// serves in the background.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()
	g.server = &http.Server{
		Addr:              g.config.Bind,
		Handler:           g.buildRouter(),
		ReadHeaderTimeout: g.config.ReadHeaderTimeout,
		ReadTimeout:       g.config.ReadTimeout,
		WriteTimeout:      g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop implements core.Service. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
