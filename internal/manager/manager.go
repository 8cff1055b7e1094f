// Package manager owns the module registry: it discovers module
// directories, loads their implementations and drives the install, enable,
// disable, uninstall and purge lifecycle, keeping the persisted state, the
// filesystem and the database consistent.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/deps"
	"github.com/flemzord/storemods/internal/manifest"
	"github.com/flemzord/storemods/internal/security"
	"github.com/flemzord/storemods/internal/settings"
	"github.com/flemzord/storemods/internal/state"
	"github.com/flemzord/storemods/internal/store"
)

const tracerName = "github.com/flemzord/storemods/internal/manager"

// Config locates the directories the manager reads and cleans.
type Config struct {
	// ModulesRoot holds one directory per module plus the persisted state.
	ModulesRoot string

	// DownloadsDir is never modified by any operation.
	DownloadsDir string

	// TemplatesDir and StaticDir hold project-level <name>/ folders that a
	// purge removes.
	TemplatesDir string
	StaticDir    string

	// MediaDir is checked for legacy archive copies during a purge.
	MediaDir string

	// ProjectRoot bounds the optional name sweep.
	ProjectRoot string

	// SweepByName makes purge also delete any file or directory under
	// ProjectRoot named after the module.
	SweepByName bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithLoader replaces the implementation loader.
func WithLoader(l Loader) Option { return func(m *Manager) { m.loader = l } }

// WithInstaller sets the dependency installer.
func WithInstaller(i deps.Installer) Option { return func(m *Manager) { m.installer = i } }

// WithStore sets the database the modules and cleanup use.
func WithStore(s store.Store) Option { return func(m *Manager) { m.store = s } }

// WithSettings sets the settings store.
func WithSettings(s *settings.FileStore) Option { return func(m *Manager) { m.settings = s } }

// WithAudit sets the audit logger.
func WithAudit(a *security.AuditLogger) Option { return func(m *Manager) { m.audit = a } }

// WithTracerProvider sets the OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tp.Tracer(tracerName) }
}

// entry is the registry record of a loaded module.
type entry struct {
	name      string
	module    core.Module
	manifest  *manifest.Manifest
	dir       string
	installed bool
	enabled   bool
}

// Manager is the module registry. It is safe for concurrent use; every
// mutating operation on a module holds that module's lock.
type Manager struct {
	cfg       Config
	logger    *slog.Logger
	loader    Loader
	installer deps.Installer
	store     store.Store
	settings  *settings.FileStore
	state     *state.Store
	ledger    *state.Ledger
	audit     *security.AuditLogger
	tracer    trace.Tracer
	metrics   *Metrics

	mu         sync.RWMutex
	entries    map[string]*entry
	locks      nameLocks
	generation atomic.Uint64
}

// New creates a Manager rooted at cfg.ModulesRoot.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.ModulesRoot == "" {
		return nil, errors.New("manager: modules root is required")
	}
	root, err := filepath.Abs(cfg.ModulesRoot)
	if err != nil {
		return nil, fmt.Errorf("manager: resolve modules root: %w", err)
	}
	cfg.ModulesRoot = root
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("manager: create modules root: %w", err)
	}

	m := &Manager{
		cfg:     cfg,
		entries: make(map[string]*entry),
		state:   state.NewStore(root),
		ledger:  state.NewLedger(root),
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "manager")
	if m.loader == nil {
		m.loader = DefaultLoader()
	}
	if m.installer == nil {
		m.installer = &deps.CommandInstaller{Logger: m.logger}
	}
	if m.settings == nil {
		m.settings = settings.NewFileStore(root, nil)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	return m, nil
}

// Root returns the absolute modules root.
func (m *Manager) Root() string { return m.cfg.ModulesRoot }

// Ledger returns the artifact ledger.
func (m *Manager) Ledger() *state.Ledger { return m.ledger }

// Settings returns the settings store.
func (m *Manager) Settings() *settings.FileStore { return m.settings }

// State returns the persisted state store.
func (m *Manager) State() *state.Store { return m.state }

// Metrics returns the lifecycle counters.
func (m *Manager) Metrics() *Metrics { return m.metrics }

// Generation increases whenever the set of enabled modules, and therefore
// the route table, may have changed.
func (m *Manager) Generation() uint64 { return m.generation.Load() }

// ModuleDir returns the directory of the named module.
func (m *Manager) ModuleDir(name string) string {
	return filepath.Join(m.cfg.ModulesRoot, name)
}

// ArchivePath returns where the module's upload archive is preserved.
func (m *Manager) ArchivePath(name string) string {
	return filepath.Join(m.cfg.ModulesRoot, manifest.ArchiveName(name))
}

func (m *Manager) bump() { m.generation.Add(1) }

func (m *Manager) lookup(name string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[name]
	return e, ok
}

func (m *Manager) appContext() *core.AppContext {
	ctx := core.NewAppContext(m.logger.With("component", "module"), m.store).
		WithArtifacts(m.ledger)
	if m.settings != nil {
		ctx = ctx.WithSettings(m.settings.Registry())
	}
	return ctx
}

// begin opens a span and returns a finish func that records metrics, the
// span status and an audit event for the operation.
func (m *Manager) begin(ctx context.Context, op, name string) (context.Context, func(error)) {
	ctx, span := m.tracer.Start(ctx, "manager."+op,
		trace.WithAttributes(attribute.String("module.name", name)))
	return ctx, func(err error) {
		m.metrics.record(op, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if ev, ok := auditEvents[op]; ok {
			detail := ""
			if err != nil {
				detail = err.Error()
			}
			m.audit.Log(security.AuditEvent{
				Type:    ev,
				Module:  name,
				Actor:   ActorFromContext(ctx),
				Success: err == nil,
				Detail:  detail,
			})
		}
	}
}

var auditEvents = map[string]security.EventType{
	opInstall:   security.EventModuleInstall,
	opUninstall: security.EventModuleUninstall,
	opEnable:    security.EventModuleEnable,
	opDisable:   security.EventModuleDisable,
	opPurge:     security.EventModulePurge,
}

type actorKey struct{}

// WithActor tags ctx with the user performing an operation, for auditing.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor set by WithActor, or "system".
func ActorFromContext(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "system"
}

// safeCall runs a module hook, turning a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
