package core

import (
	"log/slog"

	"github.com/flemzord/storemods/internal/manifest"
	"github.com/flemzord/storemods/internal/store"
)

// SettingsSource resolves the saved configuration of a module.
type SettingsSource interface {
	Get(module string) map[string]any
}

// ArtifactRecorder records files a module places outside its own directory
// so that a purge can remove exactly those files later.
type ArtifactRecorder interface {
	Record(module string, paths ...string) error
}

// AppContext carries shared resources available to modules during
// provisioning and at runtime.
type AppContext struct {
	// Logger for the current module scope.
	Logger *slog.Logger

	// Dir is the module's own directory under the modules root.
	Dir string

	// Manifest is the module's parsed manifest. Never modified.
	Manifest *manifest.Manifest

	// Store is the shared database capability. May be nil.
	Store store.Store

	settings     SettingsSource
	artifacts    ArtifactRecorder
	parentLogger *slog.Logger
}

// NewAppContext creates a new AppContext with the given base logger and store.
func NewAppContext(logger *slog.Logger, st store.Store) *AppContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppContext{
		Logger:       logger,
		Store:        st,
		parentLogger: logger,
	}
}

// WithSettings returns a copy of the AppContext resolving module settings
// from src.
func (ctx *AppContext) WithSettings(src SettingsSource) *AppContext {
	cp := *ctx
	cp.settings = src
	return &cp
}

// WithArtifacts returns a copy of the AppContext recording artifacts to rec.
func (ctx *AppContext) WithArtifacts(rec ArtifactRecorder) *AppContext {
	cp := *ctx
	cp.artifacts = rec
	return &cp
}

// ForModule returns a new AppContext scoped to one module, with a child
// logger that includes the module ID.
func (ctx *AppContext) ForModule(id ModuleID, dir string, m *manifest.Manifest) *AppContext {
	return &AppContext{
		Logger:       ctx.parentLogger.With("module", string(id)),
		Dir:          dir,
		Manifest:     m,
		Store:        ctx.Store,
		settings:     ctx.settings,
		artifacts:    ctx.artifacts,
		parentLogger: ctx.parentLogger,
	}
}

// Settings returns the module's manifest defaults overlaid with its saved
// configuration.
func (ctx *AppContext) Settings() map[string]any {
	out := map[string]any{}
	if ctx.Manifest != nil {
		for k, v := range ctx.Manifest.Settings {
			out[k] = v
		}
	}
	if ctx.settings != nil && ctx.Manifest != nil {
		for k, v := range ctx.settings.Get(ctx.Manifest.Name) {
			out[k] = v
		}
	}
	return out
}

// RecordArtifact registers files created outside the module directory.
// It is a no-op when no recorder is configured.
func (ctx *AppContext) RecordArtifact(paths ...string) error {
	if ctx.artifacts == nil || ctx.Manifest == nil {
		return nil
	}
	return ctx.artifacts.Record(ctx.Manifest.Name, paths...)
}
