// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for storemods.
package config

import (
	"log/slog"
	"time"

	"github.com/flemzord/storemods/internal/gateway"
	"github.com/flemzord/storemods/internal/store"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	Log          LogConfig          `yaml:"log"`
	Paths        PathsConfig        `yaml:"paths"`
	Database     store.Config       `yaml:"database"`
	Dependencies DependenciesConfig `yaml:"dependencies"`
	Upload       UploadConfig       `yaml:"upload"`
	Purge        PurgeConfig        `yaml:"purge"`
	Gateway      gateway.Config     `yaml:"gateway"`
	Cron         CronConfig         `yaml:"cron"`
	Reload       ReloadConfig       `yaml:"reload"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Audit        AuditConfig        `yaml:"audit"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SlogLevel returns the configured level, or info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// PathsConfig locates the project directories. Relative paths are resolved
// against ProjectRoot.
type PathsConfig struct {
	ProjectRoot string `yaml:"project_root"`
	Modules     string `yaml:"modules"`
	Downloads   string `yaml:"downloads"`
	Templates   string `yaml:"templates"`
	Static      string `yaml:"static"`
	Media       string `yaml:"media"`
	Staging     string `yaml:"staging"`
}

// DependenciesConfig configures the installer run for install_requires.
type DependenciesConfig struct {
	// Command is the installer program and leading arguments.
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`

	// Disabled skips dependency installation entirely.
	Disabled bool `yaml:"disabled"`
}

// UploadConfig controls the upload pipeline.
type UploadConfig struct {
	// MaxSize is a human readable byte size such as "50MB".
	MaxSize     string `yaml:"max_size"`
	Overwrite   bool   `yaml:"overwrite"`
	AutoInstall bool   `yaml:"auto_install"`

	// RequireSigned rejects archives without an Ed25519 signature from
	// one of TrustedKeys (hex public keys).
	RequireSigned bool     `yaml:"require_signed"`
	TrustedKeys   []string `yaml:"trusted_keys"`
}

// PurgeConfig controls how far a purge reaches.
type PurgeConfig struct {
	// SweepByName also deletes any file under the project root named after
	// the module.
	SweepByName bool `yaml:"sweep_by_name"`
}

// CronConfig schedules the maintenance jobs. An empty schedule keeps the
// job's default; "off" disables it.
type CronConfig struct {
	Rescan        string        `yaml:"rescan"`
	UploadSweep   string        `yaml:"upload_sweep"`
	StagingMaxAge time.Duration `yaml:"staging_max_age"`
}

// ReloadConfig controls how the server notices changes other processes
// make under the modules root.
type ReloadConfig struct {
	Disabled     bool          `yaml:"disabled"`
	Poll         bool          `yaml:"poll"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce"`
}

// TelemetryConfig enables OpenTelemetry tracing when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	Insecure     bool    `yaml:"insecure"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// AuditConfig sets where audit events are appended as JSON lines. Empty
// sends them to the log only.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// Disabled is the cron schedule value that turns a job off.
const Disabled = "off"

// Default returns the configuration used for every field the file omits.
func Default() *Config {
	return &Config{
		Version: "1",
		Log:     LogConfig{Level: "info", Format: "text"},
		Paths: PathsConfig{
			ProjectRoot: ".",
			Modules:     "modules",
			Downloads:   "downloads",
			Templates:   "templates",
			Static:      "static",
			Media:       "media",
		},
		Database:     store.Config{Driver: string(store.SQLite), DSN: "storemods.db"},
		Dependencies: DependenciesConfig{Timeout: 5 * time.Minute},
		Upload:       UploadConfig{MaxSize: "50MB", AutoInstall: true},
		Gateway:      gateway.Config{Bind: "127.0.0.1:8080"},
		Cron:         CronConfig{StagingMaxAge: time.Hour},
		Telemetry:    TelemetryConfig{ServiceName: "storemods", SampleRatio: 1},
	}
}
