package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"

	"github.com/flemzord/storemods/internal/cert"
	"github.com/flemzord/storemods/internal/cron"
	"github.com/flemzord/storemods/internal/store"
)

// Validate checks the structural validity of a Config and reports every
// problem at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if !slices.Contains([]string{"", "debug", "info", "warn", "error"}, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("config: log.level: unknown level %q", cfg.Log.Level))
	}
	if !slices.Contains([]string{"", "text", "json"}, cfg.Log.Format) {
		errs = append(errs, fmt.Errorf("config: log.format: must be text or json, got %q", cfg.Log.Format))
	}

	if cfg.Paths.Modules == "" {
		errs = append(errs, errors.New("config: paths.modules is required"))
	}

	errs = append(errs, validateDatabase(cfg.Database)...)

	if _, err := cfg.Upload.Bytes(); err != nil {
		errs = append(errs, fmt.Errorf("config: upload.max_size: %w", err))
	}

	for _, k := range cfg.Upload.TrustedKeys {
		if _, err := cert.ParsePublicKey(k); err != nil {
			errs = append(errs, fmt.Errorf("config: upload.trusted_keys: %w", err))
		}
	}
	if cfg.Upload.RequireSigned && len(cfg.Upload.TrustedKeys) == 0 {
		errs = append(errs, errors.New("config: upload.require_signed needs at least one trusted key"))
	}

	if cfg.Reload.PollInterval < 0 || cfg.Reload.Debounce < 0 {
		errs = append(errs, errors.New("config: reload.poll_interval and reload.debounce must not be negative"))
	}

	if cfg.Dependencies.Timeout < 0 {
		errs = append(errs, errors.New("config: dependencies.timeout must not be negative"))
	}

	auth := cfg.Gateway.Auth
	if (auth.BasicUser == "") != (auth.BasicPass == "") {
		errs = append(errs, errors.New("config: gateway.auth: basic_user and basic_pass must be set together"))
	}

	for field, expr := range map[string]string{"cron.rescan": cfg.Cron.Rescan, "cron.upload_sweep": cfg.Cron.UploadSweep} {
		if expr == "" || expr == Disabled {
			continue
		}
		if err := cron.ValidateSchedule(expr); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", field, err))
		}
	}

	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("config: telemetry.sample_ratio must be within [0, 1], got %v", r))
	}

	return errors.Join(errs...)
}

func validateDatabase(db store.Config) []error {
	switch store.Dialect(db.Driver) {
	case "", store.SQLite:
		if db.DSN == "" {
			return []error{errors.New("config: database.dsn is required")}
		}
	case store.MySQL:
		if db.DSN == "" {
			return []error{errors.New("config: database.dsn is required for mysql")}
		}
	default:
		return []error{fmt.Errorf("config: database.driver: unknown driver %q (supported: sqlite, mysql)", db.Driver)}
	}
	return nil
}

// Bytes parses MaxSize. Empty means zero, which the pipeline treats as its
// default.
func (u UploadConfig) Bytes() (int64, error) {
	if u.MaxSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(u.MaxSize)
	if err != nil {
		return 0, err
	}
	if n > 1<<40 {
		return 0, fmt.Errorf("%s is too large", u.MaxSize)
	}
	return int64(n), nil
}
