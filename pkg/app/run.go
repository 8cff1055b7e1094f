// Package app wires storemods together: configuration discovery, the
// module manager stack and the long-running server.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flemzord/storemods/internal/config"
	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manager"
)

// RunParams configures the server.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// SeedBundled writes compiled-in modules missing from the modules root
	// before they are loaded.
	SeedBundled bool

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string
}

// LoadConfig loads and validates the configuration at path, or at the
// first discovered location when path is empty.
func LoadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Run loads configuration, restores every module from disk, serves the
// gateway and the maintenance jobs, and blocks until ctx is cancelled or
// a shutdown signal is received.
func Run(ctx context.Context, params RunParams) error {
	cfg, cfgPath, err := LoadConfig(params.ConfigPath)
	if err != nil {
		return err
	}

	stack, err := NewStack(ctx, cfg, StackOptions{Version: params.Version})
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(context.Background()); err != nil {
			stack.Logger.Error("shutdown cleanup failed", "error", err)
		}
	}()

	logger := stack.Logger
	logger.Info("starting storemods", "version", params.Version, "commit", params.Commit, "config", cfgPath)

	if params.SeedBundled {
		seeded, err := stack.Manager.Seed(ctx, manager.SeedOptions{})
		if err != nil {
			return fmt.Errorf("seeding bundled modules: %w", err)
		}
		if len(seeded) > 0 {
			logger.Info("bundled modules seeded", "modules", seeded)
		}
	}

	loaded, err := stack.Manager.LoadAll(ctx)
	if err != nil {
		logger.Warn("some modules failed to load", "error", err)
	}
	logger.Info("modules loaded", "count", len(loaded), "active", len(stack.Manager.Active()))

	gw, err := stack.Gateway()
	if err != nil {
		return err
	}
	sched, err := stack.Scheduler()
	if err != nil {
		return err
	}

	application := core.NewApp(logger)
	application.Add("gateway", gw)
	application.Add("cron", sched)
	if r := stack.Reloader(); r != nil {
		application.Add("reload", r)
	}
	return application.Run(ctx)
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/storemods/storemods.yaml → ~/.config/storemods/storemods.yaml → ./storemods.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "storemods", "storemods.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "storemods", "storemods.yaml"))
	}

	candidates = append(candidates, "storemods.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
