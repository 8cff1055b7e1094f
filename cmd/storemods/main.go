// Package main is the entry point for the storemods CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "storemods",
		Short:         "Module manager for the storefront: payment, shipping and theme plugins",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.AddCommand(
		versionCmd(),
		serveCmd(),
		configCmd(),
		modulesCmd(),
		newCmd(),
		validateCmd(),
		packCmd(),
		buildPluginCmd(),
		keygenCmd(),
		signCmd(),
		cronCmd(),
		auditCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "storemods %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %-24s %s\n", mod.ID, mod.Type)
			}
		},
	}
}

func serveCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load every module and serve the admin gateway and module routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return app.Run(cmd.Context(), app.RunParams{
				ConfigPath:  cfgPath,
				SeedBundled: seed,
				Version:     version,
				Commit:      commit,
				Date:        date,
			})
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", true, "Write compiled-in modules missing from the modules root before loading")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			if len(args) == 1 {
				path = args[0]
			}
			cfg, resolved, err := app.LoadConfig(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%s)\n", resolved)
			fmt.Fprintf(out, "  modules:  %s\n", cfg.Paths.Modules)
			fmt.Fprintf(out, "  database: %s\n", cfg.Database.Driver)
			fmt.Fprintf(out, "  gateway:  %s\n", cfg.Gateway.Bind)
			return nil
		},
	})
	return cmd
}

// withStack loads the configuration, restores the registry from disk and
// calls fn. Load failures of individual modules are logged, not returned.
func withStack(cmd *cobra.Command, fn func(ctx context.Context, s *app.Stack) error) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, _, err := app.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := app.NewStack(ctx, cfg, app.StackOptions{LogOutput: cmd.ErrOrStderr(), Version: version})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close(context.Background()) }()

	if _, err := s.Manager.LoadAll(ctx); err != nil {
		s.Logger.Warn("some modules failed to load", "error", err)
	}
	return fn(ctx, s)
}
