package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/flemzord/storemods/internal/cert"
	"github.com/flemzord/storemods/internal/manager"
	"github.com/flemzord/storemods/pkg/app"
)

func modulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "modules",
		Aliases: []string{"module", "mod"},
		Short:   "Inspect and manage installed modules",
	}
	cmd.AddCommand(
		modulesListCmd(),
		modulesInfoCmd(),
		lifecycleCmd("install", "Install a loaded module (leaves it disabled)", func(ctx context.Context, m *manager.Manager, name string) (string, error) {
			return fmt.Sprintf("Module %s installed successfully", name), m.Install(ctx, name)
		}),
		lifecycleCmd("enable", "Enable an installed module", func(ctx context.Context, m *manager.Manager, name string) (string, error) {
			return fmt.Sprintf("Module %s enabled successfully", name), m.Enable(ctx, name)
		}),
		lifecycleCmd("disable", "Disable an installed module", func(ctx context.Context, m *manager.Manager, name string) (string, error) {
			return fmt.Sprintf("Module %s disabled successfully", name), m.Disable(ctx, name)
		}),
		lifecycleCmd("uninstall", "Uninstall a module, keeping its upload archive", func(ctx context.Context, m *manager.Manager, name string) (string, error) {
			report, err := m.Uninstall(ctx, name)
			if report == nil {
				return "", err
			}
			return report.Summary(), err
		}),
		modulesPurgeCmd(),
		modulesUploadCmd(),
		modulesReinstallCmd(),
		modulesSeedCmd(),
	)
	return cmd
}

// actor names the local operator in audit events.
func actor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	return "cli"
}

func modulesListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered modules and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStack(cmd, func(_ context.Context, s *app.Stack) error {
				all := s.Manager.AllInfo()
				names := make([]string, 0, len(all))
				for n := range all {
					names = append(names, n)
				}
				slices.Sort(names)

				out := cmd.OutOrStdout()
				if asJSON {
					infos := make([]manager.Info, 0, len(names))
					for _, n := range names {
						infos = append(infos, all[n])
					}
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(infos)
				}
				if len(names) == 0 {
					fmt.Fprintln(out, "No modules found.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tTYPE\tVERSION\tSTATE")
				for _, n := range names {
					i := all[n]
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", i.Name, i.Type, i.Version, stateOf(i))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func stateOf(i manager.Info) string {
	switch {
	case i.IsActive:
		return "enabled"
	case i.IsInstalled:
		return "disabled"
	default:
		return "loaded"
	}
}

func modulesInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show a module's manifest and state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, func(_ context.Context, s *app.Stack) error {
				info, ok := s.Manager.Info(args[0])
				if !ok {
					return fmt.Errorf("%w: %s", manager.ErrNotFound, args[0])
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			})
		},
	}
}

type lifecycleFunc func(ctx context.Context, m *manager.Manager, name string) (string, error)

func lifecycleCmd(use, short string, fn lifecycleFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, func(ctx context.Context, s *app.Stack) error {
				msg, err := fn(manager.WithActor(ctx, actor()), s.Manager, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			})
		},
	}
}

func modulesPurgeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <name>",
		Short: "Remove every trace of a module, including its archive and settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if !yes {
				ok, err := confirmPurge(cmd.InOrStdin(), cmd.OutOrStdout(), name)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Purge cancelled.")
					return nil
				}
			}
			return withStack(cmd, func(ctx context.Context, s *app.Stack) error {
				report, err := s.Manager.Purge(manager.WithActor(ctx, actor()), name)
				if report != nil {
					fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
					for _, p := range report.Removed {
						fmt.Fprintf(cmd.OutOrStdout(), "  removed %s\n", p)
					}
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func confirmPurge(in io.Reader, out io.Writer, name string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Purge module %s?", name)).
			Description("Deletes the module directory, upload archive, saved settings, database tables and templates. This cannot be undone.").
			Affirmative("Purge").
			Negative("Cancel").
			Value(&ok),
	)).WithInput(in).WithOutput(out)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

func modulesUploadCmd() *cobra.Command {
	var sigPath string
	cmd := &cobra.Command{
		Use:   "upload <archive.zip>",
		Short: "Validate, extract and load a module archive",
		Long: "Validate, extract and load a module archive. A detached signature is read\n" +
			"from --signature, or from <archive>.sig when that file exists.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := readSignature(args[0], sigPath)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withStack(cmd, func(ctx context.Context, s *app.Stack) error {
				out, err := s.Uploads.UploadSigned(manager.WithActor(ctx, actor()), filepath.Base(args[0]), f, sig)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out.Message())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sigPath, "signature", "", "Signature file written by 'storemods sign'")
	return cmd
}

// readSignature loads the signature at path, or at archive+".sig" when
// path is empty. A missing default file means no signature.
func readSignature(archive, path string) ([]byte, error) {
	explicit := path != ""
	if !explicit {
		path = archive + ".sig"
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cert.ParseSignature(string(raw))
}

func modulesReinstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reinstall <name>",
		Short: "Reinstall a module from its preserved upload archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStack(cmd, func(ctx context.Context, s *app.Stack) error {
				out, err := s.Uploads.Reinstall(manager.WithActor(ctx, actor()), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out.Message())
				return nil
			})
		},
	}
}

func modulesSeedCmd() *cobra.Command {
	var opts manager.SeedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write compiled-in modules into the modules root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStack(cmd, func(ctx context.Context, s *app.Stack) error {
				seeded, err := s.Manager.Seed(ctx, opts)
				if err != nil {
					return err
				}
				if len(seeded) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to seed.")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seeded: %s\n", strings.Join(seeded, ", "))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "Replace existing module directories")
	cmd.Flags().BoolVar(&opts.IncludeUninstalled, "include-uninstalled", false, "Also seed modules marked uninstalled")
	return cmd
}
