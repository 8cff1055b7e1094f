package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flemzord/storemods/internal/cert"
	"github.com/flemzord/storemods/internal/manifest"
	"github.com/flemzord/storemods/internal/scaffold"
	"github.com/flemzord/storemods/internal/upload"
)

func newCmd() *cobra.Command {
	var (
		opts     scaffold.Options
		typ      string
		settings []string
	)
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Generate a module directory in the standard layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Name = args[0]
			opts.Type = manifest.Type(typ)
			if len(settings) > 0 {
				opts.Settings = make(map[string]any, len(settings))
				for _, kv := range settings {
					k, v, ok := strings.Cut(kv, "=")
					if !ok || k == "" {
						return fmt.Errorf("invalid --setting %q: want key=value", kv)
					}
					opts.Settings[k] = v
				}
			}
			dir, err := scaffold.Build(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Module %s created in %s\n", opts.Name, dir)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&typ, "type", "t", string(manifest.TypeGeneral), "Module type: payment, shipping, design or general")
	f.StringVar(&opts.Version, "version", "", "Module version (default 1.0.0)")
	f.StringVar(&opts.Description, "description", "", "Module description")
	f.StringVar(&opts.Author, "author", "", "Module author")
	f.StringSliceVar(&opts.Requires, "require", nil, "Go module the module depends on (repeatable)")
	f.StringArrayVar(&settings, "setting", nil, "Default setting key=value (repeatable)")
	f.BoolVar(&opts.Plugin, "plugin", false, "Generate a Go plugin (package main) instead of a compiled-in package")
	f.StringVar(&opts.ModulePath, "module-path", "", "go.mod module path")
	f.StringVarP(&opts.OutputDir, "output", "o", ".", "Directory receiving the module directory")
	return cmd
}

// errInvalidModule is returned by validate so the exit status reflects the
// result.
var errInvalidModule = errors.New("module is invalid")

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir|archive.zip>",
		Short: "Check a module directory or archive against the upload rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if strings.EqualFold(filepath.Ext(dir), ".zip") {
				tmp, err := os.MkdirTemp("", "storemods-validate-*")
				if err != nil {
					return err
				}
				defer os.RemoveAll(tmp)
				if err := upload.Extract(args[0], tmp, upload.DefaultMaxSize*4); err != nil {
					return err
				}
				dir = upload.LocateRoot(tmp)
			}

			res := upload.ValidateStructure(dir)
			out := cmd.OutOrStdout()
			if !res.Valid {
				for _, e := range res.Errors {
					fmt.Fprintf(out, "  %s\n", e)
				}
				return errInvalidModule
			}
			fmt.Fprintf(out, "Module %s %s is valid (%s)\n", res.ModuleName, res.Manifest.Version, res.Manifest.Type)
			for _, w := range res.Manifest.Lint() {
				fmt.Fprintf(out, "  warning: %s\n", w)
			}
			return nil
		},
	}
}

func packCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "pack <dir>",
		Short: "Pack a module directory into an uploadable archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Clean(args[0])
			res := upload.ValidateStructure(dir)
			if !res.Valid {
				return &upload.ValidationFailure{Errors: res.Errors}
			}
			dest := output
			if dest == "" {
				dest = manifest.ArchiveName(res.ModuleName)
			}
			if err := scaffold.Zip(dir, dest); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Packed %s into %s\n", res.ModuleName, dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default <name>_module.zip)")
	return cmd
}

func buildPluginCmd() *cobra.Command {
	var goPath string
	cmd := &cobra.Command{
		Use:   "build-plugin <dir>",
		Short: "Compile a plugin module into module.so",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := scaffold.CompilePlugin(cmd.Context(), args[0], goPath, cmd.OutOrStdout(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Built %s\n", filepath.Join(args[0], manifest.PluginFile))
			return nil
		},
	}
	cmd.Flags().StringVar(&goPath, "go", "go", "Path to the go binary")
	return cmd
}

func keygenCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen <private-key-file>",
		Short: "Create an Ed25519 key pair for signing module archives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to replace it", args[0])
			}
			pub, err := cert.GenerateKey(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Private key written to %s\n", args[0])
			fmt.Fprintf(out, "Public key (add to upload.trusted_keys): %s\n", pub)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing key file")
	return cmd
}

func signCmd() *cobra.Command {
	var keyPath, output string
	cmd := &cobra.Command{
		Use:   "sign <archive.zip>",
		Short: "Write a detached signature for a module archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := cert.LoadPrivateKey(keyPath)
			if err != nil {
				return err
			}
			sig, err := cert.Sign(priv, args[0])
			if err != nil {
				return err
			}
			dest := output
			if dest == "" {
				dest = args[0] + ".sig"
			}
			if err := os.WriteFile(dest, []byte(hex.EncodeToString(sig)+"\n"), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed %s with %s into %s\n", filepath.Base(args[0]), cert.PublicKey(priv), dest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "Private key written by 'storemods keygen'")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Signature path (default <archive>.sig)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
