// Package scaffold generates new module directories in the standard
// layout and packs them into uploadable archives.
package scaffold

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"unicode"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
)

// CorePath is the import path generated modules build against.
const CorePath = "github.com/flemzord/storemods/internal/core"

// ErrExists is returned when the target directory already exists.
var ErrExists = errors.New("module directory already exists")

// Options describes the module to generate.
type Options struct {
	Name        string
	Type        manifest.Type
	Version     string
	Description string
	Author      string

	// Requires lists Go modules the module depends on.
	Requires []string

	// Settings are the manifest's default settings.
	Settings map[string]any

	// Plugin generates a package main exporting New, for building with
	// -buildmode=plugin, instead of a package registering itself from init.
	Plugin bool

	// ModulePath is the go.mod module path. Defaults to
	// "storemods.local/modules/<name>".
	ModulePath string

	// OutputDir receives the <name>/ directory.
	OutputDir string
}

func (o *Options) defaults() error {
	if !manifest.ValidName(o.Name) {
		return fmt.Errorf("invalid module name %q: use only letters, numbers, underscores and hyphens", o.Name)
	}
	if o.Type == "" {
		o.Type = manifest.TypeGeneral
	}
	if !o.Type.Valid() {
		return fmt.Errorf("unknown module type %q", o.Type)
	}
	if o.Version == "" {
		o.Version = "1.0.0"
	}
	if o.Description == "" {
		o.Description = core.DisplayName(o.Name) + " module"
	}
	if o.Author == "" {
		o.Author = "Module Author"
	}
	if o.ModulePath == "" {
		o.ModulePath = "storemods.local/modules/" + o.Name
	}
	if o.OutputDir == "" {
		o.OutputDir = "."
	}
	return nil
}

// Build writes a new module directory and returns its path.
func Build(opts Options) (string, error) {
	if err := opts.defaults(); err != nil {
		return "", err
	}
	dir := filepath.Join(opts.OutputDir, opts.Name)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, dir)
	}

	files, err := render(opts)
	if err != nil {
		return "", err
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, rel := range paths {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(p, files[rel], 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", rel, err)
		}
	}
	for _, d := range []string{"js", "images"} {
		if err := os.MkdirAll(filepath.Join(dir, "static", opts.Name, d), 0o755); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// render returns the generated files keyed by slash-separated path.
func render(opts Options) (map[string][]byte, error) {
	name := opts.Name
	files := make(map[string][]byte)

	man := map[string]any{
		"name":             name,
		"version":          opts.Version,
		"description":      opts.Description,
		"author":           opts.Author,
		"type":             opts.Type,
		"dependencies":     []string{},
		"install_requires": nonNil(opts.Requires),
		"templates":        templateList(name, opts.Type),
		"static_files":     []string{name + "/css/style.css"},
		"admin_config":     true,
		"migrations":       false,
		"settings":         nonNilMap(opts.Settings),
	}
	raw, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return nil, err
	}
	files[manifest.FileName] = append(raw, '\n')

	src, err := moduleSource(opts)
	if err != nil {
		return nil, err
	}
	files[manifest.DefinitionFile] = src
	files[manifest.PackageFile] = goMod(opts)

	data := map[string]any{"Name": name}
	if opts.Type == manifest.TypePayment {
		if files["templates/"+name+"/payment_form.html"], err = execute(paymentFormTmpl, data); err != nil {
			return nil, err
		}
	}
	if files["templates/"+name+"/admin/config.html"], err = execute(adminConfigTmpl, data); err != nil {
		return nil, err
	}
	files["static/"+name+"/css/style.css"] = []byte("/* " + name + " styles */\n." + name + " {\n}\n")
	files["migrations/README.md"] = []byte("SQL migrations for " + name + ".\n")

	if files["README.md"], err = execute(readmeTmpl, map[string]any{
		"Name":        name,
		"Display":     core.DisplayName(name),
		"Description": opts.Description,
		"Type":        opts.Type,
		"Version":     opts.Version,
		"Author":      opts.Author,
		"Settings":    opts.Settings,
		"Requires":    opts.Requires,
	}); err != nil {
		return nil, err
	}
	return files, nil
}

func moduleSource(opts Options) ([]byte, error) {
	base := map[manifest.Type]string{
		manifest.TypePayment:  "PaymentModuleBase",
		manifest.TypeShipping: "ShippingModuleBase",
		manifest.TypeDesign:   "DesignModuleBase",
		manifest.TypeGeneral:  "BaseModule",
	}[opts.Type]

	pkg := "main"
	if !opts.Plugin {
		pkg = packageName(opts.Name)
	}
	raw, err := execute(moduleTmpl, moduleParams{
		Package:  pkg,
		TypeName: typeName(opts.Name),
		Name:     opts.Name,
		Base:     base,
		Type:     string(opts.Type),
		CorePath: CorePath,
		Plugin:   opts.Plugin,
		Payment:  opts.Type == manifest.TypePayment,
		Shipping: opts.Type == manifest.TypeShipping,
		Design:   opts.Type == manifest.TypeDesign,
	})
	if err != nil {
		return nil, err
	}
	src, err := format.Source(raw)
	if err != nil {
		return nil, fmt.Errorf("formatting %s: %w", manifest.DefinitionFile, err)
	}
	return src, nil
}

func goMod(opts Options) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s\n\n", opts.ModulePath)
	b.WriteString("go 1.25.0\n\n")
	b.WriteString("require github.com/flemzord/storemods latest\n")
	return []byte(b.String())
}

func execute(t *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", t.Name(), err)
	}
	return buf.Bytes(), nil
}

func templateList(name string, t manifest.Type) []string {
	out := []string{name + "/admin/config.html"}
	if t == manifest.TypePayment {
		out = append(out, name+"/payment_form.html")
	}
	return out
}

// typeName turns "bank_wire-pay" into "BankWirePay".
func typeName(name string) string {
	var b strings.Builder
	for _, w := range strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' }) {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	s := b.String()
	if s == "" || unicode.IsDigit(rune(s[0])) {
		s = "Module" + s
	}
	return s
}

// packageName turns "bank_wire-pay" into "bankwirepay".
func packageName(name string) string {
	s := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(name))
	if s == "" || unicode.IsDigit(rune(s[0])) {
		s = "mod" + s
	}
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
