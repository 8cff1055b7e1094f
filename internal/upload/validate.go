package upload

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/storemods/internal/manifest"
)

// BaseTypes are the embeddable module bases a module definition may build on.
var BaseTypes = []string{"BaseModule", "PaymentModuleBase", "ShippingModuleBase", "DesignModuleBase"}

// requiredFields must be present in an uploaded manifest. Parse fills
// defaults for some of them, so presence is checked on the raw document.
var requiredFields = []string{"name", "version", "description", "author", "type"}

// Result is the outcome of ValidateStructure.
type Result struct {
	Valid      bool
	Errors     []string
	ModuleName string
	Manifest   *manifest.Manifest
}

// ValidationFailure is returned when an uploaded module is rejected.
type ValidationFailure struct {
	Errors []string
}

func (f *ValidationFailure) Error() string {
	return "Invalid module structure: " + strings.Join(f.Errors, "; ")
}

// ValidateStructure checks that dir holds a module in the standard layout.
// Checks run in a fixed order and stop at the first category that fails,
// so Errors only ever describes one kind of problem.
func ValidateStructure(dir string) Result {
	return validateStructure(dir, slog.Default())
}

func validateStructure(dir string, logger *slog.Logger) Result {
	var r Result
	fail := func(msgs ...string) Result {
		r.Errors = append(r.Errors, msgs...)
		return r
	}

	var missing []string
	for _, f := range manifest.RequiredFiles {
		if !isFile(filepath.Join(dir, f)) {
			missing = append(missing, "Missing required file: "+f)
		}
	}
	if len(missing) > 0 {
		return fail(missing...)
	}

	raw, err := os.ReadFile(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return fail(fmt.Sprintf("Error reading %s: %v", manifest.FileName, err))
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fail(fmt.Sprintf("Invalid %s: %v", manifest.FileName, err))
	}
	var absent []string
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			absent = append(absent, "Missing required manifest field: "+f)
		}
	}
	if len(absent) > 0 {
		return fail(absent...)
	}
	man, err := manifest.Parse(raw)
	if err != nil {
		return fail(fmt.Sprintf("Invalid %s: %v", manifest.FileName, err))
	}
	if verrs := man.Validate(); len(verrs) > 0 {
		return fail(manifest.Messages(verrs)...)
	}

	name := man.Name
	if !manifest.ValidName(name) {
		return fail("Invalid module name. Use only letters, numbers, underscores, and hyphens.")
	}
	r.ModuleName = name
	r.Manifest = man

	if err := checkDefinition(filepath.Join(dir, manifest.DefinitionFile)); err != nil {
		return fail(err.Error())
	}

	tplDir := manifest.TemplateDir(dir, name)
	if !isDir(tplDir) {
		return fail("Missing expected directory: templates/" + name)
	}
	if !isDir(filepath.Join(dir, "static", name)) {
		logger.Warn("optional directory missing", "module", name, "dir", "static/"+name)
	}

	if man.Type == manifest.TypePayment && !isFile(filepath.Join(tplDir, "payment_form.html")) {
		return fail(fmt.Sprintf("Payment modules must include templates/%s/payment_form.html", name))
	}
	if !isFile(filepath.Join(tplDir, "admin", "config.html")) {
		return fail(fmt.Sprintf("Missing admin configuration template: templates/%s/admin/config.html", name))
	}

	r.Valid = true
	return r
}

// checkDefinition parses the module definition file and looks for a struct
// type embedding one of BaseTypes, either qualified (core.BaseModule) or
// not.
func checkDefinition(path string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return fmt.Errorf("%s does not parse: %v", manifest.DefinitionFile, err)
	}

	structs := 0
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			st, ok := spec.(*ast.TypeSpec).Type.(*ast.StructType)
			if !ok {
				continue
			}
			structs++
			for _, field := range st.Fields.List {
				if len(field.Names) == 0 && embedsBase(field.Type) {
					return nil
				}
			}
		}
	}
	if structs == 0 {
		return fmt.Errorf("%s must declare a module type", manifest.DefinitionFile)
	}
	return fmt.Errorf("%s must embed a base module type (%s)", manifest.DefinitionFile, strings.Join(BaseTypes, ", "))
}

func embedsBase(expr ast.Expr) bool {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	var name string
	switch t := expr.(type) {
	case *ast.Ident:
		name = t.Name
	case *ast.SelectorExpr:
		name = t.Sel.Name
	default:
		return false
	}
	for _, b := range BaseTypes {
		if name == b {
			return true
		}
	}
	return false
}

// LocateRoot returns the first immediate subdirectory of dir that holds
// every required module file, or dir itself.
func LocateRoot(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return dir
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		complete := true
		for _, f := range manifest.RequiredFiles {
			if !isFile(filepath.Join(sub, f)) {
				complete = false
				break
			}
		}
		if complete {
			return sub
		}
	}
	return dir
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
