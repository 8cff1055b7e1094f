package scaffold

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/storemods/internal/manifest"
	"github.com/flemzord/storemods/internal/upload"
)

func TestBuild_PassesUploadValidation(t *testing.T) {
	t.Parallel()

	for _, typ := range manifest.Types {
		t.Run(string(typ), func(t *testing.T) {
			t.Parallel()
			out := t.TempDir()
			dir, err := Build(Options{Name: "acme_" + string(typ), Type: typ, OutputDir: out})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			res := upload.ValidateStructure(dir)
			if !res.Valid {
				t.Fatalf("generated module rejected: %v", res.Errors)
			}
			if res.Manifest.Type != typ || res.Manifest.Author != "Module Author" {
				t.Errorf("manifest = %+v", res.Manifest)
			}
		})
	}
}

func TestBuild_ModuleSource(t *testing.T) {
	t.Parallel()
	out := t.TempDir()
	dir, err := Build(Options{Name: "bank-wire", Type: manifest.TypePayment, OutputDir: out})
	if err != nil {
		t.Fatal(err)
	}
	src, err := os.ReadFile(filepath.Join(dir, manifest.DefinitionFile))
	if err != nil {
		t.Fatal(err)
	}
	s := string(src)
	for _, want := range []string{
		"package bankwire",
		"type BankWire struct",
		"core.PaymentModuleBase",
		"core.RegisterModule(&BankWire{})",
		"func (m *BankWire) ProcessPayment(",
		`ID:   "bank-wire"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("module.go missing %q:\n%s", want, s)
		}
	}
}

func TestBuild_PluginSource(t *testing.T) {
	t.Parallel()
	dir, err := Build(Options{Name: "flat", Type: manifest.TypeShipping, Plugin: true, OutputDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	src, _ := os.ReadFile(filepath.Join(dir, manifest.DefinitionFile))
	s := string(src)
	if !strings.Contains(s, "package main") || !strings.Contains(s, "func New() core.Module") {
		t.Errorf("plugin source:\n%s", s)
	}
	if strings.Contains(s, "RegisterModule") {
		t.Error("plugin source registers itself")
	}
	if !strings.Contains(s, "CalculateShipping") {
		t.Error("shipping module lacks CalculateShipping")
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()
	out := t.TempDir()

	if _, err := Build(Options{Name: "../x", OutputDir: out}); err == nil {
		t.Error("unsafe name accepted")
	}
	if _, err := Build(Options{Name: "x", Type: "crypto", OutputDir: out}); err == nil {
		t.Error("unknown type accepted")
	}
	if _, err := Build(Options{Name: "dup", OutputDir: out}); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(Options{Name: "dup", OutputDir: out}); !errors.Is(err, ErrExists) {
		t.Errorf("err = %v, want ErrExists", err)
	}
}

func TestZip_RoundTrip(t *testing.T) {
	t.Parallel()
	out := t.TempDir()
	dir, err := Build(Options{
		Name:      "acme_pay",
		Type:      manifest.TypePayment,
		Requires:  []string{"github.com/stripe/stripe-go/v76"},
		Settings:  map[string]any{"api_key": ""},
		OutputDir: out,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.PluginFile), []byte("elf"), 0o644); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(out, "dist", manifest.ArchiveName("acme_pay"))
	if err := Zip(dir, archive); err != nil {
		t.Fatalf("Zip: %v", err)
	}

	extracted := filepath.Join(out, "x")
	if err := upload.Extract(archive, extracted, 0); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if _, err := os.Stat(filepath.Join(extracted, manifest.PluginFile)); err == nil {
		t.Error("compiled plugin packed")
	}
	res := upload.ValidateStructure(upload.LocateRoot(extracted))
	if !res.Valid {
		t.Fatalf("packed module rejected: %v", res.Errors)
	}
	if got := res.Manifest.Requirements(); len(got) != 1 {
		t.Errorf("requirements = %v", got)
	}
	readme, _ := os.ReadFile(filepath.Join(extracted, "README.md"))
	if !strings.Contains(string(readme), "`api_key`") {
		t.Errorf("README:\n%s", readme)
	}
}

func TestNames(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, typ, pkg string }{
		{"bank_wire", "BankWire", "bankwire"},
		{"stripe-payment", "StripePayment", "stripepayment"},
		{"3d_secure", "Module3dSecure", "mod3dsecure"},
	}
	for _, tt := range tests {
		if got := typeName(tt.in); got != tt.typ {
			t.Errorf("typeName(%q) = %q, want %q", tt.in, got, tt.typ)
		}
		if got := packageName(tt.in); got != tt.pkg {
			t.Errorf("packageName(%q) = %q, want %q", tt.in, got, tt.pkg)
		}
	}
}
