package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(`{"name": "bank_wire", "description": "Wire transfers"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Version != "1.0.0" {
		t.Errorf("Version = %q, want %q", m.Version, "1.0.0")
	}
	if m.Type != TypeGeneral {
		t.Errorf("Type = %q, want %q", m.Type, TypeGeneral)
	}
	if m.Dependencies == nil || m.InstallRequires == nil || m.Settings == nil {
		t.Error("expected empty collections, got nil")
	}
	if m.AdminConfig || m.Migrations {
		t.Error("expected admin_config and migrations to default to false")
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{"name": `))
	if !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("err = %v, want ErrInvalidManifest", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    string
		fields []string
	}{
		{
			name: "valid",
			raw:  `{"name":"a","version":"1.0.0","description":"d","type":"payment"}`,
		},
		{
			name:   "missing name and description",
			raw:    `{"version":"1.0.0","type":"shipping"}`,
			fields: []string{"name", "description"},
		},
		{
			name:   "empty version and type",
			raw:    `{"name":"a","version":"","description":"d","type":""}`,
			fields: []string{"version", "type"},
		},
		{
			name:   "unknown type",
			raw:    `{"name":"a","description":"d","type":"crypto"}`,
			fields: []string{"type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := Parse([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			errs := m.Validate()
			if len(errs) != len(tt.fields) {
				t.Fatalf("got %d errors (%v), want %d", len(errs), errs, len(tt.fields))
			}
			for i, f := range tt.fields {
				if errs[i].Field != f {
					t.Errorf("errs[%d].Field = %q, want %q", i, errs[i].Field, f)
				}
			}
		})
	}
}

func TestValidate_Messages(t *testing.T) {
	t.Parallel()

	m, _ := Parse([]byte(`{"version":"1.0.0","description":"d"}`))
	got := Join(m.Validate())
	if got != "Module name is required" {
		t.Errorf("Join = %q", got)
	}
}

func TestValidName(t *testing.T) {
	t.Parallel()

	valid := []string{"bank_wire_payment", "stripe-v2", "Theme1"}
	invalid := []string{"", "../etc", "has space", "dot.name", "slash/name"}

	for _, n := range valid {
		if !ValidName(n) {
			t.Errorf("ValidName(%q) = false, want true", n)
		}
	}
	for _, n := range invalid {
		if ValidName(n) {
			t.Errorf("ValidName(%q) = true, want false", n)
		}
	}
}

func TestLint(t *testing.T) {
	t.Parallel()

	m, _ := Parse([]byte(`{"name":"a","version":"banana","description":"d","dependencies":["ok","bad dep"]}`))
	warnings := m.Lint()
	if len(warnings) != 2 {
		t.Fatalf("got %d warnings (%v), want 2", len(warnings), warnings)
	}

	m, _ = Parse([]byte(`{"name":"a","version":"2.1","description":"d"}`))
	if w := m.Lint(); len(w) != 0 {
		t.Errorf("unexpected warnings: %v", w)
	}
	if got := m.CanonicalVersion(); got != "2.1.0" {
		t.Errorf("CanonicalVersion = %q, want %q", got, "2.1.0")
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	m, _ := Parse([]byte(`{"name":"a","install_requires":["x"],"settings":{"k":"v"}}`))
	reqs := m.Requirements()
	reqs[0] = "mutated"
	settings := m.DefaultSettings()
	settings["k"] = "mutated"

	if m.InstallRequires[0] != "x" {
		t.Error("Requirements returned a shared slice")
	}
	if m.Settings["k"] != "v" {
		t.Error("DefaultSettings returned a shared map")
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(`{"name":"flat_rate","type":"shipping","description":"d"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Name != "flat_rate" || m.Type != TypeShipping {
		t.Errorf("got %+v", m)
	}

	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
