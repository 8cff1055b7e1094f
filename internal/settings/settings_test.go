package settings

import (
	"os"
	"testing"

	"github.com/flemzord/storemods/internal/manifest"
)

func TestFileStore_SaveLoadDelete(t *testing.T) {
	t.Parallel()

	fs := NewFileStore(t.TempDir(), nil)

	cfg, saved, err := fs.Load("bank_wire_payment", map[string]any{"bank_name": "default"})
	if err != nil {
		t.Fatal(err)
	}
	if saved || cfg["bank_name"] != "default" {
		t.Errorf("Load before save = %v, %v", cfg, saved)
	}

	if err := fs.Save("bank_wire_payment", map[string]any{"bank_name": "PKO", "test_mode": true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := fs.Registry().Get("bank_wire_payment"); got["bank_name"] != "PKO" {
		t.Errorf("registry = %v", got)
	}

	cfg, saved, err = fs.Load("bank_wire_payment", nil)
	if err != nil || !saved {
		t.Fatalf("Load = %v, %v", saved, err)
	}
	if cfg["test_mode"] != true {
		t.Errorf("test_mode = %v", cfg["test_mode"])
	}

	if err := fs.Delete("bank_wire_payment"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(fs.Path("bank_wire_payment")); !os.IsNotExist(err) {
		t.Error("config file still present")
	}
	if fs.Registry().Get("bank_wire_payment") != nil {
		t.Error("registry entry still present")
	}
}

func TestFileStore_RejectsUnsafeName(t *testing.T) {
	t.Parallel()

	fs := NewFileStore(t.TempDir(), nil)
	if err := fs.Save("../escape", map[string]any{}); err == nil {
		t.Error("expected error for unsafe module name")
	}
}

func TestFileStore_Warm(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := NewFileStore(root, nil).Save("stripe", map[string]any{"k": "v"}); err != nil {
		t.Fatal(err)
	}

	fresh := NewFileStore(root, nil)
	if err := fresh.Warm("stripe"); err != nil {
		t.Fatal(err)
	}
	if fresh.Registry().Get("stripe")["k"] != "v" {
		t.Error("Warm did not populate the registry")
	}
	if err := fresh.Warm("absent"); err != nil {
		t.Errorf("Warm on missing config: %v", err)
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()

	m := &manifest.Manifest{
		Name:     "bank_wire_payment",
		Version:  "1.0.0",
		Type:     manifest.TypePayment,
		Settings: map[string]any{"iban": ""},
	}
	cfg := Default(m)
	if cfg["category"] != "payment" || cfg["enabled"] != true || cfg["test_mode"] != false {
		t.Errorf("Default = %v", cfg)
	}
	if _, ok := cfg["iban"]; !ok {
		t.Error("manifest settings missing from defaults")
	}
}
