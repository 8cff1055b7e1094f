package core

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/flemzord/storemods/internal/manifest"
)

type testModule struct {
	BaseModule
	id ModuleID
	t  manifest.Type
}

func (m *testModule) ModuleInfo() ModuleInfo {
	id, typ := m.id, m.t
	return ModuleInfo{
		ID:   id,
		Type: typ,
		New:  func() Module { return &testModule{id: id, t: typ} },
	}
}

type testPayment struct {
	PaymentModuleBase
}

func (m *testPayment) ModuleInfo() ModuleInfo {
	return ModuleInfo{ID: "test_pay", Type: manifest.TypePayment, New: func() Module { return &testPayment{} }}
}

func (m *testPayment) ProcessPayment(context.Context, PaymentRequest) (PaymentOutcome, error) {
	return PaymentOutcome{Success: true, Status: PaymentCompleted}, nil
}

var _ PaymentModule = (*testPayment)(nil)

func TestRegisterModule(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&testModule{id: "flat_rate", t: manifest.TypeShipping})
	RegisterModule(&testModule{id: "classic", t: manifest.TypeDesign})
	RegisterModule(&testModule{id: "courier", t: manifest.TypeShipping})

	if _, ok := GetModule("flat_rate"); !ok {
		t.Fatal("expected flat_rate to be registered")
	}

	all := GetModules()
	if len(all) != 3 || all[0].ID != "classic" || all[2].ID != "flat_rate" {
		t.Errorf("GetModules = %+v, want sorted by ID", all)
	}

	shipping := GetModulesByType(manifest.TypeShipping)
	if len(shipping) != 2 || shipping[0].ID != "courier" {
		t.Errorf("GetModulesByType = %+v", shipping)
	}

	UnregisterModule("classic")
	if _, ok := GetModule("classic"); ok {
		t.Error("classic still registered after UnregisterModule")
	}
}

func TestRegisterModule_Panics(t *testing.T) {
	tests := []struct {
		name string
		mod  Module
	}{
		{"empty id", &testModule{}},
		{"unsafe id", &testModule{id: "../evil"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(resetRegistry)
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			RegisterModule(tt.mod)
		})
	}
}

func TestRegisterModule_DuplicatePanics(t *testing.T) {
	t.Cleanup(resetRegistry)

	RegisterModule(&testModule{id: "dup"})
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	RegisterModule(&testModule{id: "dup"})
}

func TestAppContext_ForModule(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	m := &manifest.Manifest{Name: "bank_wire_payment"}
	ctx := NewAppContext(logger, nil)
	child := ctx.ForModule("bank_wire_payment", "/modules/bank_wire_payment", m)

	child.Logger.Info("hello")

	if !bytes.Contains(buf.Bytes(), []byte("bank_wire_payment")) {
		t.Errorf("expected child logger to contain module ID, got: %s", buf.String())
	}
	if child.Dir != "/modules/bank_wire_payment" {
		t.Errorf("Dir = %q", child.Dir)
	}
}

type staticSettings map[string]map[string]any

func (s staticSettings) Get(module string) map[string]any { return s[module] }

type recorder struct{ got []string }

func (r *recorder) Record(module string, paths ...string) error {
	for _, p := range paths {
		r.got = append(r.got, module+":"+p)
	}
	return nil
}

func TestBaseModule_SettingsAndArtifacts(t *testing.T) {
	m := &manifest.Manifest{
		Name:        "bank_wire_payment",
		Description: "Pay by wire",
		Settings:    map[string]any{"bank_name": "Default Bank", "iban": ""},
	}
	rec := &recorder{}
	ctx := NewAppContext(nil, nil).
		WithSettings(staticSettings{"bank_wire_payment": {"iban": "PL61109010140000071219812874"}}).
		WithArtifacts(rec).
		ForModule("bank_wire_payment", "/m", m)

	var mod testModule
	if err := mod.Provision(ctx); err != nil {
		t.Fatal(err)
	}

	var cfg struct {
		BankName string `json:"bank_name"`
		IBAN     string `json:"iban"`
	}
	if err := mod.DecodeSettings(&cfg); err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if cfg.BankName != "Default Bank" || cfg.IBAN != "PL61109010140000071219812874" {
		t.Errorf("cfg = %+v", cfg)
	}

	if err := ctx.RecordArtifact("/static/x.css"); err != nil {
		t.Fatal(err)
	}
	if len(rec.got) != 1 || rec.got[0] != "bank_wire_payment:/static/x.css" {
		t.Errorf("recorded = %v", rec.got)
	}

	p := mod.Presentation()
	if p.DisplayName != "Bank Wire Payment" || p.Icon != DefaultIcon || p.Description != "Pay by wire" {
		t.Errorf("Presentation = %+v", p)
	}
	if got := mod.AdminTemplate(); got != "bank_wire_payment/admin/config.html" {
		t.Errorf("AdminTemplate = %q", got)
	}
}

func TestPaymentModuleBase(t *testing.T) {
	var mod testPayment
	_ = mod.Provision(NewAppContext(nil, nil).ForModule("test_pay", "/m", &manifest.Manifest{Name: "test_pay"}))

	if got := mod.PaymentTemplate(); got != "test_pay/payment_form.html" {
		t.Errorf("PaymentTemplate = %q", got)
	}
	method := PaymentMethodOf(&mod)
	if method.ID != "test_pay" || method.Icon != DefaultPaymentIcon || method.Name != "Test Pay" {
		t.Errorf("PaymentMethodOf = %+v", method)
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"bank_wire_payment": "Bank Wire Payment",
		"stripe":            "Stripe",
		"flat-rate":         "Flat Rate",
		"":                  "",
	}
	for in, want := range tests {
		if got := DisplayName(in); got != want {
			t.Errorf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}
