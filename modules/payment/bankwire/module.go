// Package bankwire is the bank wire transfer payment module. At checkout
// the customer confirms they will pay by transfer and gets the shop's bank
// details plus a transfer reference. The payment stays pending until a
// bank notification arrives on the module webhook.
package bankwire

import (
	"context"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
)

// Name is the module name and the prefix of its routes and tables.
const Name = "bank_wire_payment"

//go:embed manifest.json module.go templates static
var files embed.FS

// errNoStore is returned when the host runs without a database.
var errNoStore = errors.New("bank wire payments need a database")

// now is replaced in tests.
var now = time.Now

func init() {
	core.RegisterModule(&Module{})
}

// Settings is the admin-configurable part of the module.
type Settings struct {
	BankName       string `json:"bank_name"`
	AccountHolder  string `json:"account_holder"`
	AccountNumber  string `json:"account_number"`
	IBAN           string `json:"iban"`
	SwiftCode      string `json:"swift_code"`
	Currency       string `json:"currency"`
	AdditionalInfo string `json:"additional_info"`
}

// Module implements core.PaymentModule and core.WebhookReceiver.
type Module struct {
	core.PaymentModuleBase

	mu     sync.Mutex
	schema bool
}

// Compile-time interface guards.
var (
	_ core.PaymentModule   = (*Module)(nil)
	_ core.WebhookReceiver = (*Module)(nil)
)

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:    Name,
		Type:  manifest.TypePayment,
		New:   func() core.Module { return new(Module) },
		Files: files,
	}
}

// Presentation implements core.Module.
func (m *Module) Presentation() core.Presentation {
	p := m.PaymentModuleBase.Presentation()
	p.DisplayName = "Bank Wire Transfer"
	p.Icon = "fas fa-university"
	p.Color = "#0d6efd"
	if p.Description == "" {
		p.Description = "Pay via bank wire transfer"
	}
	return p
}

// Install creates the transactions table.
func (m *Module) Install(ctx context.Context) error {
	return m.ensureSchema(ctx)
}

// Uninstall forgets the schema; the manager drops the table.
func (m *Module) Uninstall(context.Context) error {
	m.mu.Lock()
	m.schema = false
	m.mu.Unlock()
	return nil
}

// PaymentForm implements core.PaymentModule.
func (m *Module) PaymentForm() core.Form {
	return core.Form{Fields: []core.FormField{{
		Name:     "confirm_payment",
		Label:    "I will pay by bank transfer",
		Type:     "checkbox",
		Required: true,
	}}}
}

// ValidatePaymentData requires the transfer confirmation checkbox.
func (m *Module) ValidatePaymentData(data core.FormData) []manifest.ValidationError {
	switch strings.ToLower(strings.TrimSpace(data["confirm_payment"])) {
	case "on", "true", "1", "yes":
		return nil
	}
	return []manifest.ValidationError{{Field: "confirm_payment", Message: "Payment confirmation is required"}}
}

// ProcessPayment records a pending transaction and returns its transfer
// reference with the bank details the customer needs. Invalid form data
// yields an unsuccessful outcome and a nil error; the error is reserved for
// storage failures.
func (m *Module) ProcessPayment(ctx context.Context, req core.PaymentRequest) (core.PaymentOutcome, error) {
	if errs := m.ValidatePaymentData(req.Data); len(errs) > 0 {
		return m.failure(manifest.Join(errs)), nil
	}

	settings, err := m.settings()
	if err != nil {
		return m.failure("Payment processing failed"), err
	}
	currency := req.Currency
	if currency == "" {
		currency = settings.Currency
	}

	tx := Transaction{
		Reference: NewReference(now()),
		OrderID:   req.OrderID,
		Amount:    req.Amount,
		Currency:  currency,
		Email:     req.Email,
		Status:    core.PaymentPending,
		CreatedAt: now().UTC(),
	}
	tx.UpdatedAt = tx.CreatedAt
	if err := m.insert(ctx, tx); err != nil {
		return m.failure("Payment processing failed"), fmt.Errorf("bankwire: recording %s: %w", tx.Reference, err)
	}

	m.Logger().Info("bank wire payment pending", "reference", tx.Reference, "order", tx.OrderID)
	return core.PaymentOutcome{
		Success:     true,
		Status:      core.PaymentPending,
		Reference:   tx.Reference,
		RedirectURL: "/" + Name + "/payment_success/?reference=" + tx.Reference,
		Details: map[string]any{
			"reference":    tx.Reference,
			"bank_details": settings.details(),
		},
	}, nil
}

func (m *Module) failure(msg string) core.PaymentOutcome {
	return core.PaymentOutcome{
		Status:      core.PaymentFailed,
		Message:     msg,
		RedirectURL: "/" + Name + "/payment_error/",
	}
}

func (m *Module) settings() (Settings, error) {
	var s Settings
	if err := m.DecodeSettings(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// details is the bank data shown to the customer.
func (s Settings) details() map[string]string {
	return map[string]string{
		"bank_name":       s.BankName,
		"account_holder":  s.AccountHolder,
		"account_number":  s.AccountNumber,
		"iban":            s.IBAN,
		"swift_code":      s.SwiftCode,
		"additional_info": s.AdditionalInfo,
	}
}

// NewReference returns a transfer reference of the form
// BW-YYYYMMDD-XXXXXXXX with eight random upper-case hex digits.
func NewReference(t time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("BW-%s-%s", t.Format("20060102"), strings.ToUpper(hex.EncodeToString(id[:4])))
}
