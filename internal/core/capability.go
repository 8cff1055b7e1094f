package core

import (
	"context"
	"net/http"

	"github.com/flemzord/storemods/internal/manifest"
)

// FormData carries submitted form values keyed by field name.
type FormData map[string]string

// FormField describes one input of a module form.
type FormField struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Help     string `json:"help,omitempty"`
}

// Form is the set of inputs a payment module renders at checkout.
type Form struct {
	Fields []FormField `json:"fields"`
}

// PaymentRequest is the data handed to a payment module for one order.
type PaymentRequest struct {
	OrderID  string
	Amount   int64 // minor currency units
	Currency string
	Email    string
	Data     FormData
}

// PaymentStatus is the state of a processed payment.
type PaymentStatus string

// Payment statuses.
const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// PaymentOutcome is the result of ProcessPayment.
type PaymentOutcome struct {
	Success     bool           `json:"success"`
	Status      PaymentStatus  `json:"status"`
	Reference   string         `json:"reference,omitempty"`
	RedirectURL string         `json:"redirect_url,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// PaymentMethod is what checkout lists for a payment module.
type PaymentMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

// PaymentModule is implemented by payment gateway modules.
type PaymentModule interface {
	Module
	PaymentForm() Form
	PaymentTemplate() string
	ProcessPayment(ctx context.Context, req PaymentRequest) (PaymentOutcome, error)
	ValidatePaymentData(data FormData) []manifest.ValidationError
}

// PaymentMethodOf builds the checkout entry for a payment module.
func PaymentMethodOf(m PaymentModule) PaymentMethod {
	p := m.Presentation()
	return PaymentMethod{
		ID:          string(m.ModuleInfo().ID),
		Name:        p.DisplayName,
		Description: p.Description,
		Icon:        p.Icon,
		Color:       p.Color,
	}
}

// CartItem is one line of the cart a shipping quote is computed for.
type CartItem struct {
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	WeightGrams int    `json:"weight_grams"`
}

// Destination is where an order ships to.
type Destination struct {
	Country    string `json:"country"`
	PostalCode string `json:"postal_code,omitempty"`
	City       string `json:"city,omitempty"`
}

// ShippingMethod is one option a shipping module offers.
type ShippingMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ShippingQuote is the computed cost of shipping a cart.
type ShippingQuote struct {
	Method        string `json:"method"`
	Cost          int64  `json:"cost"`
	Currency      string `json:"currency"`
	EstimatedDays int    `json:"estimated_days,omitempty"`
}

// ShippingModule is implemented by shipping calculator modules.
type ShippingModule interface {
	Module
	CalculateShipping(ctx context.Context, items []CartItem, dest Destination) (ShippingQuote, error)
	ShippingMethods() []ShippingMethod
}

// ThemeConfig describes a storefront theme.
type ThemeConfig struct {
	Name        string            `json:"name"`
	Colors      map[string]string `json:"colors,omitempty"`
	Fonts       map[string]string `json:"fonts,omitempty"`
	Stylesheets []string          `json:"stylesheets,omitempty"`
}

// DesignModule is implemented by theme modules.
type DesignModule interface {
	Module
	ThemeConfig() ThemeConfig
	ApplyTheme(template string, data map[string]any) string
}

// WebhookReceiver is implemented by modules that accept provider callbacks
// on /webhooks/<name>. When the module's saved settings hold a
// "webhook_secret", the payload must carry a matching X-Signature-256
// HMAC-SHA256 header before HandleWebhook is called.
type WebhookReceiver interface {
	Module
	HandleWebhook(ctx context.Context, body []byte, headers http.Header) error
}
