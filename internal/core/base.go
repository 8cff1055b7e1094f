package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"unicode"

	"github.com/flemzord/storemods/internal/manifest"
	"github.com/flemzord/storemods/internal/store"
)

// Default presentation values.
const (
	DefaultColor        = "#6c757d"
	DefaultIcon         = "fas fa-puzzle-piece"
	DefaultPaymentIcon  = "fas fa-credit-card"
	DefaultShippingIcon = "fas fa-truck"
	DefaultDesignIcon   = "fas fa-palette"
)

// BaseModule provides no-op lifecycle hooks, default presentation and
// access to the module's AppContext. Modules embed it (or one of the typed
// bases) and override what they need.
type BaseModule struct {
	ctx *AppContext
}

// Provision implements Provisioner.
func (b *BaseModule) Provision(ctx *AppContext) error {
	b.ctx = ctx
	return nil
}

// Context returns the module's AppContext, or nil before provisioning.
func (b *BaseModule) Context() *AppContext { return b.ctx }

// Name returns the module name from the manifest.
func (b *BaseModule) Name() string {
	if b.ctx == nil || b.ctx.Manifest == nil {
		return ""
	}
	return b.ctx.Manifest.Name
}

// Manifest returns the module's manifest, or nil before provisioning.
func (b *BaseModule) Manifest() *manifest.Manifest {
	if b.ctx == nil {
		return nil
	}
	return b.ctx.Manifest
}

// Logger returns the module-scoped logger.
func (b *BaseModule) Logger() *slog.Logger {
	if b.ctx == nil || b.ctx.Logger == nil {
		return slog.Default()
	}
	return b.ctx.Logger
}

// Store returns the shared database, or nil when none is configured.
func (b *BaseModule) Store() store.Store {
	if b.ctx == nil {
		return nil
	}
	return b.ctx.Store
}

// Install is a no-op.
func (b *BaseModule) Install(context.Context) error { return nil }

// Uninstall is a no-op.
func (b *BaseModule) Uninstall(context.Context) error { return nil }

// Enable is a no-op.
func (b *BaseModule) Enable(context.Context) error { return nil }

// Disable is a no-op.
func (b *BaseModule) Disable(context.Context) error { return nil }

// Routes returns no routes.
func (b *BaseModule) Routes() []Route { return nil }

// Presentation derives display metadata from the manifest.
func (b *BaseModule) Presentation() Presentation {
	return b.presentation(DefaultIcon)
}

func (b *BaseModule) presentation(icon string) Presentation {
	p := Presentation{Color: DefaultColor, Icon: icon}
	if m := b.Manifest(); m != nil {
		p.DisplayName = DisplayName(m.Name)
		p.Description = m.Description
	}
	return p
}

// Settings returns manifest defaults overlaid with the saved configuration.
func (b *BaseModule) Settings() map[string]any {
	if b.ctx == nil {
		return map[string]any{}
	}
	return b.ctx.Settings()
}

// DecodeSettings decodes the module settings into v, a pointer to a struct
// with json tags.
func (b *BaseModule) DecodeSettings(v any) error {
	raw, err := json.Marshal(b.Settings())
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding settings: %w", err)
	}
	return nil
}

// AdminTemplate returns the admin configuration template path, relative to
// the templates root.
func (b *BaseModule) AdminTemplate() string {
	return path.Join(b.Name(), "admin", "config.html")
}

// PaymentModuleBase is embedded by payment modules. Implementations must
// still provide ProcessPayment.
type PaymentModuleBase struct {
	BaseModule
}

// Presentation uses the payment icon.
func (b *PaymentModuleBase) Presentation() Presentation {
	return b.presentation(DefaultPaymentIcon)
}

// PaymentForm returns an empty form.
func (b *PaymentModuleBase) PaymentForm() Form { return Form{} }

// PaymentTemplate returns the checkout template path.
func (b *PaymentModuleBase) PaymentTemplate() string {
	return path.Join(b.Name(), "payment_form.html")
}

// ValidatePaymentData accepts any data.
func (b *PaymentModuleBase) ValidatePaymentData(FormData) []manifest.ValidationError {
	return nil
}

// ShippingModuleBase is embedded by shipping modules. Implementations must
// still provide CalculateShipping.
type ShippingModuleBase struct {
	BaseModule
}

// Presentation uses the shipping icon.
func (b *ShippingModuleBase) Presentation() Presentation {
	return b.presentation(DefaultShippingIcon)
}

// ShippingMethods returns no methods.
func (b *ShippingModuleBase) ShippingMethods() []ShippingMethod { return nil }

// DesignModuleBase is embedded by theme modules. Implementations must still
// provide ThemeConfig.
type DesignModuleBase struct {
	BaseModule
}

// Presentation uses the design icon.
func (b *DesignModuleBase) Presentation() Presentation {
	return b.presentation(DefaultDesignIcon)
}

// ApplyTheme returns the template unchanged.
func (b *DesignModuleBase) ApplyTheme(template string, _ map[string]any) string {
	return template
}

// DisplayName turns a module name like "bank_wire_payment" into
// "Bank Wire Payment".
func DisplayName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
