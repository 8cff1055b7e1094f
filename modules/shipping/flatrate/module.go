// Package flatrate is a shipping calculator charging a fixed price per
// order, optionally raised per started kilogram and waived above a cart
// subtotal.
package flatrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
)

// Name is the module name.
const Name = "flat_rate_shipping"

// Shipping method IDs.
const (
	MethodStandard = "standard"
	MethodExpress  = "express"
)

//go:embed manifest.json module.go templates
var files embed.FS

var (
	// ErrEmptyCart is returned when a quote is requested for no items.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrUnsupportedDestination is returned for countries outside the
	// allowed list.
	ErrUnsupportedDestination = errors.New("destination not served")

	// ErrUnknownMethod is returned for methods the module does not offer.
	ErrUnknownMethod = errors.New("unknown shipping method")
)

func init() {
	core.RegisterModule(&Module{})
}

// Module implements core.ShippingModule.
type Module struct {
	core.ShippingModuleBase
}

var _ core.ShippingModule = (*Module)(nil)

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:    Name,
		Type:  manifest.TypeShipping,
		New:   func() core.Module { return new(Module) },
		Files: files,
	}
}

// Presentation implements core.Module.
func (m *Module) Presentation() core.Presentation {
	p := m.ShippingModuleBase.Presentation()
	p.DisplayName = "Flat Rate Shipping"
	p.Color = "#198754"
	return p
}

// ShippingMethods lists standard shipping and, when priced, express.
func (m *Module) ShippingMethods() []core.ShippingMethod {
	s, err := m.config()
	if err != nil {
		m.Logger().Error("decoding settings", "error", err)
		return nil
	}
	methods := []core.ShippingMethod{{
		ID:          MethodStandard,
		Name:        "Standard delivery",
		Description: fmt.Sprintf("Delivered in %d business days", s.EstimatedDays),
	}}
	if s.ExpressCost > 0 {
		methods = append(methods, core.ShippingMethod{
			ID:          MethodExpress,
			Name:        "Express delivery",
			Description: fmt.Sprintf("Delivered in %d business days", s.ExpressDays),
		})
	}
	return methods
}

// CalculateShipping quotes the standard method.
func (m *Module) CalculateShipping(ctx context.Context, items []core.CartItem, dest core.Destination) (core.ShippingQuote, error) {
	return m.Quote(ctx, MethodStandard, items, dest)
}

// Quote prices method for the cart. The free shipping threshold applies to
// the standard method only.
func (m *Module) Quote(_ context.Context, method string, items []core.CartItem, dest core.Destination) (core.ShippingQuote, error) {
	s, err := m.config()
	if err != nil {
		return core.ShippingQuote{}, err
	}
	if len(items) == 0 {
		return core.ShippingQuote{}, ErrEmptyCart
	}
	if !s.serves(dest.Country) {
		return core.ShippingQuote{}, fmt.Errorf("%w: %q", ErrUnsupportedDestination, dest.Country)
	}

	var subtotal int64
	var grams int
	for _, it := range items {
		if it.Quantity <= 0 {
			return core.ShippingQuote{}, fmt.Errorf("invalid quantity %d for %s", it.Quantity, it.SKU)
		}
		subtotal += it.UnitPrice * int64(it.Quantity)
		grams += it.WeightGrams * it.Quantity
	}
	kilos := int64((grams + 999) / 1000)

	q := core.ShippingQuote{Method: method, Currency: s.Currency}
	switch method {
	case MethodStandard:
		q.Cost = int64(s.BaseCost) + kilos*int64(s.PerKgCost)
		q.EstimatedDays = int(s.EstimatedDays)
		if s.FreeShippingThreshold > 0 && subtotal >= int64(s.FreeShippingThreshold) {
			q.Cost = 0
		}
	case MethodExpress:
		if s.ExpressCost <= 0 {
			return core.ShippingQuote{}, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
		}
		q.Cost = int64(s.ExpressCost) + kilos*int64(s.PerKgCost)
		q.EstimatedDays = int(s.ExpressDays)
	default:
		return core.ShippingQuote{}, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}
	return q, nil
}

func (m *Module) config() (Settings, error) {
	var s Settings
	if err := m.DecodeSettings(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) serves(country string) bool {
	if strings.TrimSpace(s.AllowedCountries) == "" {
		return true
	}
	allowed := strings.Split(strings.ToUpper(s.AllowedCountries), ",")
	for i := range allowed {
		allowed[i] = strings.TrimSpace(allowed[i])
	}
	return slices.Contains(allowed, strings.ToUpper(strings.TrimSpace(country)))
}
