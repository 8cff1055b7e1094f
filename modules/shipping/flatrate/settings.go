package flatrate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Settings is the admin-configurable part of the module. Amounts are in
// minor currency units.
type Settings struct {
	BaseCost              Number `json:"base_cost"`
	ExpressCost           Number `json:"express_cost"`
	PerKgCost             Number `json:"per_kg_cost"`
	FreeShippingThreshold Number `json:"free_shipping_threshold"`
	Currency              string `json:"currency"`
	EstimatedDays         Number `json:"estimated_days"`
	ExpressDays           Number `json:"express_days"`
	AllowedCountries      string `json:"allowed_countries"`
}

// Number is an integer setting. Manifest defaults arrive as JSON numbers
// and values saved from the admin form as strings; both decode.
type Number int64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		*n = 0
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		raw = []byte(strings.TrimSpace(s))
		if len(raw) == 0 {
			*n = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return fmt.Errorf("flatrate: %q is not a number", raw)
	}
	if f < 0 {
		return fmt.Errorf("flatrate: %v must not be negative", f)
	}
	*n = Number(f)
	return nil
}
