package flatrate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
	"github.com/flemzord/storemods/internal/upload"
)

type savedSettings map[string]any

func (s savedSettings) Get(string) map[string]any { return s }

func newModule(t *testing.T, saved savedSettings) *Module {
	t.Helper()
	raw, err := fs.ReadFile(files, manifest.FileName)
	if err != nil {
		t.Fatal(err)
	}
	man, err := manifest.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := core.NewAppContext(logger, nil).WithSettings(saved).ForModule(Name, t.TempDir(), man)
	m := new(Module)
	if err := m.Provision(appCtx); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCalculateShipping(t *testing.T) {
	tests := []struct {
		name  string
		saved savedSettings
		items []core.CartItem
		want  int64
	}{
		{
			name:  "base cost",
			items: []core.CartItem{{SKU: "a", Quantity: 2, UnitPrice: 1000}},
			want:  1500,
		},
		{
			name:  "free above threshold",
			items: []core.CartItem{{SKU: "a", Quantity: 2, UnitPrice: 10000}},
			want:  0,
		},
		{
			name:  "threshold disabled",
			saved: savedSettings{"free_shipping_threshold": "0"},
			items: []core.CartItem{{SKU: "a", Quantity: 5, UnitPrice: 10000}},
			want:  1500,
		},
		{
			name:  "per started kilogram",
			saved: savedSettings{"per_kg_cost": "200"},
			items: []core.CartItem{{SKU: "a", Quantity: 3, UnitPrice: 100, WeightGrams: 700}},
			want:  1500 + 3*200,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newModule(t, tt.saved)
			q, err := m.CalculateShipping(context.Background(), tt.items, core.Destination{Country: "PL"})
			if err != nil {
				t.Fatalf("CalculateShipping: %v", err)
			}
			if q.Cost != tt.want {
				t.Errorf("cost = %d, want %d", q.Cost, tt.want)
			}
			if q.Method != MethodStandard || q.Currency != "PLN" || q.EstimatedDays != 3 {
				t.Errorf("quote = %+v", q)
			}
		})
	}
}

func TestQuote_Errors(t *testing.T) {
	m := newModule(t, savedSettings{"allowed_countries": "pl, de"})
	ctx := context.Background()
	items := []core.CartItem{{SKU: "a", Quantity: 1, UnitPrice: 100}}

	if _, err := m.Quote(ctx, MethodStandard, nil, core.Destination{Country: "PL"}); !errors.Is(err, ErrEmptyCart) {
		t.Errorf("empty cart: %v", err)
	}
	if _, err := m.Quote(ctx, MethodStandard, items, core.Destination{Country: "FR"}); !errors.Is(err, ErrUnsupportedDestination) {
		t.Errorf("destination: %v", err)
	}
	if _, err := m.Quote(ctx, "drone", items, core.Destination{Country: "de"}); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("method: %v", err)
	}
	if _, err := m.Quote(ctx, MethodStandard, []core.CartItem{{SKU: "a"}}, core.Destination{Country: "DE"}); err == nil {
		t.Error("expected error for zero quantity")
	}
}

func TestExpress(t *testing.T) {
	m := newModule(t, nil)
	q, err := m.Quote(context.Background(), MethodExpress,
		[]core.CartItem{{SKU: "a", Quantity: 1, UnitPrice: 50000}}, core.Destination{Country: "PL"})
	if err != nil {
		t.Fatal(err)
	}
	if q.Cost != 3000 || q.EstimatedDays != 1 {
		t.Errorf("express quote = %+v", q)
	}
	if got := len(m.ShippingMethods()); got != 2 {
		t.Errorf("methods = %d, want 2", got)
	}

	m = newModule(t, savedSettings{"express_cost": 0})
	if got := len(m.ShippingMethods()); got != 1 {
		t.Errorf("methods without express = %d, want 1", got)
	}
	if _, err := m.Quote(context.Background(), MethodExpress,
		[]core.CartItem{{SKU: "a", Quantity: 1}}, core.Destination{}); !errors.Is(err, ErrUnknownMethod) {
		t.Errorf("err = %v", err)
	}
}

func TestNumber(t *testing.T) {
	tests := []struct {
		raw     string
		want    Number
		wantErr bool
	}{
		{`12`, 12, false},
		{`"34"`, 34, false},
		{`" 5 "`, 5, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"abc"`, 0, true},
		{`-1`, 0, true},
	}
	for _, tt := range tests {
		var n Number
		err := json.Unmarshal([]byte(tt.raw), &n)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v", tt.raw, err)
			continue
		}
		if !tt.wantErr && n != tt.want {
			t.Errorf("%s: got %d, want %d", tt.raw, n, tt.want)
		}
	}
}

func TestRoutes(t *testing.T) {
	m := newModule(t, savedSettings{"allowed_countries": "PL"})
	mux := http.NewServeMux()
	for _, r := range m.Routes() {
		mux.Handle("/"+r.Pattern, r.Handler)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/methods/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"express"`) {
		t.Errorf("methods: %d %s", rec.Code, rec.Body)
	}

	quote := func(body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/quote/", strings.NewReader(body)))
		return rec
	}

	rec = quote(`{"items":[{"sku":"a","quantity":1,"unit_price":500}],"destination":{"country":"PL"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("quote: %d %s", rec.Code, rec.Body)
	}
	var resp quoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Quote.Cost != 1500 {
		t.Errorf("quote = %+v", resp)
	}

	if rec := quote(`{`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", rec.Code)
	}
	if rec := quote(`{"items":[]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty cart status = %d", rec.Code)
	}
	if rec := quote(`{"items":[{"sku":"a","quantity":1}],"destination":{"country":"US"}}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unsupported destination status = %d", rec.Code)
	}
}

func TestBundledDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), Name)
	if err := os.CopyFS(dir, files); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifest.PackageFile), []byte("module example.com/flatrate\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := upload.ValidateStructure(dir)
	if !res.Valid {
		t.Fatalf("bundled module invalid: %v", res.Errors)
	}
	if _, ok := core.GetModule(Name); !ok {
		t.Error("module not registered")
	}
}
