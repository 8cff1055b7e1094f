package flatrate

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flemzord/storemods/internal/core"
)

// Routes implements core.Module.
func (m *Module) Routes() []core.Route {
	return []core.Route{
		{Method: http.MethodGet, Pattern: "methods/", Name: "methods", Handler: http.HandlerFunc(m.handleMethods)},
		{Method: http.MethodPost, Pattern: "quote/", Name: "quote", Handler: http.HandlerFunc(m.handleQuote)},
	}
}

type quoteRequest struct {
	Method      string           `json:"method"`
	Items       []core.CartItem  `json:"items"`
	Destination core.Destination `json:"destination"`
}

type quoteResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	Quote   core.ShippingQuote `json:"quote"`
}

func (m *Module) handleMethods(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "methods": m.ShippingMethods()})
}

func (m *Module) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, quoteResponse{Message: "Invalid quote request"})
		return
	}
	if req.Method == "" {
		req.Method = MethodStandard
	}
	q, err := m.Quote(r.Context(), req.Method, req.Items, req.Destination)
	switch {
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrUnknownMethod):
		writeJSON(w, http.StatusBadRequest, quoteResponse{Message: err.Error()})
	case errors.Is(err, ErrUnsupportedDestination):
		writeJSON(w, http.StatusUnprocessableEntity, quoteResponse{Message: err.Error()})
	case err != nil:
		m.Logger().Warn("shipping quote failed", "error", err)
		writeJSON(w, http.StatusBadRequest, quoteResponse{Message: err.Error()})
	default:
		writeJSON(w, http.StatusOK, quoteResponse{Success: true, Quote: q})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
