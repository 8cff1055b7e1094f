package bankwire

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manifest"
)

// Routes implements core.Module. Patterns are relative to the module.
func (m *Module) Routes() []core.Route {
	return []core.Route{
		{Method: http.MethodGet, Pattern: "payment_form/", Name: "payment_form", Handler: http.HandlerFunc(m.handleForm)},
		{Pattern: "payment_process/", Name: "payment_process", Handler: http.HandlerFunc(m.handleProcess)},
		{Method: http.MethodGet, Pattern: "payment_success/", Name: "payment_success", Handler: http.HandlerFunc(m.handleSuccess)},
		{Method: http.MethodGet, Pattern: "payment_error/", Name: "payment_error", Handler: http.HandlerFunc(m.handleError)},
	}
}

type formResponse struct {
	Success     bool              `json:"success"`
	Template    string            `json:"template"`
	Form        core.Form         `json:"form"`
	BankDetails map[string]string `json:"bank_details"`
}

type processResponse struct {
	Success     bool     `json:"success"`
	Reference   string   `json:"reference,omitempty"`
	RedirectURL string   `json:"redirect_url,omitempty"`
	Message     string   `json:"message,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

type successResponse struct {
	Success     bool              `json:"success"`
	Transaction Transaction       `json:"transaction"`
	BankDetails map[string]string `json:"bank_details"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (m *Module) handleForm(w http.ResponseWriter, _ *http.Request) {
	s, err := m.settings()
	if err != nil {
		m.Logger().Error("decoding settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error loading payment form"})
		return
	}
	writeJSON(w, http.StatusOK, formResponse{
		Success:     true,
		Template:    m.PaymentTemplate(),
		Form:        m.PaymentForm(),
		BankDetails: s.details(),
	})
}

func (m *Module) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: "Invalid request method"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "Invalid form data"})
		return
	}

	data := core.FormData{}
	for k := range r.PostForm {
		data[k] = r.PostForm.Get(k)
	}
	if errs := m.ValidatePaymentData(data); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, processResponse{Errors: manifest.Messages(errs)})
		return
	}

	var amount int64
	if v := data["amount"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, processResponse{Errors: []string{"Invalid amount"}})
			return
		}
		amount = n
	}

	out, err := m.ProcessPayment(r.Context(), core.PaymentRequest{
		OrderID:  data["order_id"],
		Amount:   amount,
		Currency: data["currency"],
		Email:    data["email"],
		Data:     data,
	})
	if err != nil {
		m.Logger().Error("bank wire payment failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, processResponse{RedirectURL: out.RedirectURL, Message: out.Message})
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		Success:     out.Success,
		Reference:   out.Reference,
		RedirectURL: out.RedirectURL,
		Message:     out.Message,
	})
}

func (m *Module) handleSuccess(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("reference")
	if ref == "" {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "No payment data found"})
		return
	}
	tx, err := m.Transaction(r.Context(), ref)
	if errors.Is(err, ErrUnknownReference) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "No payment data found"})
		return
	}
	if err != nil {
		m.Logger().Error("loading transaction", "reference", ref, "error", err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error loading success page"})
		return
	}
	s, err := m.settings()
	if err != nil {
		m.Logger().Error("decoding settings", "error", err)
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "Error loading success page"})
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Transaction: tx, BankDetails: s.details()})
}

func (m *Module) handleError(w http.ResponseWriter, r *http.Request) {
	msg := r.URL.Query().Get("message")
	if msg == "" {
		msg = "Payment processing failed"
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
