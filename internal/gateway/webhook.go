package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/storemods/internal/core"
	"github.com/flemzord/storemods/internal/manager"
)

// maxWebhookBody caps webhook payloads.
const maxWebhookBody = 1 << 20

// webhookSecretKey is the module setting holding the HMAC secret.
const webhookSecretKey = "webhook_secret"

// WebhookDispatcher routes incoming webhooks to active modules implementing
// core.WebhookReceiver, with HMAC validation when the module has a secret.
type WebhookDispatcher struct {
	mgr     *manager.Manager
	logger  *slog.Logger
	metrics *Metrics
}

// NewWebhookDispatcher creates a ready-to-use dispatcher.
func NewWebhookDispatcher(m *manager.Manager, logger *slog.Logger, metrics *Metrics) *WebhookDispatcher {
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &WebhookDispatcher{mgr: m, logger: logger, metrics: metrics}
}

// receiver returns the active module accepting webhooks under name.
func (d *WebhookDispatcher) receiver(name string) (core.WebhookReceiver, bool) {
	info, ok := d.mgr.Info(name)
	if !ok || !info.IsActive {
		return nil, false
	}
	mod, ok := d.mgr.Module(name)
	if !ok {
		return nil, false
	}
	rcv, ok := mod.(core.WebhookReceiver)
	return rcv, ok
}

// secret returns the module's saved webhook secret, if any.
func (d *WebhookDispatcher) secret(name string) string {
	cfg := d.mgr.Settings().Registry().Get(name)
	if cfg == nil {
		saved, ok, err := d.mgr.Settings().Load(name, nil)
		if err != nil {
			d.logger.Warn("reading webhook settings failed", "module", name, "error", err)
		}
		if !ok {
			return ""
		}
		cfg = saved
	}
	s, _ := cfg[webhookSecretKey].(string)
	return s
}

// ServeHTTP implements http.Handler. It extracts the module from the chi URL
// param, validates HMAC if configured, and dispatches to the module.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := chi.URLParam(r, "module")
	rcv, ok := d.receiver(name)
	if !ok {
		d.logger.Warn("webhook received for unknown or inactive module", "module", name)
		writeError(w, http.StatusNotFound, "no active module accepts webhooks under this name")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxWebhookBody {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	if secret := d.secret(name); secret != "" {
		if !validateHMAC(body, r.Header.Get("X-Signature-256"), secret) {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	if err := rcv.HandleWebhook(r.Context(), body, r.Header); err != nil {
		d.logger.Error("webhook handler failed", "module", name, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	d.metrics.RecordWebhook()
	writeJSON(w, http.StatusOK, response{Success: true, Message: "ok"})
}

// validateHMAC checks HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
