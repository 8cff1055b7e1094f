package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/storemods/internal/manager"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime     time.Duration               `json:"uptime_seconds"`
	Metrics    MetricsSnapshot             `json:"metrics"`
	Operations map[string]manager.OpCounts `json:"operations"`
	Registered int                         `json:"registered"`
	Installed  int                         `json:"installed"`
	Active     int                         `json:"active"`
	Routes     int                         `json:"routes"`
	Generation uint64                      `json:"generation"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Metrics:    g.metrics.Snapshot(),
			Operations: g.mgr.Metrics().Snapshot(),
			Registered: len(g.mgr.Registered()),
			Installed:  len(g.mgr.Installed()),
			Active:     len(g.mgr.Active()),
			Routes:     len(g.mgr.Routes()),
			Generation: g.mgr.Generation(),
		}
		if !g.startedAt.IsZero() {
			resp.Uptime = time.Since(g.startedAt).Truncate(time.Second) / time.Second
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
