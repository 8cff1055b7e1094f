package gateway

import (
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Modules    int    `json:"modules"`
	Active     int    `json:"active"`
	Generation uint64 `json:"generation"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 503 if the modules root is no longer readable.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:     "ok",
			Modules:    len(g.mgr.Registered()),
			Active:     len(g.mgr.Active()),
			Generation: g.mgr.Generation(),
		}
		code := http.StatusOK
		if _, err := g.mgr.Discover(); err != nil {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
