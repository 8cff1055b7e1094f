package classic

import (
	"io"
	"net/http"

	"github.com/flemzord/storemods/internal/core"
)

// Routes serves the generated stylesheet.
func (m *Module) Routes() []core.Route {
	return []core.Route{{
		Method:  http.MethodGet,
		Pattern: "theme.css",
		Name:    "stylesheet",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/css; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			_, _ = io.WriteString(w, m.Stylesheet())
		}),
	}}
}
