package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/storemods/internal/cert"
	"github.com/flemzord/storemods/internal/manager"
	"github.com/flemzord/storemods/internal/security"
	"github.com/flemzord/storemods/internal/settings"
	"github.com/flemzord/storemods/internal/upload"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to disk.
const multipartMemory = 8 << 20

var (
	errBadRequest    = errors.New("bad request")
	errUnknownAction = errors.New("unknown action")
)

// response is the envelope of every admin API answer.
type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type listResponse struct {
	response
	Modules []manager.Info `json:"modules"`
	Total   int            `json:"total"`
	Active  int            `json:"active"`
}

type moduleResponse struct {
	response
	Module manager.Info `json:"module"`
}

type reportResponse struct {
	response
	Report *manager.Report `json:"report,omitempty"`
}

type uploadResponse struct {
	response
	Module *upload.Outcome `json:"module"`
}

type configResponse struct {
	response
	Module string         `json:"module"`
	Saved  bool           `json:"saved"`
	Config map[string]any `json:"config"`
}

type routeInfo struct {
	Name    string `json:"name"`
	Method  string `json:"method,omitempty"`
	Pattern string `json:"pattern"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, response{Success: false, Message: msg})
}

// fail maps err to a status code and writes it.
func (g *Gateway) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		g.logger.Error("admin request failed", "error", err)
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	var (
		vf  *upload.ValidationFailure
		mbe *http.MaxBytesError
	)
	switch {
	case errors.Is(err, manager.ErrNotFound), errors.Is(err, upload.ErrArchiveNotFound), errors.Is(err, errUnknownAction):
		return http.StatusNotFound
	case errors.As(err, &vf), errors.Is(err, manager.ErrValidation), errors.Is(err, upload.ErrNotZip),
		errors.Is(err, upload.ErrUnsafePath), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, cert.ErrUnsigned), errors.Is(err, cert.ErrSignature):
		return http.StatusForbidden
	case errors.Is(err, manager.ErrNotInstalled), errors.Is(err, upload.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, upload.ErrTooLarge), errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, manager.ErrDependency), errors.Is(err, manager.ErrLoad),
		errors.Is(err, manager.ErrNoImplementation), errors.Is(err, manager.ErrAmbiguous):
		return http.StatusUnprocessableEntity
	case errors.Is(err, security.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		all := g.mgr.AllInfo()
		resp := listResponse{
			response: response{Success: true},
			Modules:  make([]manager.Info, 0, len(all)),
			Total:    len(all),
		}
		for _, name := range slices.Sorted(maps.Keys(all)) {
			info := all[name]
			if info.IsActive {
				resp.Active++
			}
			resp.Modules = append(resp.Modules, info)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (g *Gateway) handleModuleDetail() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		info, ok := g.mgr.Info(name)
		if !ok {
			g.fail(w, fmt.Errorf("%w: %s", manager.ErrNotFound, name))
			return
		}
		writeJSON(w, http.StatusOK, moduleResponse{response: response{Success: true}, Module: info})
	}
}

// handleModuleAction accepts {"action": ..., "module_name": ...} as JSON or
// as form fields.
func (g *Gateway) handleModuleAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action     string `json:"action"`
			ModuleName string `json:"module_name"`
		}
		if isJSON(r) {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				g.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
				return
			}
		} else {
			req.Action = r.FormValue("action")
			req.ModuleName = r.FormValue("module_name")
		}
		if req.Action == "" || req.ModuleName == "" {
			writeError(w, http.StatusBadRequest, "action and module_name are required")
			return
		}
		g.respondAction(w, r, req.Action, req.ModuleName)
	}
}

func (g *Gateway) handleNamedAction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.respondAction(w, r, chi.URLParam(r, "action"), chi.URLParam(r, "name"))
	}
}

func (g *Gateway) respondAction(w http.ResponseWriter, r *http.Request, action, name string) {
	msg, report, err := g.runAction(r.Context(), action, name)
	if err != nil {
		g.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{response: response{Success: true, Message: msg}, Report: report})
}

func (g *Gateway) runAction(ctx context.Context, action, name string) (string, *manager.Report, error) {
	switch action {
	case "install":
		if err := g.mgr.Install(ctx, name); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Module %s installed successfully", name), nil, nil
	case "enable":
		if err := g.mgr.Enable(ctx, name); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Module %s enabled", name), nil, nil
	case "disable":
		if err := g.mgr.Disable(ctx, name); err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("Module %s disabled", name), nil, nil
	case "uninstall":
		report, err := g.mgr.Uninstall(ctx, name)
		if err != nil {
			return "", report, err
		}
		return report.Summary(), report, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", errUnknownAction, action)
	}
}

// handlePurge requires ?confirm=<name> so a purge is never a single click.
func (g *Gateway) handlePurge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		if r.URL.Query().Get("confirm") != name {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("purge requires confirm=%s", name))
			return
		}
		report, err := g.mgr.Purge(r.Context(), name)
		if err != nil {
			g.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reportResponse{
			response: response{Success: true, Message: report.Summary()},
			Report:   report,
		})
	}
}

func (g *Gateway) handleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxUploadSize+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				g.fail(w, fmt.Errorf("%w: %v", upload.ErrTooLarge, err))
				return
			}
			g.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, header, err := r.FormFile("module_file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "No file uploaded")
			return
		}
		defer file.Close()

		sig, err := cert.ParseSignature(r.FormValue("signature"))
		if err != nil {
			g.fail(w, err)
			return
		}
		out, err := g.uploads.UploadSigned(r.Context(), header.Filename, file, sig)
		if err != nil {
			g.fail(w, err)
			return
		}
		g.metrics.RecordUpload()
		writeJSON(w, http.StatusOK, uploadResponse{
			response: response{Success: true, Message: out.Message()},
			Module:   out,
		})
	}
}

func (g *Gateway) handleDownload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		f, err := g.uploads.OpenArchive(name)
		if err != nil {
			g.fail(w, err)
			return
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			g.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name + ".zip"}))
		http.ServeContent(w, r, name+".zip", st.ModTime(), f)
	}
}

// currentConfig returns the module's saved settings, or its defaults.
func (g *Gateway) currentConfig(name string) (map[string]any, bool, error) {
	man, ok := g.mgr.Manifest(name)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", manager.ErrNotFound, name)
	}
	return g.mgr.Settings().Load(name, settings.Default(man))
}

func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		cfg, saved, err := g.currentConfig(name)
		if err != nil {
			g.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, configResponse{
			response: response{Success: true},
			Module:   name,
			Saved:    saved,
			Config:   g.redactor.RedactMap(cfg),
		})
	}
}

// handleSaveConfig merges the submitted values into the current settings.
// A value equal to the redaction placeholder keeps the stored secret.
func (g *Gateway) handleSaveConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		cfg, _, err := g.currentConfig(name)
		if err != nil {
			g.fail(w, err)
			return
		}

		submitted := map[string]any{}
		if isJSON(r) {
			if err := json.NewDecoder(r.Body).Decode(&submitted); err != nil {
				g.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				g.fail(w, fmt.Errorf("%w: %v", errBadRequest, err))
				return
			}
			for k := range r.PostForm {
				submitted[k] = r.PostForm.Get(k)
			}
		}

		changed := make([]string, 0, len(submitted))
		for k, v := range submitted {
			if s, ok := v.(string); ok && s == security.RedactPlaceholder {
				continue
			}
			cfg[k] = v
			changed = append(changed, k)
		}
		slices.Sort(changed)

		err = g.mgr.Settings().Save(name, cfg)
		g.audit.Log(security.AuditEvent{
			Type:    security.EventModuleConfig,
			Module:  name,
			Actor:   manager.ActorFromContext(r.Context()),
			Success: err == nil,
			Metadata: map[string]string{
				"keys": strings.Join(changed, ","),
			},
		})
		if err != nil {
			g.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, configResponse{
			response: response{Success: true, Message: fmt.Sprintf("Configuration for %s saved", name)},
			Module:   name,
			Saved:    true,
			Config:   g.redactor.RedactMap(cfg),
		})
	}
}

func (g *Gateway) handleListRoutes() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		routes := g.mgr.Routes()
		out := make([]routeInfo, len(routes))
		for i, rt := range routes {
			out[i] = routeInfo{Name: rt.Name, Method: rt.Method, Pattern: "/" + rt.Pattern}
		}
		writeJSON(w, http.StatusOK, struct {
			response
			Routes []routeInfo `json:"routes"`
		}{response{Success: true}, out})
	}
}

func isJSON(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/json"
}
