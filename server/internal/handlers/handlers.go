package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"

	"github.com/zhaobenny/sleepdash/internal/dashboard"
	"github.com/zhaobenny/sleepdash/internal/model"
	"github.com/zhaobenny/sleepdash/server/internal/auth"
	"github.com/zhaobenny/sleepdash/server/internal/database"
)

// Session keys for the remembered picker range
const (
	rangeStartKey = "range_start"
	rangeEndKey   = "range_end"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	dash       *dashboard.Dashboard
	db         *database.DB
	sessionMgr *scs.SessionManager
	templates  *template.Template
	gate       *auth.Gate
	logger     *zap.SugaredLogger
}

// New creates a new Handler
func New(dash *dashboard.Dashboard, db *database.DB, sessionMgr *scs.SessionManager, templates *template.Template, gate *auth.Gate, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		dash:       dash,
		db:         db,
		sessionMgr: sessionMgr,
		templates:  templates,
		gate:       gate,
		logger:     logger,
	}
}

type pageData struct {
	Title       string
	Range       dashboard.Range
	Start       string
	End         string
	Charts      *dashboard.Charts
	AuthEnabled bool
	Error       string
}

// Index renders the dashboard page for the remembered or default range
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	rng, err := h.dash.Range()
	if err != nil {
		h.renderError(w, r, "Sleep data is not loaded yet", http.StatusServiceUnavailable)
		return
	}

	start, end, err := h.resolveRange(r, rng)
	if err != nil {
		h.renderError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	charts, err := h.dash.Charts(start, end)
	if err != nil {
		h.renderError(w, r, "Sleep data is not loaded yet", http.StatusServiceUnavailable)
		return
	}

	data := pageData{
		Title:       h.dash.Title(),
		Range:       rng,
		Charts:      charts,
		AuthEnabled: h.gate.Enabled(),
	}
	if !rng.Empty {
		data.Start = start.Format(model.DayLayout)
		data.End = end.Format(model.DayLayout)
	}
	h.render(w, "index.html", data)
}

// Login shows the password form and checks submitted passwords
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Enabled() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := pageData{Title: h.dash.Title()}
	if r.Method != http.MethodPost {
		h.render(w, "login.html", data)
		return
	}

	if err := r.ParseForm(); err != nil {
		data.Error = "Invalid form data"
		w.WriteHeader(http.StatusBadRequest)
		h.render(w, "login.html", data)
		return
	}

	ok, err := h.gate.Login(r.Context(), r.FormValue("password"))
	if err != nil {
		h.logger.Errorw("login failed", "error", err)
		data.Error = "An error occurred"
		w.WriteHeader(http.StatusInternalServerError)
		h.render(w, "login.html", data)
		return
	}
	if !ok {
		data.Error = "Invalid password"
		w.WriteHeader(http.StatusUnauthorized)
		h.render(w, "login.html", data)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout ends the session
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.gate.Logout(r.Context()); err != nil {
		h.logger.Warnw("logout failed", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// PartialCharts returns the charts fragment for the requested range and
// remembers that range in the session
func (h *Handler) PartialCharts(w http.ResponseWriter, r *http.Request) {
	rng, err := h.dash.Range()
	if err != nil {
		h.renderError(w, r, "Sleep data is not loaded yet", http.StatusServiceUnavailable)
		return
	}
	start, end, err := h.resolveRange(r, rng)
	if err != nil {
		h.renderError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	charts, err := h.dash.Charts(start, end)
	if err != nil {
		h.renderError(w, r, "Sleep data is not loaded yet", http.StatusServiceUnavailable)
		return
	}

	h.sessionMgr.Put(r.Context(), rangeStartKey, start.Format(model.DayLayout))
	h.sessionMgr.Put(r.Context(), rangeEndKey, end.Format(model.DayLayout))

	h.render(w, "charts.html", charts)
}

// APIRange returns the picker bounds and defaults
func (h *Handler) APIRange(w http.ResponseWriter, r *http.Request) {
	rng, err := h.dash.Range()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, rng)
}

// APICharts returns the four chart payloads for the requested range
func (h *Handler) APICharts(w http.ResponseWriter, r *http.Request) {
	rng, err := h.dash.Range()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	start, end, err := h.resolveRange(r, rng)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	charts, err := h.dash.Charts(start, end)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, charts)
}

// RowsResponse is the body of /api/rows
type RowsResponse struct {
	Start string           `json:"start"`
	End   string           `json:"end"`
	Rows  []model.SleepRow `json:"rows"`
}

// APIRows returns the filtered rows for the requested range
func (h *Handler) APIRows(w http.ResponseWriter, r *http.Request) {
	rng, err := h.dash.Range()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	start, end, err := h.resolveRange(r, rng)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows, err := h.dash.Rows(start, end)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, RowsResponse{
		Start: start.Format(model.DayLayout),
		End:   end.Format(model.DayLayout),
		Rows:  rows,
	})
}

// HealthResponse is the body of /health
type HealthResponse struct {
	Status    string `json:"status"`
	Dashboard string `json:"dashboard"`
	Error     string `json:"error,omitempty"`
}

// Health handles the health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Dashboard: h.dash.State().String()}

	if err := h.db.PingContext(r.Context()); err != nil {
		resp.Status, resp.Error = "unhealthy", "database unavailable"
	} else if h.dash.State() != dashboard.StateReady {
		resp.Status = "unhealthy"
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

// resolveRange picks the query range, falling back to the session-remembered
// range and then to the picker defaults
func (h *Handler) resolveRange(r *http.Request, rng dashboard.Range) (time.Time, time.Time, error) {
	start, end := rng.DefaultStart, rng.DefaultEnd

	if s := h.sessionMgr.GetString(r.Context(), rangeStartKey); s != "" {
		if t, err := model.ParseDay(s); err == nil {
			start = t
		}
	}
	if s := h.sessionMgr.GetString(r.Context(), rangeEndKey); s != "" {
		if t, err := model.ParseDay(s); err == nil {
			end = t
		}
	}

	q := r.URL.Query()
	if s := q.Get("start"); s != "" {
		t, err := model.ParseDay(s)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("start: " + err.Error())
		}
		start = t
	}
	if s := q.Get("end"); s != "" {
		t, err := model.ParseDay(s)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("end: " + err.Error())
		}
		end = t
	}
	return start, end, nil
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Errorw("render template", "template", name, "error", err)
	}
}

// renderError sends the bare message to HTMX swaps and a full page otherwise
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, message string, status int) {
	name := "error_page.html"
	if r.Header.Get("HX-Request") == "true" {
		name = "error.html"
	}
	w.WriteHeader(status)
	h.render(w, name, map[string]interface{}{
		"Title": h.dash.Title(),
		"Error": message,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Errorw("encode response", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
