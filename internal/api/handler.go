package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/streamwatch/streamwatch/internal/auth"
	"github.com/streamwatch/streamwatch/internal/dispatch"
	"github.com/streamwatch/streamwatch/internal/store"
)

// Handler serves the status API.
type Handler struct {
	src     Source
	store   *store.Store
	auth    auth.Checker
	metrics http.Handler
	sockets map[string]http.Handler
	router  chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuth guards the /api/v1 routes with c.
func WithAuth(c auth.Checker) Option { return func(h *Handler) { h.auth = c } }

// WithMetrics serves m at /metrics.
func WithMetrics(m http.Handler) Option { return func(h *Handler) { h.metrics = m } }

// WithSocket serves ws at /ws/{alias}.
func WithSocket(alias string, ws http.Handler) Option {
	return func(h *Handler) { h.sockets[alias] = ws }
}

// New creates a Handler reading engine state from src and history from st.
func New(src Source, st *store.Store, opts ...Option) http.Handler {
	h := &Handler{
		src:     src,
		store:   st,
		sockets: make(map[string]http.Handler),
	}
	for _, o := range opts {
		o(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Get("/health", h.health)
		r.Get("/tests", h.tests)
		r.Get("/streams", h.streams)
		r.Get("/integrations", h.integrations)
		r.Get("/notifications", h.notifications)
		r.Get("/notifications/{test}", h.notification)
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	if len(h.sockets) > 0 {
		r.Get("/ws/{alias}", h.socket)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns the engine state: idle before any stream runs, running while
// streams are live, degraded once one fails, finished when all completed.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	streams := h.src.Streams()
	resp := HealthResponse{
		TestCount:   len(h.src.Tests()),
		StreamCount: len(streams),
	}
	for _, s := range streams {
		switch s.State {
		case dispatch.StateRunning:
			resp.Running++
		case dispatch.StateCompleted:
			resp.Completed++
		case dispatch.StateFailed:
			resp.Failed++
		}
	}
	for _, e := range h.store.List() {
		resp.Notifications += e.Failures + e.Errors
	}

	switch {
	case len(streams) == 0:
		resp.State = "idle"
	case resp.Failed > 0:
		resp.State = "degraded"
	case resp.Running == 0:
		resp.State = "finished"
	default:
		resp.State = "running"
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) tests(w http.ResponseWriter, _ *http.Request) {
	infos := h.src.Tests()
	out := make([]TestResponse, 0, len(infos))
	for _, ti := range infos {
		tr := TestResponse{TestInfo: ti}
		if e, ok := h.store.Get(ti.Name); ok {
			tr.Failures = e.Failures
			tr.Errors = e.Errors
			tr.LastNotified = e.UpdatedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, tr)
	}
	jsonResp(w, http.StatusOK, out)
}

func (h *Handler) streams(w http.ResponseWriter, _ *http.Request) {
	out := h.src.Streams()
	if out == nil {
		out = []dispatch.Status{}
	}
	jsonResp(w, http.StatusOK, out)
}

func (h *Handler) integrations(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.src.Integrations())
}

func (h *Handler) notifications(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.store.List())
}

func (h *Handler) notification(w http.ResponseWriter, r *http.Request) {
	e, ok := h.store.Get(chi.URLParam(r, "test"))
	if !ok {
		jsonErr(w, http.StatusNotFound, "no notifications for test")
		return
	}
	jsonResp(w, http.StatusOK, e)
}

func (h *Handler) socket(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.sockets[chi.URLParam(r, "alias")]
	if !ok {
		jsonErr(w, http.StatusNotFound, "no websocket integration with that alias")
		return
	}
	ws.ServeHTTP(w, r)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("api: encode response", "err", err)
		code = http.StatusInternalServerError
		buf.Reset()
		json.NewEncoder(&buf).Encode(errorResponse{Error: "response could not be encoded"}) //nolint:errcheck
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes()) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
