// Package control exposes the supervisor's start/stop/status operations
// over HTTP for the host shell.
//
// Endpoints:
//
//	POST /sidecar/start   {"result":"started"|"already_running"}
//	POST /sidecar/stop    {"result":"stopped"|"not_running"}
//	GET  /sidecar/status  {"running":true|false}
//
// Failures answer 500 with {"error":"<message>","kind":"<kind>"}.
package control

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/randomizedcoder/sidecar-supervisor/internal/supervisor"
)

// Supervisor is the subset of *supervisor.Supervisor the handler drives.
type Supervisor interface {
	Start() (supervisor.StartResult, error)
	Stop() (supervisor.StopResult, error)
	Status() (bool, error)
}

// Mux is anything handlers can be mounted on.
type Mux interface {
	Handle(pattern string, handler http.Handler)
}

// Handler serves the control endpoints.
type Handler struct {
	sup    Supervisor
	logger *slog.Logger
	mux    *http.ServeMux
}

// ResultResponse is the body of a successful start or stop.
type ResultResponse struct {
	Result string `json:"result"`
}

// StatusResponse is the body of a status query.
type StatusResponse struct {
	Running bool `json:"running"`
}

// ErrorResponse is the body of a failed operation.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// NewHandler creates a control handler for sup.
func NewHandler(sup Supervisor, logger *slog.Logger) *Handler {
	h := &Handler{
		sup:    sup,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /sidecar/start", h.start)
	h.mux.HandleFunc("POST /sidecar/stop", h.stop)
	h.mux.HandleFunc("GET /sidecar/status", h.status)
	return h
}

// Register mounts the endpoints on mux.
func (h *Handler) Register(mux Mux) {
	mux.Handle("/sidecar/", h)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	result, err := h.sup.Start()
	if err != nil {
		h.writeError(w, "start", err)
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Result: result.String()})
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	result, err := h.sup.Stop()
	if err != nil {
		h.writeError(w, "stop", err)
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Result: result.String()})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	running, err := h.sup.Status()
	if err != nil {
		h.writeError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Running: running})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	resp := ErrorResponse{Error: err.Error()}
	if kind := supervisor.KindOf(err); kind != 0 {
		resp.Kind = kind.String()
	}
	h.logger.Warn("control_request_failed", "op", op, "kind", resp.Kind, "error", err)
	writeJSON(w, http.StatusInternalServerError, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
