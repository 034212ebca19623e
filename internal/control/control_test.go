package control

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/randomizedcoder/sidecar-supervisor/internal/supervisor"
)

// fakeSupervisor records calls and returns canned results.
type fakeSupervisor struct {
	startResult supervisor.StartResult
	stopResult  supervisor.StopResult
	running     bool
	err         error

	starts, stops, statuses int
}

func (f *fakeSupervisor) Start() (supervisor.StartResult, error) {
	f.starts++
	return f.startResult, f.err
}

func (f *fakeSupervisor) Stop() (supervisor.StopResult, error) {
	f.stops++
	return f.stopResult, f.err
}

func (f *fakeSupervisor) Status() (bool, error) {
	f.statuses++
	return f.running, f.err
}

func newTestHandler(sup Supervisor) *Handler {
	return NewHandler(sup, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	if rec.Code != http.StatusMethodNotAllowed && rec.Code != http.StatusNotFound {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("response is not JSON: %q", rec.Body.String())
		}
	}
	return rec, body
}

func TestHandler_Success(t *testing.T) {
	tests := []struct {
		name   string
		sup    *fakeSupervisor
		method string
		path   string
		key    string
		want   any
	}{
		{"start", &fakeSupervisor{startResult: supervisor.Started}, http.MethodPost, "/sidecar/start", "result", "started"},
		{"start twice", &fakeSupervisor{startResult: supervisor.AlreadyRunning}, http.MethodPost, "/sidecar/start", "result", "already_running"},
		{"stop", &fakeSupervisor{stopResult: supervisor.Stopped}, http.MethodPost, "/sidecar/stop", "result", "stopped"},
		{"stop idle", &fakeSupervisor{stopResult: supervisor.NotRunning}, http.MethodPost, "/sidecar/stop", "result", "not_running"},
		{"status running", &fakeSupervisor{running: true}, http.MethodGet, "/sidecar/status", "running", true},
		{"status idle", &fakeSupervisor{}, http.MethodGet, "/sidecar/status", "running", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, newTestHandler(tt.sup), tt.method, tt.path)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if body[tt.key] != tt.want {
				t.Errorf("%s = %v, want %v", tt.key, body[tt.key], tt.want)
			}
		})
	}
}

func TestHandler_Errors(t *testing.T) {
	spawnErr := &supervisor.Error{Kind: supervisor.KindSpawn, Err: errors.New("exec format error")}

	for _, path := range []string{"/sidecar/start", "/sidecar/stop"} {
		t.Run(path, func(t *testing.T) {
			rec, body := do(t, newTestHandler(&fakeSupervisor{err: spawnErr}), http.MethodPost, path)
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			if body["error"] != "failed to spawn sidecar: exec format error" {
				t.Errorf("error = %v", body["error"])
			}
			if body["kind"] != "spawn" {
				t.Errorf("kind = %v", body["kind"])
			}
		})
	}

	t.Run("plain error has no kind", func(t *testing.T) {
		rec, body := do(t, newTestHandler(&fakeSupervisor{err: errors.New("odd")}), http.MethodGet, "/sidecar/status")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if _, ok := body["kind"]; ok {
			t.Errorf("kind should be omitted: %v", body)
		}
	})
}

func TestHandler_MethodsEnforced(t *testing.T) {
	sup := &fakeSupervisor{startResult: supervisor.Started}
	h := newTestHandler(sup)

	rec, _ := do(t, h, http.MethodGet, "/sidecar/start")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /sidecar/start = %d, want 405", rec.Code)
	}
	rec, _ = do(t, h, http.MethodPost, "/sidecar/status")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /sidecar/status = %d, want 405", rec.Code)
	}
	if sup.starts != 0 || sup.statuses != 0 {
		t.Errorf("rejected requests reached the supervisor: starts=%d statuses=%d", sup.starts, sup.statuses)
	}

	rec, _ = do(t, h, http.MethodGet, "/sidecar/unknown")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path = %d, want 404", rec.Code)
	}
}

func TestHandler_Register(t *testing.T) {
	sup := &fakeSupervisor{running: true}
	mux := http.NewServeMux()
	newTestHandler(sup).Register(mux)

	rec, body := do(t, mux, http.MethodGet, "/sidecar/status")
	if rec.Code != http.StatusOK || body["running"] != true {
		t.Errorf("mounted status = %d %v", rec.Code, body)
	}
	if sup.statuses != 1 {
		t.Errorf("statuses = %d, want 1", sup.statuses)
	}
}
