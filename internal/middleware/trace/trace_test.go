package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"household/internal/log"
)

type observation struct {
	method, route string
	code          int
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (o *recordingObserver) ObserveHTTP(method, route string, code int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.obs = append(o.obs, observation{method, route, code})
}

func newTestMiddleware(buf *bytes.Buffer, obs Observer) *Middleware {
	logger := log.New(log.Config{Level: slog.LevelDebug, Output: buf})
	return NewMiddleware(logger, func(*http.Request) string { return "127.0.0.1" }, obs)
}

func TestMiddleware_AssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	m := newTestMiddleware(&buf, nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		log.FromContext(r.Context()).Info("inside handler")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("X-Request-ID = %q, want %q", rec.Header().Get("X-Request-ID"), seen)
	}
	if !strings.Contains(buf.String(), "request_id="+seen) {
		t.Errorf("handler log should carry the request id: %s", buf.String())
	}
}

func TestMiddleware_KeepsValidIncomingID(t *testing.T) {
	var buf bytes.Buffer
	h := newTestMiddleware(&buf, nil).Middleware(http.NotFoundHandler())

	for in, keep := range map[string]bool{"abc-123": true, "bad id!": false, strings.Repeat("x", 65): false} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", in)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID") == in; got != keep {
			t.Errorf("incoming %q kept=%v, want %v", in, got, keep)
		}
	}
}

func TestMiddleware_ObservesRouteAndStatus(t *testing.T) {
	var buf bytes.Buffer
	obs := &recordingObserver{}
	m := newTestMiddleware(&buf, obs)

	mux := http.NewServeMux()
	mux.Handle("GET /expenses/{id}", Route("GET /expenses/{id}", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})))
	h := m.Middleware(mux)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/expenses/42", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if len(obs.obs) != 2 {
		t.Fatalf("observations = %d", len(obs.obs))
	}
	if obs.obs[0] != (observation{"GET", "GET /expenses/{id}", 500}) {
		t.Errorf("first observation = %+v", obs.obs[0])
	}
	if obs.obs[1].route != "unmatched" || obs.obs[1].code != 404 {
		t.Errorf("second observation = %+v", obs.obs[1])
	}

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 2 || metrics.ServerErrorRequests != 1 {
		t.Errorf("metrics = %+v", metrics)
	}
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Error("5xx should be logged at error level")
	}
}

func TestGenerateRequestIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
