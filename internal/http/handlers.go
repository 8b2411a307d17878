package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"household/internal/log"
)

// pinger is implemented by backends that can check their connection.
type pinger interface {
	Ping(ctx context.Context) error
}

// versioner is implemented by backends that count document writes.
type versioner interface {
	Version(ctx context.Context) (int64, error)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": s.ledger.Now().Format(time.RFC3339),
		"uptime":    s.ledger.Now().Sub(s.started).Round(time.Second).String(),
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if len(s.pages) != len(pageNames) {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.storage == nil:
		checks["storage"] = "not_configured"
	default:
		if p, ok := s.storage.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				checks["storage"] = fmt.Sprintf("failed: %v", err)
				status = "not_ready"
				httpStatus = http.StatusServiceUnavailable
				reqLogger(r, log.ComponentStorage).WarnContext(ctx, "Storage readiness check failed",
					log.FieldError, err)
			} else {
				checks["storage"] = "ok"
			}
		} else {
			checks["storage"] = "ok"
		}
	}

	if v, ok := s.storage.(versioner); ok {
		if version, err := v.Version(ctx); err != nil {
			checks["document_version"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["document_version"] = version
		}
	}

	checks["carts"] = s.sessions.ActiveCarts()
	checks["rate_limited_clients"] = s.limiter.ActiveClients()

	tm := s.tracer.GetMetrics()
	checks["requests_total"] = tm.TotalRequests
	checks["server_errors_total"] = tm.ServerErrorRequests

	response := map[string]interface{}{
		"status":    status,
		"timestamp": s.ledger.Now().Format(time.RFC3339),
		"checks":    checks,
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(response)
}
