// Package server is the HTTP surface of the tool-execution service: the
// execute endpoint, CORS handling, health probes, and the Prometheus scrape
// endpoint. All JSON bodies flow through the envelope types here; handlers
// and the gate never touch the ResponseWriter themselves.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/auth"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/health"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/observe"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// Runner executes one admitted request. Satisfied by [exec.Executor].
type Runner interface {
	Execute(ctx context.Context, adm *auth.Admission, req *tool.Request) tool.Result
}

// Config carries the server's construction-time options.
type Config struct {
	// AllowedOrigin is the Access-Control-Allow-Origin header value.
	// Defaults to "*" — a deliberate, documented wildcard; tighten per
	// deployment via configuration.
	AllowedOrigin string

	// Metrics receives HTTP and gate metrics. May be nil.
	Metrics *observe.Metrics

	// Health serves /healthz and /readyz. May be nil to skip registration.
	Health *health.Handler

	Log *slog.Logger
}

// Server wires the gate and executor behind the HTTP contract.
type Server struct {
	gate    *auth.Gate
	runner  Runner
	metrics *observe.Metrics
	health  *health.Handler
	log     *slog.Logger

	// allowedOrigin is hot-reloadable; see [Server.SetAllowedOrigin].
	allowedOrigin atomic.Value // string
}

// New creates a Server around the given gate and runner.
func New(gate *auth.Gate, runner Runner, cfg Config) *Server {
	s := &Server{
		gate:    gate,
		runner:  runner,
		metrics: cfg.Metrics,
		health:  cfg.Health,
		log:     cfg.Log,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	origin := cfg.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	s.allowedOrigin.Store(origin)
	return s
}

// SetAllowedOrigin replaces the CORS origin without a restart. Called by the
// config watcher on reload.
func (s *Server) SetAllowedOrigin(origin string) {
	if origin == "" {
		origin = "*"
	}
	s.allowedOrigin.Store(origin)
}

// Handler returns the fully assembled HTTP handler: routes wrapped in the
// CORS, panic-recovery, and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/tools/execute", s.handleExecute)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}

	var h http.Handler = mux
	if s.metrics != nil {
		h = observe.Middleware(s.metrics)(h)
	}
	h = s.recoverPanics(h)
	return s.cors(h)
}

// ── Execute endpoint ─────────────────────────────────────────────────────────

// toolRef is the tool snapshot echoed in execution responses.
type toolRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// executeResponse is the envelope for requests that reached a handler. The
// shape is identical for success and handler failure; callers must check the
// success flag, not just the HTTP status.
type executeResponse struct {
	Success         bool    `json:"success"`
	Data            any     `json:"data,omitempty"`
	Error           string  `json:"error,omitempty"`
	ExecutionTimeMS int64   `json:"execution_time_ms"`
	Tool            toolRef `json:"tool"`
}

// errorResponse is the envelope for requests stopped before execution: gate
// rejections and internal errors.
type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req tool.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Error("malformed request body", "err", err)
		s.internalError(w)
		return
	}

	adm, err := s.gate.Admit(ctx, r.Header.Get("Authorization"), &req)
	if err != nil {
		var rej *auth.Rejection
		if errors.As(err, &rej) {
			if s.metrics != nil {
				s.metrics.RecordRejection(ctx, rejectionCode(rej))
			}
			writeJSON(w, rej.Status, errorResponse{
				Error:   rej.Message,
				Code:    rej.Code,
				Details: rej.Details,
			})
			return
		}
		s.log.Error("gate failure", "err", err)
		s.internalError(w)
		return
	}

	res := s.runner.Execute(ctx, adm, &req)

	status := http.StatusOK
	if !res.Success {
		// The envelope is well-formed either way; the 500 signals the broad
		// category to callers that only look at the status line.
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, executeResponse{
		Success:         res.Success,
		Data:            res.Data,
		Error:           res.Error,
		ExecutionTimeMS: res.ExecutionTimeMS,
		Tool: toolRef{
			ID:       adm.Tool.ID,
			Name:     adm.Tool.Name,
			Category: adm.Tool.Category,
		},
	})
}

// rejectionCode is the metric label for a gate rejection: the wire code when
// present, otherwise the HTTP status.
func rejectionCode(rej *auth.Rejection) string {
	if rej.Code != "" {
		return rej.Code
	}
	return strconv.Itoa(rej.Status)
}

func (s *Server) internalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error: "Internal server error",
		Code:  auth.CodeInternalError,
	})
}

// ── Middleware ───────────────────────────────────────────────────────────────

// cors stamps CORS headers on every response and short-circuits preflight
// OPTIONS requests with an empty 200.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.allowedOrigin.Load().(string))
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanics converts a panicking handler into a 500 INTERNAL_ERROR
// response instead of tearing down the connection.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic in request handler", "panic", rec, "path", r.URL.Path)
				s.internalError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}
