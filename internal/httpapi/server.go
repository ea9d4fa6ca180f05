package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentd/internal/queue"
	"agentd/pkg/types"
)

// Service defines the methods required by the HTTP API layer. Implemented
// by queue.Manager.
type Service interface {
	Submit(req types.SubmitRequest) (types.SubmitResponse, error)
	Wait(ctx context.Context, id string, timeout time.Duration) (*types.ExecutionResult, error)
	Cancel(id string) bool
	Status() types.StatusResponse
	Ready() bool
}

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints.
var maxBodyBytes int64 = 1 << 20

// Default wait budgets for the submit-and-wait and poll endpoints.
const (
	defaultInlineWait = 60 * time.Second
	defaultPollWait   = 50 * time.Millisecond
)

// NewMux builds the HTTP router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger)

	r.Post("/requests", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Input) == "" {
			writeJSONError(w, http.StatusBadRequest, "input is required")
			return
		}
		sub, err := svc.Submit(req)
		if err != nil {
			ObserveRejection(err)
			writeServiceError(w, err)
			return
		}
		if !boolParam(r, "wait") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(sub)
			return
		}
		res, err := svc.Wait(r.Context(), sub.RequestID, waitBudget(r, defaultInlineWait))
		writeResult(w, sub.RequestID, res, err)
	})

	r.Get("/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, err := svc.Wait(r.Context(), id, waitBudget(r, defaultPollWait))
		if err != nil && queue.IsWaitTimeout(err) {
			// Still running; not an error for a poll.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(types.ResultResponse{RequestID: id, Error: "pending"})
			return
		}
		writeResult(w, id, res, err)
	})

	r.Delete("/requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		cancelled := svc.Cancel(id)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"request_id": id, "cancelled": cancelled})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// writeResult encodes a terminal result or maps the failure to a status.
func writeResult(w http.ResponseWriter, id string, res *types.ExecutionResult, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(types.ResultResponse{RequestID: id, Result: res})
}

// writeServiceError maps the core error taxonomy to HTTP codes.
func writeServiceError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case queue.IsNotFound(err):
		code = http.StatusNotFound
	case queue.IsTooBusy(err):
		code = http.StatusTooManyRequests
	case queue.IsDegraded(err), queue.IsShutdown(err):
		code = http.StatusServiceUnavailable
	case queue.IsWaitTimeout(err), queue.IsExecutionTimeout(err):
		code = http.StatusGatewayTimeout
	case queue.IsCancelled(err), queue.IsConflict(err):
		code = http.StatusConflict
	}
	writeJSONError(w, code, err.Error())
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: code})
}

// waitBudget reads the timeout_ms query parameter with a fallback.
func waitBudget(r *http.Request, fallback time.Duration) time.Duration {
	if v := r.URL.Query().Get("timeout_ms"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return fallback
}

func boolParam(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	return v == "1" || strings.EqualFold(v, "true")
}
