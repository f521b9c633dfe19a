package dispatcher

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"swap-settlement-go/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	SignatureHeader = "quidax-signature"
	maxBodyBytes    = 1 << 20
)

// Pinger is a dependency checked by /healthz
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a health check function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handler struct {
	dispatcher *Dispatcher
	secret     string
	checks     map[string]Pinger
	metrics    *metrics.Metrics
}

func NewHandler(d *Dispatcher, secret string, checks map[string]Pinger, m *metrics.Metrics) *Handler {
	return &Handler{dispatcher: d, secret: secret, checks: checks, metrics: m}
}

// Router mounts the webhook and ops endpoints. registry may be nil, in which
// case /metrics is not served.
func (h *Handler) Router(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/webhooks/quidax", h.Webhook)
	r.Get("/healthz", h.Health)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(registry))
	}
	return r
}

// Webhook acknowledges every authenticated event it could hand to the
// queue, including the ones it deliberately ignores. Only a queue failure
// asks the exchange to redeliver.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get(SignatureHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(signature), []byte(h.secret)) != 1 {
		zap.L().Warn("Rejected webhook with invalid signature", zap.String("remote_addr", r.RemoteAddr))
		h.metrics.ObserveWebhook("", "unauthorized")
		writeJSON(w, http.StatusUnauthorized, response{Status: "error", Message: "invalid signature"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, response{Status: "error", Message: "body too large"})
		return
	}

	_, err = h.dispatcher.Dispatch(r.Context(), body)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, response{Status: "queued"})
	case errors.Is(err, ErrUnknownEvent):
		writeJSON(w, http.StatusOK, response{Status: "ignored"})
	case errors.Is(err, ErrMalformedEvent):
		writeJSON(w, http.StatusOK, response{Status: "rejected", Message: err.Error()})
	default:
		zap.L().Error("Failed to dispatch webhook", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, response{Status: "error", Message: "queue unavailable"})
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}
	writeJSON(w, status, healthResponse{Status: result, Checks: checks})
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("Failed to write response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		zap.L().Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}
