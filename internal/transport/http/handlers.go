package transporthttp

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/webshopsessions/internal/analytics"
	"example.com/webshopsessions/internal/domain"
	"example.com/webshopsessions/internal/logging"
	"example.com/webshopsessions/internal/service"
)

const (
	homeMessage = "Session Analysis API is running."

	defaultPreviewRows = 100
	defaultMinTimeout  = 5
	defaultMaxTimeout  = 10
	// guardrail: each timeout re-sessionizes every stored event
	maxTimeoutSpan = 60
)

//go:embed openapi.yaml
var openAPISpec []byte

// OrderMetrics is what the handlers need from the service layer.
type OrderMetrics interface {
	Get(ctx context.Context, mode service.Mode) (analytics.Metrics, error)
	Distributions(ctx context.Context, minTimeout, maxTimeout int) (analytics.Exploration, error)
	Preview(ctx context.Context, limit int) ([]domain.NormalizedEvent, error)
	Ready(ctx context.Context) error
}

type ServerDeps struct {
	Metrics         OrderMetrics
	APIKeys         map[string]struct{}
	RateLimitPerMin int
	MaxPreviewRows  int
	Log             *logging.Logger
	Now             func() time.Time
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// storeFault logs a collaborator failure and answers 503.
func (d *ServerDeps) storeFault(w http.ResponseWriter, r *http.Request, what string, err error) {
	d.Log.ErrorContext(r.Context(), what+" failed", logging.Error(err))
	if errors.Is(err, context.Canceled) {
		return
	}
	WriteProblem(w, r, http.StatusServiceUnavailable, "store unavailable", what+" failed", nil)
}

// --- Root ---

func (d *ServerDeps) HandleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(homeMessage))
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := d.Metrics.Ready(r.Context()); err != nil {
		d.Log.WarnContext(r.Context(), "readiness check failed", logging.Error(err))
		WriteProblem(w, r, http.StatusServiceUnavailable, "not ready", "store not reachable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Order metrics ---

func (d *ServerDeps) HandleOrderMetrics(w http.ResponseWriter, r *http.Request) {
	mode, err := service.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "invalid parameters", "mode must be store or memory",
			map[string][]string{"mode": {err.Error()}})
		return
	}
	m, err := d.Metrics.Get(r.Context(), mode)
	if err != nil {
		d.storeFault(w, r, "order metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// --- Preview ---

type previewResp struct {
	Limit int                      `json:"limit"`
	Count int                      `json:"count"`
	Rows  []domain.NormalizedEvent `json:"rows"`
}

func (d *ServerDeps) HandlePreview(w http.ResponseWriter, r *http.Request) {
	limit := defaultPreviewRows
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			WriteProblem(w, r, http.StatusBadRequest, "invalid parameters", "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	if d.MaxPreviewRows > 0 && limit > d.MaxPreviewRows {
		limit = d.MaxPreviewRows
	}

	rows, err := d.Metrics.Preview(r.Context(), limit)
	if err != nil {
		d.storeFault(w, r, "preview", err)
		return
	}
	if rows == nil {
		rows = []domain.NormalizedEvent{}
	}
	writeJSON(w, http.StatusOK, previewResp{Limit: limit, Count: len(rows), Rows: rows})
}

// --- Timeout exploration ---

func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func (d *ServerDeps) HandleExplore(w http.ResponseWriter, r *http.Request) {
	minTimeout, err1 := intParam(r, "min_timeout", defaultMinTimeout)
	maxTimeout, err2 := intParam(r, "max_timeout", defaultMaxTimeout)
	if err1 != nil || err2 != nil {
		WriteProblem(w, r, http.StatusBadRequest, "invalid parameters", "timeouts must be integer minutes", nil)
		return
	}
	if minTimeout < 1 || maxTimeout < minTimeout || maxTimeout-minTimeout >= maxTimeoutSpan {
		WriteProblem(w, r, http.StatusBadRequest, "invalid parameters",
			"require 1 <= min_timeout <= max_timeout and at most 60 timeouts", nil)
		return
	}

	ex, err := d.Metrics.Distributions(r.Context(), minTimeout, maxTimeout)
	if err != nil {
		d.storeFault(w, r, "exploration", err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// --- Serve OpenAPI (convenience) ---

func (d *ServerDeps) HandleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openAPISpec)
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	if d.Log == nil {
		d.Log = logging.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", d.HandleHome)
	mux.HandleFunc("GET /healthz", d.HandleHealthz)
	mux.HandleFunc("GET /readyz", d.HandleReadyz)
	mux.HandleFunc("GET /openapi.yaml", d.HandleOpenAPI)
	mux.Handle("GET /internal/metrics", promhttp.Handler())

	var orderMetrics http.Handler = http.HandlerFunc(d.HandleOrderMetrics)
	orderMetrics = RateLimitPerMinute(d.RateLimitPerMin, d.Now)(orderMetrics)
	orderMetrics = APIKeyAuth(d.APIKeys)(orderMetrics)
	mux.Handle("GET /metrics/orders", orderMetrics)

	var preview http.Handler = http.HandlerFunc(d.HandlePreview)
	preview = APIKeyAuth(d.APIKeys)(preview)
	mux.Handle("GET /events/preview", preview)

	var explore http.Handler = http.HandlerFunc(d.HandleExplore)
	explore = APIKeyAuth(d.APIKeys)(explore)
	mux.Handle("GET /sessions/explore", explore)

	log := d.Log.With(logging.Component("http"))
	return RequestID(AccessLog(log)(mux))
}
