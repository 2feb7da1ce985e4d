package handlers

import (
	"context"
	"net/http"
	"time"

	domain "github.com/loomhouse/api/internal/domain"
	"github.com/loomhouse/api/internal/platform/httpx"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthReporter collects dependency probes for readiness.
type HealthReporter interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	build    BuildInfo
	reporter HealthReporter
	now      func() time.Time
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo sets the build metadata echoed by /healthz.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) { h.build = info }
}

// WithHealthReporter sets the dependency reporter used by /readyz.
func WithHealthReporter(reporter HealthReporter) HealthOption {
	return func(h *HealthHandlers) { h.reporter = reporter }
}

// WithHealthClock overrides the clock.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHealthHandlers constructs probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.now()
	}
	return h
}

// Healthz reports liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.now().UTC()
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"status":      domain.HealthStatusOK,
		"version":     h.build.Version,
		"commit":      h.build.CommitSHA,
		"environment": h.build.Environment,
		"uptime":      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp":   now.Format(time.RFC3339),
	})
}

// Readyz probes dependencies; any failed check answers 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{"status": domain.HealthStatusOK})
		return
	}
	report, err := h.reporter.Collect(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("health_unavailable", err.Error(), http.StatusServiceUnavailable))
		return
	}
	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":    check.Status,
			"detail":    check.Detail,
			"latencyMs": check.Latency.Milliseconds(),
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}
	payload := map[string]any{
		"status":      report.Status,
		"checks":      checks,
		"generatedAt": report.GeneratedAt.UTC().Format(time.RFC3339),
	}
	if report.Status == domain.HealthStatusOK {
		httpx.WriteSuccess(w, http.StatusOK, "", payload)
		return
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("not_ready", "dependencies degraded", http.StatusServiceUnavailable).WithDetails(payload))
}
