package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/loomhouse/api/internal/domain"
)

type stubHealthReporter struct {
	collectFn func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthReporter) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	return s.collectFn(ctx)
}

func TestNewRouterHealthz(t *testing.T) {
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	health := NewHealthHandlers(
		WithHealthBuildInfo(BuildInfo{Version: "1.2.3", StartedAt: started}),
		WithHealthClock(func() time.Time { return started.Add(90 * time.Second) }),
	)
	router := NewRouter(WithHealthHandlers(health))

	rr := get(router, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["version"] != "1.2.3" || body["uptime"] != "1m30s" || body["status"] != "ok" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestNewRouterReadyz(t *testing.T) {
	cases := []struct {
		name   string
		report domain.SystemHealthReport
		err    error
		want   int
	}{
		{
			name: "ok",
			report: domain.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{"sheets": {Status: domain.HealthStatusOK}},
			},
			want: http.StatusOK,
		},
		{
			name: "degraded",
			report: domain.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{"sheets": {Status: domain.HealthStatusError, Error: "timeout"}},
			},
			want: http.StatusServiceUnavailable,
		},
		{name: "collect error", err: errors.New("boom"), want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reporter := &stubHealthReporter{collectFn: func(context.Context) (domain.SystemHealthReport, error) {
				return tc.report, tc.err
			}}
			router := NewRouter(WithHealthHandlers(NewHealthHandlers(WithHealthReporter(reporter))))
			rr := get(router, "/readyz")
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
			if tc.name == "degraded" {
				checks, _ := decodeBody(t, rr)["checks"].(map[string]any)
				sheets, _ := checks["sheets"].(map[string]any)
				if sheets["error"] != "timeout" {
					t.Fatalf("expected check details, got %+v", checks)
				}
			}
		})
	}
}

func TestNewRouterNotFoundEnvelope(t *testing.T) {
	rr := get(NewRouter(), "/nope")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != errorNotFoundCode || body["success"] != false {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestNewRouterActionStubWithoutRegistrar(t *testing.T) {
	rr := get(NewRouter(), "/api/v1/exec?action=getOrders")
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rr.Code)
	}
}

func TestNewRouterMountsActionsAndMetrics(t *testing.T) {
	h := NewActionHandlers(ActionHandlersDeps{})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	router := NewRouter(
		WithBasePath("/macros"),
		WithActionRoutes(h.Routes),
		WithMetricsHandler(metrics),
	)

	if rr := get(router, "/macros/exec?action=unknown"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected action endpoint under base path, got %d", rr.Code)
	}
	rr := get(router, "/metrics")
	if rr.Code != http.StatusOK || rr.Body.String() != "# metrics" {
		t.Fatalf("expected metrics handler, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestNewRouterAppliesMiddlewares(t *testing.T) {
	var seen bool
	router := NewRouter(WithMiddlewares(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = chi.RouteContext(r.Context()) != nil
			next.ServeHTTP(w, r)
		})
	}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if !seen {
		t.Fatalf("expected middleware to run")
	}
}
