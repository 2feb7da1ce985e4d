// Package metrics exposes Prometheus collectors for the HTTP surface and the order services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Registry owns a private Prometheus registry so tests can build isolated instances.
type Registry struct {
	reg *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	orders        *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
	notifications *prometheus.CounterVec
	itemsFallback *prometheus.CounterVec
}

// NewRegistry registers the collectors plus the Go runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, action and status.",
		}, []string{"method", "route", "action", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "action"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Accepted order submissions.",
		}, []string{"payment_method", "duplicate"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_status_changes_total",
			Help:      "Fulfillment status transitions.",
		}, []string{"from", "to", "forced"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_notifications_total",
			Help:      "Customer notifications by kind and outcome.",
		}, []string{"kind", "outcome"}),
		itemsFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_items_fallback_total",
			Help:      "Order reads that fell back to the item store.",
		}, []string{"reason"}),
	}
	r.reg.MustRegister(
		r.httpRequests, r.httpDuration, r.orders, r.statusChanges, r.notifications, r.itemsFallback,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) OrderSubmitted(paymentMethod string, duplicate bool) {
	r.orders.WithLabelValues(paymentMethod, strconv.FormatBool(duplicate)).Inc()
}

func (r *Registry) StatusUpdated(from, to string, forced bool) {
	r.statusChanges.WithLabelValues(from, to, strconv.FormatBool(forced)).Inc()
}

func (r *Registry) NotificationSent(kind string, err error) {
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	r.notifications.WithLabelValues(kind, outcome).Inc()
}

func (r *Registry) ItemsFallback(reason string) {
	r.itemsFallback.WithLabelValues(reason).Inc()
}

// ActionFunc resolves the action label after the handler ran. The response header lets handlers
// report actions read from a POST body.
type ActionFunc func(r *http.Request, header http.Header) string

// Middleware records request counts and latency keyed by the chi route pattern.
func (r *Registry) Middleware(action ActionFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)

			route := req.URL.Path
			if rctx := chi.RouteContext(req.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			name := ""
			if action != nil {
				name = action(req, ww.Header())
			}
			r.httpRequests.WithLabelValues(req.Method, route, name, strconv.Itoa(status)).Inc()
			r.httpDuration.WithLabelValues(req.Method, route, name).Observe(time.Since(start).Seconds())
		})
	}
}
