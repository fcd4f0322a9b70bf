package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/stockbill/internal/stock"
)

// Sale outcome labels.
const (
	OutcomeOK           = "ok"
	OutcomeNotFound     = "not_found"
	OutcomeInvalid      = "invalid"
	OutcomeInsufficient = "insufficient_stock"
	OutcomeError        = "error"
)

// Metrics collects the Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	salesTotal      *prometheus.CounterVec
	unitsSold       *prometheus.CounterVec
}

// NewMetrics builds a private registry with HTTP and sale metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockbill_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockbill_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	sales := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockbill_sales_total",
		Help: "Sale attempts by dataset and outcome.",
	}, []string{"dataset", "outcome"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockbill_units_sold_total",
		Help: "Units sold by dataset.",
	}, []string{"dataset"})
	registry.MustRegister(requests, duration, sales, units,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		salesTotal:      sales,
		unitsSold:       units,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records a counter and a latency sample for every request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveSale implements stock.SaleObserver.
func (m *Metrics) ObserveSale(dataset string, quantity int64, err error) {
	if m == nil {
		return
	}
	outcome := SaleOutcome(err)
	if outcome == OutcomeInvalid && errors.Is(err, stock.ErrInvalidIdentifier) {
		// unvalidated names would give the label unbounded cardinality
		dataset = "invalid"
	}
	m.salesTotal.WithLabelValues(dataset, outcome).Inc()
	if err == nil && quantity > 0 {
		m.unitsSold.WithLabelValues(dataset).Add(float64(quantity))
	}
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// SaleOutcome maps a sale error to its metric label.
func SaleOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, stock.ErrItemNotFound):
		return OutcomeNotFound
	case errors.Is(err, stock.ErrInsufficientStock):
		return OutcomeInsufficient
	case errors.Is(err, stock.ErrInvalidQuantity), errors.Is(err, stock.ErrInvalidIdentifier):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
