package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/stockbill/internal/stock"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	body := scrape(t, metrics)
	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected runtime collectors, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/items/{sno}/edit")

	req := httptest.NewRequest(http.MethodGet, "/items/3/edit", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `stockbill_http_requests_total{code="418",route="/items/{sno}/edit"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `stockbill_http_request_duration_seconds_bucket{route="/items/{sno}/edit"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObserveSale(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveSale("Stationery", 30, nil)
	metrics.ObserveSale("Stationery", 5, nil)
	metrics.ObserveSale("Stationery", 1000, stock.ErrInsufficientStock)
	metrics.ObserveSale("Stationery", 0, stock.ErrInvalidQuantity)
	metrics.ObserveSale("bad name", 1, fmt.Errorf("%w: %q", stock.ErrInvalidIdentifier, "bad name"))

	body := scrape(t, metrics)
	for _, want := range []string{
		`stockbill_sales_total{dataset="Stationery",outcome="ok"} 2`,
		`stockbill_sales_total{dataset="Stationery",outcome="insufficient_stock"} 1`,
		`stockbill_sales_total{dataset="Stationery",outcome="invalid"} 1`,
		`stockbill_sales_total{dataset="invalid",outcome="invalid"} 1`,
		`stockbill_units_sold_total{dataset="Stationery"} 35`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in:\n%s", want, body)
		}
	}
}

func TestSaleOutcome(t *testing.T) {
	cases := map[error]string{
		nil:                        OutcomeOK,
		stock.ErrItemNotFound:      OutcomeNotFound,
		stock.ErrInsufficientStock: OutcomeInsufficient,
		stock.ErrInvalidQuantity:   OutcomeInvalid,
		errors.New("db down"):      OutcomeError,
	}
	for err, want := range cases {
		if got := SaleOutcome(err); got != want {
			t.Fatalf("SaleOutcome(%v) = %s, want %s", err, got, want)
		}
	}
}
