package bills_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockbill/internal/bills"
	"github.com/odyssey-erp/stockbill/internal/shared"
	"github.com/odyssey-erp/stockbill/internal/stock"
	"github.com/odyssey-erp/stockbill/internal/stock/stocktest"
	"github.com/odyssey-erp/stockbill/internal/view"
)

type fakePDF struct {
	html string
	err  error
}

func (f *fakePDF) RenderHTML(_ context.Context, html string) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7"), nil
}

func newBillsRouter(t *testing.T, pdf bills.PDFClient) http.Handler {
	t.Helper()
	store := stocktest.New()
	store.Seed("Stationery", seededItems()...)
	engine, err := view.NewEngine()
	require.NoError(t, err)
	var renderer *bills.Renderer
	if pdf != nil {
		renderer, err = bills.NewRenderer(engine, pdf)
		require.NoError(t, err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := bills.NewService(stock.NewService(store, stock.ServiceConfig{Logger: logger}), func() time.Time { return billTime })
	h := bills.NewHandler(logger, svc, engine, shared.NewCSRFManager("secret"), renderer, "Stationery")
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandlerBillAll(t *testing.T) {
	rec := get(newBillsRouter(t, nil), "/bills?table=Stationery")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Pen")
	assert.Contains(t, body, "Ink")
	assert.Contains(t, body, "280.00")
	assert.Contains(t, body, "2024-03-01 10:30:00")
}

func TestHandlerBillSingle(t *testing.T) {
	router := newBillsRouter(t, nil)

	rec := get(router, "/bills/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Pen")
	assert.NotContains(t, rec.Body.String(), "Ink")

	rec = get(router, "/bills/9?table=Stationery")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/items?table=Stationery", rec.Header().Get("Location"))

	rec = get(router, "/bills/abc")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerBillInvalidDataset(t *testing.T) {
	rec := get(newBillsRouter(t, nil), "/bills?table=bad-name")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerExportCSV(t *testing.T) {
	rec := get(newBillsRouter(t, nil), "/bills/export.csv?table=Stationery")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Stationery-bill.csv")
	assert.Contains(t, rec.Body.String(), "1,Pen,Acme")
}

func TestHandlerPDF(t *testing.T) {
	pdf := &fakePDF{}
	rec := get(newBillsRouter(t, pdf), "/bills/1/pdf")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.7", rec.Body.String())
	assert.Contains(t, pdf.html, "Pen")
	assert.NotContains(t, pdf.html, "<nav")
}

func TestHandlerPDFUnavailable(t *testing.T) {
	rec := get(newBillsRouter(t, nil), "/bills/1/pdf")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(newBillsRouter(t, &fakePDF{err: errors.New("gotenberg down")}), "/bills/1/pdf")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
