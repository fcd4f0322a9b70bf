package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	payloads []StockAuditPayload
	err      error
}

func (f *fakeEnqueuer) EnqueueStockAudit(_ context.Context, payload StockAuditPayload) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func newJobsRouter(enq Enqueuer) http.Handler {
	r := chi.NewRouter()
	NewHandler(nil, enq, quietLogger()).MountRoutes(r)
	return r
}

func TestHandlerHealthWithoutInspector(t *testing.T) {
	rec := httptest.NewRecorder()
	newJobsRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}

func TestHandlerEnqueueStockAudit(t *testing.T) {
	enq := &fakeEnqueuer{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/stock-audit?table=Stationery&table=Hardware&threshold=3", nil)
	newJobsRouter(enq).ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"id":"task-1","queue":"default"}`, rec.Body.String())
	require.Len(t, enq.payloads, 1)
	assert.Equal(t, []string{"Stationery", "Hardware"}, enq.payloads[0].Datasets)
	assert.EqualValues(t, 3, enq.payloads[0].LowStockThreshold)
}

func TestHandlerEnqueueRejectsBadInput(t *testing.T) {
	enq := &fakeEnqueuer{}
	router := newJobsRouter(enq)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-audit?table=DROP%20TABLE%20x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-audit?threshold=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, enq.payloads)
}

func TestHandlerEnqueueFailures(t *testing.T) {
	rec := httptest.NewRecorder()
	newJobsRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-audit", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	newJobsRouter(&fakeEnqueuer{err: errors.New("redis down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stock-audit", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
