package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/extract"
	"github.com/garyjia/bill-reconciler/internal/infrastructure/persistence/repository"
	"github.com/garyjia/bill-reconciler/internal/reconcile"
	"github.com/garyjia/bill-reconciler/internal/summary"
	"github.com/garyjia/bill-reconciler/pkg/database"
)

func newTestRouter(t *testing.T) (*gin.Engine, *repository.BillRepository, *repository.SummaryRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).Run("../../../migrations"))

	billRepo := repository.NewBillRepository(db.DB, logger)
	summaryRepo := repository.NewSummaryRepository(db.DB, logger)

	handlers := NewHandlers(
		extract.NewExtractor(logger),
		summary.NewSummarizer(reconcile.DefaultConfig(), logger),
		billRepo,
		summaryRepo,
		logger,
	)

	router := gin.New()
	handlers.RegisterRoutes(router)
	return router, billRepo, summaryRepo
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

const consistentBill = `{
	"bill_id": "bill-1",
	"vendor_name": "Acme Corp",
	"date": "2026-01-15",
	"line_items": [
		{"description": "A", "amount": 20.00},
		{"description": "B", "amount": 30.00}
	],
	"final_total": 50.00
}`

func TestHealthCheck(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestReconcileBill(t *testing.T) {
	router, _, summaryRepo := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/reconcile", consistentBill)
	require.Equal(t, http.StatusOK, w.Code)

	var sum summary.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, "bill-1", sum.BillID)
	assert.True(t, sum.Report.IsConsistent)

	// The synchronous run is persisted too.
	record, err := summaryRepo.GetLatestByBillID(context.Background(), "bill-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "50.00", record.ComputedTotal)
}

func TestReconcileBillTextFormat(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/reconcile?format=text", consistentBill)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bill Summary: bill-1")
	assert.Contains(t, w.Body.String(), "Computed Total: 50.00")
}

func TestReconcileBillRejectsMalformedJSON(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/reconcile", `{broken`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileBillRejectsInvalidBill(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// Sub-total ref out of range is a construction-time validation error.
	body := `{
		"bill_id": "b", "vendor_name": "v", "date": "2026-01-01",
		"line_items": [{"description": "x", "amount": 5}],
		"sub_totals": [{"label": "s", "amount": 5, "line_item_refs": [9]}]
	}`
	w := doRequest(router, http.MethodPost, "/api/v1/reconcile", body)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestReconcileBatch(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body := `{"bills": [` + consistentBill + `, {
		"bill_id": "bill-2",
		"vendor_name": "Other Corp",
		"date": "2026-01-16",
		"line_items": [{"description": "C", "amount": 12.00}]
	}]}`

	w := doRequest(router, http.MethodPost, "/api/v1/reconcile/batch", body)
	require.Equal(t, http.StatusOK, w.Code)

	var result summary.CombinedResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.BillCount)
	assert.Equal(t, "62", result.CombinedTotal.String())
	assert.Equal(t, []string{"bill-2"}, result.UnverifiableBillIDs)
}

func TestReconcileBatchRejectsBadBill(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body := `{"bills": [{"vendor_name": "", "date": "", "line_items": []}]}`
	w := doRequest(router, http.MethodPost, "/api/v1/reconcile/batch", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "index 0")
}

func TestSubmitBillAndFetchSummary(t *testing.T) {
	router, billRepo, summaryRepo := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/bills", consistentBill)
	require.Equal(t, http.StatusAccepted, w.Code)

	record, err := billRepo.GetByBillID(context.Background(), "bill-1")
	require.NoError(t, err)
	require.NotNil(t, record)

	// No summary yet: the worker has not run.
	w = doRequest(router, http.MethodGet, "/api/v1/bills/bill-1/summary", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Simulate the worker having produced one.
	logger := zap.NewNop()
	s := summary.NewSummarizer(reconcile.DefaultConfig(), logger)
	bill, err := extract.NewExtractor(logger).FromJSON([]byte(consistentBill))
	require.NoError(t, err)
	rec, err := repository.FromSummary(s.Summarize(bill))
	require.NoError(t, err)
	require.NoError(t, summaryRepo.Create(context.Background(), rec))

	w = doRequest(router, http.MethodGet, "/api/v1/bills/bill-1/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"bill_id":"bill-1"`)

	// Duplicate submission conflicts.
	w = doRequest(router, http.MethodPost, "/api/v1/bills", consistentBill)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListSummaries(t *testing.T) {
	router, _, _ := newTestRouter(t)

	doRequest(router, http.MethodPost, "/api/v1/reconcile", consistentBill)

	inconsistent := strings.Replace(consistentBill, `"final_total": 50.00`, `"final_total": 45.00`, 1)
	inconsistent = strings.Replace(inconsistent, `"bill_id": "bill-1"`, `"bill_id": "bill-2"`, 1)
	doRequest(router, http.MethodPost, "/api/v1/reconcile", inconsistent)

	w := doRequest(router, http.MethodGet, "/api/v1/summaries", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	w = doRequest(router, http.MethodGet, "/api/v1/summaries?inconsistent=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.Contains(t, w.Body.String(), "bill-2")

	w = doRequest(router, http.MethodGet, "/api/v1/summaries?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
