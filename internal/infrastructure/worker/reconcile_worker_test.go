package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/domain/entity"
	"github.com/garyjia/bill-reconciler/internal/extract"
	"github.com/garyjia/bill-reconciler/internal/infrastructure/persistence/repository"
	"github.com/garyjia/bill-reconciler/internal/reconcile"
	"github.com/garyjia/bill-reconciler/internal/summary"
	"github.com/garyjia/bill-reconciler/pkg/database"
)

func newTestWorker(t *testing.T) (*ReconcileWorker, *repository.BillRepository, *repository.SummaryRepository) {
	t.Helper()

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

	w := NewReconcileWorker(
		ReconcileWorkerConfig{PollInterval: 10 * time.Millisecond, BatchSize: 10},
		billRepo,
		summaryRepo,
		extract.NewExtractor(logger),
		summary.NewSummarizer(reconcile.DefaultConfig(), logger),
		logger,
	)
	return w, billRepo, summaryRepo
}

func storeBill(t *testing.T, billRepo *repository.BillRepository, billID string, payload map[string]any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, billRepo.Create(context.Background(), &entity.BillRecord{
		BillID:     billID,
		VendorName: "Acme Corp",
		Date:       "2026-01-15",
		Currency:   "USD",
		PageCount:  1,
		Payload:    string(raw),
		Status:     entity.BillStatusPending,
	}))
}

func TestProcessPendingReconcilesBill(t *testing.T) {
	w, billRepo, summaryRepo := newTestWorker(t)
	ctx := context.Background()

	storeBill(t, billRepo, "bill-1", map[string]any{
		"bill_id":     "bill-1",
		"vendor_name": "Acme Corp",
		"date":        "2026-01-15",
		"line_items": []any{
			map[string]any{"description": "A", "amount": "20.00"},
			map[string]any{"description": "B", "amount": "30.00"},
		},
		"final_total": "45.00",
	})

	processed, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	record, err := billRepo.GetByBillID(ctx, "bill-1")
	require.NoError(t, err)
	assert.Equal(t, entity.BillStatusReconciled, record.Status)

	sum, err := summaryRepo.GetLatestByBillID(ctx, "bill-1")
	require.NoError(t, err)
	require.NotNil(t, sum)
	assert.Equal(t, "50.00", sum.ComputedTotal)
	assert.Equal(t, "45.00", sum.StatedTotal)
	assert.Equal(t, "5.00", sum.Discrepancy)
	assert.False(t, sum.IsConsistent)
}

func TestProcessPendingMarksBadPayloadFailed(t *testing.T) {
	w, billRepo, summaryRepo := newTestWorker(t)
	ctx := context.Background()

	// Structurally invalid: sub-total references a missing line item.
	storeBill(t, billRepo, "bill-bad", map[string]any{
		"bill_id":     "bill-bad",
		"vendor_name": "Acme Corp",
		"date":        "2026-01-15",
		"line_items": []any{
			map[string]any{"description": "A", "amount": "20.00"},
		},
		"sub_totals": []any{
			map[string]any{"label": "s", "amount": "20.00", "line_item_refs": []any{7}},
		},
	})

	_, err := w.ProcessPending(ctx)
	require.NoError(t, err)

	record, err := billRepo.GetByBillID(ctx, "bill-bad")
	require.NoError(t, err)
	assert.Equal(t, entity.BillStatusFailed, record.Status)

	sum, err := summaryRepo.GetLatestByBillID(ctx, "bill-bad")
	require.NoError(t, err)
	assert.Nil(t, sum)
}

func TestProcessPendingEmptyQueue(t *testing.T) {
	w, _, _ := newTestWorker(t)

	processed, err := w.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestWorkerStartStop(t *testing.T) {
	w, billRepo, summaryRepo := newTestWorker(t)

	storeBill(t, billRepo, "bill-1", map[string]any{
		"bill_id":     "bill-1",
		"vendor_name": "Acme Corp",
		"date":        "2026-01-15",
		"line_items": []any{
			map[string]any{"description": "A", "amount": "10.00"},
		},
	})

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "double start is rejected")

	require.Eventually(t, func() bool {
		sum, err := summaryRepo.GetLatestByBillID(context.Background(), "bill-1")
		return err == nil && sum != nil
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "stop is idempotent")
}
