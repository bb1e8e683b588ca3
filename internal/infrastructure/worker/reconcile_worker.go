package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/domain/entity"
	"github.com/garyjia/bill-reconciler/internal/extract"
	"github.com/garyjia/bill-reconciler/internal/infrastructure/persistence/repository"
	"github.com/garyjia/bill-reconciler/internal/summary"
)

// ReconcileWorkerConfig holds configuration for the reconcile worker
type ReconcileWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultReconcileWorkerConfig returns default configuration
func DefaultReconcileWorkerConfig() ReconcileWorkerConfig {
	return ReconcileWorkerConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    10,
	}
}

// ReconcileWorker drains pending stored bills: it re-normalizes each payload,
// runs the reconciliation engine, persists the summary, and marks the bill
// reconciled. A payload that fails normalization is marked failed and never
// retried; reconciliation itself cannot fail, inconsistency is recorded in
// the summary.
type ReconcileWorker struct {
	config ReconcileWorkerConfig

	billRepo    *repository.BillRepository
	summaryRepo *repository.SummaryRepository
	extractor   *extract.Extractor
	summarizer  *summary.Summarizer
	logger      *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(
	config ReconcileWorkerConfig,
	billRepo *repository.BillRepository,
	summaryRepo *repository.SummaryRepository,
	extractor *extract.Extractor,
	summarizer *summary.Summarizer,
	logger *zap.Logger,
) *ReconcileWorker {
	return &ReconcileWorker{
		config:      config,
		billRepo:    billRepo,
		summaryRepo: summaryRepo,
		extractor:   extractor,
		summarizer:  summarizer,
		logger:      logger,
	}
}

// Name implements Worker
func (w *ReconcileWorker) Name() string {
	return "reconcile_worker"
}

// Start begins the polling loop
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("reconcile worker already running")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("ReconcileWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(ctx)
	return nil
}

// Stop terminates the worker and waits for the in-flight batch to finish.
func (w *ReconcileWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("ReconcileWorker stopped")
	return nil
}

func (w *ReconcileWorker) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("Failed to process batch", zap.Error(err))
			}
		}
	}
}

// ProcessPending reconciles one batch of pending bills. Exposed for the
// polling loop and for tests; returns the number of bills processed.
func (w *ReconcileWorker) ProcessPending(ctx context.Context) (int, error) {
	records, err := w.billRepo.ListByStatus(ctx, entity.BillStatusPending, w.config.BatchSize)
	if err != nil {
		return 0, err
	}

	for _, record := range records {
		if err := w.reconcileOne(ctx, record); err != nil {
			w.logger.Error("Failed to reconcile stored bill",
				zap.String("bill_id", record.BillID), zap.Error(err))
			if err := w.billRepo.UpdateStatus(ctx, record.BillID, entity.BillStatusFailed); err != nil {
				w.logger.Error("Failed to mark bill failed",
					zap.String("bill_id", record.BillID), zap.Error(err))
			}
		}
	}
	return len(records), nil
}

func (w *ReconcileWorker) processBatch(ctx context.Context) error {
	_, err := w.ProcessPending(ctx)
	return err
}

func (w *ReconcileWorker) reconcileOne(ctx context.Context, record *entity.BillRecord) error {
	bill, err := w.extractor.FromJSON([]byte(record.Payload))
	if err != nil {
		return fmt.Errorf("failed to normalize stored payload: %w", err)
	}

	sum := w.summarizer.Summarize(bill)
	summaryRecord, err := repository.FromSummary(sum)
	if err != nil {
		return err
	}

	if err := w.summaryRepo.Create(ctx, summaryRecord); err != nil {
		return err
	}
	if err := w.billRepo.UpdateStatus(ctx, record.BillID, entity.BillStatusReconciled); err != nil {
		return err
	}

	w.logger.Info("Bill reconciled",
		zap.String("bill_id", record.BillID),
		zap.String("computed_total", summaryRecord.ComputedTotal),
		zap.Bool("is_consistent", summaryRecord.IsConsistent))
	return nil
}
