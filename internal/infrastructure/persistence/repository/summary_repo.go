package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/domain/entity"
	"github.com/garyjia/bill-reconciler/internal/summary"
)

// FromSummary flattens a summary for persistence, keeping the full summary
// JSON alongside the indexed columns.
func FromSummary(sum summary.Summary) (*entity.SummaryRecord, error) {
	raw, err := json.Marshal(sum)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}

	record := &entity.SummaryRecord{
		BillID:             sum.BillID,
		ComputedTotal:      sum.Report.ComputedTotal.StringFixed(2),
		IsConsistent:       sum.Report.IsConsistent,
		SubtotalMismatches: len(sum.Report.SubtotalMismatches),
		OverlapWarnings:    len(sum.Report.Overlaps),
		SummaryJSON:        string(raw),
	}
	if sum.Report.StatedTotal != nil {
		record.StatedTotal = sum.Report.StatedTotal.StringFixed(2)
	}
	if sum.Report.Discrepancy != nil {
		record.Discrepancy = sum.Report.Discrepancy.StringFixed(2)
	}
	return record, nil
}

// SummaryRepository stores reconciliation outcomes. A bill can have several
// summaries over time (e.g. re-runs with a different tolerance); readers
// usually want the latest.
type SummaryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *sql.DB, logger *zap.Logger) *SummaryRepository {
	return &SummaryRepository{db: db, logger: logger}
}

// Create inserts a new summary record
func (r *SummaryRepository) Create(ctx context.Context, record *entity.SummaryRecord) error {
	query := `
		INSERT INTO summaries (
			bill_id, computed_total, stated_total, discrepancy,
			is_consistent, subtotal_mismatches, overlap_warnings, summary_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		record.BillID,
		record.ComputedTotal,
		nullableString(record.StatedTotal),
		nullableString(record.Discrepancy),
		record.IsConsistent,
		record.SubtotalMismatches,
		record.OverlapWarnings,
		record.SummaryJSON,
	)
	if err != nil {
		r.logger.Error("Failed to create summary record",
			zap.String("bill_id", record.BillID), zap.Error(err))
		return fmt.Errorf("failed to create summary record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	record.ID = id
	return nil
}

// GetLatestByBillID returns the most recent summary for a bill, or nil when
// the bill has never been reconciled.
func (r *SummaryRepository) GetLatestByBillID(ctx context.Context, billID string) (*entity.SummaryRecord, error) {
	query := selectSummary + `
		WHERE bill_id = ?
		ORDER BY id DESC
		LIMIT 1
	`

	record, err := r.scanOne(r.db.QueryRowContext(ctx, query, billID))
	if err != nil {
		return nil, fmt.Errorf("failed to get summary for bill %s: %w", billID, err)
	}
	return record, nil
}

// List returns the most recent summaries, newest first.
func (r *SummaryRepository) List(ctx context.Context, limit int) ([]*entity.SummaryRecord, error) {
	query := selectSummary + `
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var records []*entity.SummaryRecord
	for rows.Next() {
		record, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ListInconsistent returns recent summaries flagged for human review.
func (r *SummaryRepository) ListInconsistent(ctx context.Context, limit int) ([]*entity.SummaryRecord, error) {
	query := selectSummary + `
		WHERE is_consistent = 0
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list inconsistent summaries: %w", err)
	}
	defer rows.Close()

	var records []*entity.SummaryRecord
	for rows.Next() {
		record, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

const selectSummary = `
	SELECT id, bill_id, computed_total, stated_total, discrepancy,
		is_consistent, subtotal_mismatches, overlap_warnings, summary_json, created_at
	FROM summaries
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SummaryRepository) scanOne(row rowScanner) (*entity.SummaryRecord, error) {
	var record entity.SummaryRecord
	var statedTotal, discrepancy sql.NullString

	err := row.Scan(
		&record.ID,
		&record.BillID,
		&record.ComputedTotal,
		&statedTotal,
		&discrepancy,
		&record.IsConsistent,
		&record.SubtotalMismatches,
		&record.OverlapWarnings,
		&record.SummaryJSON,
		&record.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	record.StatedTotal = statedTotal.String
	record.Discrepancy = discrepancy.String
	return &record, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
