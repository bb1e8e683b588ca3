// Package repository implements SQLite persistence for stored bills and
// their reconciliation summaries.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/domain/entity"
)

// BillRepository stores normalized bill payloads and their pipeline status.
type BillRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBillRepository creates a new bill repository
func NewBillRepository(db *sql.DB, logger *zap.Logger) *BillRepository {
	return &BillRepository{db: db, logger: logger}
}

// Create inserts a new bill record. The bill_id is unique; re-submitting the
// same bill is a conflict surfaced to the caller.
func (r *BillRepository) Create(ctx context.Context, record *entity.BillRecord) error {
	query := `
		INSERT INTO bills (bill_id, vendor_name, bill_date, currency, page_count, payload, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		record.BillID,
		record.VendorName,
		record.Date,
		record.Currency,
		record.PageCount,
		record.Payload,
		record.Status,
	)
	if err != nil {
		r.logger.Error("Failed to create bill record",
			zap.String("bill_id", record.BillID), zap.Error(err))
		return fmt.Errorf("failed to create bill record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	record.ID = id
	return nil
}

// GetByBillID retrieves a bill record by its external identifier. Returns
// nil when not found.
func (r *BillRepository) GetByBillID(ctx context.Context, billID string) (*entity.BillRecord, error) {
	query := `
		SELECT id, bill_id, vendor_name, bill_date, currency, page_count, payload, status, created_at, updated_at
		FROM bills
		WHERE bill_id = ?
	`

	var record entity.BillRecord
	err := r.db.QueryRowContext(ctx, query, billID).Scan(
		&record.ID,
		&record.BillID,
		&record.VendorName,
		&record.Date,
		&record.Currency,
		&record.PageCount,
		&record.Payload,
		&record.Status,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get bill record", zap.String("bill_id", billID), zap.Error(err))
		return nil, fmt.Errorf("failed to get bill record: %w", err)
	}
	return &record, nil
}

// ListByStatus returns up to limit bill records in the given status, oldest
// first so the worker drains the backlog in arrival order.
func (r *BillRepository) ListByStatus(ctx context.Context, status entity.BillStatus, limit int) ([]*entity.BillRecord, error) {
	query := `
		SELECT id, bill_id, vendor_name, bill_date, currency, page_count, payload, status, created_at, updated_at
		FROM bills
		WHERE status = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list bill records: %w", err)
	}
	defer rows.Close()

	var records []*entity.BillRecord
	for rows.Next() {
		var record entity.BillRecord
		if err := rows.Scan(
			&record.ID,
			&record.BillID,
			&record.VendorName,
			&record.Date,
			&record.Currency,
			&record.PageCount,
			&record.Payload,
			&record.Status,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bill record: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// UpdateStatus moves a bill record to a new pipeline status.
func (r *BillRepository) UpdateStatus(ctx context.Context, billID string, status entity.BillStatus) error {
	query := `UPDATE bills SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE bill_id = ?`

	result, err := r.db.ExecContext(ctx, query, status, billID)
	if err != nil {
		r.logger.Error("Failed to update bill status",
			zap.String("bill_id", billID), zap.String("status", string(status)), zap.Error(err))
		return fmt.Errorf("failed to update bill status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bill %s not found", billID)
	}
	return nil
}
