package entity

import "time"

// BillStatus tracks a stored bill through the background reconciliation
// pipeline.
type BillStatus string

const (
	BillStatusPending    BillStatus = "pending"
	BillStatusReconciled BillStatus = "reconciled"
	BillStatusFailed     BillStatus = "failed"
)

// BillRecord is a stored bill payload awaiting or past reconciliation. The
// payload column keeps the normalized bill JSON verbatim so a run can be
// replayed with a different tolerance later.
type BillRecord struct {
	ID         int64      `json:"id"`
	BillID     string     `json:"bill_id"`
	VendorName string     `json:"vendor_name"`
	Date       string     `json:"date"`
	Currency   string     `json:"currency"`
	PageCount  int        `json:"page_count"`
	Payload    string     `json:"payload"`
	Status     BillStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// SummaryRecord is a persisted reconciliation outcome. Totals are stored as
// decimal strings; StatedTotal and Discrepancy are empty when the source
// document stated no final total.
type SummaryRecord struct {
	ID                 int64     `json:"id"`
	BillID             string    `json:"bill_id"`
	ComputedTotal      string    `json:"computed_total"`
	StatedTotal        string    `json:"stated_total,omitempty"`
	Discrepancy        string    `json:"discrepancy,omitempty"`
	IsConsistent       bool      `json:"is_consistent"`
	SubtotalMismatches int       `json:"subtotal_mismatches"`
	OverlapWarnings    int       `json:"overlap_warnings"`
	SummaryJSON        string    `json:"summary_json"`
	CreatedAt          time.Time `json:"created_at"`
}
