// Package reconcile implements the bill reconciliation engine: it verifies
// declared sub-totals against their referenced line items, detects
// double-count risk from overlapping sub-totals, and compares the computed
// grand total with the total stated on the document.
//
// The engine is pure: it never mutates its input, performs no I/O, and never
// returns an error for inconsistent data. Inconsistency is the expected,
// reportable output.
package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/bill-reconciler/internal/domain/entity"
)

// Config carries the engine's only tunable: the monetary tolerance used for
// every numeric comparison. Line items and totals are rounded independently
// on the source document, so exact equality would report noise.
type Config struct {
	// Tolerance is the maximum absolute difference treated as equal.
	Tolerance decimal.Decimal
}

// DefaultConfig returns the engine defaults: a tolerance of 0.01 in the
// bill's currency unit.
func DefaultConfig() Config {
	return Config{Tolerance: decimal.New(1, -2)}
}

// SubtotalMismatch records a sub-total whose declared amount differs from the
// sum of its referenced line items beyond tolerance.
type SubtotalMismatch struct {
	Index    int             `json:"index"`
	Label    string          `json:"label"`
	Declared decimal.Decimal `json:"declared"`
	Computed decimal.Decimal `json:"computed"`
}

// OverlapWarning records a line item referenced by more than one sub-total.
// Overlap signals double-count risk on the source document but never changes
// the computed grand total, which sums line items only.
type OverlapWarning struct {
	ItemIndex   int      `json:"item_index"`
	Description string   `json:"description"`
	Labels      []string `json:"subtotal_labels"`
}

// ItemMismatch records a line item whose amount differs from
// quantity x unit price beyond tolerance. Only checked when a unit price is
// present.
type ItemMismatch struct {
	ItemIndex   int             `json:"item_index"`
	Description string          `json:"description"`
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
}

// Report is the machine-readable outcome of reconciling one bill.
type Report struct {
	ComputedTotal decimal.Decimal `json:"computed_total"`

	// StatedTotal is the final total printed on the document, if any.
	// Discrepancy is computed minus stated; both are nil when no total was
	// stated, which is "unverifiable", not inconsistent.
	StatedTotal *decimal.Decimal `json:"stated_total,omitempty"`
	Discrepancy *decimal.Decimal `json:"discrepancy,omitempty"`

	IsConsistent bool `json:"is_consistent"`
	Empty        bool `json:"empty"`

	SubtotalMismatches []SubtotalMismatch `json:"subtotal_mismatches,omitempty"`
	Overlaps           []OverlapWarning   `json:"overlap_warnings,omitempty"`
	ItemMismatches     []ItemMismatch     `json:"item_mismatches,omitempty"`
}

// HasIssues reports whether any inconsistency was found beyond the top-level
// total comparison.
func (r *Report) HasIssues() bool {
	return len(r.SubtotalMismatches) > 0 || len(r.Overlaps) > 0 || len(r.ItemMismatches) > 0
}

// Reconciler verifies bills against a fixed tolerance. Independent
// reconcilers can run concurrently with different tolerances; there is no
// shared state.
type Reconciler struct {
	cfg Config
}

// New creates a reconciler. A zero tolerance is replaced by the default so a
// zero-value Config does not silently demand exact equality.
func New(cfg Config) *Reconciler {
	if cfg.Tolerance.IsZero() {
		cfg.Tolerance = DefaultConfig().Tolerance
	}
	return &Reconciler{cfg: cfg}
}

// Tolerance returns the tolerance this reconciler compares with.
func (r *Reconciler) Tolerance() decimal.Decimal {
	return r.cfg.Tolerance
}

// Reconcile verifies a single bill and returns its report. All checks run
// independently; one violation never halts the rest.
func (r *Reconciler) Reconcile(bill *entity.Bill) Report {
	report := Report{
		ComputedTotal: bill.LineItemsTotal(),
	}

	report.ItemMismatches = r.checkLineItems(bill)
	report.SubtotalMismatches = r.checkSubTotals(bill)
	report.Overlaps = detectOverlaps(bill)

	if bill.FinalTotal != nil {
		stated := *bill.FinalTotal
		diff := report.ComputedTotal.Sub(stated)
		report.StatedTotal = &stated
		report.Discrepancy = &diff
		report.IsConsistent = r.withinTolerance(report.ComputedTotal, stated)
	} else {
		// Nothing to verify against; trivially consistent.
		report.IsConsistent = true
	}

	if len(bill.LineItems) == 0 && bill.FinalTotal == nil {
		report.Empty = true
	}

	return report
}

// checkLineItems verifies amount = quantity x unit price for every line item
// that declares a unit price.
func (r *Reconciler) checkLineItems(bill *entity.Bill) []ItemMismatch {
	var mismatches []ItemMismatch
	for i, item := range bill.LineItems {
		if item.UnitPrice == nil {
			continue
		}
		expected := item.Quantity.Mul(*item.UnitPrice)
		if !r.withinTolerance(expected, item.Amount) {
			mismatches = append(mismatches, ItemMismatch{
				ItemIndex:   i,
				Description: item.Description,
				Expected:    expected,
				Actual:      item.Amount,
			})
		}
	}
	return mismatches
}

// checkSubTotals compares each linked sub-total's declared amount to the sum
// of its referenced line items. Unlinked sub-totals carry no verifiable claim
// and are skipped.
func (r *Reconciler) checkSubTotals(bill *entity.Bill) []SubtotalMismatch {
	var mismatches []SubtotalMismatch
	for i, st := range bill.SubTotals {
		if len(st.LineItemRefs) == 0 {
			continue
		}
		computed := bill.ReferencedTotal(st)
		if !r.withinTolerance(st.Amount, computed) {
			mismatches = append(mismatches, SubtotalMismatch{
				Index:    i,
				Label:    st.Label,
				Declared: st.Amount,
				Computed: computed,
			})
		}
	}
	return mismatches
}

// detectOverlaps finds line items claimed by more than one sub-total. Each
// overlapping item yields exactly one warning naming every claiming label, in
// line-item order so output is deterministic.
func detectOverlaps(bill *entity.Bill) []OverlapWarning {
	labels := make(map[int][]string)
	for _, st := range bill.SubTotals {
		seen := make(map[int]bool)
		for _, ref := range st.LineItemRefs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			labels[ref] = append(labels[ref], st.Label)
		}
	}

	var warnings []OverlapWarning
	for i, item := range bill.LineItems {
		if claims := labels[i]; len(claims) > 1 {
			warnings = append(warnings, OverlapWarning{
				ItemIndex:   i,
				Description: item.Description,
				Labels:      claims,
			})
		}
	}
	return warnings
}

func (r *Reconciler) withinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(r.cfg.Tolerance)
}
