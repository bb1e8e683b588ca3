// Package summary packages reconciliation reports into presentation-ready
// summaries and combines them across multi-bill batches.
package summary

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/domain/entity"
	"github.com/garyjia/bill-reconciler/internal/reconcile"
)

// LineItemView is a read-only rendering of a line item, amounts formatted to
// two decimal places. Index is 1-based for display.
type LineItemView struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price,omitempty"`
	Amount      string `json:"amount"`
	Category    string `json:"category,omitempty"`
}

// SubTotalView is a read-only rendering of a sub-total together with its
// verification outcome. Verified is nil for unlinked sub-totals, which carry
// no verifiable claim.
type SubTotalView struct {
	Label     string `json:"label"`
	Amount    string `json:"amount"`
	ItemCount int    `json:"item_count"`
	Verified  *bool  `json:"verified,omitempty"`
}

// Summary is the per-bill output of the engine: rendered views plus the full
// machine-readable reconciliation report.
type Summary struct {
	BillID     string `json:"bill_id"`
	VendorName string `json:"vendor_name"`
	Date       string `json:"date"`
	Currency   string `json:"currency"`

	LineItems []LineItemView `json:"line_item_details"`
	SubTotals []SubTotalView `json:"sub_totals"`

	Report reconcile.Report `json:"report"`
}

// CombinedResult aggregates independent per-bill summaries. Bills are never
// merged into one shared line-item pool; order mirrors input order.
type CombinedResult struct {
	BillCount      int       `json:"bill_count"`
	TotalLineItems int       `json:"total_line_items"`
	Summaries      []Summary `json:"individual_summaries"`

	CombinedTotal decimal.Decimal `json:"combined_total"`

	// CombinedStatedTotal sums stated totals only over bills that declare
	// one; the rest are listed in UnverifiableBillIDs rather than treated
	// as zero or as inconsistent.
	CombinedStatedTotal decimal.Decimal `json:"combined_stated_total"`
	UnverifiableBillIDs []string        `json:"unverifiable_bill_ids,omitempty"`
	InconsistentBillIDs []string        `json:"inconsistent_bill_ids,omitempty"`
}

// Summarizer wraps a reconciler and renders its reports.
type Summarizer struct {
	reconciler *reconcile.Reconciler
	logger     *zap.Logger
}

// NewSummarizer creates a summarizer with the given tolerance configuration.
func NewSummarizer(cfg reconcile.Config, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		reconciler: reconcile.New(cfg),
		logger:     logger,
	}
}

// Summarize reconciles one bill and packages the result. It is a pure
// function of the bill: calling it twice yields identical summaries.
func (s *Summarizer) Summarize(bill *entity.Bill) Summary {
	report := s.reconciler.Reconcile(bill)

	if !report.IsConsistent || report.HasIssues() {
		s.logger.Debug("Bill has discrepancies",
			zap.String("bill_id", bill.BillID),
			zap.Bool("is_consistent", report.IsConsistent),
			zap.Int("subtotal_mismatches", len(report.SubtotalMismatches)),
			zap.Int("overlap_warnings", len(report.Overlaps)))
	}

	return Summary{
		BillID:     bill.BillID,
		VendorName: bill.VendorName,
		Date:       bill.Date,
		Currency:   bill.Currency,
		LineItems:  lineItemViews(bill),
		SubTotals:  s.subTotalViews(bill, report),
		Report:     report,
	}
}

// SummarizeAll reconciles each bill independently and combines the results.
// The combination is a simple ordered reduction, so re-running on the same
// input yields bit-identical output.
func (s *Summarizer) SummarizeAll(bills []*entity.Bill) CombinedResult {
	result := CombinedResult{
		BillCount:           len(bills),
		Summaries:           make([]Summary, 0, len(bills)),
		CombinedTotal:       decimal.Zero,
		CombinedStatedTotal: decimal.Zero,
	}

	for _, bill := range bills {
		sum := s.Summarize(bill)
		result.Summaries = append(result.Summaries, sum)
		result.TotalLineItems += len(sum.LineItems)
		result.CombinedTotal = result.CombinedTotal.Add(sum.Report.ComputedTotal)

		if sum.Report.StatedTotal != nil {
			result.CombinedStatedTotal = result.CombinedStatedTotal.Add(*sum.Report.StatedTotal)
		} else {
			result.UnverifiableBillIDs = append(result.UnverifiableBillIDs, sum.BillID)
		}
		if !sum.Report.IsConsistent {
			result.InconsistentBillIDs = append(result.InconsistentBillIDs, sum.BillID)
		}
	}

	return result
}

func lineItemViews(bill *entity.Bill) []LineItemView {
	views := make([]LineItemView, 0, len(bill.LineItems))
	for i, item := range bill.LineItems {
		view := LineItemView{
			Index:       i + 1,
			Description: item.Description,
			Quantity:    item.Quantity.String(),
			Amount:      item.Amount.StringFixed(2),
			Category:    item.Category,
		}
		if item.UnitPrice != nil {
			view.UnitPrice = item.UnitPrice.StringFixed(2)
		}
		views = append(views, view)
	}
	return views
}

func (s *Summarizer) subTotalViews(bill *entity.Bill, report reconcile.Report) []SubTotalView {
	mismatched := make(map[int]bool, len(report.SubtotalMismatches))
	for _, m := range report.SubtotalMismatches {
		mismatched[m.Index] = true
	}

	views := make([]SubTotalView, 0, len(bill.SubTotals))
	for i, st := range bill.SubTotals {
		view := SubTotalView{
			Label:     st.Label,
			Amount:    st.Amount.StringFixed(2),
			ItemCount: len(st.LineItemRefs),
		}
		if len(st.LineItemRefs) > 0 {
			verified := !mismatched[i]
			view.Verified = &verified
		}
		views = append(views, view)
	}
	return views
}
