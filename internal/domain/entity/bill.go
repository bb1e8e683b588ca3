package entity

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a bill does not declare its currency.
const DefaultCurrency = "USD"

// LineItem is a single priced entry on a bill. Line items are the canonical
// source of monetary truth: grand totals are always derived from them and
// never from declared sub-totals.
type LineItem struct {
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Amount      decimal.Decimal  `json:"amount"`
	Category    string           `json:"category,omitempty"`
}

// SubTotal is a partial sum declared on the source document over a subset of
// line items. LineItemRefs are indices into the owning bill's line items,
// bounds-checked once when the bill is constructed. An empty ref list means
// the sub-total's membership is unknown; such sub-totals are informational
// only and excluded from verification.
type SubTotal struct {
	Label        string          `json:"label"`
	Amount       decimal.Decimal `json:"amount"`
	LineItemRefs []int           `json:"line_item_refs,omitempty"`
}

// Bill is the aggregate root consumed by the reconciliation engine. It is
// built once by the normalization boundary and treated as read-only
// afterwards; a correction always produces a new Bill.
type Bill struct {
	BillID     string           `json:"bill_id"`
	VendorName string           `json:"vendor_name"`
	Date       string           `json:"date"`
	Currency   string           `json:"currency"`
	PageCount  int              `json:"page_count"`
	LineItems  []LineItem       `json:"line_items"`
	SubTotals  []SubTotal       `json:"sub_totals,omitempty"`
	FinalTotal *decimal.Decimal `json:"final_total,omitempty"`
}

// NewBill validates the structural invariants of a bill and returns it.
// Structurally invalid input (out-of-range sub-total refs, bad page count,
// empty descriptions) is rejected here with a ValidationError; data-quality
// problems such as mismatched totals are not errors and are left for the
// reconciliation engine to report.
func NewBill(billID, vendorName, date, currency string, pageCount int, items []LineItem, subTotals []SubTotal, finalTotal *decimal.Decimal) (*Bill, error) {
	if billID == "" {
		return nil, NewValidationError("bill_id", "bill_id is required")
	}
	if vendorName == "" {
		return nil, NewValidationError("vendor_name", "vendor_name is required")
	}
	if date == "" {
		return nil, NewValidationError("date", "date is required")
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	if pageCount == 0 {
		pageCount = 1
	}
	if pageCount < 1 {
		return nil, NewValidationError("page_count", fmt.Sprintf("page_count must be positive, got %d", pageCount))
	}

	for i, item := range items {
		if item.Description == "" {
			return nil, NewValidationError("line_items", fmt.Sprintf("line item %d has an empty description", i))
		}
		if !item.Quantity.IsPositive() {
			return nil, NewValidationError("line_items", fmt.Sprintf("line item %d has non-positive quantity %s", i, item.Quantity))
		}
	}

	for _, st := range subTotals {
		for _, ref := range st.LineItemRefs {
			if ref < 0 || ref >= len(items) {
				return nil, NewValidationError("sub_totals",
					fmt.Sprintf("sub-total %q references line item %d, bill has %d line items", st.Label, ref, len(items)))
			}
		}
	}

	return &Bill{
		BillID:     billID,
		VendorName: vendorName,
		Date:       date,
		Currency:   currency,
		PageCount:  pageCount,
		LineItems:  items,
		SubTotals:  subTotals,
		FinalTotal: finalTotal,
	}, nil
}

// LineItemsTotal returns the sum of all line item amounts. Sub-totals never
// participate in this sum; they describe line items that are already counted.
func (b *Bill) LineItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.LineItems {
		total = total.Add(item.Amount)
	}
	return total
}

// ReferencedTotal returns the sum of the line items referenced by the given
// sub-total. Call only with refs validated by NewBill.
func (b *Bill) ReferencedTotal(st SubTotal) decimal.Decimal {
	total := decimal.Zero
	for _, ref := range st.LineItemRefs {
		total = total.Add(b.LineItems[ref].Amount)
	}
	return total
}
