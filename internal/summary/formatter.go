package summary

import (
	"fmt"
	"strings"
)

const ruleWidth = 50

// FormatSummary renders a summary as human-readable text: header, numbered
// line items, sub-totals with their verification flag, then computed vs
// stated total and any discrepancy. Purely presentational; the output is a
// direct mapping of the summary's fields.
func FormatSummary(s Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Bill Summary: %s\n", s.BillID)
	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	fmt.Fprintf(&b, "Vendor: %s\n", s.VendorName)
	fmt.Fprintf(&b, "Date: %s\n", s.Date)
	fmt.Fprintf(&b, "Currency: %s\n\n", s.Currency)

	b.WriteString("Line Items:\n")
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	for _, item := range s.LineItems {
		if item.UnitPrice != "" {
			fmt.Fprintf(&b, "  %d. %s: %s x %s = %s\n",
				item.Index, item.Description, item.Quantity, item.UnitPrice, item.Amount)
		} else {
			fmt.Fprintf(&b, "  %d. %s: %s\n", item.Index, item.Description, item.Amount)
		}
	}
	b.WriteString("\n")

	if len(s.SubTotals) > 0 {
		b.WriteString("Sub-totals:\n")
		b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
		for _, st := range s.SubTotals {
			flag := "unlinked"
			if st.Verified != nil {
				if *st.Verified {
					flag = "verified"
				} else {
					flag = "MISMATCH"
				}
			}
			fmt.Fprintf(&b, "  %s: %s (%d items, %s)\n", st.Label, st.Amount, st.ItemCount, flag)
		}
		b.WriteString("\n")
	}

	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	fmt.Fprintf(&b, "Computed Total: %s\n", s.Report.ComputedTotal.StringFixed(2))

	if s.Report.StatedTotal != nil {
		fmt.Fprintf(&b, "Stated Total: %s\n", s.Report.StatedTotal.StringFixed(2))
		if !s.Report.IsConsistent {
			fmt.Fprintf(&b, "!! Discrepancy: %s\n", s.Report.Discrepancy.StringFixed(2))
		}
	} else {
		b.WriteString("Stated Total: not stated (unverifiable)\n")
	}

	for _, w := range s.Report.Overlaps {
		fmt.Fprintf(&b, "!! Overlap: item %d (%s) referenced by %s\n",
			w.ItemIndex+1, w.Description, strings.Join(w.Labels, ", "))
	}

	return b.String()
}

// FormatCombined renders a multi-bill result: each bill's summary followed by
// the combined totals section.
func FormatCombined(r CombinedResult) string {
	var b strings.Builder

	for _, s := range r.Summaries {
		b.WriteString(FormatSummary(s))
		b.WriteString("\n")
	}

	b.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	fmt.Fprintf(&b, "Bills: %d (%d line items)\n", r.BillCount, r.TotalLineItems)
	fmt.Fprintf(&b, "Combined Total: %s\n", r.CombinedTotal.StringFixed(2))
	fmt.Fprintf(&b, "Combined Stated Total: %s\n", r.CombinedStatedTotal.StringFixed(2))
	if len(r.UnverifiableBillIDs) > 0 {
		fmt.Fprintf(&b, "Unverifiable bills: %s\n", strings.Join(r.UnverifiableBillIDs, ", "))
	}
	if len(r.InconsistentBillIDs) > 0 {
		fmt.Fprintf(&b, "Inconsistent bills: %s\n", strings.Join(r.InconsistentBillIDs, ", "))
	}

	return b.String()
}
