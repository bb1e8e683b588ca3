package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/bill-reconciler/internal/domain/entity"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func item(description, amount string) entity.LineItem {
	return entity.LineItem{
		Description: description,
		Quantity:    decimal.NewFromInt(1),
		Amount:      dec(amount),
	}
}

func mustBill(t *testing.T, items []entity.LineItem, subTotals []entity.SubTotal, finalTotal string) *entity.Bill {
	t.Helper()
	var total *decimal.Decimal
	if finalTotal != "" {
		d := dec(finalTotal)
		total = &d
	}
	bill, err := entity.NewBill("bill-1", "Acme Corp", "2026-01-15", "USD", 1, items, subTotals, total)
	require.NoError(t, err)
	return bill
}

func TestReconcileConsistentBill(t *testing.T) {
	bill := mustBill(t, []entity.LineItem{item("A", "20.00"), item("B", "30.00")}, nil, "50.00")

	report := New(DefaultConfig()).Reconcile(bill)

	assert.True(t, report.ComputedTotal.Equal(dec("50.00")))
	assert.True(t, report.IsConsistent)
	require.NotNil(t, report.Discrepancy)
	assert.True(t, report.Discrepancy.IsZero())
	assert.False(t, report.Empty)
	assert.False(t, report.HasIssues())
}

func TestReconcileStatedTotalMismatch(t *testing.T) {
	bill := mustBill(t, []entity.LineItem{item("A", "20.00"), item("B", "30.00")}, nil, "45.00")

	report := New(DefaultConfig()).Reconcile(bill)

	assert.True(t, report.ComputedTotal.Equal(dec("50.00")))
	assert.False(t, report.IsConsistent)
	require.NotNil(t, report.Discrepancy)
	assert.True(t, report.Discrepancy.Equal(dec("5.00")), "got %s", report.Discrepancy)
}

func TestReconcileSubtotalMismatch(t *testing.T) {
	items := []entity.LineItem{item("A", "10.00"), item("B", "10.00"), item("C", "10.00")}
	subTotals := []entity.SubTotal{
		{Label: "Room charges", Amount: dec("25.00"), LineItemRefs: []int{0, 1}},
	}
	bill := mustBill(t, items, subTotals, "")

	report := New(DefaultConfig()).Reconcile(bill)

	require.Len(t, report.SubtotalMismatches, 1)
	m := report.SubtotalMismatches[0]
	assert.Equal(t, "Room charges", m.Label)
	assert.True(t, m.Declared.Equal(dec("25.00")))
	assert.True(t, m.Computed.Equal(dec("20.00")))

	// The grand total still sums all line items, unaffected by the mismatch.
	assert.True(t, report.ComputedTotal.Equal(dec("30.00")))
}

func TestReconcileNoDoubleCounting(t *testing.T) {
	items := []entity.LineItem{item("A", "20.00"), item("B", "30.00")}

	withoutSubTotals := New(DefaultConfig()).Reconcile(mustBill(t, items, nil, ""))

	subTotals := []entity.SubTotal{
		{Label: "Everything", Amount: dec("50.00"), LineItemRefs: []int{0, 1}},
		{Label: "Goods", Amount: dec("20.00"), LineItemRefs: []int{0}},
		{Label: "Unlinked", Amount: dec("999.00")},
	}
	withSubTotals := New(DefaultConfig()).Reconcile(mustBill(t, items, subTotals, ""))

	assert.True(t, withoutSubTotals.ComputedTotal.Equal(withSubTotals.ComputedTotal),
		"computed total must be independent of sub-totals: %s vs %s",
		withoutSubTotals.ComputedTotal, withSubTotals.ComputedTotal)
	assert.True(t, withSubTotals.ComputedTotal.Equal(dec("50.00")))
}

func TestReconcileOverlapWarning(t *testing.T) {
	items := []entity.LineItem{item("A", "10.00"), item("B", "20.00"), item("C", "30.00")}
	subTotals := []entity.SubTotal{
		{Label: "Goods", Amount: dec("30.00"), LineItemRefs: []int{0, 1}},
		{Label: "Taxable", Amount: dec("50.00"), LineItemRefs: []int{1, 2}},
	}
	bill := mustBill(t, items, subTotals, "")

	report := New(DefaultConfig()).Reconcile(bill)

	require.Len(t, report.Overlaps, 1, "exactly one warning per overlapping item")
	w := report.Overlaps[0]
	assert.Equal(t, 1, w.ItemIndex)
	assert.Equal(t, "B", w.Description)
	assert.Equal(t, []string{"Goods", "Taxable"}, w.Labels)
}

func TestReconcileDuplicateRefWithinOneSubTotalIsNotOverlap(t *testing.T) {
	items := []entity.LineItem{item("A", "10.00")}
	subTotals := []entity.SubTotal{
		{Label: "Goods", Amount: dec("20.00"), LineItemRefs: []int{0, 0}},
	}
	bill := mustBill(t, items, subTotals, "")

	report := New(DefaultConfig()).Reconcile(bill)

	assert.Empty(t, report.Overlaps)
}

func TestReconcileUnlinkedSubTotalSkipped(t *testing.T) {
	items := []entity.LineItem{item("A", "10.00")}
	subTotals := []entity.SubTotal{
		{Label: "Informational", Amount: dec("999.00")},
	}
	bill := mustBill(t, items, subTotals, "10.00")

	report := New(DefaultConfig()).Reconcile(bill)

	assert.Empty(t, report.SubtotalMismatches)
	assert.True(t, report.IsConsistent)
}

func TestReconcileToleranceSymmetry(t *testing.T) {
	tests := []struct {
		name       string
		amount     string
		stated     string
		consistent bool
	}{
		{"computed slightly above", "50.00", "49.99", true},
		{"computed slightly below", "50.00", "50.01", true},
		{"exactly at tolerance above", "50.01", "50.00", true},
		{"beyond tolerance above", "50.02", "50.00", false},
		{"beyond tolerance below", "49.98", "50.00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bill := mustBill(t, []entity.LineItem{item("A", tt.amount)}, nil, tt.stated)
			report := New(DefaultConfig()).Reconcile(bill)
			assert.Equal(t, tt.consistent, report.IsConsistent)
		})
	}
}

func TestReconcileCustomTolerance(t *testing.T) {
	bill := mustBill(t, []entity.LineItem{item("A", "50.00")}, nil, "49.50")

	strict := New(DefaultConfig()).Reconcile(bill)
	assert.False(t, strict.IsConsistent)

	loose := New(Config{Tolerance: dec("0.50")}).Reconcile(bill)
	assert.True(t, loose.IsConsistent)
}

func TestReconcileEmptyBill(t *testing.T) {
	bill := mustBill(t, nil, nil, "")

	report := New(DefaultConfig()).Reconcile(bill)

	assert.True(t, report.ComputedTotal.IsZero())
	assert.True(t, report.IsConsistent)
	assert.True(t, report.Empty)
	assert.Nil(t, report.StatedTotal)
	assert.Nil(t, report.Discrepancy)
}

func TestReconcileEmptyItemsWithStatedTotalNotEmpty(t *testing.T) {
	bill := mustBill(t, nil, nil, "10.00")

	report := New(DefaultConfig()).Reconcile(bill)

	assert.False(t, report.Empty)
	assert.False(t, report.IsConsistent)
	require.NotNil(t, report.Discrepancy)
	assert.True(t, report.Discrepancy.Equal(dec("-10.00")))
}

func TestReconcileNegativeAmounts(t *testing.T) {
	items := []entity.LineItem{item("Service", "100.00"), item("Discount", "-15.00")}
	bill := mustBill(t, items, nil, "85.00")

	report := New(DefaultConfig()).Reconcile(bill)

	assert.True(t, report.ComputedTotal.Equal(dec("85.00")))
	assert.True(t, report.IsConsistent)
}

func TestReconcileItemMismatch(t *testing.T) {
	price := dec("9.00")
	items := []entity.LineItem{
		{Description: "Widget", Quantity: dec("3"), UnitPrice: &price, Amount: dec("30.00")},
		item("No unit price", "10.00"),
	}
	bill := mustBill(t, items, nil, "")

	report := New(DefaultConfig()).Reconcile(bill)

	require.Len(t, report.ItemMismatches, 1)
	m := report.ItemMismatches[0]
	assert.Equal(t, 0, m.ItemIndex)
	assert.True(t, m.Expected.Equal(dec("27.00")))
	assert.True(t, m.Actual.Equal(dec("30.00")))
}

func TestReconcileIdempotent(t *testing.T) {
	price := dec("10.00")
	items := []entity.LineItem{
		{Description: "Widget", Quantity: dec("2"), UnitPrice: &price, Amount: dec("20.00")},
		item("Fee", "5.00"),
	}
	subTotals := []entity.SubTotal{
		{Label: "Goods", Amount: dec("20.00"), LineItemRefs: []int{0}},
	}
	bill := mustBill(t, items, subTotals, "25.00")

	r := New(DefaultConfig())
	first := r.Reconcile(bill)
	second := r.Reconcile(bill)

	assert.Equal(t, first, second)
}

func TestZeroConfigFallsBackToDefaultTolerance(t *testing.T) {
	r := New(Config{})
	assert.True(t, r.Tolerance().Equal(dec("0.01")))
}
