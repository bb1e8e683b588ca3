// Package extract is the normalization boundary: it turns already-parsed
// bill payloads (JSON documents, generic maps) into validated entity.Bill
// values. It owns all format tolerance — currency symbols, thousands
// separators, missing optional fields — so the reconciliation engine only
// ever sees structurally valid bills.
package extract

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/domain/entity"
)

var amountCleaner = regexp.MustCompile(`[^\d.-]`)

// Extractor normalizes raw bill payloads into entities.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

type lineItemPayload struct {
	Description string `json:"description"`
	Quantity    any    `json:"quantity"`
	UnitPrice   any    `json:"unit_price"`
	Amount      any    `json:"amount"`
	Category    string `json:"category"`
}

type subTotalPayload struct {
	Label        string `json:"label"`
	Amount       any    `json:"amount"`
	LineItemRefs []int  `json:"line_item_refs"`
}

type billPayload struct {
	BillID     string            `json:"bill_id"`
	VendorName string            `json:"vendor_name"`
	Date       string            `json:"date"`
	Currency   string            `json:"currency"`
	PageCount  int               `json:"page_count"`
	LineItems  []lineItemPayload `json:"line_items"`
	SubTotals  []subTotalPayload `json:"sub_totals"`
	FinalTotal any               `json:"final_total"`
}

// FromJSON normalizes a JSON document into a bill. Numbers are decoded
// without a float64 round-trip so amounts keep their printed precision.
func (e *Extractor) FromJSON(data []byte) (*entity.Bill, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload billPayload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid bill JSON: %w", err)
	}
	return e.fromPayload(payload)
}

// FromMap normalizes a generic map, e.g. an already-decoded request body.
func (e *Extractor) FromMap(data map[string]any) (*entity.Bill, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode bill data: %w", err)
	}
	return e.FromJSON(raw)
}

// FromJSONFile normalizes a bill from a JSON file on disk.
func (e *Extractor) FromJSONFile(path string) (*entity.Bill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bill file: %w", err)
	}
	bill, err := e.FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bill, nil
}

func (e *Extractor) fromPayload(payload billPayload) (*entity.Bill, error) {
	billID := payload.BillID
	if billID == "" {
		billID = synthesizeBillID(payload.VendorName, payload.Date)
		e.logger.Debug("Synthesized bill id", zap.String("bill_id", billID))
	}

	items, err := e.lineItems(payload.LineItems)
	if err != nil {
		return nil, err
	}

	subTotals := make([]entity.SubTotal, 0, len(payload.SubTotals))
	for i, st := range payload.SubTotals {
		label := st.Label
		if label == "" {
			label = "Sub-total"
		}
		amount, err := parseAmount(st.Amount)
		if err != nil {
			return nil, entity.NewValidationError("sub_totals", fmt.Sprintf("sub-total %d: %v", i, err))
		}
		subTotals = append(subTotals, entity.SubTotal{
			Label:        label,
			Amount:       amount,
			LineItemRefs: st.LineItemRefs,
		})
	}

	var finalTotal *decimal.Decimal
	if payload.FinalTotal != nil {
		total, err := parseAmount(payload.FinalTotal)
		if err != nil {
			return nil, entity.NewValidationError("final_total", err.Error())
		}
		finalTotal = &total
	}

	return entity.NewBill(billID, payload.VendorName, payload.Date, payload.Currency,
		payload.PageCount, items, subTotals, finalTotal)
}

func (e *Extractor) lineItems(payloads []lineItemPayload) ([]entity.LineItem, error) {
	items := make([]entity.LineItem, 0, len(payloads))
	for i, p := range payloads {
		quantity := decimal.NewFromInt(1)
		if p.Quantity != nil {
			q, err := parseAmount(p.Quantity)
			if err != nil {
				return nil, entity.NewValidationError("line_items", fmt.Sprintf("line item %d quantity: %v", i, err))
			}
			quantity = q
		}

		var unitPrice *decimal.Decimal
		if p.UnitPrice != nil {
			up, err := parseAmount(p.UnitPrice)
			if err != nil {
				return nil, entity.NewValidationError("line_items", fmt.Sprintf("line item %d unit_price: %v", i, err))
			}
			unitPrice = &up
		}

		var amount decimal.Decimal
		switch {
		case p.Amount != nil:
			a, err := parseAmount(p.Amount)
			if err != nil {
				return nil, entity.NewValidationError("line_items", fmt.Sprintf("line item %d amount: %v", i, err))
			}
			amount = a
		case unitPrice != nil:
			amount = quantity.Mul(*unitPrice)
		default:
			return nil, entity.NewValidationError("line_items",
				fmt.Sprintf("line item %d has neither amount nor unit_price", i))
		}

		items = append(items, entity.LineItem{
			Description: p.Description,
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			Amount:      amount,
			Category:    p.Category,
		})
	}
	return items, nil
}

// parseAmount converts a raw payload value to a decimal. Strings may carry
// currency symbols and thousands separators ("$1,234.56"); an empty string
// parses as zero, matching how blank cells show up in extracted documents.
func parseAmount(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		cleaned := amountCleaner.ReplaceAllString(v, "")
		if cleaned == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Zero, fmt.Errorf("cannot parse amount %q", v)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", value)
	}
}

// synthesizeBillID derives a stable identifier for payloads that omit one,
// keeping re-extraction deterministic.
func synthesizeBillID(vendor, date string) string {
	h := sha256.Sum256([]byte(strings.ToLower(vendor) + "|" + date))
	return fmt.Sprintf("bill-%x", h[:4])
}
