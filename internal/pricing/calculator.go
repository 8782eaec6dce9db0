package pricing

import (
	"fmt"
	"math"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// DiscountType selects how a line discount value is interpreted.
type DiscountType string

const (
	DiscountNone    DiscountType = ""
	DiscountPercent DiscountType = "PERCENT"
	DiscountFixed   DiscountType = "FIXED"
)

// LineItem is one priced row of a sale or refund.
type LineItem struct {
	UnitPrice     float64
	Quantity      float64
	DiscountType  DiscountType
	DiscountValue float64
}

// LineTotal is the priced breakdown of a single line.
type LineTotal struct {
	Gross    float64
	Discount float64
	Net      float64
}

// Totals is the document-level price breakdown.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// Round2 rounds to two decimals, halves away from zero.
func Round2(v float64) float64 {
	if v < 0 {
		return -math.Floor(-v*100+0.5) / 100
	}
	return math.Floor(v*100+0.5) / 100
}

// Line prices one line item. The fixed discount is capped at the line gross
// and a percent discount at 100, so a line never nets negative.
func Line(item LineItem) (LineTotal, error) {
	if item.Quantity < 0 {
		return LineTotal{}, shared.NewValidationError("quantity must not be negative")
	}
	if item.UnitPrice < 0 {
		return LineTotal{}, shared.NewValidationError("unit price must not be negative")
	}
	gross := Round2(item.UnitPrice * item.Quantity)
	var discount float64
	switch item.DiscountType {
	case DiscountNone:
	case DiscountPercent:
		if item.DiscountValue < 0 {
			return LineTotal{}, shared.NewValidationError("discount percent must not be negative")
		}
		pct := math.Min(item.DiscountValue, 100)
		discount = Round2(gross * pct / 100)
	case DiscountFixed:
		if item.DiscountValue < 0 {
			return LineTotal{}, shared.NewValidationError("discount amount must not be negative")
		}
		discount = Round2(math.Min(item.DiscountValue, gross))
	default:
		return LineTotal{}, shared.NewValidationError(fmt.Sprintf("unknown discount type %q", item.DiscountType))
	}
	return LineTotal{Gross: gross, Discount: discount, Net: Round2(gross - discount)}, nil
}

// Price computes document totals. The order discount is clamped to the
// subtotal, tax applies to the discounted base, and the total never drops
// below zero.
func Price(items []LineItem, orderDiscount, taxRatePercent float64) (Totals, error) {
	if orderDiscount < 0 {
		return Totals{}, shared.NewValidationError("discount must not be negative")
	}
	if taxRatePercent < 0 {
		return Totals{}, shared.NewValidationError("tax rate must not be negative")
	}
	var subtotal float64
	for i, item := range items {
		lt, err := Line(item)
		if err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		subtotal += lt.Net
	}
	subtotal = Round2(subtotal)

	discount := math.Min(Round2(orderDiscount), subtotal)
	taxBase := Round2(subtotal - discount)
	tax := Round2(taxBase * taxRatePercent / 100)
	total := Round2(taxBase + tax)
	if total < 0 {
		total = 0
	}
	return Totals{Subtotal: subtotal, Discount: discount, Tax: tax, Total: total}, nil
}
