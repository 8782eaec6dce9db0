package sales

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/pricing"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/stock"
)

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return shared.NewValidationError("a sale requires at least one item")
	}
	var msgs []string
	for i, it := range items {
		if it.Quantity <= 0 {
			msgs = append(msgs, fmt.Sprintf("item %d: quantity must be positive", i+1))
		}
		if it.UnitPrice < 0 {
			msgs = append(msgs, fmt.Sprintf("item %d: unit price must not be negative", i+1))
		}
		if it.DiscountValue < 0 {
			msgs = append(msgs, fmt.Sprintf("item %d: discount must not be negative", i+1))
		}
	}
	if len(msgs) > 0 {
		return shared.NewValidationError(msgs...)
	}
	return nil
}

func validatePayments(payments []PaymentInput) error {
	if len(payments) == 0 {
		return shared.NewValidationError("at least one payment is required")
	}
	var msgs []string
	for i, p := range payments {
		if !p.Method.Valid() {
			msgs = append(msgs, fmt.Sprintf("payment %d: unknown method %q", i+1, p.Method))
			continue
		}
		if p.Amount <= 0 {
			msgs = append(msgs, fmt.Sprintf("payment %d: amount must be positive", i+1))
		}
		if p.Method.RequiresReference() && p.Reference == "" {
			msgs = append(msgs, fmt.Sprintf("payment %d: %s requires a reference", i+1, p.Method))
		}
	}
	if len(msgs) > 0 {
		return shared.NewValidationError(msgs...)
	}
	return nil
}

// checkSplitsCoverTotal requires the splits to settle the document exactly.
func checkSplitsCoverTotal(payments []PaymentInput, total float64) error {
	var sum float64
	for _, p := range payments {
		sum += p.Amount
	}
	if math.Abs(sum-total) > 0.005 {
		return shared.NewValidationError(fmt.Sprintf("payments %.2f do not match total %.2f", sum, total))
	}
	return nil
}

func sumByMethod(payments []PaymentInput, method PaymentMethod) float64 {
	var sum float64
	for _, p := range payments {
		if p.Method == method {
			sum += p.Amount
		}
	}
	return sum
}

// sumPaid is the cash-in portion of the splits. Credit settles later, so it
// never counts as paid.
func sumPaid(payments []PaymentInput) float64 {
	var sum float64
	for _, p := range payments {
		if p.Method != PaymentCredit {
			sum += p.Amount
		}
	}
	return pricing.Round2(sum)
}

func loadProducts(ctx context.Context, tx TxRepository, items []ItemInput) (map[uuid.UUID]ProductInfo, error) {
	ids := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]bool, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	products, err := tx.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		p, ok := products[id]
		if !ok {
			return nil, shared.NotFound(id.String())
		}
		if !p.IsActive {
			return nil, shared.NewValidationError(fmt.Sprintf("product %s is inactive", p.Name))
		}
	}
	return products, nil
}

// buildLines turns request items into priced invoice lines, flagging lines
// sold at or below cost.
func buildLines(items []ItemInput, products map[uuid.UUID]ProductInfo) ([]SaleItem, []pricing.LineItem, []shared.Warning, error) {
	var (
		out      []SaleItem
		lines    []pricing.LineItem
		warnings []shared.Warning
		flagged  = make(map[uuid.UUID]bool)
	)
	for _, in := range items {
		p := products[in.ProductID]
		unit := in.UnitPrice
		if unit == 0 {
			unit = p.RetailPrice
		}
		if unit <= p.PurchasePrice && !flagged[p.ID] {
			flagged[p.ID] = true
			warnings = append(warnings, shared.Warning{
				Code:    "LOW_MARGIN",
				Message: fmt.Sprintf("%s sells at %.2f, at or below its %.2f cost", p.Name, unit, p.PurchasePrice),
			})
		}
		line := pricing.LineItem{
			UnitPrice:     unit,
			Quantity:      in.Quantity,
			DiscountType:  in.DiscountType,
			DiscountValue: in.DiscountValue,
		}
		lt, err := pricing.Line(line)
		if err != nil {
			return nil, nil, nil, err
		}
		out = append(out, SaleItem{
			ID:            uuid.New(),
			ProductID:     in.ProductID,
			ProductName:   p.Name,
			Quantity:      in.Quantity,
			UnitPrice:     unit,
			DiscountType:  in.DiscountType,
			DiscountValue: in.DiscountValue,
			LineTotal:     lt.Net,
		})
		lines = append(lines, line)
	}
	return out, lines, warnings, nil
}

func reserveLines(items []ItemInput) []stock.Line {
	out := make([]stock.Line, len(items))
	for i, it := range items {
		out[i] = stock.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

func buildPayments(saleID uuid.UUID, payments []PaymentInput, at time.Time) []Payment {
	out := make([]Payment, len(payments))
	for i, p := range payments {
		out[i] = Payment{
			ID:        uuid.New(),
			SaleID:    saleID,
			Method:    p.Method,
			Amount:    p.Amount,
			Reference: p.Reference,
			CreatedAt: at,
		}
	}
	return out
}

// lineDiscountFor scales a fixed line discount to the refunded share of the
// original quantity. Percent discounts apply as-is.
func lineDiscountFor(it SaleItem, qty float64) float64 {
	if it.DiscountType == pricing.DiscountFixed && it.Quantity > 0 {
		return pricing.Round2(it.DiscountValue * qty / it.Quantity)
	}
	return it.DiscountValue
}

// refundTotals prices a refund from the original document: order discount is
// prorated by the refunded share of the subtotal and the tax rate is derived
// from what the original actually charged.
func refundTotals(orig *Sale, lines []pricing.LineItem) (pricing.Totals, error) {
	var subtotal float64
	for _, l := range lines {
		lt, err := pricing.Line(l)
		if err != nil {
			return pricing.Totals{}, err
		}
		subtotal += lt.Net
	}
	subtotal = pricing.Round2(subtotal)

	var discount float64
	if orig.Subtotal > 0 && orig.Discount > 0 {
		discount = pricing.Round2(orig.Discount * subtotal / orig.Subtotal)
		if discount > subtotal {
			discount = subtotal
		}
	}
	base := pricing.Round2(subtotal - discount)

	var rate float64
	if origBase := orig.Subtotal - orig.Discount; origBase > 0 {
		rate = orig.Tax / origBase * 100
	}
	tax := pricing.Round2(base * rate / 100)
	total := pricing.Round2(base + tax)
	if total < 0 {
		total = 0
	}
	return pricing.Totals{Subtotal: subtotal, Discount: discount, Tax: tax, Total: total}, nil
}

// fullyReturned reports whether every original quantity has now come back.
func fullyReturned(orig *Sale, returned map[uuid.UUID]float64) bool {
	for _, it := range orig.Items {
		if returned[it.ProductID] < it.Quantity-1e-9 {
			return false
		}
	}
	return true
}

func paymentInputs(payments []Payment) []PaymentInput {
	out := make([]PaymentInput, len(payments))
	for i, p := range payments {
		out[i] = PaymentInput{Method: p.Method, Amount: p.Amount, Reference: p.Reference}
	}
	return out
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
