package sales

import (
	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/pricing"
)

// ItemInput is one requested line. UnitPrice overrides the product's retail
// price when positive; zero means "use the master price".
type ItemInput struct {
	ProductID     uuid.UUID
	Quantity      float64
	UnitPrice     float64
	DiscountType  pricing.DiscountType
	DiscountValue float64
}

// PaymentInput is one settlement split.
type PaymentInput struct {
	Method    PaymentMethod
	Amount    float64
	Reference string
}

// CreateSaleRequest drives both the sale and the refund path.
type CreateSaleRequest struct {
	CustomerID     *uuid.UUID
	Items          []ItemInput
	Payments       []PaymentInput
	DiscountAmount float64
	// TaxRatePercent overrides the configured rate when non-nil.
	TaxRatePercent *float64
	Draft          bool
	IsRefund       bool
	RefundOfSaleID *uuid.UUID
	IdempotencyKey string
}
