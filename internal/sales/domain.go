package sales

import (
	"time"

	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/pricing"
)

// SaleStatus is the lifecycle of a sale document.
type SaleStatus string

const (
	StatusDraft     SaleStatus = "DRAFT"
	StatusCompleted SaleStatus = "COMPLETED"
	StatusCancelled SaleStatus = "CANCELLED"
	StatusRefunded  SaleStatus = "REFUNDED"
)

// Valid reports whether s is a known status.
func (s SaleStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// PaymentMethod is how a sale was settled.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "CASH"
	PaymentCard         PaymentMethod = "CARD"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentCredit       PaymentMethod = "CREDIT"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentBankTransfer, PaymentCredit:
		return true
	}
	return false
}

// RequiresReference reports whether a payment of this method must carry an
// external reference (card slip, transfer id).
func (m PaymentMethod) RequiresReference() bool {
	switch m {
	case PaymentCash, PaymentCredit:
		return false
	case PaymentCard, PaymentBankTransfer:
		return true
	}
	return false
}

// Sale is one invoice, regular or refund. A refund points back at the sale
// it reverses and carries a negative payment.
type Sale struct {
	ID             uuid.UUID  `json:"id"`
	InvoiceNumber  int64      `json:"invoice_number"`
	Reference      string     `json:"reference"`
	CustomerID     *uuid.UUID `json:"customer_id,omitempty"`
	Status         SaleStatus `json:"status"`
	IsRefund       bool       `json:"is_refund"`
	RefundOfSaleID *uuid.UUID `json:"refund_of_sale_id,omitempty"`
	Subtotal       float64    `json:"subtotal"`
	Discount       float64    `json:"discount"`
	Tax            float64    `json:"tax"`
	Total          float64    `json:"total"`
	Paid           float64    `json:"paid"`
	Items          []SaleItem `json:"items,omitempty"`
	Payments       []Payment  `json:"payments,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SaleItem is one invoice line, priced at sale time so later product price
// changes never rewrite history.
type SaleItem struct {
	ID            uuid.UUID            `json:"id"`
	SaleID        uuid.UUID            `json:"sale_id"`
	ProductID     uuid.UUID            `json:"product_id"`
	ProductName   string               `json:"product_name"`
	Quantity      float64              `json:"quantity"`
	UnitPrice     float64              `json:"unit_price"`
	DiscountType  pricing.DiscountType `json:"discount_type,omitempty"`
	DiscountValue float64              `json:"discount_value,omitempty"`
	LineTotal     float64              `json:"line_total"`
}

// Payment is one settlement row. Refunds store a negative amount.
type Payment struct {
	ID        uuid.UUID     `json:"id"`
	SaleID    uuid.UUID     `json:"sale_id"`
	Method    PaymentMethod `json:"method"`
	Amount    float64       `json:"amount"`
	Reference string        `json:"reference,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// ListFilter narrows List results.
type ListFilter struct {
	CustomerID *uuid.UUID
	Status     SaleStatus
	IsRefund   *bool
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
