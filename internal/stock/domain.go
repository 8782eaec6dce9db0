package stock

import (
	"time"

	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// MovementType classifies a stock ledger entry.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementTransfer   MovementType = "TRANSFER"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransfer:
		return true
	}
	return false
}

// Location names one of the two stock buckets a product's level splits into.
type Location string

const (
	LocationWarehouse Location = "WAREHOUSE"
	LocationRetail    Location = "RETAIL"
)

// Movement is one immutable ledger entry. Quantity is signed: positive for
// inbound, negative for outbound.
type Movement struct {
	ID        uuid.UUID    `json:"id"`
	ProductID uuid.UUID    `json:"product_id"`
	Type      MovementType `json:"type"`
	Quantity  float64      `json:"quantity"`
	Reference string       `json:"reference"`
	Note      string       `json:"note,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Balance is the current on-hand position of one product.
type Balance struct {
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	StockLevel float64   `json:"stock_level"`
	Warehouse  float64   `json:"warehouse_qty"`
	Retail     float64   `json:"retail_qty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Shortage and InsufficientStockError live in shared so the HTTP error
// taxonomy can match them without importing this package.
type (
	Shortage               = shared.Shortage
	InsufficientStockError = shared.InsufficientStockError
)
