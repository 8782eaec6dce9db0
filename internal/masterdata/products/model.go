package products

import (
	"time"

	"github.com/google/uuid"
)

// Product is a sellable item. Barcode is a pointer because an absent barcode
// is stored as NULL; an empty string would collide on the unique index.
type Product struct {
	ID             uuid.UUID `json:"id"`
	SKU            string    `json:"sku"`
	Barcode        *string   `json:"barcode,omitempty"`
	Name           string    `json:"name"`
	Category       string    `json:"category,omitempty"`
	Unit           string    `json:"unit"`
	PurchasePrice  float64   `json:"purchase_price"`
	WholesalePrice float64   `json:"wholesale_price"`
	RetailPrice    float64   `json:"retail_price"`
	ReorderLevel   float64   `json:"reorder_level"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Search     string
	OnlyActive bool
	Limit      int
	Offset     int
}
