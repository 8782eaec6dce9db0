package products

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// GenerateSKU builds a fresh SKU with the fixed PRD prefix.
func GenerateSKU() string {
	u := uuid.New()
	return "PRD-" + strings.ToUpper(hex.EncodeToString(u[:4]))
}

// NormalizeBarcode maps blank input to nil so the database stores NULL, not
// an empty string that would collide on the unique index.
func NormalizeBarcode(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Input carries the writable product fields for create and update.
type Input struct {
	SKU            string
	Barcode        string
	Name           string
	Category       string
	Unit           string
	PurchasePrice  float64
	WholesalePrice float64
	RetailPrice    float64
	ReorderLevel   float64
	IsActive       bool
	OpeningStock   float64
}

func (in Input) validate() error {
	var msgs []string
	if strings.TrimSpace(in.Name) == "" {
		msgs = append(msgs, "name is required")
	}
	if in.PurchasePrice < 0 || in.WholesalePrice < 0 || in.RetailPrice < 0 {
		msgs = append(msgs, "prices must not be negative")
	}
	if in.OpeningStock < 0 {
		msgs = append(msgs, "opening stock must not be negative")
	}
	if in.ReorderLevel < 0 {
		msgs = append(msgs, "reorder level must not be negative")
	}
	if len(msgs) > 0 {
		return shared.NewValidationError(msgs...)
	}
	return nil
}

// priceWarnings flags an out-of-order price ladder. Advisory only: margin
// policy is the operator's call.
func priceWarnings(in Input) []shared.Warning {
	var out []shared.Warning
	if in.WholesalePrice < in.PurchasePrice {
		out = append(out, shared.Warning{
			Code:    "PRICE_ORDER",
			Message: fmt.Sprintf("wholesale price %.2f is below purchase price %.2f", in.WholesalePrice, in.PurchasePrice),
		})
	}
	if in.RetailPrice < in.WholesalePrice {
		out = append(out, shared.Warning{
			Code:    "PRICE_ORDER",
			Message: fmt.Sprintf("retail price %.2f is below wholesale price %.2f", in.RetailPrice, in.WholesalePrice),
		})
	}
	return out
}
