package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Tx is the slice of a transaction the ledger needs. The pgx-backed
// implementation comes from Repository.Bind; tests supply an in-memory one.
type Tx interface {
	GetBalanceForUpdate(ctx context.Context, productID uuid.UUID) (Balance, error)
	UpdateBalance(ctx context.Context, b Balance) error
	InsertMovement(ctx context.Context, m Movement) error
}

// Line is one product quantity inside a reservation or release.
type Line struct {
	ProductID uuid.UUID
	Quantity  float64
}

// Ledger applies guarded stock mutations inside a caller-owned transaction.
// Every mutation locks the balance row, moves the level and appends a
// movement, so the movement history always explains the current balance.
type Ledger struct{}

func NewLedger() *Ledger { return &Ledger{} }

// Reserve removes quantities for an outgoing sale. Demand is summed per
// product and checked against available stock before anything is touched, so
// repeated lines for one product cannot slip past the check; a shortage on
// any product aborts the whole reservation with every shortage reported.
func (l *Ledger) Reserve(ctx context.Context, tx Tx, reference string, lines []Line) error {
	demand := make(map[uuid.UUID]float64, len(lines))
	order := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return shared.NewValidationError("reserve quantity must be positive")
		}
		if _, seen := demand[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		demand[line.ProductID] += line.Quantity
	}
	var shortages []Shortage
	for _, id := range order {
		b, err := tx.GetBalanceForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", id, err)
		}
		if b.StockLevel < demand[id] {
			shortages = append(shortages, Shortage{Product: b.Name, Requested: demand[id], Available: b.StockLevel})
		}
	}
	if len(shortages) > 0 {
		return &InsufficientStockError{Shortages: shortages}
	}
	for _, line := range lines {
		// Re-read under the lock already held, so a second line for the
		// same product starts from the balance the first one left behind.
		b, err := tx.GetBalanceForUpdate(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", line.ProductID, err)
		}
		// Drain the shop floor first, then fall back to the warehouse.
		fromRetail := line.Quantity
		if fromRetail > b.Retail {
			fromRetail = b.Retail
		}
		b.Retail -= fromRetail
		b.Warehouse -= line.Quantity - fromRetail
		b.StockLevel -= line.Quantity
		b.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateBalance(ctx, b); err != nil {
			return fmt.Errorf("update balance %s: %w", line.ProductID, err)
		}
		if err := tx.InsertMovement(ctx, Movement{
			ID:        uuid.New(),
			ProductID: line.ProductID,
			Type:      MovementOut,
			Quantity:  -line.Quantity,
			Reference: reference,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
	}
	return nil
}

// Release returns quantities to retail stock for a refund. It never checks
// availability: goods coming back are always accepted, even at level zero.
func (l *Ledger) Release(ctx context.Context, tx Tx, reference string, lines []Line) error {
	for _, line := range lines {
		if line.Quantity <= 0 {
			return shared.NewValidationError("release quantity must be positive")
		}
		b, err := tx.GetBalanceForUpdate(ctx, line.ProductID)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", line.ProductID, err)
		}
		b.Retail += line.Quantity
		b.StockLevel += line.Quantity
		b.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateBalance(ctx, b); err != nil {
			return fmt.Errorf("update balance %s: %w", line.ProductID, err)
		}
		if err := tx.InsertMovement(ctx, Movement{
			ID:        uuid.New(),
			ProductID: line.ProductID,
			Type:      MovementIn,
			Quantity:  line.Quantity,
			Reference: reference,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
	}
	return nil
}

// Adjust moves one bucket of a product's stock by delta, positive or
// negative. A negative delta may not take the bucket below zero.
func (l *Ledger) Adjust(ctx context.Context, tx Tx, productID uuid.UUID, delta float64, loc Location, reference, note string) error {
	if delta == 0 {
		return shared.NewValidationError("adjustment delta must not be zero")
	}
	b, err := tx.GetBalanceForUpdate(ctx, productID)
	if err != nil {
		return fmt.Errorf("lock balance %s: %w", productID, err)
	}
	switch loc {
	case LocationWarehouse:
		if b.Warehouse+delta < 0 {
			return &InsufficientStockError{Shortages: []Shortage{{Product: b.Name, Requested: -delta, Available: b.Warehouse}}}
		}
		b.Warehouse += delta
	case LocationRetail:
		if b.Retail+delta < 0 {
			return &InsufficientStockError{Shortages: []Shortage{{Product: b.Name, Requested: -delta, Available: b.Retail}}}
		}
		b.Retail += delta
	default:
		return shared.NewValidationError(fmt.Sprintf("unknown location %q", loc))
	}
	b.StockLevel += delta
	b.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateBalance(ctx, b); err != nil {
		return fmt.Errorf("update balance %s: %w", productID, err)
	}
	if err := tx.InsertMovement(ctx, Movement{
		ID:        uuid.New(),
		ProductID: productID,
		Type:      MovementAdjustment,
		Quantity:  delta,
		Reference: reference,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// Transfer moves quantity between the warehouse and retail buckets. The
// total level is unchanged; the movement records the direction in its note.
func (l *Ledger) Transfer(ctx context.Context, tx Tx, productID uuid.UUID, quantity float64, from Location) error {
	if quantity <= 0 {
		return shared.NewValidationError("transfer quantity must be positive")
	}
	b, err := tx.GetBalanceForUpdate(ctx, productID)
	if err != nil {
		return fmt.Errorf("lock balance %s: %w", productID, err)
	}
	var note string
	switch from {
	case LocationWarehouse:
		if b.Warehouse < quantity {
			return &InsufficientStockError{Shortages: []Shortage{{Product: b.Name, Requested: quantity, Available: b.Warehouse}}}
		}
		b.Warehouse -= quantity
		b.Retail += quantity
		note = "WAREHOUSE to RETAIL"
	case LocationRetail:
		if b.Retail < quantity {
			return &InsufficientStockError{Shortages: []Shortage{{Product: b.Name, Requested: quantity, Available: b.Retail}}}
		}
		b.Retail -= quantity
		b.Warehouse += quantity
		note = "RETAIL to WAREHOUSE"
	default:
		return shared.NewValidationError(fmt.Sprintf("unknown location %q", from))
	}
	b.UpdatedAt = time.Now().UTC()
	if err := tx.UpdateBalance(ctx, b); err != nil {
		return fmt.Errorf("update balance %s: %w", productID, err)
	}
	if err := tx.InsertMovement(ctx, Movement{
		ID:        uuid.New(),
		ProductID: productID,
		Type:      MovementTransfer,
		Quantity:  quantity,
		Reference: "stock transfer",
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}
