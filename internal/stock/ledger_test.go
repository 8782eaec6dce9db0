package stock

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/shared"
)

type memTx struct {
	balances  map[uuid.UUID]*Balance
	movements []Movement
}

func newMemTx(balances ...Balance) *memTx {
	tx := &memTx{balances: make(map[uuid.UUID]*Balance)}
	for _, b := range balances {
		cp := b
		tx.balances[b.ProductID] = &cp
	}
	return tx
}

func (m *memTx) GetBalanceForUpdate(_ context.Context, productID uuid.UUID) (Balance, error) {
	b, ok := m.balances[productID]
	if !ok {
		return Balance{}, shared.NotFound(productID.String())
	}
	return *b, nil
}

func (m *memTx) UpdateBalance(_ context.Context, b Balance) error {
	if _, ok := m.balances[b.ProductID]; !ok {
		return shared.NotFound(b.ProductID.String())
	}
	cp := b
	m.balances[b.ProductID] = &cp
	return nil
}

func (m *memTx) InsertMovement(_ context.Context, mv Movement) error {
	m.movements = append(m.movements, mv)
	return nil
}

func TestReserveDrainsRetailThenWarehouse(t *testing.T) {
	id := uuid.New()
	tx := newMemTx(Balance{ProductID: id, Name: "Widget", StockLevel: 10, Warehouse: 7, Retail: 3})

	err := NewLedger().Reserve(context.Background(), tx, "INV-001", []Line{{ProductID: id, Quantity: 5}})
	require.NoError(t, err)

	b := tx.balances[id]
	require.Equal(t, 5.0, b.StockLevel)
	require.Equal(t, 0.0, b.Retail)
	require.Equal(t, 5.0, b.Warehouse)

	require.Len(t, tx.movements, 1)
	require.Equal(t, MovementOut, tx.movements[0].Type)
	require.Equal(t, -5.0, tx.movements[0].Quantity)
	require.Equal(t, "INV-001", tx.movements[0].Reference)
}

func TestReserveReportsAllShortagesAndTouchesNothing(t *testing.T) {
	widget := uuid.New()
	gadget := uuid.New()
	tx := newMemTx(
		Balance{ProductID: widget, Name: "Widget", StockLevel: 2, Retail: 2},
		Balance{ProductID: gadget, Name: "Gadget", StockLevel: 1, Retail: 1},
	)

	err := NewLedger().Reserve(context.Background(), tx, "INV-002", []Line{
		{ProductID: widget, Quantity: 5},
		{ProductID: gadget, Quantity: 4},
	})

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Len(t, ise.Shortages, 2)
	require.Contains(t, err.Error(), "Need 5, have 2 for Widget")
	require.Contains(t, err.Error(), "Need 4, have 1 for Gadget")

	require.Equal(t, 2.0, tx.balances[widget].StockLevel)
	require.Equal(t, 1.0, tx.balances[gadget].StockLevel)
	require.Empty(t, tx.movements)
}

func TestReserveSumsRepeatedLinesPerProduct(t *testing.T) {
	id := uuid.New()
	tx := newMemTx(Balance{ProductID: id, Name: "Widget", StockLevel: 5, Retail: 5})

	err := NewLedger().Reserve(context.Background(), tx, "INV-005", []Line{
		{ProductID: id, Quantity: 3},
		{ProductID: id, Quantity: 3},
	})

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Len(t, ise.Shortages, 1)
	require.Equal(t, 6.0, ise.Shortages[0].Requested)
	require.Equal(t, 5.0, tx.balances[id].StockLevel)
	require.Empty(t, tx.movements)
}

func TestReserveRepeatedLinesKeepBalanceAndMovementsConsistent(t *testing.T) {
	id := uuid.New()
	tx := newMemTx(Balance{ProductID: id, Name: "Widget", StockLevel: 10, Retail: 4, Warehouse: 6})

	err := NewLedger().Reserve(context.Background(), tx, "INV-006", []Line{
		{ProductID: id, Quantity: 3},
		{ProductID: id, Quantity: 3},
	})
	require.NoError(t, err)

	b := tx.balances[id]
	require.Equal(t, 4.0, b.StockLevel)
	require.Equal(t, 0.0, b.Retail)
	require.Equal(t, 4.0, b.Warehouse)

	var sum float64
	for _, mv := range tx.movements {
		sum += mv.Quantity
	}
	require.Equal(t, -6.0, sum)
}

func TestReserveUnknownProduct(t *testing.T) {
	tx := newMemTx()
	err := NewLedger().Reserve(context.Background(), tx, "INV-003", []Line{{ProductID: uuid.New(), Quantity: 1}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReleaseSucceedsAtZeroStock(t *testing.T) {
	id := uuid.New()
	tx := newMemTx(Balance{ProductID: id, Name: "Widget"})

	err := NewLedger().Release(context.Background(), tx, "REF-001", []Line{{ProductID: id, Quantity: 3}})
	require.NoError(t, err)

	b := tx.balances[id]
	require.Equal(t, 3.0, b.StockLevel)
	require.Equal(t, 3.0, b.Retail)

	require.Len(t, tx.movements, 1)
	require.Equal(t, MovementIn, tx.movements[0].Type)
	require.Equal(t, 3.0, tx.movements[0].Quantity)
}

func TestAdjustNegativeBelowZeroRejected(t *testing.T) {
	id := uuid.New()
	tx := newMemTx(Balance{ProductID: id, Name: "Widget", StockLevel: 4, Warehouse: 4})

	err := NewLedger().Adjust(context.Background(), tx, id, -6, LocationWarehouse, "stock count", "")
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, 4.0, tx.balances[id].StockLevel)
}

func TestAdjustRecordsMovement(t *testing.T) {
	id := uuid.New()
	tx := newMemTx(Balance{ProductID: id, Name: "Widget"})

	err := NewLedger().Adjust(context.Background(), tx, id, 10, LocationWarehouse, "Initial stock", "")
	require.NoError(t, err)

	b := tx.balances[id]
	require.Equal(t, 10.0, b.StockLevel)
	require.Equal(t, 10.0, b.Warehouse)

	require.Len(t, tx.movements, 1)
	require.Equal(t, MovementAdjustment, tx.movements[0].Type)
	require.Equal(t, "Initial stock", tx.movements[0].Reference)
}

func TestTransferKeepsTotalLevel(t *testing.T) {
	id := uuid.New()
	tx := newMemTx(Balance{ProductID: id, Name: "Widget", StockLevel: 10, Warehouse: 8, Retail: 2})

	err := NewLedger().Transfer(context.Background(), tx, id, 5, LocationWarehouse)
	require.NoError(t, err)

	b := tx.balances[id]
	require.Equal(t, 10.0, b.StockLevel)
	require.Equal(t, 3.0, b.Warehouse)
	require.Equal(t, 7.0, b.Retail)

	require.Len(t, tx.movements, 1)
	require.Equal(t, MovementTransfer, tx.movements[0].Type)
}

func TestTransferInsufficientSourceBucket(t *testing.T) {
	id := uuid.New()
	tx := newMemTx(Balance{ProductID: id, Name: "Widget", StockLevel: 10, Warehouse: 8, Retail: 2})

	err := NewLedger().Transfer(context.Background(), tx, id, 5, LocationRetail)
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, "Widget", ise.Shortages[0].Product)
	require.Equal(t, 2.0, ise.Shortages[0].Available)
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	id := uuid.New()
	tx := newMemTx(Balance{ProductID: id, Name: "Widget", StockLevel: 5, Retail: 5})

	var ve *shared.ValidationError
	err := NewLedger().Reserve(context.Background(), tx, "INV-004", []Line{{ProductID: id, Quantity: 0}})
	require.ErrorAs(t, err, &ve)
}
