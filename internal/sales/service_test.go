package sales

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/stock"
	"github.com/tillpoint/tillpoint/internal/syncsignal"
)

// memStore is an in-memory Store with real rollback: WithTx snapshots the
// state and restores it when the callback fails.
type memStore struct {
	mu         sync.Mutex
	balances   map[uuid.UUID]stock.Balance
	movements  []stock.Movement
	products   map[uuid.UUID]ProductInfo
	customers  map[uuid.UUID]CustomerInfo
	sales      map[uuid.UUID]*Sale
	counter    int64
	stamps     []string
	failInsert error
}

func newMemStore() *memStore {
	return &memStore{
		balances:  map[uuid.UUID]stock.Balance{},
		products:  map[uuid.UUID]ProductInfo{},
		customers: map[uuid.UUID]CustomerInfo{},
		sales:     map[uuid.UUID]*Sale{},
	}
}

func (m *memStore) snapshot() *memStore {
	cp := newMemStore()
	for k, v := range m.balances {
		cp.balances[k] = v
	}
	cp.movements = append([]stock.Movement(nil), m.movements...)
	for k, v := range m.products {
		cp.products[k] = v
	}
	for k, v := range m.customers {
		cp.customers[k] = v
	}
	for k, v := range m.sales {
		s := *v
		s.Items = append([]SaleItem(nil), v.Items...)
		s.Payments = append([]Payment(nil), v.Payments...)
		cp.sales[k] = &s
	}
	cp.counter = m.counter
	cp.stamps = append([]string(nil), m.stamps...)
	return cp
}

func (m *memStore) restore(snap *memStore) {
	m.balances = snap.balances
	m.movements = snap.movements
	m.products = snap.products
	m.customers = snap.customers
	m.sales = snap.sales
	m.counter = snap.counter
	m.stamps = snap.stamps
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshot()
	if err := fn(ctx, &memTx{store: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sales[id]
	if !ok {
		return nil, shared.NotFound(id.String())
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) List(context.Context, ListFilter) ([]Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sale, 0, len(m.sales))
	for _, s := range m.sales {
		out = append(out, *s)
	}
	return out, nil
}

type memTx struct {
	store *memStore
}

func (t *memTx) GetBalanceForUpdate(_ context.Context, productID uuid.UUID) (stock.Balance, error) {
	b, ok := t.store.balances[productID]
	if !ok {
		return stock.Balance{}, shared.NotFound(productID.String())
	}
	return b, nil
}

func (t *memTx) UpdateBalance(_ context.Context, b stock.Balance) error {
	t.store.balances[b.ProductID] = b
	return nil
}

func (t *memTx) InsertMovement(_ context.Context, m stock.Movement) error {
	t.store.movements = append(t.store.movements, m)
	return nil
}

func (t *memTx) GetProducts(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductInfo, error) {
	out := map[uuid.UUID]ProductInfo{}
	for _, id := range ids {
		if p, ok := t.store.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) NextInvoiceNumber(context.Context) (int64, error) {
	t.store.counter++
	return t.store.counter, nil
}

func (t *memTx) InsertSale(_ context.Context, s *Sale) error {
	if t.store.failInsert != nil {
		return t.store.failInsert
	}
	cp := *s
	cp.Items = append([]SaleItem(nil), s.Items...)
	cp.Payments = append([]Payment(nil), s.Payments...)
	t.store.sales[s.ID] = &cp
	return nil
}

func (t *memTx) GetSaleForUpdate(_ context.Context, id uuid.UUID) (*Sale, error) {
	s, ok := t.store.sales[id]
	if !ok {
		return nil, shared.NotFound(id.String())
	}
	cp := *s
	cp.Items = append([]SaleItem(nil), s.Items...)
	cp.Payments = append([]Payment(nil), s.Payments...)
	return &cp, nil
}

func (t *memTx) RefundedQuantities(_ context.Context, originalID uuid.UUID) (map[uuid.UUID]float64, error) {
	out := map[uuid.UUID]float64{}
	for _, s := range t.store.sales {
		if s.IsRefund && s.RefundOfSaleID != nil && *s.RefundOfSaleID == originalID {
			for _, it := range s.Items {
				out[it.ProductID] += it.Quantity
			}
		}
	}
	return out, nil
}

func (t *memTx) SetSaleStatus(_ context.Context, id uuid.UUID, status SaleStatus) error {
	s, ok := t.store.sales[id]
	if !ok {
		return shared.NotFound(id.String())
	}
	s.Status = status
	return nil
}

func (t *memTx) CompleteSale(_ context.Context, id uuid.UUID, paid float64, payments []Payment) error {
	s, ok := t.store.sales[id]
	if !ok {
		return shared.NotFound(id.String())
	}
	s.Status = StatusCompleted
	s.Paid = paid
	s.Payments = append(s.Payments, payments...)
	return nil
}

func (t *memTx) GetCustomerForUpdate(_ context.Context, id uuid.UUID) (CustomerInfo, error) {
	c, ok := t.store.customers[id]
	if !ok {
		return CustomerInfo{}, shared.NotFound(id.String())
	}
	return c, nil
}

func (t *memTx) AddOutstanding(_ context.Context, customerID uuid.UUID, delta float64) error {
	c, ok := t.store.customers[customerID]
	if !ok {
		return shared.NotFound(customerID.String())
	}
	c.OutstandingBalance += delta
	if c.OutstandingBalance < 0 {
		c.OutstandingBalance = 0
	}
	t.store.customers[customerID] = c
	return nil
}

func (t *memTx) MarkChanged(_ context.Context, domain string) error {
	t.store.stamps = append(t.store.stamps, domain)
	return nil
}

type memClaimer struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (c *memClaimer) Claim(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = map[string]bool{}
	}
	if c.keys[key] {
		return false, nil
	}
	c.keys[key] = true
	return true, nil
}

func (c *memClaimer) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
	return nil
}

func addProduct(store *memStore, name string, retail, purchase, level float64) uuid.UUID {
	id := uuid.New()
	store.products[id] = ProductInfo{ID: id, Name: name, RetailPrice: retail, PurchasePrice: purchase, IsActive: true}
	store.balances[id] = stock.Balance{ProductID: id, Name: name, StockLevel: level, Retail: level}
	return id
}

func cashPayment(amount float64) []PaymentInput {
	return []PaymentInput{{Method: PaymentCash, Amount: amount}}
}

func TestCreateSaleHappyPath(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	gadget := addProduct(store, "Gadget", 50, 30, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)

	sale, warnings, err := svc.Create(context.Background(), CreateSaleRequest{
		Items: []ItemInput{
			{ProductID: widget, Quantity: 2},
			{ProductID: gadget, Quantity: 3},
		},
		Payments: cashPayment(350),
	})
	require.NoError(t, err)
	require.Empty(t, warnings)

	require.Equal(t, StatusCompleted, sale.Status)
	require.Equal(t, int64(1), sale.InvoiceNumber)
	require.Equal(t, "INV-000001", sale.Reference)
	require.Equal(t, 350.0, sale.Subtotal)
	require.Equal(t, 350.0, sale.Total)
	require.Equal(t, 350.0, sale.Paid)
	require.Len(t, sale.Items, 2)

	require.Equal(t, 8.0, store.balances[widget].StockLevel)
	require.Equal(t, 7.0, store.balances[gadget].StockLevel)
	require.Len(t, store.movements, 2)
	for _, m := range store.movements {
		require.Equal(t, stock.MovementOut, m.Type)
		require.Equal(t, "INV-000001", m.Reference)
	}
	require.Subset(t, store.stamps, []string{
		syncsignal.DomainSales, syncsignal.DomainStock,
		syncsignal.DomainPayments, syncsignal.DomainProducts,
	})
}

func TestCreateSaleInsufficientStockIsAtomic(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	gadget := addProduct(store, "Gadget", 50, 30, 2)
	svc := NewService(store, stock.NewLedger(), nil, 0)

	_, _, err := svc.Create(context.Background(), CreateSaleRequest{
		Items: []ItemInput{
			{ProductID: widget, Quantity: 5},
			{ProductID: gadget, Quantity: 5},
		},
		Payments: cashPayment(750),
	})
	var ise *stock.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	require.Contains(t, err.Error(), "Need 5, have 2 for Gadget")

	require.Equal(t, 10.0, store.balances[widget].StockLevel)
	require.Equal(t, 2.0, store.balances[gadget].StockLevel)
	require.Empty(t, store.sales)
	require.Empty(t, store.movements)
	require.Zero(t, store.counter)
}

func TestCreateSaleUnknownProduct(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, stock.NewLedger(), nil, 0)

	missing := uuid.New()
	_, _, err := svc.Create(context.Background(), CreateSaleRequest{
		Items:    []ItemInput{{ProductID: missing, Quantity: 1}},
		Payments: cashPayment(10),
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Contains(t, err.Error(), missing.String()+" not found")
}

func TestCreateSaleRollsBackOnPersistFailure(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	store.failInsert = errors.New("disk full")
	svc := NewService(store, stock.NewLedger(), nil, 0)

	_, _, err := svc.Create(context.Background(), CreateSaleRequest{
		Items:    []ItemInput{{ProductID: widget, Quantity: 2}},
		Payments: cashPayment(200),
	})
	require.Error(t, err)

	// The reservation made before the failure must be rolled back with it.
	require.Equal(t, 10.0, store.balances[widget].StockLevel)
	require.Empty(t, store.movements)
	require.Empty(t, store.sales)
	require.Zero(t, store.counter)
}

func TestInvoiceNumbersIncrementSequentially(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 100)
	svc := NewService(store, stock.NewLedger(), nil, 0)

	for want := int64(1); want <= 3; want++ {
		sale, _, err := svc.Create(context.Background(), CreateSaleRequest{
			Items:    []ItemInput{{ProductID: widget, Quantity: 1}},
			Payments: cashPayment(100),
		})
		require.NoError(t, err)
		require.Equal(t, want, sale.InvoiceNumber)
	}
}

func TestConcurrentSalesGetUniqueInvoiceNumbers(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 1000)
	svc := NewService(store, stock.NewLedger(), nil, 0)

	const n = 25
	var wg sync.WaitGroup
	numbers := make(chan int64, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, _, err := svc.Create(context.Background(), CreateSaleRequest{
				Items:    []ItemInput{{ProductID: widget, Quantity: 1}},
				Payments: cashPayment(100),
			})
			if err != nil {
				errs <- err
				return
			}
			numbers <- sale.InvoiceNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := map[int64]bool{}
	for num := range numbers {
		require.False(t, seen[num], "invoice number %d issued twice", num)
		seen[num] = true
	}
	require.Len(t, seen, n)
	require.Equal(t, 975.0, store.balances[widget].StockLevel)
}

func TestCreditSaleAddsOutstandingAndWarnsPastLimit(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	custID := uuid.New()
	store.customers[custID] = CustomerInfo{ID: custID, Name: "Acme", CreditLimit: 150, OutstandingBalance: 0}
	svc := NewService(store, stock.NewLedger(), nil, 0)

	sale, warnings, err := svc.Create(context.Background(), CreateSaleRequest{
		CustomerID: &custID,
		Items:      []ItemInput{{ProductID: widget, Quantity: 2}},
		Payments:   []PaymentInput{{Method: PaymentCredit, Amount: 200}},
	})
	require.NoError(t, err)

	require.Equal(t, StatusCompleted, sale.Status)
	require.Equal(t, 0.0, sale.Paid)
	require.Equal(t, 200.0, store.customers[custID].OutstandingBalance)

	require.Len(t, warnings, 1)
	require.Equal(t, "CREDIT_LIMIT", warnings[0].Code)
	require.Contains(t, store.stamps, syncsignal.DomainCustomers)
}

func TestCreditPaymentRequiresCustomer(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)

	_, _, err := svc.Create(context.Background(), CreateSaleRequest{
		Items:    []ItemInput{{ProductID: widget, Quantity: 1}},
		Payments: []PaymentInput{{Method: PaymentCredit, Amount: 100}},
	})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestPaymentSplitValidation(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)
	ctx := context.Background()
	items := []ItemInput{{ProductID: widget, Quantity: 1}}
	var ve *shared.ValidationError

	// Splits must sum to the total.
	_, _, err := svc.Create(ctx, CreateSaleRequest{Items: items, Payments: cashPayment(90)})
	require.ErrorAs(t, err, &ve)
	require.Contains(t, err.Error(), "do not match total")

	// Card payments need a reference.
	_, _, err = svc.Create(ctx, CreateSaleRequest{Items: items,
		Payments: []PaymentInput{{Method: PaymentCard, Amount: 100}}})
	require.ErrorAs(t, err, &ve)
	require.Contains(t, err.Error(), "requires a reference")

	// Negative split amounts are rejected outright.
	_, _, err = svc.Create(ctx, CreateSaleRequest{Items: items,
		Payments: []PaymentInput{{Method: PaymentCash, Amount: 150}, {Method: PaymentCash, Amount: -50}}})
	require.ErrorAs(t, err, &ve)

	// A valid mixed split settles.
	sale, _, err := svc.Create(ctx, CreateSaleRequest{Items: items,
		Payments: []PaymentInput{
			{Method: PaymentCash, Amount: 40},
			{Method: PaymentCard, Amount: 60, Reference: "SLIP-123"},
		}})
	require.NoError(t, err)
	require.Equal(t, 100.0, sale.Paid)
	require.Len(t, sale.Payments, 2)
}

func TestTaxAndDiscountApplied(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 10)

	sale, _, err := svc.Create(context.Background(), CreateSaleRequest{
		Items:          []ItemInput{{ProductID: widget, Quantity: 2}},
		DiscountAmount: 50,
		Payments:       cashPayment(165),
	})
	require.NoError(t, err)
	require.Equal(t, 200.0, sale.Subtotal)
	require.Equal(t, 50.0, sale.Discount)
	require.Equal(t, 15.0, sale.Tax)
	require.Equal(t, 165.0, sale.Total)
}

func TestLowMarginWarning(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 55, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)

	_, warnings, err := svc.Create(context.Background(), CreateSaleRequest{
		Items:    []ItemInput{{ProductID: widget, Quantity: 1}},
		Payments: cashPayment(55),
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, "LOW_MARGIN", warnings[0].Code)
}

func makeSale(t *testing.T, svc *Service, productID uuid.UUID, qty, total float64) *Sale {
	t.Helper()
	sale, _, err := svc.Create(context.Background(), CreateSaleRequest{
		Items:    []ItemInput{{ProductID: productID, Quantity: qty}},
		Payments: cashPayment(total),
	})
	require.NoError(t, err)
	return sale
}

func TestPartialRefundReleasesStockAndNegatesPayment(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)

	orig := makeSale(t, svc, widget, 5, 500)
	require.Equal(t, 5.0, store.balances[widget].StockLevel)

	refund, _, err := svc.Create(context.Background(), CreateSaleRequest{
		IsRefund:       true,
		RefundOfSaleID: &orig.ID,
		Items:          []ItemInput{{ProductID: widget, Quantity: 2}},
	})
	require.NoError(t, err)

	require.True(t, refund.IsRefund)
	require.Equal(t, int64(2), refund.InvoiceNumber)
	require.Equal(t, 200.0, refund.Total)
	require.Equal(t, -200.0, refund.Paid)
	require.Len(t, refund.Payments, 1)
	require.Equal(t, -200.0, refund.Payments[0].Amount)

	require.Equal(t, 7.0, store.balances[widget].StockLevel)
	require.Equal(t, StatusCompleted, store.sales[orig.ID].Status)
}

func TestRefundSucceedsAtZeroStock(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 5)
	svc := NewService(store, stock.NewLedger(), nil, 0)

	orig := makeSale(t, svc, widget, 5, 500)
	require.Equal(t, 0.0, store.balances[widget].StockLevel)

	_, _, err := svc.Create(context.Background(), CreateSaleRequest{
		IsRefund:       true,
		RefundOfSaleID: &orig.ID,
		Items:          []ItemInput{{ProductID: widget, Quantity: 5}},
	})
	require.NoError(t, err)
	require.Equal(t, 5.0, store.balances[widget].StockLevel)
}

func TestCumulativeRefundsCappedAtOriginalQuantity(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)
	ctx := context.Background()

	orig := makeSale(t, svc, widget, 5, 500)

	_, _, err := svc.Create(ctx, CreateSaleRequest{
		IsRefund: true, RefundOfSaleID: &orig.ID,
		Items: []ItemInput{{ProductID: widget, Quantity: 3}},
	})
	require.NoError(t, err)

	// 3 of 5 returned; asking for 3 more exceeds the remaining 2.
	_, _, err = svc.Create(ctx, CreateSaleRequest{
		IsRefund: true, RefundOfSaleID: &orig.ID,
		Items: []ItemInput{{ProductID: widget, Quantity: 3}},
	})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Contains(t, err.Error(), "exceeds the remaining 2")

	// The remaining 2 go through and complete the return.
	_, _, err = svc.Create(ctx, CreateSaleRequest{
		IsRefund: true, RefundOfSaleID: &orig.ID,
		Items: []ItemInput{{ProductID: widget, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, store.sales[orig.ID].Status)
}

func TestRefundRejectsForeignProductAndRefundOfRefund(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	gadget := addProduct(store, "Gadget", 50, 30, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)
	ctx := context.Background()

	orig := makeSale(t, svc, widget, 2, 200)

	var ve *shared.ValidationError
	_, _, err := svc.Create(ctx, CreateSaleRequest{
		IsRefund: true, RefundOfSaleID: &orig.ID,
		Items: []ItemInput{{ProductID: gadget, Quantity: 1}},
	})
	require.ErrorAs(t, err, &ve)
	require.Contains(t, err.Error(), "was not on the original sale")

	refund, _, err := svc.Create(ctx, CreateSaleRequest{
		IsRefund: true, RefundOfSaleID: &orig.ID,
		Items: []ItemInput{{ProductID: widget, Quantity: 1}},
	})
	require.NoError(t, err)

	_, _, err = svc.Create(ctx, CreateSaleRequest{
		IsRefund: true, RefundOfSaleID: &refund.ID,
		Items: []ItemInput{{ProductID: widget, Quantity: 1}},
	})
	require.ErrorAs(t, err, &ve)
	require.Contains(t, err.Error(), "cannot target another refund")
}

func TestRefundReducesCreditOutstanding(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	custID := uuid.New()
	store.customers[custID] = CustomerInfo{ID: custID, Name: "Acme", CreditLimit: 1000}
	svc := NewService(store, stock.NewLedger(), nil, 0)
	ctx := context.Background()

	orig, _, err := svc.Create(ctx, CreateSaleRequest{
		CustomerID: &custID,
		Items:      []ItemInput{{ProductID: widget, Quantity: 3}},
		Payments:   []PaymentInput{{Method: PaymentCredit, Amount: 300}},
	})
	require.NoError(t, err)
	require.Equal(t, 300.0, store.customers[custID].OutstandingBalance)

	_, _, err = svc.Create(ctx, CreateSaleRequest{
		IsRefund: true, RefundOfSaleID: &orig.ID,
		Items: []ItemInput{{ProductID: widget, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, 200.0, store.customers[custID].OutstandingBalance)
}

func TestIdempotencyKeyBlocksReplay(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), &memClaimer{}, 0)
	ctx := context.Background()

	req := CreateSaleRequest{
		Items:          []ItemInput{{ProductID: widget, Quantity: 1}},
		Payments:       cashPayment(100),
		IdempotencyKey: "till-7-receipt-42",
	}
	_, _, err := svc.Create(ctx, req)
	require.NoError(t, err)

	_, _, err = svc.Create(ctx, req)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, store.sales, 1)
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 1)
	svc := NewService(store, stock.NewLedger(), &memClaimer{}, 0)
	ctx := context.Background()

	req := CreateSaleRequest{
		Items:          []ItemInput{{ProductID: widget, Quantity: 5}},
		Payments:       cashPayment(500),
		IdempotencyKey: "till-7-receipt-43",
	}
	_, _, err := svc.Create(ctx, req)
	var ise *stock.InsufficientStockError
	require.ErrorAs(t, err, &ise)

	// The key must be free again so the cashier can retry after restocking.
	store.balances[widget] = stock.Balance{ProductID: widget, Name: "Widget", StockLevel: 5, Retail: 5}
	_, _, err = svc.Create(ctx, req)
	require.NoError(t, err)
}

func TestDraftSaleReservesNothingAndCancels(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)
	ctx := context.Background()

	draft, _, err := svc.Create(ctx, CreateSaleRequest{
		Items: []ItemInput{{ProductID: widget, Quantity: 2}},
		Draft: true,
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, draft.Status)
	require.Equal(t, 10.0, store.balances[widget].StockLevel)
	require.Empty(t, store.movements)
	require.Empty(t, draft.Payments)

	require.NoError(t, svc.CancelDraft(ctx, draft.ID))
	require.Equal(t, StatusCancelled, store.sales[draft.ID].Status)

	// A cancelled sale cannot be cancelled again.
	var ve *shared.ValidationError
	require.ErrorAs(t, svc.CancelDraft(ctx, draft.ID), &ve)
}

func TestCompleteDraftReservesStockAndRecordsPayments(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)
	ctx := context.Background()

	draft, _, err := svc.Create(ctx, CreateSaleRequest{
		Items: []ItemInput{{ProductID: widget, Quantity: 2}},
		Draft: true,
	})
	require.NoError(t, err)

	done, _, err := svc.CompleteDraft(ctx, draft.ID, []PaymentInput{{Method: PaymentCash, Amount: 200}})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.Equal(t, 200.0, done.Paid)
	require.Len(t, done.Payments, 1)

	// Stock comes off the shelf only now, under the draft's invoice reference.
	require.Equal(t, 8.0, store.balances[widget].StockLevel)
	require.Len(t, store.movements, 1)
	require.Equal(t, draft.Reference, store.movements[0].Reference)
	require.Equal(t, StatusCompleted, store.sales[draft.ID].Status)

	// Completing twice is rejected.
	var ve *shared.ValidationError
	_, _, err = svc.CompleteDraft(ctx, draft.ID, []PaymentInput{{Method: PaymentCash, Amount: 200}})
	require.ErrorAs(t, err, &ve)
}

func TestCompleteDraftInsufficientStockRollsBack(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)
	ctx := context.Background()

	draft, _, err := svc.Create(ctx, CreateSaleRequest{
		Items: []ItemInput{{ProductID: widget, Quantity: 4}},
		Draft: true,
	})
	require.NoError(t, err)

	// Stock was sold out from under the draft while it was on hold.
	store.balances[widget] = stock.Balance{ProductID: widget, Name: "Widget", StockLevel: 1, Retail: 1}

	var ise *stock.InsufficientStockError
	_, _, err = svc.CompleteDraft(ctx, draft.ID, []PaymentInput{{Method: PaymentCash, Amount: 400}})
	require.ErrorAs(t, err, &ise)

	// The draft survives untouched for another attempt.
	require.Equal(t, StatusDraft, store.sales[draft.ID].Status)
	require.Equal(t, 1.0, store.balances[widget].StockLevel)
	require.Empty(t, store.sales[draft.ID].Payments)
}

func TestCompleteDraftPaymentsMustCoverStoredTotal(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)
	ctx := context.Background()

	draft, _, err := svc.Create(ctx, CreateSaleRequest{
		Items: []ItemInput{{ProductID: widget, Quantity: 2}},
		Draft: true,
	})
	require.NoError(t, err)

	var ve *shared.ValidationError
	_, _, err = svc.CompleteDraft(ctx, draft.ID, []PaymentInput{{Method: PaymentCash, Amount: 150}})
	require.ErrorAs(t, err, &ve)
	require.Equal(t, StatusDraft, store.sales[draft.ID].Status)
	require.Equal(t, 10.0, store.balances[widget].StockLevel)
}

func TestCancelCompletedSaleRejected(t *testing.T) {
	store := newMemStore()
	widget := addProduct(store, "Widget", 100, 60, 10)
	svc := NewService(store, stock.NewLedger(), nil, 0)

	sale := makeSale(t, svc, widget, 1, 100)

	var ve *shared.ValidationError
	require.ErrorAs(t, svc.CancelDraft(context.Background(), sale.ID), &ve)
}
