package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/invoice"
	"github.com/tillpoint/tillpoint/internal/pricing"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/stock"
	"github.com/tillpoint/tillpoint/internal/syncsignal"
)

// ProductInfo is the slice of a product the orchestrator prices against.
type ProductInfo struct {
	ID            uuid.UUID
	Name          string
	RetailPrice   float64
	PurchasePrice float64
	IsActive      bool
}

// CustomerInfo is the slice of a customer the credit path needs.
type CustomerInfo struct {
	ID                 uuid.UUID
	Name               string
	CreditLimit        float64
	OutstandingBalance float64
}

// TxRepository is everything one sale touches inside its transaction. It
// embeds the stock ledger's Tx so reservation, invoicing and persistence
// commit or roll back together.
type TxRepository interface {
	stock.Tx
	GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductInfo, error)
	NextInvoiceNumber(ctx context.Context) (int64, error)
	InsertSale(ctx context.Context, s *Sale) error
	GetSaleForUpdate(ctx context.Context, id uuid.UUID) (*Sale, error)
	RefundedQuantities(ctx context.Context, originalID uuid.UUID) (map[uuid.UUID]float64, error)
	SetSaleStatus(ctx context.Context, id uuid.UUID, status SaleStatus) error
	CompleteSale(ctx context.Context, id uuid.UUID, paid float64, payments []Payment) error
	GetCustomerForUpdate(ctx context.Context, id uuid.UUID) (CustomerInfo, error)
	AddOutstanding(ctx context.Context, customerID uuid.UUID, delta float64) error
	MarkChanged(ctx context.Context, domain string) error
}

// Store is the persistence boundary of the orchestrator.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*Sale, error)
	List(ctx context.Context, f ListFilter) ([]Sale, error)
}

// Claimer guards against replayed submissions.
type Claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Service struct {
	store   Store
	ledger  *stock.Ledger
	idem    Claimer
	taxRate float64
}

// NewService builds the orchestrator. taxRate is the configured default tax
// percentage; requests may override it. idem may be nil when idempotency
// keys are not in use.
func NewService(store Store, ledger *stock.Ledger, idem Claimer, taxRate float64) *Service {
	return &Service{store: store, ledger: ledger, idem: idem, taxRate: taxRate}
}

// Create runs either the sale or the refund path, entirely inside one
// transaction. Any failure rolls everything back.
func (s *Service) Create(ctx context.Context, req CreateSaleRequest) (*Sale, []shared.Warning, error) {
	release, err := s.claim(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, nil, err
	}
	var (
		sale     *Sale
		warnings []shared.Warning
	)
	if req.IsRefund {
		sale, warnings, err = s.refund(ctx, req)
	} else {
		sale, warnings, err = s.sell(ctx, req)
	}
	if err != nil {
		release(ctx)
		return nil, nil, err
	}
	return sale, warnings, nil
}

// claim takes the idempotency key. The returned func frees it again so a
// failed attempt stays retryable.
func (s *Service) claim(ctx context.Context, key string) (func(context.Context), error) {
	if key == "" || s.idem == nil {
		return func(context.Context) {}, nil
	}
	first, err := s.idem.Claim(ctx, key)
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, fmt.Errorf("submission %q %w", key, shared.ErrConflict)
	}
	return func(ctx context.Context) { _ = s.idem.Release(ctx, key) }, nil
}

func (s *Service) sell(ctx context.Context, req CreateSaleRequest) (*Sale, []shared.Warning, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, nil, err
	}
	if !req.Draft {
		if err := validatePayments(req.Payments); err != nil {
			return nil, nil, err
		}
	} else if len(req.Payments) > 0 {
		return nil, nil, shared.NewValidationError("a draft sale cannot carry payments")
	}
	creditAmount := sumByMethod(req.Payments, PaymentCredit)
	if creditAmount > 0 && req.CustomerID == nil {
		return nil, nil, shared.NewValidationError("a credit payment requires a customer")
	}
	taxRate := s.taxRate
	if req.TaxRatePercent != nil {
		taxRate = *req.TaxRatePercent
	}

	var (
		sale     *Sale
		warnings []shared.Warning
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products, err := loadProducts(ctx, tx, req.Items)
		if err != nil {
			return err
		}
		items, priceLines, w, err := buildLines(req.Items, products)
		if err != nil {
			return err
		}
		warnings = append(warnings, w...)

		totals, err := pricing.Price(priceLines, req.DiscountAmount, taxRate)
		if err != nil {
			return err
		}
		if !req.Draft {
			if err := checkSplitsCoverTotal(req.Payments, totals.Total); err != nil {
				return err
			}
		}

		n, err := tx.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		ref := invoice.Reference(n)

		status := StatusCompleted
		if req.Draft {
			status = StatusDraft
		} else {
			if err := s.ledger.Reserve(ctx, tx, ref, reserveLines(req.Items)); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		doc := &Sale{
			ID:            uuid.New(),
			InvoiceNumber: n,
			Reference:     ref,
			CustomerID:    req.CustomerID,
			Status:        status,
			Subtotal:      totals.Subtotal,
			Discount:      totals.Discount,
			Tax:           totals.Tax,
			Total:         totals.Total,
			Paid:          sumPaid(req.Payments),
			Items:         items,
			CreatedAt:     now,
		}
		if !req.Draft {
			doc.Payments = buildPayments(doc.ID, req.Payments, now)
		}
		for i := range doc.Items {
			doc.Items[i].SaleID = doc.ID
		}
		if err := tx.InsertSale(ctx, doc); err != nil {
			return err
		}

		if creditAmount > 0 {
			cust, err := tx.GetCustomerForUpdate(ctx, *req.CustomerID)
			if err != nil {
				return err
			}
			if err := tx.AddOutstanding(ctx, cust.ID, creditAmount); err != nil {
				return err
			}
			if cust.OutstandingBalance+creditAmount > cust.CreditLimit {
				warnings = append(warnings, shared.Warning{
					Code: "CREDIT_LIMIT",
					Message: fmt.Sprintf("outstanding balance %.2f exceeds credit limit %.2f for %s",
						cust.OutstandingBalance+creditAmount, cust.CreditLimit, cust.Name),
				})
			}
			if err := tx.MarkChanged(ctx, syncsignal.DomainCustomers); err != nil {
				return err
			}
		} else if req.CustomerID != nil {
			// Validate the reference even when no credit is involved.
			if _, err := tx.GetCustomerForUpdate(ctx, *req.CustomerID); err != nil {
				return err
			}
		}

		domains := []string{syncsignal.DomainSales}
		if !req.Draft {
			domains = append(domains, syncsignal.DomainProducts, syncsignal.DomainStock, syncsignal.DomainPayments)
		}
		for _, d := range domains {
			if err := tx.MarkChanged(ctx, d); err != nil {
				return err
			}
		}
		sale = doc
		return nil
	})
	if err != nil {
		return nil, nil, shared.WrapPersistence("sales: create", err)
	}
	return sale, warnings, nil
}

func (s *Service) refund(ctx context.Context, req CreateSaleRequest) (*Sale, []shared.Warning, error) {
	if req.RefundOfSaleID == nil {
		return nil, nil, shared.NewValidationError("refund_of_sale_id is required for a refund")
	}
	if req.Draft {
		return nil, nil, shared.NewValidationError("a refund cannot be a draft")
	}
	if err := validateItems(req.Items); err != nil {
		return nil, nil, err
	}
	method := PaymentCash
	if len(req.Payments) > 1 {
		return nil, nil, shared.NewValidationError("a refund carries at most one payment")
	}
	var payRef string
	if len(req.Payments) == 1 {
		if !req.Payments[0].Method.Valid() {
			return nil, nil, shared.NewValidationError(fmt.Sprintf("unknown payment method %q", req.Payments[0].Method))
		}
		method = req.Payments[0].Method
		payRef = req.Payments[0].Reference
	}

	var sale *Sale
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orig, err := tx.GetSaleForUpdate(ctx, *req.RefundOfSaleID)
		if err != nil {
			return err
		}
		if orig.IsRefund {
			return shared.NewValidationError("a refund cannot target another refund")
		}
		if orig.Status != StatusCompleted && orig.Status != StatusRefunded {
			return shared.NewValidationError(fmt.Sprintf("a %s sale cannot be refunded", orig.Status))
		}

		origItems := make(map[uuid.UUID]SaleItem, len(orig.Items))
		for _, it := range orig.Items {
			origItems[it.ProductID] = it
		}
		refunded, err := tx.RefundedQuantities(ctx, orig.ID)
		if err != nil {
			return err
		}

		var (
			items      []SaleItem
			priceLines []pricing.LineItem
		)
		returned := make(map[uuid.UUID]float64, len(refunded))
		for p, q := range refunded {
			returned[p] = q
		}
		for _, in := range req.Items {
			origItem, ok := origItems[in.ProductID]
			if !ok {
				return shared.NewValidationError(fmt.Sprintf("product %s was not on the original sale", in.ProductID))
			}
			remaining := origItem.Quantity - returned[in.ProductID]
			if in.Quantity > remaining {
				return shared.NewValidationError(fmt.Sprintf(
					"refund quantity %s for %s exceeds the remaining %s",
					trimFloat(in.Quantity), origItem.ProductName, trimFloat(remaining)))
			}
			returned[in.ProductID] += in.Quantity
			items = append(items, SaleItem{
				ID:            uuid.New(),
				ProductID:     in.ProductID,
				ProductName:   origItem.ProductName,
				Quantity:      in.Quantity,
				UnitPrice:     origItem.UnitPrice,
				DiscountType:  origItem.DiscountType,
				DiscountValue: origItem.DiscountValue,
			})
			priceLines = append(priceLines, pricing.LineItem{
				UnitPrice:     origItem.UnitPrice,
				Quantity:      in.Quantity,
				DiscountType:  origItem.DiscountType,
				DiscountValue: lineDiscountFor(origItem, in.Quantity),
			})
		}

		totals, err := refundTotals(orig, priceLines)
		if err != nil {
			return err
		}
		for i := range items {
			lt, err := pricing.Line(priceLines[i])
			if err != nil {
				return err
			}
			items[i].LineTotal = lt.Net
		}

		n, err := tx.NextInvoiceNumber(ctx)
		if err != nil {
			return err
		}
		ref := invoice.Reference(n)

		// Returned goods always come back, even at stock level zero.
		if err := s.ledger.Release(ctx, tx, ref, reserveLines(req.Items)); err != nil {
			return err
		}

		now := time.Now().UTC()
		doc := &Sale{
			ID:             uuid.New(),
			InvoiceNumber:  n,
			Reference:      ref,
			CustomerID:     orig.CustomerID,
			Status:         StatusCompleted,
			IsRefund:       true,
			RefundOfSaleID: &orig.ID,
			Subtotal:       totals.Subtotal,
			Discount:       totals.Discount,
			Tax:            totals.Tax,
			Total:          totals.Total,
			Paid:           -totals.Total,
			Items:          items,
			Payments: []Payment{{
				ID:        uuid.New(),
				Method:    method,
				Amount:    -totals.Total,
				Reference: payRef,
				CreatedAt: now,
			}},
			CreatedAt: now,
		}
		for i := range doc.Items {
			doc.Items[i].SaleID = doc.ID
		}
		doc.Payments[0].SaleID = doc.ID
		if err := tx.InsertSale(ctx, doc); err != nil {
			return err
		}

		if fullyReturned(orig, returned) {
			if err := tx.SetSaleStatus(ctx, orig.ID, StatusRefunded); err != nil {
				return err
			}
		}
		if orig.CustomerID != nil && sumByMethod(paymentInputs(orig.Payments), PaymentCredit) > 0 {
			if err := tx.AddOutstanding(ctx, *orig.CustomerID, -totals.Total); err != nil {
				return err
			}
			if err := tx.MarkChanged(ctx, syncsignal.DomainCustomers); err != nil {
				return err
			}
		}
		for _, d := range []string{syncsignal.DomainSales, syncsignal.DomainProducts, syncsignal.DomainStock, syncsignal.DomainPayments} {
			if err := tx.MarkChanged(ctx, d); err != nil {
				return err
			}
		}
		sale = doc
		return nil
	})
	if err != nil {
		return nil, nil, shared.WrapPersistence("sales: refund", err)
	}
	return sale, nil, nil
}

// Get returns a sale with its items and payments.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Sale, error) {
	return s.store.GetByID(ctx, id)
}

// List returns sales matching the filter, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Sale, error) {
	return s.store.List(ctx, f)
}

// CompleteDraft finishes a held draft: payments are validated against the
// stored total, stock is reserved under the draft's invoice reference and
// the sale moves to COMPLETED. Totals were fixed when the draft was taken.
func (s *Service) CompleteDraft(ctx context.Context, id uuid.UUID, payments []PaymentInput) (*Sale, []shared.Warning, error) {
	if err := validatePayments(payments); err != nil {
		return nil, nil, err
	}
	creditAmount := sumByMethod(payments, PaymentCredit)

	var (
		sale     *Sale
		warnings []shared.Warning
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusDraft {
			return shared.NewValidationError(fmt.Sprintf("a %s sale cannot be completed", doc.Status))
		}
		if creditAmount > 0 && doc.CustomerID == nil {
			return shared.NewValidationError("a credit payment requires a customer")
		}
		if err := checkSplitsCoverTotal(payments, doc.Total); err != nil {
			return err
		}

		lines := make([]stock.Line, len(doc.Items))
		for i, it := range doc.Items {
			lines[i] = stock.Line{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		if err := s.ledger.Reserve(ctx, tx, doc.Reference, lines); err != nil {
			return err
		}

		now := time.Now().UTC()
		doc.Payments = buildPayments(doc.ID, payments, now)
		doc.Paid = sumPaid(payments)
		doc.Status = StatusCompleted
		if err := tx.CompleteSale(ctx, doc.ID, doc.Paid, doc.Payments); err != nil {
			return err
		}

		if creditAmount > 0 {
			cust, err := tx.GetCustomerForUpdate(ctx, *doc.CustomerID)
			if err != nil {
				return err
			}
			if err := tx.AddOutstanding(ctx, cust.ID, creditAmount); err != nil {
				return err
			}
			if cust.OutstandingBalance+creditAmount > cust.CreditLimit {
				warnings = append(warnings, shared.Warning{
					Code: "CREDIT_LIMIT",
					Message: fmt.Sprintf("outstanding balance %.2f exceeds credit limit %.2f for %s",
						cust.OutstandingBalance+creditAmount, cust.CreditLimit, cust.Name),
				})
			}
			if err := tx.MarkChanged(ctx, syncsignal.DomainCustomers); err != nil {
				return err
			}
		}
		for _, d := range []string{syncsignal.DomainSales, syncsignal.DomainProducts, syncsignal.DomainStock, syncsignal.DomainPayments} {
			if err := tx.MarkChanged(ctx, d); err != nil {
				return err
			}
		}
		sale = doc
		return nil
	})
	if err != nil {
		return nil, nil, shared.WrapPersistence("sales: complete draft", err)
	}
	return sale, warnings, nil
}

// CancelDraft moves a held draft to CANCELLED. Completed sales are immutable;
// reversal goes through the refund path.
func (s *Service) CancelDraft(ctx context.Context, id uuid.UUID) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sale.Status != StatusDraft {
			return shared.NewValidationError(fmt.Sprintf("a %s sale cannot be cancelled", sale.Status))
		}
		if err := tx.SetSaleStatus(ctx, id, StatusCancelled); err != nil {
			return err
		}
		return tx.MarkChanged(ctx, syncsignal.DomainSales)
	})
	return shared.WrapPersistence("sales: cancel draft", err)
}
