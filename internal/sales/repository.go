package sales

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillpoint/tillpoint/internal/invoice"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/stock"
	"github.com/tillpoint/tillpoint/internal/syncsignal"
)

// Repository is the Postgres-backed Store. One WithTx call spans product
// lookup, stock reservation, invoice numbering, persistence and sync stamps.
type Repository struct {
	pool      *pgxpool.Pool
	stockRepo *stock.Repository
	seq       *invoice.Sequencer
	signals   *syncsignal.Repository
}

func NewRepository(pool *pgxpool.Pool, stockRepo *stock.Repository, seq *invoice.Sequencer, signals *syncsignal.Repository) *Repository {
	return &Repository{pool: pool, stockRepo: stockRepo, seq: seq, signals: signals}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			Tx:      r.stockRepo.Bind(tx),
			tx:      tx,
			seq:     r.seq,
			signals: r.signals,
		})
	})
}

// txRepo implements TxRepository on one pgx transaction. The embedded
// stock.Tx shares the same transaction, so reservations commit with the sale.
type txRepo struct {
	stock.Tx
	tx      pgx.Tx
	seq     *invoice.Sequencer
	signals *syncsignal.Repository
}

func (t *txRepo) GetProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ProductInfo, error) {
	const q = `
		SELECT id, name, retail_price, purchase_price, is_active
		FROM products
		WHERE id = ANY($1)`
	rows, err := t.tx.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]ProductInfo, len(ids))
	for rows.Next() {
		var p ProductInfo
		if err := rows.Scan(&p.ID, &p.Name, &p.RetailPrice, &p.PurchasePrice, &p.IsActive); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *txRepo) NextInvoiceNumber(ctx context.Context) (int64, error) {
	return t.seq.Next(ctx, t.tx)
}

const saleColumns = `id, invoice_number, reference, customer_id, status, is_refund, refund_of_sale_id,
	subtotal, discount, tax, total, paid, created_at`

func (t *txRepo) InsertSale(ctx context.Context, s *Sale) error {
	const q = `
		INSERT INTO sales (` + saleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := t.tx.Exec(ctx, q, s.ID, s.InvoiceNumber, s.Reference, s.CustomerID, s.Status, s.IsRefund,
		s.RefundOfSaleID, s.Subtotal, s.Discount, s.Tax, s.Total, s.Paid, s.CreatedAt)
	if err != nil {
		return err
	}
	for _, it := range s.Items {
		const qi = `
			INSERT INTO sale_items (id, sale_id, product_id, product_name, quantity, unit_price, discount_type, discount_value, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
		if _, err := t.tx.Exec(ctx, qi, it.ID, it.SaleID, it.ProductID, it.ProductName, it.Quantity,
			it.UnitPrice, string(it.DiscountType), it.DiscountValue, it.LineTotal); err != nil {
			return err
		}
	}
	for _, p := range s.Payments {
		const qp = `
			INSERT INTO payments (id, sale_id, method, amount, reference, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := t.tx.Exec(ctx, qp, p.ID, p.SaleID, p.Method, p.Amount, p.Reference, p.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func scanSale(row pgx.Row) (*Sale, error) {
	var s Sale
	err := row.Scan(&s.ID, &s.InvoiceNumber, &s.Reference, &s.CustomerID, &s.Status, &s.IsRefund,
		&s.RefundOfSaleID, &s.Subtotal, &s.Discount, &s.Tax, &s.Total, &s.Paid, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *txRepo) GetSaleForUpdate(ctx context.Context, id uuid.UUID) (*Sale, error) {
	s, err := scanSale(t.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFound(id.String())
	}
	if err != nil {
		return nil, err
	}
	s.Items, err = loadItems(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	s.Payments, err = loadPayments(ctx, t.tx, id)
	return s, err
}

func (t *txRepo) RefundedQuantities(ctx context.Context, originalID uuid.UUID) (map[uuid.UUID]float64, error) {
	const q = `
		SELECT si.product_id, COALESCE(SUM(si.quantity), 0)
		FROM sales s
		JOIN sale_items si ON si.sale_id = s.id
		WHERE s.refund_of_sale_id = $1 AND s.is_refund
		GROUP BY si.product_id`
	rows, err := t.tx.Query(ctx, q, originalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]float64)
	for rows.Next() {
		var (
			productID uuid.UUID
			qty       float64
		)
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		out[productID] = qty
	}
	return out, rows.Err()
}

func (t *txRepo) SetSaleStatus(ctx context.Context, id uuid.UUID, status SaleStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(id.String())
	}
	return nil
}

// CompleteSale records a finished draft's payments and moves it to COMPLETED.
func (t *txRepo) CompleteSale(ctx context.Context, id uuid.UUID, paid float64, payments []Payment) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sales SET status = $2, paid = $3 WHERE id = $1`, id, StatusCompleted, paid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(id.String())
	}
	for _, p := range payments {
		const qp = `
			INSERT INTO payments (id, sale_id, method, amount, reference, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := t.tx.Exec(ctx, qp, p.ID, p.SaleID, p.Method, p.Amount, p.Reference, p.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) GetCustomerForUpdate(ctx context.Context, id uuid.UUID) (CustomerInfo, error) {
	const q = `
		SELECT id, name, credit_limit, outstanding_balance
		FROM customers
		WHERE id = $1
		FOR UPDATE`
	var c CustomerInfo
	err := t.tx.QueryRow(ctx, q, id).Scan(&c.ID, &c.Name, &c.CreditLimit, &c.OutstandingBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return CustomerInfo{}, shared.NotFound(id.String())
	}
	return c, err
}

func (t *txRepo) AddOutstanding(ctx context.Context, customerID uuid.UUID, delta float64) error {
	const q = `
		UPDATE customers
		SET outstanding_balance = GREATEST(outstanding_balance + $2, 0), updated_at = now()
		WHERE id = $1`
	tag, err := t.tx.Exec(ctx, q, customerID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(customerID.String())
	}
	return nil
}

func (t *txRepo) MarkChanged(ctx context.Context, domain string) error {
	return t.signals.MarkChanged(ctx, t.tx, domain)
}

// GetByID loads a sale with its items and payments, outside any transaction.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Sale, error) {
	s, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.NotFound(id.String())
	}
	if err != nil {
		return nil, shared.WrapPersistence("sales: get", err)
	}
	s.Items, err = loadItems(ctx, r.pool, id)
	if err != nil {
		return nil, shared.WrapPersistence("sales: load items", err)
	}
	s.Payments, err = loadPayments(ctx, r.pool, id)
	if err != nil {
		return nil, shared.WrapPersistence("sales: load payments", err)
	}
	return s, nil
}

// List returns sale headers matching the filter, newest first. Items and
// payments load on Get.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Sale, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	var (
		sb    strings.Builder
		args  []any
		conds []string
	)
	sb.WriteString(`SELECT ` + saleColumns + ` FROM sales`)
	if f.CustomerID != nil {
		args = append(args, *f.CustomerID)
		conds = append(conds, `customer_id = $`+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, `status = $`+strconv.Itoa(len(args)))
	}
	if f.IsRefund != nil {
		args = append(args, *f.IsRefund)
		conds = append(conds, `is_refund = $`+strconv.Itoa(len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, `created_at >= $`+strconv.Itoa(len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, `created_at < $`+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		sb.WriteString(` WHERE ` + strings.Join(conds, ` AND `))
	}
	args = append(args, f.Limit)
	sb.WriteString(` ORDER BY invoice_number DESC LIMIT $` + strconv.Itoa(len(args)))
	args = append(args, f.Offset)
	sb.WriteString(` OFFSET $` + strconv.Itoa(len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, shared.WrapPersistence("sales: list", err)
	}
	defer rows.Close()

	var out []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, shared.WrapPersistence("sales: scan", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadItems(ctx context.Context, q queryer, saleID uuid.UUID) ([]SaleItem, error) {
	const sql = `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price, discount_type, discount_value, line_total
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY product_name`
	rows, err := q.Query(ctx, sql, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SaleItem
	for rows.Next() {
		var it SaleItem
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.UnitPrice, &it.DiscountType, &it.DiscountValue, &it.LineTotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func loadPayments(ctx context.Context, q queryer, saleID uuid.UUID) ([]Payment, error) {
	const sql = `
		SELECT id, sale_id, method, amount, reference, created_at
		FROM payments
		WHERE sale_id = $1
		ORDER BY created_at`
	rows, err := q.Query(ctx, sql, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.Method, &p.Amount, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
