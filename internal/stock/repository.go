package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Repository reads stock state from Postgres. Mutations go through Ledger
// with a Tx bound via Bind.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Bind wraps a pgx transaction as a ledger Tx.
func (r *Repository) Bind(tx pgx.Tx) Tx {
	return &pgTx{tx: tx}
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetBalanceForUpdate(ctx context.Context, productID uuid.UUID) (Balance, error) {
	const q = `
		SELECT b.product_id, p.name, b.stock_level, b.warehouse_qty, b.retail_qty, b.updated_at
		FROM stock_balances b
		JOIN products p ON p.id = b.product_id
		WHERE b.product_id = $1
		FOR UPDATE OF b`
	var b Balance
	err := t.tx.QueryRow(ctx, q, productID).
		Scan(&b.ProductID, &b.Name, &b.StockLevel, &b.Warehouse, &b.Retail, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, shared.NotFound(productID.String())
	}
	if err != nil {
		return Balance{}, err
	}
	return b, nil
}

func (t *pgTx) UpdateBalance(ctx context.Context, b Balance) error {
	const q = `
		UPDATE stock_balances
		SET stock_level = $2, warehouse_qty = $3, retail_qty = $4, updated_at = $5
		WHERE product_id = $1`
	tag, err := t.tx.Exec(ctx, q, b.ProductID, b.StockLevel, b.Warehouse, b.Retail, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(b.ProductID.String())
	}
	return nil
}

func (t *pgTx) InsertMovement(ctx context.Context, m Movement) error {
	const q = `
		INSERT INTO stock_movements (id, product_id, movement_type, quantity, reference, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := t.tx.Exec(ctx, q, m.ID, m.ProductID, m.Type, m.Quantity, m.Reference, m.Note, m.CreatedAt)
	return err
}

// GetBalance returns the current balance without locking.
func (r *Repository) GetBalance(ctx context.Context, productID uuid.UUID) (Balance, error) {
	const q = `
		SELECT b.product_id, p.name, b.stock_level, b.warehouse_qty, b.retail_qty, b.updated_at
		FROM stock_balances b
		JOIN products p ON p.id = b.product_id
		WHERE b.product_id = $1`
	var b Balance
	err := r.pool.QueryRow(ctx, q, productID).
		Scan(&b.ProductID, &b.Name, &b.StockLevel, &b.Warehouse, &b.Retail, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, shared.NotFound(productID.String())
	}
	if err != nil {
		return Balance{}, shared.WrapPersistence("stock: get balance", err)
	}
	return b, nil
}

// ListMovements returns the newest movements for a product, newest first.
func (r *Repository) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]Movement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `
		SELECT id, product_id, movement_type, quantity, reference, note, created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, productID, limit)
	if err != nil {
		return nil, shared.WrapPersistence("stock: list movements", err)
	}
	defer rows.Close()

	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.Reference, &m.Note, &m.CreatedAt); err != nil {
			return nil, shared.WrapPersistence("stock: scan movement", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Drift is a balance whose recorded level disagrees with the movement sum.
type Drift struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Recorded  float64   `json:"recorded"`
	Computed  float64   `json:"computed"`
}

// Reconcile recomputes each product's level from its movement history and
// reports every mismatch. It changes nothing.
func (r *Repository) Reconcile(ctx context.Context) ([]Drift, error) {
	const q = `
		SELECT b.product_id, p.name, b.stock_level, COALESCE(SUM(m.quantity) FILTER (WHERE m.movement_type <> 'TRANSFER'), 0)
		FROM stock_balances b
		JOIN products p ON p.id = b.product_id
		LEFT JOIN stock_movements m ON m.product_id = b.product_id
		GROUP BY b.product_id, p.name, b.stock_level
		HAVING b.stock_level <> COALESCE(SUM(m.quantity) FILTER (WHERE m.movement_type <> 'TRANSFER'), 0)`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, shared.WrapPersistence("stock: reconcile", err)
	}
	defer rows.Close()

	var out []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.ProductID, &d.Name, &d.Recorded, &d.Computed); err != nil {
			return nil, shared.WrapPersistence("stock: scan drift", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LowStockItem is a balance at or below its product's reorder level.
type LowStockItem struct {
	Balance
	ReorderLevel float64 `json:"reorder_level"`
}

// ListBelowReorderLevel returns active products whose total level is at or
// below their reorder level, for the low stock scan. Products without a
// reorder level fall back to the given default.
func (r *Repository) ListBelowReorderLevel(ctx context.Context, fallback float64) ([]LowStockItem, error) {
	const q = `
		SELECT b.product_id, p.name, b.stock_level, b.warehouse_qty, b.retail_qty, b.updated_at,
		       CASE WHEN p.reorder_level > 0 THEN p.reorder_level ELSE $1 END AS reorder_level
		FROM stock_balances b
		JOIN products p ON p.id = b.product_id
		WHERE b.stock_level <= CASE WHEN p.reorder_level > 0 THEN p.reorder_level ELSE $1 END
		  AND p.is_active
		ORDER BY b.stock_level ASC`
	rows, err := r.pool.Query(ctx, q, fallback)
	if err != nil {
		return nil, shared.WrapPersistence("stock: list below reorder level", err)
	}
	defer rows.Close()

	var out []LowStockItem
	for rows.Next() {
		var item LowStockItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.StockLevel, &item.Warehouse, &item.Retail, &item.UpdatedAt, &item.ReorderLevel); err != nil {
			return nil, shared.WrapPersistence("stock: scan balance", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
