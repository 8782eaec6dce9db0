package products

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Queryer is the query surface shared by *pgxpool.Pool and pgx.Tx, so the
// same repository code runs inside or outside a transaction.
type Queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	db Queryer
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Bound returns a repository running on the given transaction.
func (r *Repository) Bound(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const productColumns = `id, sku, barcode, name, category, unit, purchase_price, wholesale_price, retail_price, reorder_level, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.SKU, &p.Barcode, &p.Name, &p.Category, &p.Unit,
		&p.PurchasePrice, &p.WholesalePrice, &p.RetailPrice, &p.ReorderLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) Insert(ctx context.Context, p Product) (Product, error) {
	const q = `
		INSERT INTO products (id, sku, barcode, name, category, unit, purchase_price, wholesale_price, retail_price, reorder_level, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + productColumns
	created, err := scanProduct(r.db.QueryRow(ctx, q, p.ID, p.SKU, p.Barcode, p.Name, p.Category, p.Unit,
		p.PurchasePrice, p.WholesalePrice, p.RetailPrice, p.ReorderLevel, p.IsActive))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, shared.ErrConflict
		}
		return Product{}, shared.WrapPersistence("products: insert", err)
	}
	return created, nil
}

// InsertBalance creates the zero stock row a new product starts with.
func (r *Repository) InsertBalance(ctx context.Context, productID uuid.UUID) error {
	const q = `
		INSERT INTO stock_balances (product_id, stock_level, warehouse_qty, retail_qty, updated_at)
		VALUES ($1, 0, 0, 0, now())`
	if _, err := r.db.Exec(ctx, q, productID); err != nil {
		return shared.WrapPersistence("products: insert balance", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, p Product) (Product, error) {
	const q = `
		UPDATE products
		SET sku = $2, barcode = $3, name = $4, category = $5, unit = $6,
		    purchase_price = $7, wholesale_price = $8, retail_price = $9, reorder_level = $10, is_active = $11, updated_at = now()
		WHERE id = $1
		RETURNING ` + productColumns
	updated, err := scanProduct(r.db.QueryRow(ctx, q, p.ID, p.SKU, p.Barcode, p.Name, p.Category, p.Unit,
		p.PurchasePrice, p.WholesalePrice, p.RetailPrice, p.ReorderLevel, p.IsActive))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NotFound(p.ID.String())
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Product{}, shared.ErrConflict
		}
		return Product{}, shared.WrapPersistence("products: update", err)
	}
	return updated, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NotFound(id.String())
	}
	if err != nil {
		return Product{}, shared.WrapPersistence("products: get", err)
	}
	return p, nil
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]Product, error) {
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
	sb.WriteString(`SELECT ` + productColumns + ` FROM products`)
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		p := strconv.Itoa(len(args))
		conds = append(conds, `(name ILIKE $`+p+` OR sku ILIKE $`+p+` OR barcode ILIKE $`+p+`)`)
	}
	if f.OnlyActive {
		conds = append(conds, `is_active`)
	}
	if len(conds) > 0 {
		sb.WriteString(` WHERE ` + strings.Join(conds, ` AND `))
	}
	args = append(args, f.Limit)
	sb.WriteString(` ORDER BY name ASC LIMIT $` + strconv.Itoa(len(args)))
	args = append(args, f.Offset)
	sb.WriteString(` OFFSET $` + strconv.Itoa(len(args)))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, shared.WrapPersistence("products: list", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, shared.WrapPersistence("products: scan", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountReferences reports how many sale and purchase lines point at the
// product. A referenced product must not be deleted.
func (r *Repository) CountReferences(ctx context.Context, id uuid.UUID) (int64, error) {
	const q = `
		SELECT (SELECT COUNT(*) FROM sale_items WHERE product_id = $1)
		     + (SELECT COUNT(*) FROM purchase_items WHERE product_id = $1)`
	var n int64
	if err := r.db.QueryRow(ctx, q, id).Scan(&n); err != nil {
		return 0, shared.WrapPersistence("products: count references", err)
	}
	return n, nil
}

// DeleteWithHistory removes the product, its balance and its movement
// history. Callers check CountReferences first.
func (r *Repository) DeleteWithHistory(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, id); err != nil {
		return shared.WrapPersistence("products: delete movements", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM stock_balances WHERE product_id = $1`, id); err != nil {
		return shared.WrapPersistence("products: delete balance", err)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return shared.WrapPersistence("products: delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(id.String())
	}
	return nil
}
