package suppliers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillpoint/tillpoint/internal/shared"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const supplierColumns = `id, name, phone, email, address, created_at, updated_at`

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Name, &s.Phone, &s.Email, &s.Address, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *Repository) Create(ctx context.Context, s Supplier) (Supplier, error) {
	const q = `
		INSERT INTO suppliers (id, name, phone, email, address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + supplierColumns
	created, err := scanSupplier(r.pool.QueryRow(ctx, q, s.ID, s.Name, s.Phone, s.Email, s.Address))
	if err != nil {
		return Supplier{}, shared.WrapPersistence("suppliers: create", err)
	}
	return created, nil
}

func (r *Repository) Update(ctx context.Context, s Supplier) (Supplier, error) {
	const q = `
		UPDATE suppliers
		SET name = $2, phone = $3, email = $4, address = $5, updated_at = now()
		WHERE id = $1
		RETURNING ` + supplierColumns
	updated, err := scanSupplier(r.pool.QueryRow(ctx, q, s.ID, s.Name, s.Phone, s.Email, s.Address))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.NotFound(s.ID.String())
	}
	if err != nil {
		return Supplier{}, shared.WrapPersistence("suppliers: update", err)
	}
	return updated, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Supplier, error) {
	s, err := scanSupplier(r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.NotFound(id.String())
	}
	if err != nil {
		return Supplier{}, shared.WrapPersistence("suppliers: get", err)
	}
	return s, nil
}

func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]Supplier, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + supplierColumns + ` FROM suppliers`)
	if search != "" {
		args = append(args, "%"+search+"%")
		p := strconv.Itoa(len(args))
		sb.WriteString(` WHERE name ILIKE $` + p + ` OR phone ILIKE $` + p)
	}
	args = append(args, limit)
	sb.WriteString(` ORDER BY name ASC LIMIT $` + strconv.Itoa(len(args)))
	args = append(args, offset)
	sb.WriteString(` OFFSET $` + strconv.Itoa(len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, shared.WrapPersistence("suppliers: list", err)
	}
	defer rows.Close()

	var out []Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, shared.WrapPersistence("suppliers: scan", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountPurchases reports how many purchases reference the supplier.
func (r *Repository) CountPurchases(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchases WHERE supplier_id = $1`, id).Scan(&n); err != nil {
		return 0, shared.WrapPersistence("suppliers: count purchases", err)
	}
	return n, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		return shared.WrapPersistence("suppliers: delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(id.String())
	}
	return nil
}
