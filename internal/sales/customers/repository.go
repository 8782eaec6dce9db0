package customers

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

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const customerColumns = `id, name, phone, email, address, credit_limit, outstanding_balance, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address,
		&c.CreditLimit, &c.OutstandingBalance, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *Repository) Create(ctx context.Context, c Customer) (Customer, error) {
	const q = `
		INSERT INTO customers (id, name, phone, email, address, credit_limit, outstanding_balance)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING ` + customerColumns
	created, err := scanCustomer(r.pool.QueryRow(ctx, q, c.ID, c.Name, c.Phone, c.Email, c.Address, c.CreditLimit))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Customer{}, shared.ErrConflict
		}
		return Customer{}, shared.WrapPersistence("customers: create", err)
	}
	return created, nil
}

func (r *Repository) Update(ctx context.Context, c Customer) (Customer, error) {
	const q = `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, address = $5, credit_limit = $6, updated_at = now()
		WHERE id = $1
		RETURNING ` + customerColumns
	updated, err := scanCustomer(r.pool.QueryRow(ctx, q, c.ID, c.Name, c.Phone, c.Email, c.Address, c.CreditLimit))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.NotFound(c.ID.String())
	}
	if err != nil {
		return Customer{}, shared.WrapPersistence("customers: update", err)
	}
	return updated, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.NotFound(id.String())
	}
	if err != nil {
		return Customer{}, shared.WrapPersistence("customers: get", err)
	}
	return c, nil
}

// List returns customers matching search (name, phone or email), paginated.
func (r *Repository) List(ctx context.Context, search string, limit, offset int) ([]Customer, error) {
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
	sb.WriteString(`SELECT ` + customerColumns + ` FROM customers`)
	if search != "" {
		args = append(args, "%"+search+"%")
		p := strconv.Itoa(len(args))
		sb.WriteString(` WHERE name ILIKE $` + p + ` OR phone ILIKE $` + p + ` OR email ILIKE $` + p)
	}
	args = append(args, limit)
	sb.WriteString(` ORDER BY name ASC LIMIT $` + strconv.Itoa(len(args)))
	args = append(args, offset)
	sb.WriteString(` OFFSET $` + strconv.Itoa(len(args)))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, shared.WrapPersistence("customers: list", err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, shared.WrapPersistence("customers: scan", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountSales reports how many sales reference the customer, used by the
// delete guard.
func (r *Repository) CountSales(ctx context.Context, id uuid.UUID) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE customer_id = $1`, id).Scan(&n); err != nil {
		return 0, shared.WrapPersistence("customers: count sales", err)
	}
	return n, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return shared.WrapPersistence("customers: delete", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound(id.String())
	}
	return nil
}
