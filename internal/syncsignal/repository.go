package syncsignal

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx, so a stamp can ride
// inside the writer's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository persists change signals in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MarkChanged bumps the domain's version. Run it on the transaction that
// performed the write, so the signal becomes visible exactly when the data
// does.
func (r *Repository) MarkChanged(ctx context.Context, ex Execer, domain string) error {
	const q = `
		INSERT INTO sync_signals (domain, version, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (domain) DO UPDATE SET version = sync_signals.version + 1, updated_at = now()`
	if _, err := ex.Exec(ctx, q, domain); err != nil {
		return shared.WrapPersistence("syncsignal: mark "+domain, err)
	}
	return nil
}

// LastChanged reports when a domain was last stamped. The second return is
// false when the domain has never changed.
func (r *Repository) LastChanged(ctx context.Context, domain string) (time.Time, bool, error) {
	var ts time.Time
	err := r.pool.QueryRow(ctx, `SELECT updated_at FROM sync_signals WHERE domain = $1`, domain).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, shared.WrapPersistence("syncsignal: last changed", err)
	}
	return ts, true, nil
}

// Snapshot returns the current version of every domain.
func (r *Repository) Snapshot(ctx context.Context) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT domain, version FROM sync_signals`)
	if err != nil {
		return nil, shared.WrapPersistence("syncsignal: snapshot", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			domain  string
			version int64
		)
		if err := rows.Scan(&domain, &version); err != nil {
			return nil, shared.WrapPersistence("syncsignal: scan signal", err)
		}
		out[domain] = version
	}
	return out, rows.Err()
}

// List returns all signals with their timestamps, for the signals endpoint.
func (r *Repository) List(ctx context.Context) ([]Signal, error) {
	rows, err := r.pool.Query(ctx, `SELECT domain, version, updated_at FROM sync_signals ORDER BY domain`)
	if err != nil {
		return nil, shared.WrapPersistence("syncsignal: list", err)
	}
	defer rows.Close()

	var out []Signal
	for rows.Next() {
		var s Signal
		if err := rows.Scan(&s.Domain, &s.Version, &s.UpdatedAt); err != nil {
			return nil, shared.WrapPersistence("syncsignal: scan signal", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
