package stock

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/syncsignal"
)

// Service exposes stock operations that stand on their own, outside a sale.
type Service struct {
	pool    *pgxpool.Pool
	repo    *Repository
	ledger  *Ledger
	signals *syncsignal.Repository
}

func NewService(pool *pgxpool.Pool, repo *Repository, ledger *Ledger, signals *syncsignal.Repository) *Service {
	return &Service{pool: pool, repo: repo, ledger: ledger, signals: signals}
}

// Balance returns a product's current position.
func (s *Service) Balance(ctx context.Context, productID uuid.UUID) (Balance, error) {
	return s.repo.GetBalance(ctx, productID)
}

// Movements returns a product's recent ledger entries.
func (s *Service) Movements(ctx context.Context, productID uuid.UUID, limit int) ([]Movement, error) {
	if _, err := s.repo.GetBalance(ctx, productID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, productID, limit)
}

// AdjustInput is a manual stock correction.
type AdjustInput struct {
	ProductID uuid.UUID
	Delta     float64
	Location  Location
	Reference string
	Note      string
}

// Adjust applies a manual correction and stamps the stock domain, all in one
// transaction.
func (s *Service) Adjust(ctx context.Context, in AdjustInput) (Balance, error) {
	if in.Reference == "" {
		in.Reference = "manual adjustment"
	}
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.ledger.Adjust(ctx, s.repo.Bind(tx), in.ProductID, in.Delta, in.Location, in.Reference, in.Note); err != nil {
			return err
		}
		return s.signals.MarkChanged(ctx, tx, syncsignal.DomainStock)
	})
	if err != nil {
		return Balance{}, shared.WrapPersistence("stock: adjust", err)
	}
	return s.repo.GetBalance(ctx, in.ProductID)
}

// TransferInput moves quantity between the warehouse and retail buckets.
type TransferInput struct {
	ProductID uuid.UUID
	Quantity  float64
	From      Location
}

// Transfer shifts stock between buckets without changing the total level.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (Balance, error) {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.ledger.Transfer(ctx, s.repo.Bind(tx), in.ProductID, in.Quantity, in.From); err != nil {
			return err
		}
		return s.signals.MarkChanged(ctx, tx, syncsignal.DomainStock)
	})
	if err != nil {
		return Balance{}, shared.WrapPersistence("stock: transfer", err)
	}
	return s.repo.GetBalance(ctx, in.ProductID)
}

// Reconcile reports balances that disagree with their movement history.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	return s.repo.Reconcile(ctx)
}
