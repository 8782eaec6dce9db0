package products

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/stock"
	"github.com/tillpoint/tillpoint/internal/syncsignal"
)

type Service struct {
	pool      *pgxpool.Pool
	repo      *Repository
	stockRepo *stock.Repository
	ledger    *stock.Ledger
	signals   *syncsignal.Repository
	cache     *Cache
}

func NewService(pool *pgxpool.Pool, repo *Repository, stockRepo *stock.Repository, ledger *stock.Ledger, signals *syncsignal.Repository, cache *Cache) *Service {
	return &Service{pool: pool, repo: repo, stockRepo: stockRepo, ledger: ledger, signals: signals, cache: cache}
}

// Create inserts a product with its zero balance and, when opening stock is
// given, books it through the ledger so the movement history starts complete.
func (s *Service) Create(ctx context.Context, in Input) (Product, []shared.Warning, error) {
	if err := in.validate(); err != nil {
		return Product{}, nil, err
	}
	sku := in.SKU
	if sku == "" {
		sku = GenerateSKU()
	}
	warnings := priceWarnings(in)

	var created Product
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.repo.Bound(tx)
		p, err := repo.Insert(ctx, Product{
			ID:             uuid.New(),
			SKU:            sku,
			Barcode:        NormalizeBarcode(in.Barcode),
			Name:           in.Name,
			Category:       in.Category,
			Unit:           in.Unit,
			PurchasePrice:  in.PurchasePrice,
			WholesalePrice: in.WholesalePrice,
			RetailPrice:    in.RetailPrice,
			ReorderLevel:   in.ReorderLevel,
			IsActive:       in.IsActive,
		})
		if err != nil {
			return err
		}
		if err := repo.InsertBalance(ctx, p.ID); err != nil {
			return err
		}
		if in.OpeningStock > 0 {
			if err := s.ledger.Adjust(ctx, s.stockRepo.Bind(tx), p.ID, in.OpeningStock, stock.LocationWarehouse, "Initial stock", ""); err != nil {
				return err
			}
			if err := s.signals.MarkChanged(ctx, tx, syncsignal.DomainStock); err != nil {
				return err
			}
		}
		if err := s.signals.MarkChanged(ctx, tx, syncsignal.DomainProducts); err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		return Product{}, nil, shared.WrapPersistence("products: create", err)
	}
	s.cache.Invalidate(ctx)
	return created, warnings, nil
}

// Update rewrites the writable fields. Stock is untouched; corrections go
// through the stock endpoints.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Product, []shared.Warning, error) {
	if err := in.validate(); err != nil {
		return Product{}, nil, err
	}
	if in.SKU == "" {
		return Product{}, nil, shared.NewValidationError("sku is required on update")
	}
	warnings := priceWarnings(in)

	var updated Product
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		p, err := s.repo.Bound(tx).Update(ctx, Product{
			ID:             id,
			SKU:            in.SKU,
			Barcode:        NormalizeBarcode(in.Barcode),
			Name:           in.Name,
			Category:       in.Category,
			Unit:           in.Unit,
			PurchasePrice:  in.PurchasePrice,
			WholesalePrice: in.WholesalePrice,
			RetailPrice:    in.RetailPrice,
			ReorderLevel:   in.ReorderLevel,
			IsActive:       in.IsActive,
		})
		if err != nil {
			return err
		}
		if err := s.signals.MarkChanged(ctx, tx, syncsignal.DomainProducts); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return Product{}, nil, shared.WrapPersistence("products: update", err)
	}
	s.cache.Invalidate(ctx)
	return updated, warnings, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	return s.repo.GetByID(ctx, id)
}

// List serves from the redis cache, loading from Postgres on a miss.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Product, error) {
	return s.cache.FetchList(ctx, f, func(ctx context.Context) ([]Product, error) {
		return s.repo.List(ctx, f)
	})
}

// Delete removes the product and its movement history, unless sale or
// purchase lines still reference it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		repo := s.repo.Bound(tx)
		// Guard inside the transaction, so a sale landing concurrently
		// still gets the descriptive refusal rather than an FK failure.
		n, err := repo.CountReferences(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return shared.NewValidationError(fmt.Sprintf("product is referenced by %d sale or purchase items and cannot be deleted", n))
		}
		if err := repo.DeleteWithHistory(ctx, id); err != nil {
			return err
		}
		if err := s.signals.MarkChanged(ctx, tx, syncsignal.DomainProducts); err != nil {
			return err
		}
		return s.signals.MarkChanged(ctx, tx, syncsignal.DomainStock)
	})
	if err != nil {
		return shared.WrapPersistence("products: delete", err)
	}
	s.cache.Invalidate(ctx)
	return nil
}
