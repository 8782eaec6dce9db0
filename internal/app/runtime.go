package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/tillpoint/tillpoint/internal/invoice"
	"github.com/tillpoint/tillpoint/internal/masterdata/products"
	"github.com/tillpoint/tillpoint/internal/masterdata/suppliers"
	"github.com/tillpoint/tillpoint/internal/platform/cache"
	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/sales"
	"github.com/tillpoint/tillpoint/internal/sales/customers"
	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/stock"
	"github.com/tillpoint/tillpoint/internal/syncsignal"
)

// Run wires the application together and serves until ctx is cancelled.
func Run(ctx context.Context, cfg Config) error {
	logger := NewLogger(cfg.LogFormat, cfg.LogLevel)

	pool, err := db.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer rdb.Close()

	validate := validator.New()

	signals := syncsignal.NewRepository(pool)
	ledger := stock.NewLedger()
	stockRepo := stock.NewRepository(pool)
	stockSvc := stock.NewService(pool, stockRepo, ledger, signals)

	productCache := products.NewCache(rdb, cfg.ProductCacheTTL)
	productRepo := products.NewRepository(pool)
	productSvc := products.NewService(pool, productRepo, stockRepo, ledger, signals, productCache)

	supplierRepo := suppliers.NewRepository(pool)

	customerRepo := customers.NewRepository(pool)
	customerSvc := customers.NewService(customerRepo, signals, pool)

	seq := invoice.NewSequencer()
	salesRepo := sales.NewRepository(pool, stockRepo, seq, signals)
	idem := shared.NewIdempotencyStore(pool)
	salesSvc := sales.NewService(salesRepo, ledger, idem, cfg.TaxRatePercent)

	router := NewRouter(cfg, Handlers{
		Products:  products.NewHandler(productSvc, validate),
		Suppliers: suppliers.NewHandler(supplierRepo, validate),
		Customers: customers.NewHandler(customerSvc, validate),
		Stock:     stock.NewHandler(stockSvc, validate),
		Sales:     sales.NewHandler(salesSvc, validate),
		Signals:   syncsignal.NewHandler(signals),
	})

	// The poller picks up writes from other processes (the worker, another
	// instance) and drops the local listing cache when products change.
	poller := syncsignal.NewPoller(signals, cfg.SyncPollInterval)
	poller.OnChange(syncsignal.DomainProducts, func(ctx context.Context, _ string) {
		productCache.Invalidate(ctx)
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sync poller: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
