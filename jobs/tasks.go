package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/stock"
)

// Task type names. Keep them stable: they are persisted in redis between
// deploys.
const (
	TaskLowStockScan       = "stock:low_scan"
	TaskStockReconcile     = "stock:reconcile"
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// Handler executes the periodic tasks.
type Handler struct {
	stockRepo         *stock.Repository
	idem              *shared.IdempotencyStore
	fallbackThreshold float64
	retention         time.Duration
}

// NewHandler builds the task handler. fallbackThreshold applies to products
// without their own reorder level.
func NewHandler(stockRepo *stock.Repository, idem *shared.IdempotencyStore, fallbackThreshold float64, retention time.Duration) *Handler {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Handler{stockRepo: stockRepo, idem: idem, fallbackThreshold: fallbackThreshold, retention: retention}
}

// HandleLowStockScan logs every product at or below its reorder level.
func (h *Handler) HandleLowStockScan(ctx context.Context, _ *asynq.Task) error {
	low, err := h.stockRepo.ListBelowReorderLevel(ctx, h.fallbackThreshold)
	if err != nil {
		return err
	}
	for _, item := range low {
		slog.Warn("low stock",
			"product_id", item.ProductID,
			"name", item.Name,
			"stock_level", item.StockLevel,
			"reorder_level", item.ReorderLevel)
	}
	slog.Info("low stock scan finished", "flagged", len(low))
	return nil
}

// HandleStockReconcile reports balances that drifted from their movement sum.
func (h *Handler) HandleStockReconcile(ctx context.Context, _ *asynq.Task) error {
	drifts, err := h.stockRepo.Reconcile(ctx)
	if err != nil {
		return err
	}
	for _, d := range drifts {
		slog.Error("stock drift",
			"product_id", d.ProductID,
			"name", d.Name,
			"recorded", d.Recorded,
			"computed", d.Computed)
	}
	slog.Info("stock reconcile finished", "drifts", len(drifts))
	return nil
}

// HandleIdempotencyCleanup drops idempotency keys past retention.
func (h *Handler) HandleIdempotencyCleanup(ctx context.Context, _ *asynq.Task) error {
	n, err := h.idem.Cleanup(ctx, h.retention)
	if err != nil {
		return err
	}
	slog.Info("idempotency cleanup finished", "deleted", n)
	return nil
}
