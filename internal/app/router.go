package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tillpoint/tillpoint/internal/masterdata/products"
	"github.com/tillpoint/tillpoint/internal/masterdata/suppliers"
	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/sales"
	"github.com/tillpoint/tillpoint/internal/sales/customers"
	"github.com/tillpoint/tillpoint/internal/stock"
	"github.com/tillpoint/tillpoint/internal/syncsignal"
)

// Handlers collects the per-module HTTP handlers the router mounts.
type Handlers struct {
	Products  *products.Handler
	Suppliers *suppliers.Handler
	Customers *customers.Handler
	Stock     *stock.Handler
	Sales     *sales.Handler
	Signals   *syncsignal.Handler
}

// NewRouter assembles the API router.
func NewRouter(cfg Config, h Handlers) *chi.Mux {
	r := chi.NewRouter()
	applyMiddleware(r, cfg)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/products", h.Products.Routes())
		r.Mount("/suppliers", h.Suppliers.Routes())
		r.Mount("/customers", h.Customers.Routes())
		r.Mount("/stock", h.Stock.Routes())
		r.Mount("/sales", h.Sales.Routes())
		r.Mount("/sync/signals", h.Signals.Routes())
	})
	return r
}
