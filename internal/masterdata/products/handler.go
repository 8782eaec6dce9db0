package products

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/shared"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service, validate *validator.Validate) *Handler {
	return &Handler{svc: svc, validate: validate}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	return r
}

type productRequest struct {
	SKU            string  `json:"sku" validate:"max=64"`
	Barcode        string  `json:"barcode" validate:"max=64"`
	Name           string  `json:"name" validate:"required,max=200"`
	Category       string  `json:"category" validate:"max=100"`
	Unit           string  `json:"unit" validate:"max=20"`
	PurchasePrice  float64 `json:"purchase_price" validate:"gte=0"`
	WholesalePrice float64 `json:"wholesale_price" validate:"gte=0"`
	RetailPrice    float64 `json:"retail_price" validate:"gte=0"`
	ReorderLevel   float64 `json:"reorder_level" validate:"gte=0"`
	IsActive       *bool   `json:"is_active"`
	OpeningStock   float64 `json:"opening_stock" validate:"gte=0"`
}

func (req productRequest) input() Input {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}
	return Input{
		SKU:            req.SKU,
		Barcode:        req.Barcode,
		Name:           req.Name,
		Category:       req.Category,
		Unit:           unit,
		PurchasePrice:  req.PurchasePrice,
		WholesalePrice: req.WholesalePrice,
		RetailPrice:    req.RetailPrice,
		ReorderLevel:   req.ReorderLevel,
		IsActive:       active,
		OpeningStock:   req.OpeningStock,
	}
}

type productResponse struct {
	Product  Product          `json:"product"`
	Warnings []shared.Warning `json:"warnings,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	p, warnings, err := h.svc.Create(r.Context(), req.input())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, productResponse{Product: p, Warnings: warnings})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, "invalid product id")
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	p, warnings, err := h.svc.Update(r.Context(), id, req.input())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, productResponse{Product: p, Warnings: warnings})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, "invalid product id")
		return
	}
	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	out, err := h.svc.List(r.Context(), ListFilter{
		Search:     q.Get("search"),
		OnlyActive: q.Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": out})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, "invalid product id")
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.NoContent(w)
}
