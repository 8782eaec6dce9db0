package stock

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/platform/httpx"
)

// Handler serves the stock endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service, validate *validator.Validate) *Handler {
	return &Handler{svc: svc, validate: validate}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{productID}", h.getBalance)
	r.Get("/{productID}/movements", h.listMovements)
	r.Post("/adjust", h.adjust)
	r.Post("/transfer", h.transfer)
	r.Post("/reconcile", h.reconcile)
	return r
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.BadRequest(w, "invalid product id")
		return
	}
	b, err := h.svc.Balance(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		httpx.BadRequest(w, "invalid product id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	movements, err := h.svc.Movements(r.Context(), id, limit)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

type adjustRequest struct {
	ProductID string  `json:"product_id" validate:"required,uuid"`
	Delta     float64 `json:"delta" validate:"required"`
	Location  string  `json:"location" validate:"required,oneof=WAREHOUSE RETAIL"`
	Reference string  `json:"reference" validate:"max=200"`
	Note      string  `json:"note" validate:"max=500"`
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	b, err := h.svc.Adjust(r.Context(), AdjustInput{
		ProductID: uuid.MustParse(req.ProductID),
		Delta:     req.Delta,
		Location:  Location(req.Location),
		Reference: req.Reference,
		Note:      req.Note,
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

type transferRequest struct {
	ProductID string  `json:"product_id" validate:"required,uuid"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	From      string  `json:"from" validate:"required,oneof=WAREHOUSE RETAIL"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	b, err := h.svc.Transfer(r.Context(), TransferInput{
		ProductID: uuid.MustParse(req.ProductID),
		Quantity:  req.Quantity,
		From:      Location(req.From),
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.svc.Reconcile(r.Context())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"drifts": drifts, "clean": len(drifts) == 0})
}
