package sales

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/platform/httpx"
	"github.com/tillpoint/tillpoint/internal/pricing"
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
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/complete", h.complete)
	return r
}

type saleItemPayload struct {
	ProductID     string  `json:"product_id" validate:"required,uuid"`
	Quantity      float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice     float64 `json:"unit_price" validate:"gte=0"`
	DiscountType  string  `json:"discount_type" validate:"omitempty,oneof=PERCENT FIXED"`
	DiscountValue float64 `json:"discount_value" validate:"gte=0"`
}

type paymentPayload struct {
	Method    string  `json:"method" validate:"required,oneof=CASH CARD BANK_TRANSFER CREDIT"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Reference string  `json:"reference" validate:"max=100"`
}

type createSalePayload struct {
	CustomerID     string            `json:"customer_id" validate:"omitempty,uuid"`
	Items          []saleItemPayload `json:"items" validate:"required,min=1,dive"`
	Payments       []paymentPayload  `json:"payments" validate:"dive"`
	DiscountAmount float64           `json:"discount_amount" validate:"gte=0"`
	TaxRatePercent *float64          `json:"tax_rate_percent" validate:"omitempty,gte=0"`
	Draft          bool              `json:"draft"`
	IsRefund       bool              `json:"is_refund"`
	RefundOfSaleID string            `json:"refund_of_sale_id" validate:"omitempty,uuid"`
}

func (p createSalePayload) request(idempotencyKey string) CreateSaleRequest {
	req := CreateSaleRequest{
		DiscountAmount: p.DiscountAmount,
		TaxRatePercent: p.TaxRatePercent,
		Draft:          p.Draft,
		IsRefund:       p.IsRefund,
		IdempotencyKey: idempotencyKey,
	}
	if p.CustomerID != "" {
		id := uuid.MustParse(p.CustomerID)
		req.CustomerID = &id
	}
	if p.RefundOfSaleID != "" {
		id := uuid.MustParse(p.RefundOfSaleID)
		req.RefundOfSaleID = &id
	}
	for _, it := range p.Items {
		req.Items = append(req.Items, ItemInput{
			ProductID:     uuid.MustParse(it.ProductID),
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			DiscountType:  pricing.DiscountType(it.DiscountType),
			DiscountValue: it.DiscountValue,
		})
	}
	for _, pay := range p.Payments {
		req.Payments = append(req.Payments, PaymentInput{
			Method:    PaymentMethod(pay.Method),
			Amount:    pay.Amount,
			Reference: pay.Reference,
		})
	}
	return req
}

type saleResponse struct {
	Sale     *Sale            `json:"sale"`
	Warnings []shared.Warning `json:"warnings,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload createSalePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	sale, warnings, err := h.svc.Create(r.Context(), payload.request(r.Header.Get("Idempotency-Key")))
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saleResponse{Sale: sale, Warnings: warnings})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, "invalid sale id")
		return
	}
	sale, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{Status: SaleStatus(q.Get("status"))}
	if f.Status != "" && !f.Status.Valid() {
		httpx.BadRequest(w, "unknown status "+string(f.Status))
		return
	}
	if raw := q.Get("customer_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.BadRequest(w, "invalid customer id")
			return
		}
		f.CustomerID = &id
	}
	if raw := q.Get("refunds"); raw != "" {
		v := raw == "true"
		f.IsRefund = &v
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.BadRequest(w, "invalid from timestamp")
			return
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.BadRequest(w, "invalid to timestamp")
			return
		}
		f.To = t
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	out, err := h.svc.List(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": out})
}

type completeDraftPayload struct {
	Payments []paymentPayload `json:"payments" validate:"required,min=1,dive"`
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, "invalid sale id")
		return
	}
	var payload completeDraftPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	payments := make([]PaymentInput, 0, len(payload.Payments))
	for _, pay := range payload.Payments {
		payments = append(payments, PaymentInput{
			Method:    PaymentMethod(pay.Method),
			Amount:    pay.Amount,
			Reference: pay.Reference,
		})
	}
	sale, warnings, err := h.svc.CompleteDraft(r.Context(), id, payments)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse{Sale: sale, Warnings: warnings})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.BadRequest(w, "invalid sale id")
		return
	}
	if err := h.svc.CancelDraft(r.Context(), id); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.NoContent(w)
}
