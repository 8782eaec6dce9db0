package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Problem is an RFC 7807 error document.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// RespondError maps a domain error onto the wire taxonomy:
// validation 400, missing entity 404, conflict 409, insufficient stock 422,
// anything else 500.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve  *shared.ValidationError
		ise *shared.InsufficientStockError
	)
	switch {
	case errors.As(err, &ve):
		JSON(w, http.StatusBadRequest, Problem{
			Type:   "about:blank",
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: ve.Error(),
		})
	case errors.Is(err, shared.ErrNotFound):
		JSON(w, http.StatusNotFound, Problem{
			Type:   "about:blank",
			Title:  "Not Found",
			Status: http.StatusNotFound,
			Detail: err.Error(),
		})
	case errors.Is(err, shared.ErrConflict):
		JSON(w, http.StatusConflict, Problem{
			Type:   "about:blank",
			Title:  "Conflict",
			Status: http.StatusConflict,
			Detail: err.Error(),
		})
	case errors.As(err, &ise):
		JSON(w, http.StatusUnprocessableEntity, Problem{
			Type:   "about:blank",
			Title:  "Insufficient Stock",
			Status: http.StatusUnprocessableEntity,
			Detail: ise.Error(),
		})
	default:
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		JSON(w, http.StatusInternalServerError, Problem{
			Type:   "about:blank",
			Title:  "Internal Server Error",
			Status: http.StatusInternalServerError,
		})
	}
}

// BadRequest replies 400 with the given detail, used for malformed bodies
// before any domain logic runs.
func BadRequest(w http.ResponseWriter, detail string) {
	JSON(w, http.StatusBadRequest, Problem{
		Type:   "about:blank",
		Title:  "Bad Request",
		Status: http.StatusBadRequest,
		Detail: detail,
	})
}
