package shared

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotFound indicates the target product, customer or sale does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness conflict (SKU, barcode, idempotency key).
	ErrConflict = errors.New("already exists")
)

// NotFound builds a "<what> not found" error matching ErrNotFound.
func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

// ValidationError reports malformed input. Each message is operator-facing and
// refers to one offending item or field.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

// NewValidationError builds a ValidationError from one or more messages.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

// Shortage describes one product whose available stock cannot cover a
// requested quantity.
type Shortage struct {
	Product   string  `json:"product"`
	Requested float64 `json:"requested"`
	Available float64 `json:"available"`
}

func (s Shortage) String() string {
	return fmt.Sprintf("Need %s, have %s for %s", formatQty(s.Requested), formatQty(s.Available), s.Product)
}

// InsufficientStockError aborts a reservation that would drive stock negative.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	msgs := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		msgs[i] = s.String()
	}
	return "insufficient stock: " + strings.Join(msgs, "; ")
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// PersistenceError wraps an underlying transaction failure. The attempt it
// belongs to has been fully rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// WrapPersistence classifies err as a persistence failure unless it already
// carries a domain meaning.
func WrapPersistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var ise *InsufficientStockError
	var pe *PersistenceError
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.As(err, &ve) || errors.As(err, &ise) || errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// Warning is an advisory finding returned alongside a successful result,
// e.g. a credit sale exceeding the customer's limit.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
