package customers

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a buyer account. OutstandingBalance grows with CREDIT sales
// and is advisory against CreditLimit, never blocking.
type Customer struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Phone              string    `json:"phone,omitempty"`
	Email              string    `json:"email,omitempty"`
	Address            string    `json:"address,omitempty"`
	CreditLimit        float64   `json:"credit_limit"`
	OutstandingBalance float64   `json:"outstanding_balance"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
