package syncsignal

import "time"

// Domains carrying a change signal. Writers stamp the domain they touched
// inside the same transaction as the write; pollers watch the version.
const (
	DomainProducts  = "products"
	DomainStock     = "stock"
	DomainSales     = "sales"
	DomainPayments  = "payments"
	DomainCustomers = "customers"
)

// Signal is one domain's change marker.
type Signal struct {
	Domain    string    `json:"domain"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
