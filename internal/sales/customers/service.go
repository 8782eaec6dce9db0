package customers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tillpoint/tillpoint/internal/shared"
	"github.com/tillpoint/tillpoint/internal/syncsignal"
)

// Store is the persistence surface the service needs; tests supply a memory
// implementation.
type Store interface {
	Create(ctx context.Context, c Customer) (Customer, error)
	Update(ctx context.Context, c Customer) (Customer, error)
	GetByID(ctx context.Context, id uuid.UUID) (Customer, error)
	List(ctx context.Context, search string, limit, offset int) ([]Customer, error)
	CountSales(ctx context.Context, id uuid.UUID) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Signaler stamps the customers domain after a mutation.
type Signaler interface {
	MarkChanged(ctx context.Context, ex syncsignal.Execer, domain string) error
}

type Service struct {
	store   Store
	signals Signaler
	execer  syncsignal.Execer
}

func NewService(store Store, signals Signaler, execer syncsignal.Execer) *Service {
	return &Service{store: store, signals: signals, execer: execer}
}

// CreateInput carries the writable customer fields.
type CreateInput struct {
	Name        string
	Phone       string
	Email       string
	Address     string
	CreditLimit float64
}

func (in CreateInput) validate() error {
	var msgs []string
	if in.Name == "" {
		msgs = append(msgs, "name is required")
	}
	if in.CreditLimit < 0 {
		msgs = append(msgs, "credit limit must not be negative")
	}
	if len(msgs) > 0 {
		return shared.NewValidationError(msgs...)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Customer, error) {
	if err := in.validate(); err != nil {
		return Customer{}, err
	}
	c, err := s.store.Create(ctx, Customer{
		ID:          uuid.New(),
		Name:        in.Name,
		Phone:       in.Phone,
		Email:       in.Email,
		Address:     in.Address,
		CreditLimit: in.CreditLimit,
	})
	if err != nil {
		return Customer{}, err
	}
	s.markChanged(ctx)
	return c, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in CreateInput) (Customer, error) {
	if err := in.validate(); err != nil {
		return Customer{}, err
	}
	c, err := s.store.Update(ctx, Customer{
		ID:          id,
		Name:        in.Name,
		Phone:       in.Phone,
		Email:       in.Email,
		Address:     in.Address,
		CreditLimit: in.CreditLimit,
	})
	if err != nil {
		return Customer{}, err
	}
	s.markChanged(ctx)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, search string, limit, offset int) ([]Customer, error) {
	return s.store.List(ctx, search, limit, offset)
}

// Delete removes a customer unless sales still reference them.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.store.CountSales(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return shared.NewValidationError(fmt.Sprintf("customer has %d sales and cannot be deleted", n))
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.markChanged(ctx)
	return nil
}

func (s *Service) markChanged(ctx context.Context) {
	// A missed stamp only delays cache refresh, it never loses data.
	_ = s.signals.MarkChanged(ctx, s.execer, syncsignal.DomainCustomers)
}
