// Package customer manages loyalty members: CRUD, the soft-delete
// lifecycle, and purchase history reads.
package customer

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/techhaven/backend-pos/internal/store"
)

// ErrInvalidTier is returned when a write names an unknown tier.
var ErrInvalidTier = errors.New("customer: invalid tier")

// Service implements customer operations over an injected store.
type Service struct {
	Store store.Store
	Log   zerolog.Logger
}

// Input is the write payload for customers. Tier is optional on create
// and defaults to regular; the student tier can only be set here,
// never by the points policy.
type Input struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
	Tier  string `json:"tier"`
}

func validTier(tier string) bool {
	switch tier {
	case "", store.TierRegular, store.TierPremium, store.TierVIP, store.TierStudent:
		return true
	default:
		return false
	}
}

// Get returns one customer, active or not.
func (s *Service) Get(ctx context.Context, id int64) (store.Customer, error) {
	return s.Store.GetCustomer(ctx, id)
}

// List returns customers, excluding deactivated rows unless asked.
func (s *Service) List(ctx context.Context, filter store.CustomerFilter) ([]store.Customer, error) {
	return s.Store.ListCustomers(ctx, filter)
}

// Create inserts a new active customer with a zero balance.
func (s *Service) Create(ctx context.Context, in Input) (store.Customer, error) {
	if !validTier(in.Tier) {
		return store.Customer{}, ErrInvalidTier
	}
	return s.Store.CreateCustomer(ctx, store.Customer{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.TrimSpace(in.Email),
		Phone: strings.TrimSpace(in.Phone),
		Tier:  in.Tier,
	})
}

// Update rewrites contact fields and the manually assigned tier. Points
// and pending discount are only ever moved by settlement and loyalty
// operations.
func (s *Service) Update(ctx context.Context, id int64, in Input) (store.Customer, error) {
	if !validTier(in.Tier) {
		return store.Customer{}, ErrInvalidTier
	}
	existing, err := s.Store.GetCustomer(ctx, id)
	if err != nil {
		return store.Customer{}, err
	}
	existing.Name = strings.TrimSpace(in.Name)
	existing.Email = strings.TrimSpace(in.Email)
	existing.Phone = strings.TrimSpace(in.Phone)
	if in.Tier != "" {
		existing.Tier = in.Tier
	}
	return s.Store.UpdateCustomer(ctx, existing)
}

// Deactivate soft-deletes a customer and hard-deletes their cart. The
// transaction ledger keeps every row.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.Store.DeactivateCustomer(ctx, id)
}

// Restore reactivates a soft-deleted customer with points and pending
// discount intact.
func (s *Service) Restore(ctx context.Context, id int64) error {
	return s.Store.RestoreCustomer(ctx, id)
}

// History lists a customer's ledger rows, newest first. It resolves
// for deactivated customers too: history is immutable.
func (s *Service) History(ctx context.Context, id int64) ([]store.Transaction, error) {
	if _, err := s.Store.GetCustomer(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.CustomerTransactions(ctx, id)
}
