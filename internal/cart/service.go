// Package cart manages ephemeral pre-settlement carts. Cart rows carry
// only product and quantity; prices are always re-read from the catalog
// so a price change before settlement wins.
package cart

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/techhaven/backend-pos/internal/loyalty"
	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/pricing"
	"github.com/techhaven/backend-pos/internal/settlement"
	"github.com/techhaven/backend-pos/internal/store"
)

// ErrInvalidQuantity is returned for zero or negative quantities.
var ErrInvalidQuantity = errors.New("cart: quantity must be positive")

// Service implements cart operations over an injected store.
type Service struct {
	Store store.Store
	Log   zerolog.Logger
}

// ViewLine is a cart line joined with live catalog data.
type ViewLine struct {
	ProductID   int64       `json:"product_id"`
	ProductName string      `json:"product_name"`
	UnitPrice   money.Money `json:"unit_price"`
	Quantity    int         `json:"quantity"`
	LineTotal   money.Money `json:"line_total"`
}

// View is the customer's current cart with a running subtotal. The
// subtotal is informational; settlement recomputes everything under
// row locks.
type View struct {
	CustomerID int64       `json:"customer_id"`
	Lines      []ViewLine  `json:"lines"`
	Subtotal   money.Money `json:"subtotal"`
}

// Add upserts a cart line, accumulating quantity for repeated adds.
func (s *Service) Add(ctx context.Context, customerID, productID int64, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	customer, err := s.Store.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if !customer.Active {
		return store.ErrCustomerNotFound
	}
	product, err := s.Store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !product.Active {
		return store.ErrProductNotFound
	}
	return s.Store.AddCartLine(ctx, store.CartLine{
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   quantity,
	})
}

// SetQuantity replaces a line's quantity; zero removes the line.
func (s *Service) SetQuantity(ctx context.Context, customerID, productID int64, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	return s.Store.SetCartLineQuantity(ctx, customerID, productID, quantity)
}

// Remove deletes one line.
func (s *Service) Remove(ctx context.Context, customerID, productID int64) error {
	return s.Store.RemoveCartLine(ctx, customerID, productID)
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, customerID int64) error {
	return s.Store.ClearCart(ctx, customerID)
}

// Get resolves the cart against live catalog prices. Lines whose
// product has been deactivated since the add are skipped; the cascade
// on deactivation makes that a narrow race, not a steady state.
func (s *Service) Get(ctx context.Context, customerID int64) (View, error) {
	if _, err := s.Store.GetCustomer(ctx, customerID); err != nil {
		return View{}, err
	}
	lines, err := s.Store.CartLines(ctx, customerID)
	if err != nil {
		return View{}, err
	}
	view := View{CustomerID: customerID, Subtotal: money.Zero}
	for _, line := range lines {
		product, err := s.Store.GetProduct(ctx, line.ProductID)
		if err != nil || !product.Active {
			continue
		}
		total := product.Price.MulQty(line.Quantity)
		view.Lines = append(view.Lines, ViewLine{
			ProductID:   line.ProductID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    line.Quantity,
			LineTotal:   total,
		})
		view.Subtotal = view.Subtotal.Add(total)
	}
	return view, nil
}

// Lines converts the stored cart into settlement lines.
func (s *Service) Lines(ctx context.Context, customerID int64) ([]settlement.Line, error) {
	rows, err := s.Store.CartLines(ctx, customerID)
	if err != nil {
		return nil, err
	}
	out := make([]settlement.Line, 0, len(rows))
	for _, row := range rows {
		out = append(out, settlement.Line{ProductID: row.ProductID, Quantity: row.Quantity})
	}
	return out, nil
}

// Estimate prices the cart as a dry run using the customer's current
// tier and pending discount.
func (s *Service) Estimate(ctx context.Context, customerID int64) (pricing.Totals, error) {
	customer, err := s.Store.GetCustomer(ctx, customerID)
	if err != nil {
		return pricing.Totals{}, err
	}
	view, err := s.Get(ctx, customerID)
	if err != nil {
		return pricing.Totals{}, err
	}
	lines := make([]pricing.Line, 0, len(view.Lines))
	for _, l := range view.Lines {
		lines = append(lines, pricing.Line{ProductID: l.ProductID, UnitPrice: l.UnitPrice, Quantity: l.Quantity})
	}
	rate := loyalty.DiscountRateForTier(customer.Tier)
	return pricing.ComputeSale(lines, rate, customer.PendingDiscount), nil
}
