// Package catalog manages the product inventory: CRUD, the two-tier
// delete lifecycle, low-stock listings, and a short-TTL read cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/store"
)

const (
	listCacheKey     = "catalog:list"
	lowStockCacheKey = "catalog:lowstock"
)

// Service implements catalog operations over an injected store.
type Service struct {
	Store store.Store
	Cache *Cache
	Log   zerolog.Logger
}

// ProductInput is the write payload for products.
type ProductInput struct {
	Name              string `json:"name" validate:"required"`
	Description       string `json:"description"`
	Category          string `json:"category"`
	Price             string `json:"price" validate:"required"`
	Stock             int    `json:"stock" validate:"gte=0"`
	LowStockThreshold int    `json:"low_stock_threshold" validate:"gte=0"`
}

func (in ProductInput) toProduct() (store.Product, error) {
	price, err := parsePrice(in.Price)
	if err != nil {
		return store.Product{}, err
	}
	return store.Product{
		Name:              strings.TrimSpace(in.Name),
		Description:       strings.TrimSpace(in.Description),
		Category:          strings.TrimSpace(in.Category),
		Price:             price,
		Stock:             in.Stock,
		LowStockThreshold: in.LowStockThreshold,
	}, nil
}

// Get returns one product, active or not. Callers that must hide
// deactivated rows filter on Active.
func (s *Service) Get(ctx context.Context, id int64) (store.Product, error) {
	return s.Store.GetProduct(ctx, id)
}

// List returns catalog rows. Inactive products are excluded unless the
// filter asks for them.
func (s *Service) List(ctx context.Context, filter store.ProductFilter) ([]store.Product, error) {
	cacheable := !filter.IncludeInactive && filter.Category == "" && filter.Query == ""
	if cacheable {
		var cached []store.Product
		if hit, err := s.Cache.GetJSON(ctx, listCacheKey, &cached); err == nil && hit {
			return cached, nil
		} else if err != nil {
			s.Log.Warn().Err(err).Msg("catalog cache read failed")
		}
	}
	rows, err := s.Store.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.Cache.SetJSON(ctx, listCacheKey, rows); err != nil {
			s.Log.Warn().Err(err).Msg("catalog cache write failed")
		}
	}
	return rows, nil
}

// LowStock lists active products at or below their threshold.
func (s *Service) LowStock(ctx context.Context) ([]store.Product, error) {
	var cached []store.Product
	if hit, err := s.Cache.GetJSON(ctx, lowStockCacheKey, &cached); err == nil && hit {
		return cached, nil
	}
	rows, err := s.Store.LowStockProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.SetJSON(ctx, lowStockCacheKey, rows); err != nil {
		s.Log.Warn().Err(err).Msg("catalog cache write failed")
	}
	return rows, nil
}

// Create inserts a new active product.
func (s *Service) Create(ctx context.Context, in ProductInput) (store.Product, error) {
	p, err := in.toProduct()
	if err != nil {
		return store.Product{}, err
	}
	created, err := s.Store.CreateProduct(ctx, p)
	if err != nil {
		return store.Product{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

// Update rewrites a product's descriptive fields, price, and stock.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (store.Product, error) {
	p, err := in.toProduct()
	if err != nil {
		return store.Product{}, err
	}
	p.ID = id
	updated, err := s.Store.UpdateProduct(ctx, p)
	if err != nil {
		return store.Product{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// Deactivate soft-deletes a product. Cart lines referencing it are
// hard-deleted; ledger rows are never touched.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.Store.DeactivateProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Restore reactivates a soft-deleted product.
func (s *Service) Restore(ctx context.Context, id int64) error {
	if err := s.Store.RestoreProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.Cache.Invalidate(ctx, listCacheKey, lowStockCacheKey); err != nil {
		s.Log.Warn().Err(err).Msg("catalog cache invalidation failed")
	}
}

// ErrInvalidPrice is returned for unparseable or negative prices.
var ErrInvalidPrice = errors.New("catalog: price must be a non-negative decimal")

func parsePrice(raw string) (money.Money, error) {
	price, err := money.FromString(strings.TrimSpace(raw))
	if err != nil {
		return money.Zero, fmt.Errorf("%w: %s", ErrInvalidPrice, raw)
	}
	if price.IsNegative() {
		return money.Zero, ErrInvalidPrice
	}
	return price.Round(), nil
}
