// Package report aggregates the transaction ledger into read-only
// summaries. Results are cached in Redis with a short TTL: reports are
// consistent point-in-time snapshots, best effort against concurrent
// settlements.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/techhaven/backend-pos/internal/store"
)

// Service implements report reads over an injected store.
type Service struct {
	Store store.Reports
	Redis *redis.Client
	TTL   time.Duration
	Log   zerolog.Logger
}

// Daily returns the aggregated summary for one calendar day.
func (s *Service) Daily(ctx context.Context, day time.Time) (store.DailySummary, error) {
	key := fmt.Sprintf("report:daily:%s", day.UTC().Format("2006-01-02"))
	var out store.DailySummary
	if s.cached(ctx, key, &out) {
		return out, nil
	}
	out, err := s.Store.DailySummary(ctx, day)
	if err != nil {
		return store.DailySummary{}, err
	}
	s.cache(ctx, key, out)
	return out, nil
}

// Range returns per-day summaries over an inclusive date range.
func (s *Service) Range(ctx context.Context, from, to time.Time) ([]store.DailySummary, error) {
	key := fmt.Sprintf("report:range:%s:%s", from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	var out []store.DailySummary
	if s.cached(ctx, key, &out) {
		return out, nil
	}
	out, err := s.Store.SalesByRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, key, out)
	return out, nil
}

// ByTier returns revenue grouped by customer tier over a range, with
// anonymous sales in the walk-in bucket.
func (s *Service) ByTier(ctx context.Context, from, to time.Time) ([]store.TierRevenue, error) {
	key := fmt.Sprintf("report:tier:%s:%s", from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	var out []store.TierRevenue
	if s.cached(ctx, key, &out) {
		return out, nil
	}
	out, err := s.Store.RevenueByTier(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, key, out)
	return out, nil
}

// Inventory returns the stock status summary for active products.
func (s *Service) Inventory(ctx context.Context) (store.InventoryStatus, error) {
	const key = "report:inventory"
	var out store.InventoryStatus
	if s.cached(ctx, key, &out) {
		return out, nil
	}
	out, err := s.Store.InventoryStatus(ctx)
	if err != nil {
		return store.InventoryStatus{}, err
	}
	s.cache(ctx, key, out)
	return out, nil
}

func (s *Service) cached(ctx context.Context, key string, dst any) bool {
	if s.Redis == nil {
		return false
	}
	data, err := s.Redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.Log.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.Log.Warn().Err(err).Str("key", key).Msg("report cache payload invalid")
		return false
	}
	return true
}

func (s *Service) cache(ctx context.Context, key string, v any) {
	if s.Redis == nil {
		return
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, key, data, ttl).Err(); err != nil {
		s.Log.Warn().Err(err).Str("key", key).Msg("report cache write failed")
	}
}
