package loyalty

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/techhaven/backend-pos/internal/events"
	"github.com/techhaven/backend-pos/internal/store"
)

// Service applies the loyalty policy atomically against the store.
type Service struct {
	Store  store.Store
	Events *events.Bus
	Log    zerolog.Logger
}

// RedeemPoints converts a customer's points into a banked pending
// discount inside one transaction: the balance drops, the pending
// discount grows, and the tier is reconciled against the new balance.
// The pending discount is consumed and cleared by the next settled
// sale, whichever terminal commits it first.
func (s *Service) RedeemPoints(ctx context.Context, customerID, points int64) (store.Customer, error) {
	var (
		out     store.Customer
		pending []events.Pending
	)
	err := s.Store.Tx(ctx, func(tx store.Tx) error {
		customer, err := tx.CustomerForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		if err := ValidateRedemption(customer.LoyaltyPoints, points); err != nil {
			return err
		}
		balance, err := tx.AddLoyaltyPoints(ctx, customerID, -points)
		if err != nil {
			return err
		}
		newPending := customer.PendingDiscount.Add(RedemptionValue(points))
		if err := tx.SetPendingDiscount(ctx, customerID, newPending); err != nil {
			return err
		}
		tier := TierForPoints(customer.Tier, balance)
		if tier != customer.Tier {
			if err := tx.SetTier(ctx, customerID, tier); err != nil {
				return err
			}
			pending = append(pending, events.Pending{
				Topic:       events.TopicTierChanged,
				AggregateID: strconv.FormatInt(customerID, 10),
				Payload:     map[string]string{"from": customer.Tier, "to": tier},
			})
		}
		pending = append(pending, events.Pending{
			Topic:       events.TopicPointsRedeemed,
			AggregateID: strconv.FormatInt(customerID, 10),
			Payload: map[string]any{
				"points":           points,
				"discount":         RedemptionValue(points).String(),
				"pending_discount": newPending.String(),
				"balance":          balance,
			},
		})
		out = customer
		out.LoyaltyPoints = balance
		out.PendingDiscount = newPending
		out.Tier = tier
		return nil
	})
	if err != nil {
		return store.Customer{}, err
	}
	if s.Events != nil {
		if emitErr := s.Events.EmitAll(ctx, pending); emitErr != nil {
			s.Log.Warn().Err(emitErr).Int64("customer_id", customerID).Msg("redeem events not fully emitted")
		}
	}
	return out, nil
}

// ReconcileTier recomputes and persists the customer's tier from the
// current balance. Idempotent: it writes only on change.
func (s *Service) ReconcileTier(ctx context.Context, customerID int64) (store.Customer, error) {
	var (
		out     store.Customer
		changed bool
	)
	err := s.Store.Tx(ctx, func(tx store.Tx) error {
		customer, err := tx.CustomerForUpdate(ctx, customerID)
		if err != nil {
			return err
		}
		out = customer
		tier := TierForPoints(customer.Tier, customer.LoyaltyPoints)
		if tier == customer.Tier {
			return nil
		}
		if err := tx.SetTier(ctx, customerID, tier); err != nil {
			return err
		}
		out.Tier = tier
		changed = true
		return nil
	})
	if err != nil {
		return store.Customer{}, err
	}
	if changed && s.Events != nil {
		_, emitErr := s.Events.Emit(ctx, events.TopicTierChanged,
			strconv.FormatInt(customerID, 10),
			map[string]string{"to": out.Tier})
		if emitErr != nil {
			s.Log.Warn().Err(emitErr).Int64("customer_id", customerID).Msg("tier event not emitted")
		}
	}
	return out, nil
}
