// Package settlement turns carts into committed ledger rows and
// processes returns against them. Every settlement is one all-or-nothing
// transaction: totals, items, stock, loyalty points, pending discount,
// and tier move together or not at all.
package settlement

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/techhaven/backend-pos/internal/events"
	"github.com/techhaven/backend-pos/internal/loyalty"
	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/obs"
	"github.com/techhaven/backend-pos/internal/pricing"
	"github.com/techhaven/backend-pos/internal/store"
)

// ErrEmptySale is returned when a settlement request carries no lines.
var ErrEmptySale = errors.New("settlement: no lines to settle")

// ErrInvalidQuantity is returned for zero or negative line quantities.
var ErrInvalidQuantity = errors.New("settlement: line quantity must be positive")

const defaultMaxRetries = 3

// Line is one requested product/quantity pair.
type Line struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// SaleRequest describes a sale to settle. CustomerID and StaffID are
// optional: walk-in sales carry neither.
type SaleRequest struct {
	CustomerID    *int64 `json:"customer_id"`
	StaffID       *int64 `json:"staff_id"`
	PaymentMethod string `json:"payment_method"`
	Lines         []Line `json:"lines" validate:"required,min=1,dive"`
}

// ReturnRequest describes a return against a settled sale.
type ReturnRequest struct {
	TransactionID int64  `json:"transaction_id" validate:"required,gt=0"`
	StaffID       *int64 `json:"staff_id"`
	Reason        string `json:"reason"`
	Lines         []Line `json:"lines" validate:"required,min=1,dive"`
}

// SaleResult is the committed outcome of a settled sale.
type SaleResult struct {
	Transaction  store.Transaction      `json:"transaction"`
	Items        []store.TransactionItem `json:"items"`
	PointsEarned int64                  `json:"points_earned"`
	Customer     *store.Customer        `json:"customer,omitempty"`
}

// ReturnResult is the committed outcome of a settled return.
type ReturnResult struct {
	Return   store.Return      `json:"return"`
	Refund   store.Transaction `json:"refund"`
	Customer *store.Customer   `json:"customer,omitempty"`
}

// Service executes settlements against an injected store.
type Service struct {
	Store      store.Store
	Events     *events.Bus
	MaxRetries int
	Timeout    time.Duration
	Log        zerolog.Logger
}

// SettleSale validates the request, re-reads prices and the customer's
// tier and pending discount under row locks, writes the ledger rows,
// decrements stock, accrues points, clears the consumed pending
// discount, reconciles the tier, and clears the customer's cart. Domain
// events are collected during the transaction and emitted only after
// commit.
func (s *Service) SettleSale(ctx context.Context, req SaleRequest) (SaleResult, error) {
	start := time.Now()
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return SaleResult{}, err
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var (
		result  SaleResult
		pending []events.Pending
	)
	err = s.runTx(ctx, func(tx store.Tx) error {
		result = SaleResult{}
		pending = pending[:0]

		var customer *store.Customer
		if req.CustomerID != nil {
			c, err := tx.CustomerForUpdate(ctx, *req.CustomerID)
			if err != nil {
				return err
			}
			if !c.Active {
				return store.ErrCustomerNotFound
			}
			customer = &c
		}

		// Validate everything before mutating anything.
		products := make([]store.Product, len(lines))
		for i, l := range lines {
			p, err := tx.ProductForUpdate(ctx, l.ProductID)
			if err != nil {
				return err
			}
			if !p.Active {
				return store.ErrProductNotFound
			}
			if p.Stock < l.Quantity {
				return store.ErrInsufficientStock
			}
			products[i] = p
		}

		priced := make([]pricing.Line, len(lines))
		for i, l := range lines {
			priced[i] = pricing.Line{
				ProductID: l.ProductID,
				UnitPrice: products[i].Price,
				Quantity:  l.Quantity,
			}
		}
		rate := decimal.Zero
		pendingDiscount := money.Zero
		if customer != nil {
			rate = loyalty.DiscountRateForTier(customer.Tier)
			pendingDiscount = customer.PendingDiscount
		}
		totals := pricing.ComputeSale(priced, rate, pendingDiscount)

		txn, err := tx.InsertTransaction(ctx, store.Transaction{
			CustomerID:    req.CustomerID,
			StaffID:       req.StaffID,
			Kind:          store.KindSale,
			Subtotal:      totals.Subtotal,
			Discount:      totals.Discount,
			Tax:           totals.Tax,
			Total:         totals.Total,
			PaymentMethod: req.PaymentMethod,
		})
		if err != nil {
			return err
		}

		items := make([]store.TransactionItem, 0, len(lines))
		for i, l := range lines {
			item, err := tx.InsertTransactionItem(ctx, store.TransactionItem{
				TransactionID: txn.ID,
				ProductID:     l.ProductID,
				Quantity:      l.Quantity,
				UnitPrice:     priced[i].UnitPrice,
				LineTotal:     pricing.LineTotal(priced[i]),
			})
			if err != nil {
				return err
			}
			items = append(items, item)

			remaining, err := tx.AdjustStock(ctx, l.ProductID, -l.Quantity)
			if err != nil {
				return err
			}
			if remaining <= products[i].LowStockThreshold {
				pending = append(pending, events.Pending{
					Topic:       events.TopicLowStock,
					AggregateID: strconv.FormatInt(l.ProductID, 10),
					Payload: map[string]any{
						"product_id": l.ProductID,
						"name":       products[i].Name,
						"stock":      remaining,
						"threshold":  products[i].LowStockThreshold,
					},
				})
			}
		}

		if customer != nil {
			earned := pricing.PointsEarned(totals.Total)
			balance := customer.LoyaltyPoints
			if earned > 0 {
				balance, err = tx.AddLoyaltyPoints(ctx, customer.ID, earned)
				if err != nil {
					return err
				}
			}
			if !customer.PendingDiscount.IsZero() {
				if err := tx.SetPendingDiscount(ctx, customer.ID, money.Zero); err != nil {
					return err
				}
			}
			tier := loyalty.TierForPoints(customer.Tier, balance)
			if tier != customer.Tier {
				if err := tx.SetTier(ctx, customer.ID, tier); err != nil {
					return err
				}
				pending = append(pending, events.Pending{
					Topic:       events.TopicTierChanged,
					AggregateID: strconv.FormatInt(customer.ID, 10),
					Payload:     map[string]string{"from": customer.Tier, "to": tier},
				})
			}
			if err := tx.ClearCart(ctx, customer.ID); err != nil {
				return err
			}
			updated := *customer
			updated.LoyaltyPoints = balance
			updated.PendingDiscount = money.Zero
			updated.Tier = tier
			result.Customer = &updated
			result.PointsEarned = earned
		}

		pending = append(pending, events.Pending{
			Topic:       events.TopicSaleSettled,
			AggregateID: strconv.FormatInt(txn.ID, 10),
			Payload: map[string]any{
				"transaction_id": txn.ID,
				"total":          totals.Total.String(),
				"points_earned":  result.PointsEarned,
			},
		})
		result.Transaction = txn
		result.Items = items
		return nil
	})
	s.observe(store.KindSale, start, err)
	if err != nil {
		return SaleResult{}, err
	}
	s.emit(ctx, pending)
	return result, nil
}

// SettleReturn validates the requested lines against the original sale
// minus everything already returned, writes a negative ledger row at
// the original unit prices, restores stock, records the return link,
// debits loyalty points floored at zero, and reconciles the tier.
// Refunds never reverse discounts; tax comes back proportionally.
func (s *Service) SettleReturn(ctx context.Context, req ReturnRequest) (ReturnResult, error) {
	start := time.Now()
	lines, err := normalizeLines(req.Lines)
	if err != nil {
		return ReturnResult{}, err
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var (
		result  ReturnResult
		pending []events.Pending
	)
	err = s.runTx(ctx, func(tx store.Tx) error {
		result = ReturnResult{}
		pending = pending[:0]

		original, err := tx.GetTransaction(ctx, req.TransactionID)
		if err != nil {
			return err
		}
		if original.Kind != store.KindSale {
			return store.ErrInvalidReturn
		}

		var customer *store.Customer
		if original.CustomerID != nil {
			c, err := tx.CustomerForUpdate(ctx, *original.CustomerID)
			if err != nil {
				return err
			}
			customer = &c
		}

		originalItems, err := tx.TransactionItems(ctx, original.ID)
		if err != nil {
			return err
		}
		soldQty := make(map[int64]int, len(originalItems))
		soldPrice := make(map[int64]money.Money, len(originalItems))
		for _, item := range originalItems {
			soldQty[item.ProductID] += item.Quantity
			soldPrice[item.ProductID] = item.UnitPrice
		}
		returned, err := tx.ReturnedQuantities(ctx, original.ID)
		if err != nil {
			return err
		}

		priced := make([]pricing.Line, len(lines))
		for i, l := range lines {
			remaining := soldQty[l.ProductID] - returned[l.ProductID]
			if l.Quantity > remaining {
				return store.ErrInvalidReturn
			}
			// Lock the row so the stock restore below is ordered with
			// concurrent settlements.
			if _, err := tx.ProductForUpdate(ctx, l.ProductID); err != nil {
				return err
			}
			priced[i] = pricing.Line{
				ProductID: l.ProductID,
				UnitPrice: soldPrice[l.ProductID],
				Quantity:  l.Quantity,
			}
		}
		totals := pricing.ComputeRefund(priced)

		refund, err := tx.InsertTransaction(ctx, store.Transaction{
			CustomerID:    original.CustomerID,
			StaffID:       req.StaffID,
			Kind:          store.KindReturn,
			Subtotal:      totals.Subtotal.Neg(),
			Discount:      money.Zero,
			Tax:           totals.Tax.Neg(),
			Total:         totals.Total.Neg(),
			PaymentMethod: original.PaymentMethod,
		})
		if err != nil {
			return err
		}
		for i, l := range lines {
			if _, err := tx.InsertTransactionItem(ctx, store.TransactionItem{
				TransactionID: refund.ID,
				ProductID:     l.ProductID,
				Quantity:      -l.Quantity,
				UnitPrice:     priced[i].UnitPrice,
				LineTotal:     pricing.LineTotal(priced[i]).Neg(),
			}); err != nil {
				return err
			}
			if _, err := tx.AdjustStock(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}

		ret, err := tx.InsertReturn(ctx, store.Return{
			TransactionID:       original.ID,
			RefundTransactionID: refund.ID,
			CustomerID:          original.CustomerID,
			Reason:              req.Reason,
			RefundAmount:        totals.Total,
			Status:              "completed",
		})
		if err != nil {
			return err
		}

		if customer != nil {
			debit := pricing.PointsDebit(totals.Total)
			balance := customer.LoyaltyPoints
			if debit > 0 {
				balance, err = tx.AddLoyaltyPoints(ctx, customer.ID, -debit)
				if err != nil {
					return err
				}
			}
			tier := loyalty.TierForPoints(customer.Tier, balance)
			if tier != customer.Tier {
				if err := tx.SetTier(ctx, customer.ID, tier); err != nil {
					return err
				}
				pending = append(pending, events.Pending{
					Topic:       events.TopicTierChanged,
					AggregateID: strconv.FormatInt(customer.ID, 10),
					Payload:     map[string]string{"from": customer.Tier, "to": tier},
				})
			}
			updated := *customer
			updated.LoyaltyPoints = balance
			updated.Tier = tier
			result.Customer = &updated
		}

		pending = append(pending, events.Pending{
			Topic:       events.TopicSaleRefunded,
			AggregateID: strconv.FormatInt(original.ID, 10),
			Payload: map[string]any{
				"transaction_id":        original.ID,
				"refund_transaction_id": refund.ID,
				"refund_amount":         totals.Total.String(),
			},
		})
		result.Return = ret
		result.Refund = refund
		return nil
	})
	s.observe(store.KindReturn, start, err)
	if err != nil {
		return ReturnResult{}, err
	}
	s.emit(ctx, pending)
	return result, nil
}

// runTx retries the closure on serialization conflicts, up to the
// configured bound.
func (s *Service) runTx(ctx context.Context, fn func(tx store.Tx) error) error {
	max := s.MaxRetries
	if max <= 0 {
		max = defaultMaxRetries
	}
	for attempt := 1; ; attempt++ {
		err := s.Store.Tx(ctx, fn)
		if err == nil || !errors.Is(err, store.ErrSerialization) || attempt >= max {
			return err
		}
		if obs.SettlementRetries != nil {
			obs.SettlementRetries.Inc()
		}
		s.Log.Warn().Int("attempt", attempt).Msg("settlement retry after serialization conflict")
	}
}

func (s *Service) observe(kind string, start time.Time, err error) {
	if obs.SettlementsTotal != nil {
		result := "ok"
		if err != nil {
			result = "error"
			if errors.Is(err, store.ErrInsufficientStock) {
				result = "oversell"
			}
		}
		obs.SettlementsTotal.WithLabelValues(kind, result).Inc()
	}
	if obs.OversellRejections != nil && errors.Is(err, store.ErrInsufficientStock) {
		obs.OversellRejections.Inc()
	}
	if obs.SettlementDuration != nil && err == nil {
		obs.SettlementDuration.WithLabelValues(kind).Observe(obs.DurationMillis(time.Since(start)))
	}
}

func (s *Service) emit(ctx context.Context, pending []events.Pending) {
	if s.Events == nil || len(pending) == 0 {
		return
	}
	if err := s.Events.EmitAll(ctx, pending); err != nil {
		s.Log.Warn().Err(err).Msg("settlement events not fully emitted")
	}
}

// normalizeLines merges duplicate products and orders lines by product
// id so concurrent settlements always lock rows in the same order.
func normalizeLines(in []Line) ([]Line, error) {
	if len(in) == 0 {
		return nil, ErrEmptySale
	}
	merged := make(map[int64]int, len(in))
	for _, l := range in {
		if l.Quantity <= 0 || l.ProductID <= 0 {
			return nil, ErrInvalidQuantity
		}
		merged[l.ProductID] += l.Quantity
	}
	out := make([]Line, 0, len(merged))
	for id, qty := range merged {
		out = append(out, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}
