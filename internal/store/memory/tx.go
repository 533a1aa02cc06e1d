package memory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/store"
)

func decimalFromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// memTx mutates a cloned state; the clone is published by Store.Tx only
// when the closure succeeds.
type memTx struct {
	st *state
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) ProductForUpdate(_ context.Context, id int64) (store.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return store.Product{}, store.ErrProductNotFound
	}
	return p, nil
}

func (t *memTx) CustomerForUpdate(_ context.Context, id int64) (store.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return store.Customer{}, store.ErrCustomerNotFound
	}
	return c, nil
}

func (t *memTx) AdjustStock(_ context.Context, productID int64, delta int) (int, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return 0, store.ErrProductNotFound
	}
	next := p.Stock + delta
	if next < 0 {
		return p.Stock, store.ErrInsufficientStock
	}
	p.Stock = next
	p.UpdatedAt = time.Now().UTC()
	t.st.products[productID] = p
	return next, nil
}

func (t *memTx) AddLoyaltyPoints(_ context.Context, customerID, delta int64) (int64, error) {
	c, ok := t.st.customers[customerID]
	if !ok {
		return 0, store.ErrCustomerNotFound
	}
	balance := c.LoyaltyPoints + delta
	if balance < 0 {
		balance = 0
	}
	c.LoyaltyPoints = balance
	t.st.customers[customerID] = c
	return balance, nil
}

func (t *memTx) SetTier(_ context.Context, customerID int64, tier string) error {
	c, ok := t.st.customers[customerID]
	if !ok {
		return store.ErrCustomerNotFound
	}
	c.Tier = tier
	t.st.customers[customerID] = c
	return nil
}

func (t *memTx) SetPendingDiscount(_ context.Context, customerID int64, amount money.Money) error {
	c, ok := t.st.customers[customerID]
	if !ok {
		return store.ErrCustomerNotFound
	}
	c.PendingDiscount = amount.Round()
	t.st.customers[customerID] = c
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn store.Transaction) (store.Transaction, error) {
	t.st.transactionSeq++
	txn.ID = t.st.transactionSeq
	if txn.Date.IsZero() {
		txn.Date = time.Now().UTC()
	}
	t.st.transactions[txn.ID] = txn
	return txn, nil
}

func (t *memTx) InsertTransactionItem(_ context.Context, item store.TransactionItem) (store.TransactionItem, error) {
	if _, ok := t.st.transactions[item.TransactionID]; !ok {
		return store.TransactionItem{}, store.ErrTransactionNotFound
	}
	t.st.itemSeq++
	item.ID = t.st.itemSeq
	item.ProductName = ""
	item.ProductDeleted = false
	t.st.items = append(t.st.items, item)
	return item, nil
}

func (t *memTx) InsertReturn(_ context.Context, r store.Return) (store.Return, error) {
	t.st.returnSeq++
	r.ID = t.st.returnSeq
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	t.st.returns = append(t.st.returns, r)
	return r, nil
}

func (t *memTx) GetTransaction(_ context.Context, id int64) (store.Transaction, error) {
	txn, ok := t.st.transactions[id]
	if !ok {
		return store.Transaction{}, store.ErrTransactionNotFound
	}
	return txn, nil
}

func (t *memTx) TransactionItems(_ context.Context, transactionID int64) ([]store.TransactionItem, error) {
	if _, ok := t.st.transactions[transactionID]; !ok {
		return nil, store.ErrTransactionNotFound
	}
	return itemsWithProducts(t.st, transactionID), nil
}

func (t *memTx) ReturnedQuantities(_ context.Context, saleTransactionID int64) (map[int64]int, error) {
	out := make(map[int64]int)
	for _, r := range t.st.returns {
		if r.TransactionID != saleTransactionID {
			continue
		}
		for _, item := range t.st.items {
			if item.TransactionID == r.RefundTransactionID && item.Quantity < 0 {
				out[item.ProductID] += -item.Quantity
			}
		}
	}
	return out, nil
}

func (t *memTx) ClearCart(_ context.Context, customerID int64) error {
	delete(t.st.carts, customerID)
	return nil
}

func itemsWithProducts(st *state, transactionID int64) []store.TransactionItem {
	var out []store.TransactionItem
	for _, item := range st.items {
		if item.TransactionID != transactionID {
			continue
		}
		if p, ok := st.products[item.ProductID]; ok {
			item.ProductName = p.Name
			item.ProductDeleted = !p.Active
		}
		out = append(out, item)
	}
	return out
}
