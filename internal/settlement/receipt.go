package settlement

import (
	"context"

	"github.com/techhaven/backend-pos/internal/store"
)

// Receipt is the read-back view of a settled transaction.
type Receipt struct {
	Transaction store.Transaction       `json:"transaction"`
	Items       []store.TransactionItem `json:"items"`
}

// Receipt resolves a ledger row with its line items. Items that point
// at soft-deleted products are still resolved; their names carry a
// discontinued marker so old receipts stay printable.
func (s *Service) Receipt(ctx context.Context, transactionID int64) (Receipt, error) {
	txn, err := s.Store.GetTransaction(ctx, transactionID)
	if err != nil {
		return Receipt{}, err
	}
	items, err := s.Store.TransactionItems(ctx, transactionID)
	if err != nil {
		return Receipt{}, err
	}
	for i := range items {
		if items[i].ProductDeleted && items[i].ProductName != "" {
			items[i].ProductName += " (discontinued)"
		}
	}
	return Receipt{Transaction: txn, Items: items}, nil
}

// ReturnHistory lists processed returns, optionally scoped to one
// customer, most recent first.
func (s *Service) ReturnHistory(ctx context.Context, customerID *int64) ([]store.Return, error) {
	return s.Store.ListReturns(ctx, customerID)
}
