package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/store"
)

// Tx runs fn inside one database transaction. Row locks taken through
// the handle are held until commit or rollback.
func (s *Store) Tx(ctx context.Context, fn func(tx store.Tx) error) error {
	dbTx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapErr(err, store.ErrNotFound)
	}
	defer func() { _ = dbTx.Rollback(ctx) }()

	if err := fn(&pgTx{store: s, tx: dbTx}); err != nil {
		return err
	}
	return mapErr(dbTx.Commit(ctx), store.ErrNotFound)
}

type pgTx struct {
	store *Store
	tx    pgx.Tx
}

var _ store.Tx = (*pgTx)(nil)

// ProductForUpdate locks the row for the remainder of the transaction.
func (t *pgTx) ProductForUpdate(ctx context.Context, id int64) (store.Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return store.Product{}, mapErr(err, store.ErrProductNotFound)
	}
	return p, nil
}

// CustomerForUpdate locks the row for the remainder of the transaction.
func (t *pgTx) CustomerForUpdate(ctx context.Context, id int64) (store.Customer, error) {
	c, err := scanCustomer(t.tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return store.Customer{}, mapErr(err, store.ErrCustomerNotFound)
	}
	return c, nil
}

// AdjustStock applies a signed delta and returns the remaining stock.
// The schema's non-negative constraint turns an oversell into
// ErrInsufficientStock.
func (t *pgTx) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	var remaining int
	err := t.tx.QueryRow(ctx, `UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1 RETURNING stock`, productID, delta).Scan(&remaining)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return 0, store.ErrInsufficientStock
		}
		return 0, mapErr(err, store.ErrProductNotFound)
	}
	return remaining, nil
}

// AddLoyaltyPoints applies a signed delta, clamping the balance at zero,
// and returns the new balance.
func (t *pgTx) AddLoyaltyPoints(ctx context.Context, customerID int64, delta int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `UPDATE customers SET loyalty_points = GREATEST(loyalty_points + $2, 0)
		WHERE id = $1 RETURNING loyalty_points`, customerID, delta).Scan(&balance)
	if err != nil {
		return 0, mapErr(err, store.ErrCustomerNotFound)
	}
	return balance, nil
}

// SetTier overwrites the customer's tier.
func (t *pgTx) SetTier(ctx context.Context, customerID int64, tier string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE customers SET tier = $2 WHERE id = $1`, customerID, tier)
	if err != nil {
		return mapErr(err, store.ErrCustomerNotFound)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrCustomerNotFound
	}
	return nil
}

// SetPendingDiscount overwrites the banked redemption value.
func (t *pgTx) SetPendingDiscount(ctx context.Context, customerID int64, amount money.Money) error {
	tag, err := t.tx.Exec(ctx, `UPDATE customers SET pending_discount = $2::numeric WHERE id = $1`,
		customerID, amount.String())
	if err != nil {
		return mapErr(err, store.ErrCustomerNotFound)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrCustomerNotFound
	}
	return nil
}

// InsertTransaction appends one immutable ledger row.
func (t *pgTx) InsertTransaction(ctx context.Context, in store.Transaction) (store.Transaction, error) {
	date := in.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	row := t.tx.QueryRow(ctx, `INSERT INTO transactions (customer_id, staff_id, kind, subtotal, discount, tax, total, payment_method, date)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9)
		RETURNING `+transactionColumns,
		in.CustomerID, in.StaffID, in.Kind, in.Subtotal.String(), in.Discount.String(),
		in.Tax.String(), in.Total.String(), in.PaymentMethod, date)
	created, err := scanTransaction(row)
	if err != nil {
		return store.Transaction{}, mapErr(err, store.ErrTransactionNotFound)
	}
	return created, nil
}

// InsertTransactionItem appends one ledger line.
func (t *pgTx) InsertTransactionItem(ctx context.Context, item store.TransactionItem) (store.TransactionItem, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO transaction_items (transaction_id, product_id, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric)
		RETURNING id`,
		item.TransactionID, item.ProductID, item.Quantity, item.UnitPrice.String(), item.LineTotal.String())
	if err := row.Scan(&item.ID); err != nil {
		return store.TransactionItem{}, mapErr(err, store.ErrTransactionNotFound)
	}
	return item, nil
}

// InsertReturn links a refund ledger row to its original sale.
func (t *pgTx) InsertReturn(ctx context.Context, in store.Return) (store.Return, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO returns (transaction_id, refund_transaction_id, customer_id, reason, refund_amount, status)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		RETURNING `+returnColumns,
		in.TransactionID, in.RefundTransactionID, in.CustomerID, in.Reason,
		in.RefundAmount.String(), in.Status)
	created, err := scanReturn(row)
	if err != nil {
		return store.Return{}, mapErr(err, store.ErrTransactionNotFound)
	}
	return created, nil
}

// GetTransaction reads a ledger row inside the transaction.
func (t *pgTx) GetTransaction(ctx context.Context, id int64) (store.Transaction, error) {
	return getTransaction(ctx, t.tx, id)
}

// TransactionItems reads joined ledger lines inside the transaction.
func (t *pgTx) TransactionItems(ctx context.Context, transactionID int64) ([]store.TransactionItem, error) {
	return transactionItems(ctx, t.tx, transactionID)
}

// ReturnedQuantities sums quantities already refunded against the sale,
// keyed by product id. Values are positive.
func (t *pgTx) ReturnedQuantities(ctx context.Context, saleTransactionID int64) (map[int64]int, error) {
	rows, err := t.tx.Query(ctx, `SELECT ti.product_id, SUM(-ti.quantity)
		FROM returns r
		JOIN transaction_items ti ON ti.transaction_id = r.refund_transaction_id
		WHERE r.transaction_id = $1
		GROUP BY ti.product_id`, saleTransactionID)
	if err != nil {
		return nil, mapErr(err, store.ErrTransactionNotFound)
	}
	defer rows.Close()
	out := make(map[int64]int)
	for rows.Next() {
		var productID int64
		var quantity int
		if err := rows.Scan(&productID, &quantity); err != nil {
			return nil, mapErr(err, store.ErrTransactionNotFound)
		}
		out[productID] = quantity
	}
	return out, mapErr(rows.Err(), store.ErrTransactionNotFound)
}

// ClearCart deletes the customer's cart lines inside the transaction.
func (t *pgTx) ClearCart(ctx context.Context, customerID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM shopping_cart WHERE customer_id = $1`, customerID)
	return mapErr(err, store.ErrNotFound)
}
