// Package postgres implements store.Store over a pgx pool. Money
// columns travel as text on both sides of the wire so the decimal
// representation never passes through a float.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/store"
)

// Store implements store.Store.
type Store struct {
	Pool *pgxpool.Pool
}

// New constructs a Store over the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

var _ store.Store = (*Store)(nil)

// querier abstracts pool and transaction handles.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// mapErr converts driver failures to the store's sentinel errors.
// notFound names the sentinel to use when no row matched.
func mapErr(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", store.ErrSerialization, pgErr.Message)
		case "23505":
			return store.ErrDuplicate
		}
	}
	return fmt.Errorf("%w: %v", store.ErrStorage, err)
}

const productColumns = `id, name, description, category, price::text, stock, low_stock_threshold, active, deleted_at, created_at, updated_at`

func scanProduct(row pgx.Row) (store.Product, error) {
	var p store.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price, &p.Stock,
		&p.LowStockThreshold, &p.Active, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetProduct returns the row regardless of its active flag; callers
// decide how to treat soft-deleted products.
func (s *Store) GetProduct(ctx context.Context, id int64) (store.Product, error) {
	return s.getProduct(ctx, s.Pool, id)
}

func (s *Store) getProduct(ctx context.Context, q querier, id int64) (store.Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return store.Product{}, mapErr(err, store.ErrProductNotFound)
	}
	return p, nil
}

// ListProducts returns catalog rows matching the filter, newest last.
func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]store.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE ($1 OR active)
		AND ($2 = '' OR category = $2)
		AND ($3 = '' OR name ILIKE '%' || $3 || '%')
		ORDER BY id`
	rows, err := s.Pool.Query(ctx, query, filter.IncludeInactive, filter.Category, filter.Query)
	if err != nil {
		return nil, mapErr(err, store.ErrProductNotFound)
	}
	return collectProducts(rows)
}

// LowStockProducts returns active rows at or under their threshold.
func (s *Store) LowStockProducts(ctx context.Context) ([]store.Product, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE active AND stock <= low_stock_threshold ORDER BY stock, id`)
	if err != nil {
		return nil, mapErr(err, store.ErrProductNotFound)
	}
	return collectProducts(rows)
}

func collectProducts(rows pgx.Rows) ([]store.Product, error) {
	defer rows.Close()
	var out []store.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, mapErr(err, store.ErrProductNotFound)
		}
		out = append(out, p)
	}
	return out, mapErr(rows.Err(), store.ErrProductNotFound)
}

// CreateProduct inserts a catalog row.
func (s *Store) CreateProduct(ctx context.Context, p store.Product) (store.Product, error) {
	row := s.Pool.QueryRow(ctx, `INSERT INTO products (name, description, category, price, stock, low_stock_threshold, active)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, TRUE)
		RETURNING `+productColumns,
		p.Name, p.Description, p.Category, p.Price.String(), p.Stock, p.LowStockThreshold)
	created, err := scanProduct(row)
	if err != nil {
		return store.Product{}, mapErr(err, store.ErrProductNotFound)
	}
	return created, nil
}

// UpdateProduct replaces the mutable catalog fields.
func (s *Store) UpdateProduct(ctx context.Context, p store.Product) (store.Product, error) {
	row := s.Pool.QueryRow(ctx, `UPDATE products
		SET name = $2, description = $3, category = $4, price = $5::numeric,
		    stock = $6, low_stock_threshold = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Name, p.Description, p.Category, p.Price.String(), p.Stock, p.LowStockThreshold)
	updated, err := scanProduct(row)
	if err != nil {
		return store.Product{}, mapErr(err, store.ErrProductNotFound)
	}
	return updated, nil
}

// DeactivateProduct soft-deletes the row and drops its cart lines.
func (s *Store) DeactivateProduct(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE products SET active = FALSE, deleted_at = now(), updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return mapErr(err, store.ErrProductNotFound)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrProductNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM shopping_cart WHERE product_id = $1`, id); err != nil {
			return mapErr(err, store.ErrProductNotFound)
		}
		return nil
	})
}

// RestoreProduct reverses a soft delete.
func (s *Store) RestoreProduct(ctx context.Context, id int64) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE products SET active = TRUE, deleted_at = NULL, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, store.ErrProductNotFound)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrProductNotFound
	}
	return nil
}

const customerColumns = `id, name, email, phone, tier, loyalty_points, pending_discount::text, active, deleted_at, created_at`

func scanCustomer(row pgx.Row) (store.Customer, error) {
	var c store.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Tier, &c.LoyaltyPoints,
		&c.PendingDiscount, &c.Active, &c.DeletedAt, &c.CreatedAt)
	return c, err
}

// GetCustomer returns the row regardless of its active flag.
func (s *Store) GetCustomer(ctx context.Context, id int64) (store.Customer, error) {
	return s.getCustomer(ctx, s.Pool, id)
}

func (s *Store) getCustomer(ctx context.Context, q querier, id int64) (store.Customer, error) {
	c, err := scanCustomer(q.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		return store.Customer{}, mapErr(err, store.ErrCustomerNotFound)
	}
	return c, nil
}

// ListCustomers returns member rows matching the filter.
func (s *Store) ListCustomers(ctx context.Context, filter store.CustomerFilter) ([]store.Customer, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+customerColumns+` FROM customers WHERE ($1 OR active)
		AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		ORDER BY id`, filter.IncludeInactive, filter.Query)
	if err != nil {
		return nil, mapErr(err, store.ErrCustomerNotFound)
	}
	defer rows.Close()
	var out []store.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, mapErr(err, store.ErrCustomerNotFound)
		}
		out = append(out, c)
	}
	return out, mapErr(rows.Err(), store.ErrCustomerNotFound)
}

// CreateCustomer inserts a member row.
func (s *Store) CreateCustomer(ctx context.Context, c store.Customer) (store.Customer, error) {
	tier := c.Tier
	if tier == "" {
		tier = store.TierRegular
	}
	row := s.Pool.QueryRow(ctx, `INSERT INTO customers (name, email, phone, tier, loyalty_points, pending_discount, active)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, TRUE)
		RETURNING `+customerColumns,
		c.Name, c.Email, c.Phone, tier, c.LoyaltyPoints, c.PendingDiscount.String())
	created, err := scanCustomer(row)
	if err != nil {
		return store.Customer{}, mapErr(err, store.ErrCustomerNotFound)
	}
	return created, nil
}

// UpdateCustomer replaces contact fields and the tier. Loyalty balances
// change only through settlement and redemption.
func (s *Store) UpdateCustomer(ctx context.Context, c store.Customer) (store.Customer, error) {
	row := s.Pool.QueryRow(ctx, `UPDATE customers SET name = $2, email = $3, phone = $4, tier = $5
		WHERE id = $1
		RETURNING `+customerColumns,
		c.ID, c.Name, c.Email, c.Phone, c.Tier)
	updated, err := scanCustomer(row)
	if err != nil {
		return store.Customer{}, mapErr(err, store.ErrCustomerNotFound)
	}
	return updated, nil
}

// DeactivateCustomer soft-deletes the row and clears the cart. Points
// and history survive for a later restore.
func (s *Store) DeactivateCustomer(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE customers SET active = FALSE, deleted_at = now() WHERE id = $1`, id)
		if err != nil {
			return mapErr(err, store.ErrCustomerNotFound)
		}
		if tag.RowsAffected() == 0 {
			return store.ErrCustomerNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM shopping_cart WHERE customer_id = $1`, id); err != nil {
			return mapErr(err, store.ErrCustomerNotFound)
		}
		return nil
	})
}

// RestoreCustomer reverses a soft delete.
func (s *Store) RestoreCustomer(ctx context.Context, id int64) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE customers SET active = TRUE, deleted_at = NULL WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, store.ErrCustomerNotFound)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrCustomerNotFound
	}
	return nil
}

const staffColumns = `id, username, full_name, role, password_hash, created_at`

func scanStaff(row pgx.Row) (store.Staff, error) {
	var st store.Staff
	err := row.Scan(&st.ID, &st.Username, &st.FullName, &st.Role, &st.PasswordHash, &st.CreatedAt)
	return st, err
}

// GetStaff returns one operator account.
func (s *Store) GetStaff(ctx context.Context, id int64) (store.Staff, error) {
	st, err := scanStaff(s.Pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id))
	if err != nil {
		return store.Staff{}, mapErr(err, store.ErrStaffNotFound)
	}
	return st, nil
}

// GetStaffByUsername resolves an account case-insensitively.
func (s *Store) GetStaffByUsername(ctx context.Context, username string) (store.Staff, error) {
	st, err := scanStaff(s.Pool.QueryRow(ctx, `SELECT `+staffColumns+` FROM staff WHERE lower(username) = lower($1)`, username))
	if err != nil {
		return store.Staff{}, mapErr(err, store.ErrStaffNotFound)
	}
	return st, nil
}

// CreateStaff inserts an operator account.
func (s *Store) CreateStaff(ctx context.Context, in store.Staff) (store.Staff, error) {
	row := s.Pool.QueryRow(ctx, `INSERT INTO staff (username, full_name, role, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING `+staffColumns,
		in.Username, in.FullName, in.Role, in.PasswordHash)
	created, err := scanStaff(row)
	if err != nil {
		return store.Staff{}, mapErr(err, store.ErrStaffNotFound)
	}
	return created, nil
}

// CartLines returns the customer's cart, oldest line first.
func (s *Store) CartLines(ctx context.Context, customerID int64) ([]store.CartLine, error) {
	rows, err := s.Pool.Query(ctx, `SELECT customer_id, product_id, quantity, added_at
		FROM shopping_cart WHERE customer_id = $1 ORDER BY added_at, product_id`, customerID)
	if err != nil {
		return nil, mapErr(err, store.ErrNotFound)
	}
	defer rows.Close()
	var out []store.CartLine
	for rows.Next() {
		var line store.CartLine
		if err := rows.Scan(&line.CustomerID, &line.ProductID, &line.Quantity, &line.AddedAt); err != nil {
			return nil, mapErr(err, store.ErrNotFound)
		}
		out = append(out, line)
	}
	return out, mapErr(rows.Err(), store.ErrNotFound)
}

// AddCartLine upserts, accumulating quantity on conflict.
func (s *Store) AddCartLine(ctx context.Context, line store.CartLine) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO shopping_cart (customer_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id, product_id)
		DO UPDATE SET quantity = shopping_cart.quantity + EXCLUDED.quantity`,
		line.CustomerID, line.ProductID, line.Quantity)
	return mapErr(err, store.ErrNotFound)
}

// SetCartLineQuantity overwrites a line's quantity; zero or less removes it.
func (s *Store) SetCartLineQuantity(ctx context.Context, customerID, productID int64, quantity int) error {
	if quantity <= 0 {
		return s.RemoveCartLine(ctx, customerID, productID)
	}
	tag, err := s.Pool.Exec(ctx, `UPDATE shopping_cart SET quantity = $3
		WHERE customer_id = $1 AND product_id = $2`, customerID, productID, quantity)
	if err != nil {
		return mapErr(err, store.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RemoveCartLine deletes one line.
func (s *Store) RemoveCartLine(ctx context.Context, customerID, productID int64) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM shopping_cart WHERE customer_id = $1 AND product_id = $2`, customerID, productID)
	if err != nil {
		return mapErr(err, store.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ClearCart deletes every line for the customer.
func (s *Store) ClearCart(ctx context.Context, customerID int64) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM shopping_cart WHERE customer_id = $1`, customerID)
	return mapErr(err, store.ErrNotFound)
}

const transactionColumns = `id, customer_id, staff_id, kind, subtotal::text, discount::text, tax::text, total::text, payment_method, date`

func scanTransaction(row pgx.Row) (store.Transaction, error) {
	var t store.Transaction
	err := row.Scan(&t.ID, &t.CustomerID, &t.StaffID, &t.Kind, &t.Subtotal, &t.Discount,
		&t.Tax, &t.Total, &t.PaymentMethod, &t.Date)
	return t, err
}

// GetTransaction returns one ledger row.
func (s *Store) GetTransaction(ctx context.Context, id int64) (store.Transaction, error) {
	return getTransaction(ctx, s.Pool, id)
}

func getTransaction(ctx context.Context, q querier, id int64) (store.Transaction, error) {
	t, err := scanTransaction(q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return store.Transaction{}, mapErr(err, store.ErrTransactionNotFound)
	}
	return t, nil
}

// TransactionItems returns the lines of a ledger row with product names
// resolved, soft-deleted products included and flagged.
func (s *Store) TransactionItems(ctx context.Context, transactionID int64) ([]store.TransactionItem, error) {
	return transactionItems(ctx, s.Pool, transactionID)
}

func transactionItems(ctx context.Context, q querier, transactionID int64) ([]store.TransactionItem, error) {
	rows, err := q.Query(ctx, `SELECT ti.id, ti.transaction_id, ti.product_id, ti.quantity,
			ti.unit_price::text, ti.line_total::text, p.name, NOT p.active
		FROM transaction_items ti
		JOIN products p ON p.id = ti.product_id
		WHERE ti.transaction_id = $1
		ORDER BY ti.id`, transactionID)
	if err != nil {
		return nil, mapErr(err, store.ErrTransactionNotFound)
	}
	defer rows.Close()
	var out []store.TransactionItem
	for rows.Next() {
		var item store.TransactionItem
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.LineTotal, &item.ProductName, &item.ProductDeleted); err != nil {
			return nil, mapErr(err, store.ErrTransactionNotFound)
		}
		out = append(out, item)
	}
	return out, mapErr(rows.Err(), store.ErrTransactionNotFound)
}

// CustomerTransactions returns the member's ledger rows, newest first.
func (s *Store) CustomerTransactions(ctx context.Context, customerID int64) ([]store.Transaction, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE customer_id = $1 ORDER BY date DESC, id DESC`, customerID)
	if err != nil {
		return nil, mapErr(err, store.ErrTransactionNotFound)
	}
	defer rows.Close()
	var out []store.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, mapErr(err, store.ErrTransactionNotFound)
		}
		out = append(out, t)
	}
	return out, mapErr(rows.Err(), store.ErrTransactionNotFound)
}

const returnColumns = `id, transaction_id, refund_transaction_id, customer_id, reason, refund_amount::text, status, created_at`

func scanReturn(row pgx.Row) (store.Return, error) {
	var ret store.Return
	err := row.Scan(&ret.ID, &ret.TransactionID, &ret.RefundTransactionID, &ret.CustomerID,
		&ret.Reason, &ret.RefundAmount, &ret.Status, &ret.CreatedAt)
	return ret, err
}

// ListReturns returns refund records, optionally narrowed to one customer.
func (s *Store) ListReturns(ctx context.Context, customerID *int64) ([]store.Return, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+returnColumns+` FROM returns
		WHERE ($1::bigint IS NULL OR customer_id = $1)
		ORDER BY created_at DESC, id DESC`, customerID)
	if err != nil {
		return nil, mapErr(err, store.ErrNotFound)
	}
	defer rows.Close()
	var out []store.Return
	for rows.Next() {
		ret, err := scanReturn(rows)
		if err != nil {
			return nil, mapErr(err, store.ErrNotFound)
		}
		out = append(out, ret)
	}
	return out, mapErr(rows.Err(), store.ErrNotFound)
}

// DailySummary aggregates the sale rows of one calendar day.
func (s *Store) DailySummary(ctx context.Context, day time.Time) (store.DailySummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	summary, err := s.rangeSummary(ctx, start, end)
	if err != nil {
		return store.DailySummary{}, err
	}
	summary.Day = start
	return summary, nil
}

func (s *Store) rangeSummary(ctx context.Context, from, to time.Time) (store.DailySummary, error) {
	var summary store.DailySummary
	err := s.Pool.QueryRow(ctx, `SELECT COALESCE(SUM(t.total), 0)::text, COUNT(*),
			COALESCE((SELECT SUM(ti.quantity) FROM transaction_items ti
				JOIN transactions tx ON tx.id = ti.transaction_id
				WHERE tx.kind = 'sale' AND tx.date >= $1 AND tx.date < $2), 0)
		FROM transactions t
		WHERE t.kind = 'sale' AND t.date >= $1 AND t.date < $2`, from, to).
		Scan(&summary.Revenue, &summary.TransactionCount, &summary.ItemsSold)
	if err != nil {
		return store.DailySummary{}, mapErr(err, store.ErrNotFound)
	}
	summary.AverageSale = averageSale(summary.Revenue, summary.TransactionCount)
	return summary, nil
}

func averageSale(revenue money.Money, count int64) money.Money {
	if count == 0 {
		return money.Zero
	}
	return money.FromDecimal(revenue.Decimal().Div(money.New(count).Decimal())).Round()
}

// SalesByRange returns one summary per day that saw at least one sale.
func (s *Store) SalesByRange(ctx context.Context, from, to time.Time) ([]store.DailySummary, error) {
	rows, err := s.Pool.Query(ctx, `SELECT date_trunc('day', t.date AT TIME ZONE 'UTC') AS day,
			COALESCE(SUM(t.total), 0)::text, COUNT(*),
			COALESCE(SUM((SELECT SUM(ti.quantity) FROM transaction_items ti WHERE ti.transaction_id = t.id)), 0)
		FROM transactions t
		WHERE t.kind = 'sale' AND t.date >= $1 AND t.date < $2
		GROUP BY day ORDER BY day`, from, to)
	if err != nil {
		return nil, mapErr(err, store.ErrNotFound)
	}
	defer rows.Close()
	var out []store.DailySummary
	for rows.Next() {
		var summary store.DailySummary
		if err := rows.Scan(&summary.Day, &summary.Revenue, &summary.TransactionCount, &summary.ItemsSold); err != nil {
			return nil, mapErr(err, store.ErrNotFound)
		}
		summary.AverageSale = averageSale(summary.Revenue, summary.TransactionCount)
		out = append(out, summary)
	}
	return out, mapErr(rows.Err(), store.ErrNotFound)
}

// RevenueByTier groups sale revenue by the customer's current tier;
// anonymous sales land in the walk-in bucket.
func (s *Store) RevenueByTier(ctx context.Context, from, to time.Time) ([]store.TierRevenue, error) {
	rows, err := s.Pool.Query(ctx, `SELECT COALESCE(c.tier, 'walk-in') AS tier,
			COALESCE(SUM(t.total), 0)::text, COUNT(*)
		FROM transactions t
		LEFT JOIN customers c ON c.id = t.customer_id
		WHERE t.kind = 'sale' AND t.date >= $1 AND t.date < $2
		GROUP BY tier ORDER BY tier`, from, to)
	if err != nil {
		return nil, mapErr(err, store.ErrNotFound)
	}
	defer rows.Close()
	var out []store.TierRevenue
	for rows.Next() {
		var row store.TierRevenue
		if err := rows.Scan(&row.Tier, &row.Revenue, &row.TransactionCount); err != nil {
			return nil, mapErr(err, store.ErrNotFound)
		}
		out = append(out, row)
	}
	return out, mapErr(rows.Err(), store.ErrNotFound)
}

// InventoryStatus summarises stock levels across active products.
func (s *Store) InventoryStatus(ctx context.Context) (store.InventoryStatus, error) {
	var status store.InventoryStatus
	err := s.Pool.QueryRow(ctx, `SELECT
			COUNT(*) FILTER (WHERE stock = 0),
			COUNT(*) FILTER (WHERE stock > 0 AND stock <= low_stock_threshold),
			COUNT(*) FILTER (WHERE stock > low_stock_threshold),
			COALESCE(SUM(price * stock), 0)::text
		FROM products WHERE active`).
		Scan(&status.OutOfStock, &status.LowStock, &status.InStock, &status.TotalValue)
	if err != nil {
		return store.InventoryStatus{}, mapErr(err, store.ErrNotFound)
	}
	status.TotalValue = status.TotalValue.Round()
	return status, nil
}

// InsertEvent persists one domain event.
func (s *Store) InsertEvent(ctx context.Context, e store.Event) (store.Event, error) {
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	row := s.Pool.QueryRow(ctx, `INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		e.ID, e.Topic, e.AggregateID, payload, occurred)
	var created store.Event
	if err := row.Scan(&created.ID, &created.Topic, &created.AggregateID, &created.Payload, &created.OccurredAt); err != nil {
		return store.Event{}, mapErr(err, store.ErrNotFound)
	}
	return created, nil
}

// ListEvents returns persisted events newest first, optionally filtered
// by topic.
func (s *Store) ListEvents(ctx context.Context, topic string, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, topic, aggregate_id, payload, occurred_at
		FROM domain_events
		WHERE ($1 = '' OR topic = $1)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`, topic, limit)
	if err != nil {
		return nil, mapErr(err, store.ErrNotFound)
	}
	defer rows.Close()
	var out []store.Event
	for rows.Next() {
		var e store.Event
		if err := rows.Scan(&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.OccurredAt); err != nil {
			return nil, mapErr(err, store.ErrNotFound)
		}
		out = append(out, e)
	}
	return out, mapErr(rows.Err(), store.ErrNotFound)
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return mapErr(err, store.ErrNotFound)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return mapErr(tx.Commit(ctx), store.ErrNotFound)
}
