// Package store defines the persistence boundary for the POS backend:
// domain row types, sentinel errors for engine outcomes, and the
// Store/Tx interfaces implemented by store/postgres for production and
// store/memory for tests. Services receive a Store by injection; there
// is no package-level connection handle.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/techhaven/backend-pos/internal/money"
)

// Customer tiers. Student is assigned manually and never granted by the
// points policy, though points may still promote a student to vip.
const (
	TierRegular = "regular"
	TierPremium = "premium"
	TierVIP     = "vip"
	TierStudent = "student"
)

// Transaction kinds as stored on the ledger.
const (
	KindSale   = "sale"
	KindReturn = "return"
)

// Sentinel errors. Services and handlers branch on these with errors.Is;
// storage implementations must wrap their own failures in ErrStorage.
var (
	ErrNotFound                = errors.New("store: not found")
	ErrProductNotFound         = errors.New("store: product not found")
	ErrCustomerNotFound        = errors.New("store: customer not found")
	ErrStaffNotFound           = errors.New("store: staff not found")
	ErrTransactionNotFound     = errors.New("store: transaction not found")
	ErrInsufficientStock       = errors.New("store: insufficient stock")
	ErrInsufficientPoints      = errors.New("store: insufficient loyalty points")
	ErrInvalidRedemptionAmount = errors.New("store: invalid redemption amount")
	ErrInvalidReturn           = errors.New("store: return exceeds original sale")
	ErrDuplicate               = errors.New("store: duplicate record")
	ErrSerialization           = errors.New("store: serialization conflict")
	ErrStorage                 = errors.New("store: storage failure")
)

// Product is a catalog row. Soft-deleted products keep their rows so
// historical transactions stay resolvable.
type Product struct {
	ID                int64       `json:"id"`
	Name              string      `json:"name"`
	Description       string      `json:"description,omitempty"`
	Category          string      `json:"category,omitempty"`
	Price             money.Money `json:"price"`
	Stock             int         `json:"stock"`
	LowStockThreshold int         `json:"low_stock_threshold"`
	Active            bool        `json:"active"`
	DeletedAt         *time.Time  `json:"deleted_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Customer is a loyalty member row.
type Customer struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Email           string      `json:"email,omitempty"`
	Phone           string      `json:"phone,omitempty"`
	Tier            string      `json:"tier"`
	LoyaltyPoints   int64       `json:"loyalty_points"`
	PendingDiscount money.Money `json:"pending_discount"`
	Active          bool        `json:"active"`
	DeletedAt       *time.Time  `json:"deleted_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Staff is an operator account used for authenticated terminals.
type Staff struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name,omitempty"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Transaction is one immutable ledger row; returns are negative rows,
// never edits of the original sale.
type Transaction struct {
	ID            int64       `json:"id"`
	CustomerID    *int64      `json:"customer_id,omitempty"`
	StaffID       *int64      `json:"staff_id,omitempty"`
	Kind          string      `json:"kind"`
	Subtotal      money.Money `json:"subtotal"`
	Discount      money.Money `json:"discount"`
	Tax           money.Money `json:"tax"`
	Total         money.Money `json:"total"`
	PaymentMethod string      `json:"payment_method"`
	Date          time.Time   `json:"date"`
}

// TransactionItem is one line of a ledger row. Quantity is negative on
// return rows. ProductName and ProductDeleted are populated on joined
// reads only and ignored on writes.
type TransactionItem struct {
	ID             int64       `json:"id"`
	TransactionID  int64       `json:"transaction_id"`
	ProductID      int64       `json:"product_id"`
	Quantity       int         `json:"quantity"`
	UnitPrice      money.Money `json:"unit_price"`
	LineTotal      money.Money `json:"line_total"`
	ProductName    string      `json:"product_name,omitempty"`
	ProductDeleted bool        `json:"product_deleted,omitempty"`
}

// Return links an original sale to its refund ledger row.
type Return struct {
	ID                  int64       `json:"id"`
	TransactionID       int64       `json:"transaction_id"`
	RefundTransactionID int64       `json:"refund_transaction_id"`
	CustomerID          *int64      `json:"customer_id,omitempty"`
	Reason              string      `json:"reason,omitempty"`
	RefundAmount        money.Money `json:"refund_amount"`
	Status              string      `json:"status"`
	CreatedAt           time.Time   `json:"created_at"`
}

// CartLine is an ephemeral pre-settlement row. Prices are never stored
// here; they are re-read from the catalog at settlement time.
type CartLine struct {
	CustomerID int64     `json:"customer_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   int       `json:"quantity"`
	AddedAt    time.Time `json:"added_at"`
}

// Event is one persisted domain event.
type Event struct {
	ID          string    `json:"id"`
	Topic       string    `json:"topic"`
	AggregateID string    `json:"aggregate_id"`
	Payload     []byte    `json:"payload"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// DailySummary aggregates the sale rows of one calendar day.
type DailySummary struct {
	Day              time.Time   `json:"day"`
	Revenue          money.Money `json:"revenue"`
	TransactionCount int64       `json:"transaction_count"`
	ItemsSold        int64       `json:"items_sold"`
	AverageSale      money.Money `json:"average_sale"`
}

// TierRevenue is one row of the ranged revenue-by-tier report. Sales
// with no customer land in the "walk-in" bucket.
type TierRevenue struct {
	Tier             string      `json:"tier"`
	Revenue          money.Money `json:"revenue"`
	TransactionCount int64       `json:"transaction_count"`
}

// InventoryStatus summarises active catalog stock levels.
type InventoryStatus struct {
	OutOfStock int64       `json:"out_of_stock"`
	LowStock   int64       `json:"low_stock"`
	InStock    int64       `json:"in_stock"`
	TotalValue money.Money `json:"total_value"`
}

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	IncludeInactive bool
	Category        string
	Query           string
}

// CustomerFilter narrows customer listings.
type CustomerFilter struct {
	IncludeInactive bool
	Query           string
}

// Products covers catalog persistence.
type Products interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	LowStockProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	// DeactivateProduct soft-deletes the row and hard-deletes its cart
	// lines; the transaction ledger is untouched.
	DeactivateProduct(ctx context.Context, id int64) error
	RestoreProduct(ctx context.Context, id int64) error
}

// Customers covers loyalty member persistence.
type Customers interface {
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]Customer, error)
	CreateCustomer(ctx context.Context, c Customer) (Customer, error)
	UpdateCustomer(ctx context.Context, c Customer) (Customer, error)
	DeactivateCustomer(ctx context.Context, id int64) error
	RestoreCustomer(ctx context.Context, id int64) error
}

// StaffAccounts covers operator account persistence.
type StaffAccounts interface {
	GetStaff(ctx context.Context, id int64) (Staff, error)
	GetStaffByUsername(ctx context.Context, username string) (Staff, error)
	CreateStaff(ctx context.Context, s Staff) (Staff, error)
}

// Carts covers ephemeral cart persistence.
type Carts interface {
	CartLines(ctx context.Context, customerID int64) ([]CartLine, error)
	// AddCartLine upserts, accumulating quantity on conflict.
	AddCartLine(ctx context.Context, line CartLine) error
	SetCartLineQuantity(ctx context.Context, customerID, productID int64, quantity int) error
	RemoveCartLine(ctx context.Context, customerID, productID int64) error
	ClearCart(ctx context.Context, customerID int64) error
}

// Ledger covers read access to the immutable transaction history.
type Ledger interface {
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	// TransactionItems joins product names; soft-deleted products are
	// still resolved and flagged via ProductDeleted.
	TransactionItems(ctx context.Context, transactionID int64) ([]TransactionItem, error)
	CustomerTransactions(ctx context.Context, customerID int64) ([]Transaction, error)
	ListReturns(ctx context.Context, customerID *int64) ([]Return, error)
}

// Reports covers the read-only aggregation queries.
type Reports interface {
	DailySummary(ctx context.Context, day time.Time) (DailySummary, error)
	SalesByRange(ctx context.Context, from, to time.Time) ([]DailySummary, error)
	RevenueByTier(ctx context.Context, from, to time.Time) ([]TierRevenue, error)
	InventoryStatus(ctx context.Context) (InventoryStatus, error)
}

// EventLog persists domain events.
type EventLog interface {
	InsertEvent(ctx context.Context, e Event) (Event, error)
	ListEvents(ctx context.Context, topic string, limit int) ([]Event, error)
}

// Tx is the unit-of-work handle passed to transactional closures. Row
// reads through *ForUpdate lock the row for the remainder of the
// transaction.
type Tx interface {
	ProductForUpdate(ctx context.Context, id int64) (Product, error)
	CustomerForUpdate(ctx context.Context, id int64) (Customer, error)
	AdjustStock(ctx context.Context, productID int64, delta int) (int, error)
	// AddLoyaltyPoints applies a signed delta and clamps the balance at
	// zero, returning the new balance.
	AddLoyaltyPoints(ctx context.Context, customerID int64, delta int64) (int64, error)
	SetTier(ctx context.Context, customerID int64, tier string) error
	SetPendingDiscount(ctx context.Context, customerID int64, amount money.Money) error
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	InsertTransactionItem(ctx context.Context, item TransactionItem) (TransactionItem, error)
	InsertReturn(ctx context.Context, r Return) (Return, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	TransactionItems(ctx context.Context, transactionID int64) ([]TransactionItem, error)
	// ReturnedQuantities sums the quantities already refunded against
	// the given sale, keyed by product id. Values are positive.
	ReturnedQuantities(ctx context.Context, saleTransactionID int64) (map[int64]int, error)
	ClearCart(ctx context.Context, customerID int64) error
}

// Store is the full persistence surface. Tx runs fn inside one
// all-or-nothing transaction: any error rolls back every mutation made
// through the Tx handle.
type Store interface {
	Products
	Customers
	StaffAccounts
	Carts
	Ledger
	Reports
	EventLog
	Tx(ctx context.Context, fn func(tx Tx) error) error
}
