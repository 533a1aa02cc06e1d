// Package memory implements store.Store entirely in memory. It backs
// unit tests and local development without Postgres. Transactions run
// against a deep copy of the state which replaces the live state only
// on success, so a failed closure rolls back every mutation. The single
// mutex serializes transactions, mirroring the row-lock serialization
// the Postgres implementation gets from SELECT ... FOR UPDATE.
package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/store"
)

type state struct {
	products     map[int64]store.Product
	customers    map[int64]store.Customer
	staff        map[int64]store.Staff
	transactions map[int64]store.Transaction
	items        []store.TransactionItem
	returns      []store.Return
	carts        map[int64]map[int64]store.CartLine
	events       []store.Event

	productSeq     int64
	customerSeq    int64
	staffSeq       int64
	transactionSeq int64
	itemSeq        int64
	returnSeq      int64
}

func newState() *state {
	return &state{
		products:     make(map[int64]store.Product),
		customers:    make(map[int64]store.Customer),
		staff:        make(map[int64]store.Staff),
		transactions: make(map[int64]store.Transaction),
		carts:        make(map[int64]map[int64]store.CartLine),
	}
}

func (s *state) clone() *state {
	out := &state{
		products:       make(map[int64]store.Product, len(s.products)),
		customers:      make(map[int64]store.Customer, len(s.customers)),
		staff:          make(map[int64]store.Staff, len(s.staff)),
		transactions:   make(map[int64]store.Transaction, len(s.transactions)),
		items:          append([]store.TransactionItem(nil), s.items...),
		returns:        append([]store.Return(nil), s.returns...),
		carts:          make(map[int64]map[int64]store.CartLine, len(s.carts)),
		events:         append([]store.Event(nil), s.events...),
		productSeq:     s.productSeq,
		customerSeq:    s.customerSeq,
		staffSeq:       s.staffSeq,
		transactionSeq: s.transactionSeq,
		itemSeq:        s.itemSeq,
		returnSeq:      s.returnSeq,
	}
	for id, p := range s.products {
		out.products[id] = p
	}
	for id, c := range s.customers {
		out.customers[id] = c
	}
	for id, st := range s.staff {
		out.staff[id] = st
	}
	for id, t := range s.transactions {
		out.transactions[id] = t
	}
	for cid, lines := range s.carts {
		inner := make(map[int64]store.CartLine, len(lines))
		for pid, line := range lines {
			inner[pid] = line
		}
		out.carts[cid] = inner
	}
	return out
}

// Store is the in-memory store.Store implementation.
type Store struct {
	mu    chanMutex
	state *state
}

// chanMutex is a context-aware mutex.
type chanMutex chan struct{}

func (m chanMutex) lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m chanMutex) unlock() { <-m }

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{mu: make(chanMutex, 1), state: newState()}
}

var _ store.Store = (*Store)(nil)

func (s *Store) withLock(ctx context.Context, fn func(st *state) error) error {
	if err := s.mu.lock(ctx); err != nil {
		return err
	}
	defer s.mu.unlock()
	return fn(s.state)
}

// Tx runs fn against a deep copy of the state and publishes the copy
// only if fn succeeds.
func (s *Store) Tx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := s.mu.lock(ctx); err != nil {
		return err
	}
	defer s.mu.unlock()
	working := s.state.clone()
	if err := fn(&memTx{st: working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// --- products ---

func (s *Store) GetProduct(ctx context.Context, id int64) (store.Product, error) {
	var out store.Product
	err := s.withLock(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return store.ErrProductNotFound
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]store.Product, error) {
	var out []store.Product
	err := s.withLock(ctx, func(st *state) error {
		for _, p := range st.products {
			if !filter.IncludeInactive && !p.Active {
				continue
			}
			if filter.Category != "" && !strings.EqualFold(filter.Category, p.Category) {
				continue
			}
			if filter.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Query)) {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) LowStockProducts(ctx context.Context) ([]store.Product, error) {
	var out []store.Product
	err := s.withLock(ctx, func(st *state) error {
		for _, p := range st.products {
			if p.Active && p.Stock <= p.LowStockThreshold {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out, err
}

func (s *Store) CreateProduct(ctx context.Context, p store.Product) (store.Product, error) {
	err := s.withLock(ctx, func(st *state) error {
		st.productSeq++
		p.ID = st.productSeq
		p.Active = true
		p.DeletedAt = nil
		now := time.Now().UTC()
		p.CreatedAt = now
		p.UpdatedAt = now
		st.products[p.ID] = p
		return nil
	})
	return p, err
}

func (s *Store) UpdateProduct(ctx context.Context, p store.Product) (store.Product, error) {
	var out store.Product
	err := s.withLock(ctx, func(st *state) error {
		existing, ok := st.products[p.ID]
		if !ok {
			return store.ErrProductNotFound
		}
		existing.Name = p.Name
		existing.Description = p.Description
		existing.Category = p.Category
		existing.Price = p.Price
		existing.Stock = p.Stock
		existing.LowStockThreshold = p.LowStockThreshold
		existing.UpdatedAt = time.Now().UTC()
		st.products[p.ID] = existing
		out = existing
		return nil
	})
	return out, err
}

func (s *Store) DeactivateProduct(ctx context.Context, id int64) error {
	return s.withLock(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return store.ErrProductNotFound
		}
		now := time.Now().UTC()
		p.Active = false
		p.DeletedAt = &now
		p.UpdatedAt = now
		st.products[id] = p
		for cid, lines := range st.carts {
			delete(lines, id)
			if len(lines) == 0 {
				delete(st.carts, cid)
			}
		}
		return nil
	})
}

func (s *Store) RestoreProduct(ctx context.Context, id int64) error {
	return s.withLock(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return store.ErrProductNotFound
		}
		p.Active = true
		p.DeletedAt = nil
		p.UpdatedAt = time.Now().UTC()
		st.products[id] = p
		return nil
	})
}

// --- customers ---

func (s *Store) GetCustomer(ctx context.Context, id int64) (store.Customer, error) {
	var out store.Customer
	err := s.withLock(ctx, func(st *state) error {
		c, ok := st.customers[id]
		if !ok {
			return store.ErrCustomerNotFound
		}
		out = c
		return nil
	})
	return out, err
}

func (s *Store) ListCustomers(ctx context.Context, filter store.CustomerFilter) ([]store.Customer, error) {
	var out []store.Customer
	err := s.withLock(ctx, func(st *state) error {
		for _, c := range st.customers {
			if !filter.IncludeInactive && !c.Active {
				continue
			}
			if filter.Query != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(filter.Query)) {
				continue
			}
			out = append(out, c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (s *Store) CreateCustomer(ctx context.Context, c store.Customer) (store.Customer, error) {
	err := s.withLock(ctx, func(st *state) error {
		st.customerSeq++
		c.ID = st.customerSeq
		if c.Tier == "" {
			c.Tier = store.TierRegular
		}
		c.PendingDiscount = c.PendingDiscount.Round()
		c.Active = true
		c.DeletedAt = nil
		c.CreatedAt = time.Now().UTC()
		st.customers[c.ID] = c
		return nil
	})
	return c, err
}

func (s *Store) UpdateCustomer(ctx context.Context, c store.Customer) (store.Customer, error) {
	var out store.Customer
	err := s.withLock(ctx, func(st *state) error {
		existing, ok := st.customers[c.ID]
		if !ok {
			return store.ErrCustomerNotFound
		}
		existing.Name = c.Name
		existing.Email = c.Email
		existing.Phone = c.Phone
		existing.Tier = c.Tier
		st.customers[c.ID] = existing
		out = existing
		return nil
	})
	return out, err
}

func (s *Store) DeactivateCustomer(ctx context.Context, id int64) error {
	return s.withLock(ctx, func(st *state) error {
		c, ok := st.customers[id]
		if !ok {
			return store.ErrCustomerNotFound
		}
		now := time.Now().UTC()
		c.Active = false
		c.DeletedAt = &now
		st.customers[id] = c
		delete(st.carts, id)
		return nil
	})
}

func (s *Store) RestoreCustomer(ctx context.Context, id int64) error {
	return s.withLock(ctx, func(st *state) error {
		c, ok := st.customers[id]
		if !ok {
			return store.ErrCustomerNotFound
		}
		c.Active = true
		c.DeletedAt = nil
		st.customers[id] = c
		return nil
	})
}

// --- staff ---

func (s *Store) GetStaff(ctx context.Context, id int64) (store.Staff, error) {
	var out store.Staff
	err := s.withLock(ctx, func(st *state) error {
		acct, ok := st.staff[id]
		if !ok {
			return store.ErrStaffNotFound
		}
		out = acct
		return nil
	})
	return out, err
}

func (s *Store) GetStaffByUsername(ctx context.Context, username string) (store.Staff, error) {
	var out store.Staff
	err := s.withLock(ctx, func(st *state) error {
		for _, acct := range st.staff {
			if strings.EqualFold(acct.Username, username) {
				out = acct
				return nil
			}
		}
		return store.ErrStaffNotFound
	})
	return out, err
}

func (s *Store) CreateStaff(ctx context.Context, acct store.Staff) (store.Staff, error) {
	err := s.withLock(ctx, func(st *state) error {
		for _, existing := range st.staff {
			if strings.EqualFold(existing.Username, acct.Username) {
				return store.ErrDuplicate
			}
		}
		st.staffSeq++
		acct.ID = st.staffSeq
		acct.CreatedAt = time.Now().UTC()
		st.staff[acct.ID] = acct
		return nil
	})
	return acct, err
}

// --- carts ---

func (s *Store) CartLines(ctx context.Context, customerID int64) ([]store.CartLine, error) {
	var out []store.CartLine
	err := s.withLock(ctx, func(st *state) error {
		for _, line := range st.carts[customerID] {
			out = append(out, line)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, err
}

func (s *Store) AddCartLine(ctx context.Context, line store.CartLine) error {
	return s.withLock(ctx, func(st *state) error {
		lines, ok := st.carts[line.CustomerID]
		if !ok {
			lines = make(map[int64]store.CartLine)
			st.carts[line.CustomerID] = lines
		}
		if existing, ok := lines[line.ProductID]; ok {
			existing.Quantity += line.Quantity
			lines[line.ProductID] = existing
			return nil
		}
		line.AddedAt = time.Now().UTC()
		lines[line.ProductID] = line
		return nil
	})
}

func (s *Store) SetCartLineQuantity(ctx context.Context, customerID, productID int64, quantity int) error {
	return s.withLock(ctx, func(st *state) error {
		lines := st.carts[customerID]
		line, ok := lines[productID]
		if !ok {
			return store.ErrNotFound
		}
		if quantity <= 0 {
			delete(lines, productID)
			return nil
		}
		line.Quantity = quantity
		lines[productID] = line
		return nil
	})
}

func (s *Store) RemoveCartLine(ctx context.Context, customerID, productID int64) error {
	return s.withLock(ctx, func(st *state) error {
		lines := st.carts[customerID]
		if _, ok := lines[productID]; !ok {
			return store.ErrNotFound
		}
		delete(lines, productID)
		return nil
	})
}

func (s *Store) ClearCart(ctx context.Context, customerID int64) error {
	return s.withLock(ctx, func(st *state) error {
		delete(st.carts, customerID)
		return nil
	})
}

// --- ledger reads ---

func (s *Store) GetTransaction(ctx context.Context, id int64) (store.Transaction, error) {
	var out store.Transaction
	err := s.withLock(ctx, func(st *state) error {
		t, ok := st.transactions[id]
		if !ok {
			return store.ErrTransactionNotFound
		}
		out = t
		return nil
	})
	return out, err
}

func (s *Store) TransactionItems(ctx context.Context, transactionID int64) ([]store.TransactionItem, error) {
	var out []store.TransactionItem
	err := s.withLock(ctx, func(st *state) error {
		if _, ok := st.transactions[transactionID]; !ok {
			return store.ErrTransactionNotFound
		}
		out = itemsWithProducts(st, transactionID)
		return nil
	})
	return out, err
}

func (s *Store) CustomerTransactions(ctx context.Context, customerID int64) ([]store.Transaction, error) {
	var out []store.Transaction
	err := s.withLock(ctx, func(st *state) error {
		for _, t := range st.transactions {
			if t.CustomerID != nil && *t.CustomerID == customerID {
				out = append(out, t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, err
}

func (s *Store) ListReturns(ctx context.Context, customerID *int64) ([]store.Return, error) {
	var out []store.Return
	err := s.withLock(ctx, func(st *state) error {
		for _, r := range st.returns {
			if customerID != nil && (r.CustomerID == nil || *r.CustomerID != *customerID) {
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

// --- reports ---

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func summarize(st *state, match func(store.Transaction) bool) store.DailySummary {
	var summary store.DailySummary
	revenue := money.Zero
	for id, t := range st.transactions {
		if t.Kind != store.KindSale || !match(t) {
			continue
		}
		revenue = revenue.Add(t.Total)
		summary.TransactionCount++
		for _, item := range st.items {
			if item.TransactionID == id && item.Quantity > 0 {
				summary.ItemsSold += int64(item.Quantity)
			}
		}
	}
	summary.Revenue = revenue
	if summary.TransactionCount > 0 {
		summary.AverageSale = money.FromDecimal(
			revenue.Decimal().Div(decimalFromInt(summary.TransactionCount)),
		).Round()
	} else {
		summary.AverageSale = money.Zero
	}
	return summary
}

func (s *Store) DailySummary(ctx context.Context, day time.Time) (store.DailySummary, error) {
	var out store.DailySummary
	err := s.withLock(ctx, func(st *state) error {
		out = summarize(st, func(t store.Transaction) bool { return sameDay(t.Date, day) })
		out.Day = day.UTC().Truncate(24 * time.Hour)
		return nil
	})
	return out, err
}

func (s *Store) SalesByRange(ctx context.Context, from, to time.Time) ([]store.DailySummary, error) {
	var out []store.DailySummary
	err := s.withLock(ctx, func(st *state) error {
		days := make(map[time.Time]bool)
		for _, t := range st.transactions {
			if t.Kind != store.KindSale || t.Date.Before(from) || t.Date.After(to) {
				continue
			}
			y, m, d := t.Date.UTC().Date()
			days[time.Date(y, m, d, 0, 0, 0, 0, time.UTC)] = true
		}
		for day := range days {
			summary := summarize(st, func(t store.Transaction) bool { return sameDay(t.Date, day) })
			summary.Day = day
			out = append(out, summary)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, err
}

func (s *Store) RevenueByTier(ctx context.Context, from, to time.Time) ([]store.TierRevenue, error) {
	var out []store.TierRevenue
	err := s.withLock(ctx, func(st *state) error {
		byTier := make(map[string]*store.TierRevenue)
		for _, t := range st.transactions {
			if t.Kind != store.KindSale || t.Date.Before(from) || t.Date.After(to) {
				continue
			}
			tier := "walk-in"
			if t.CustomerID != nil {
				if c, ok := st.customers[*t.CustomerID]; ok {
					tier = c.Tier
				}
			}
			row, ok := byTier[tier]
			if !ok {
				row = &store.TierRevenue{Tier: tier, Revenue: money.Zero}
				byTier[tier] = row
			}
			row.Revenue = row.Revenue.Add(t.Total)
			row.TransactionCount++
		}
		for _, row := range byTier {
			out = append(out, *row)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out, err
}

func (s *Store) InventoryStatus(ctx context.Context) (store.InventoryStatus, error) {
	out := store.InventoryStatus{TotalValue: money.Zero}
	err := s.withLock(ctx, func(st *state) error {
		for _, p := range st.products {
			if !p.Active {
				continue
			}
			switch {
			case p.Stock == 0:
				out.OutOfStock++
			case p.Stock <= p.LowStockThreshold:
				out.LowStock++
			default:
				out.InStock++
			}
			out.TotalValue = out.TotalValue.Add(p.Price.MulQty(p.Stock))
		}
		return nil
	})
	return out, err
}

// --- events ---

func (s *Store) InsertEvent(ctx context.Context, e store.Event) (store.Event, error) {
	err := s.withLock(ctx, func(st *state) error {
		if e.OccurredAt.IsZero() {
			e.OccurredAt = time.Now().UTC()
		}
		st.events = append(st.events, e)
		return nil
	})
	return e, err
}

func (s *Store) ListEvents(ctx context.Context, topic string, limit int) ([]store.Event, error) {
	var out []store.Event
	err := s.withLock(ctx, func(st *state) error {
		for i := len(st.events) - 1; i >= 0; i-- {
			if topic != "" && st.events[i].Topic != topic {
				continue
			}
			out = append(out, st.events[i])
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}
