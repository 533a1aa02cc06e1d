package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/techhaven/backend-pos/internal/store"
	"github.com/techhaven/backend-pos/internal/store/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	mem := memory.New()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Service{Store: mem, Cache: NewCache(client, time.Minute)}, mem
}

func TestCreateAndListFiltersInactive(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	active, err := svc.Create(ctx, ProductInput{Name: "Mouse", Price: "19.99", Stock: 5})
	require.NoError(t, err)
	gone, err := svc.Create(ctx, ProductInput{Name: "Old Mouse", Price: "9.99", Stock: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, gone.ID))

	rows, err := svc.List(ctx, store.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, active.ID, rows[0].ID)

	all, err := svc.List(ctx, store.ProductFilter{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCreateRejectsBadPrice(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), ProductInput{Name: "Bad", Price: "abc"})
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, err = svc.Create(context.Background(), ProductInput{Name: "Bad", Price: "-1.00"})
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestDeactivateCascadesCartAndRestore(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, ProductInput{Name: "Dock", Price: "49.00", Stock: 3})
	require.NoError(t, err)
	c, err := mem.CreateCustomer(ctx, store.Customer{Name: "Ana"})
	require.NoError(t, err)
	require.NoError(t, mem.AddCartLine(ctx, store.CartLine{CustomerID: c.ID, ProductID: p.ID, Quantity: 1}))

	require.NoError(t, svc.Deactivate(ctx, p.ID))

	lines, err := mem.CartLines(ctx, c.ID)
	require.NoError(t, err)
	require.Empty(t, lines)

	// The row survives for history and can be restored.
	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.NotNil(t, got.DeletedAt)

	require.NoError(t, svc.Restore(ctx, p.ID))
	got, err = svc.Get(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Nil(t, got.DeletedAt)
}

func TestListUsesCacheUntilInvalidated(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, ProductInput{Name: "Hub", Price: "15.00", Stock: 2})
	require.NoError(t, err)

	first, err := svc.List(ctx, store.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Write behind the cache's back: the cached listing keeps serving.
	_, err = mem.CreateProduct(ctx, store.Product{Name: "Sneaky", Stock: 1})
	require.NoError(t, err)
	cached, err := svc.List(ctx, store.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, cached, 1)

	// A catalog write invalidates.
	_, err = svc.Create(ctx, ProductInput{Name: "Visible", Price: "5.00", Stock: 1})
	require.NoError(t, err)
	fresh, err := svc.List(ctx, store.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, fresh, 3)
}

func TestLowStock(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, ProductInput{Name: "Plenty", Price: "1.00", Stock: 50, LowStockThreshold: 5})
	require.NoError(t, err)
	low, err := svc.Create(ctx, ProductInput{Name: "Scarce", Price: "1.00", Stock: 2, LowStockThreshold: 5})
	require.NoError(t, err)

	rows, err := svc.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, low.ID, rows[0].ID)
}
