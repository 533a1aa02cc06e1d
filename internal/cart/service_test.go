package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/store"
	"github.com/techhaven/backend-pos/internal/store/memory"
)

func setup(t *testing.T) (*Service, *memory.Store, store.Customer, store.Product) {
	t.Helper()
	mem := memory.New()
	svc := &Service{Store: mem}
	c, err := mem.CreateCustomer(context.Background(), store.Customer{Name: "Ada"})
	require.NoError(t, err)
	p, err := mem.CreateProduct(context.Background(), store.Product{
		Name:  "Mouse",
		Price: money.MustFromString("10.00"),
		Stock: 5,
	})
	require.NoError(t, err)
	return svc, mem, c, p
}

func TestAddAccumulatesQuantity(t *testing.T) {
	svc, _, c, p := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, c.ID, p.ID, 1))
	require.NoError(t, svc.Add(ctx, c.ID, p.ID, 2))

	view, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	require.Equal(t, 3, view.Lines[0].Quantity)
	require.Equal(t, "30.00", view.Subtotal.String())
}

func TestAddValidation(t *testing.T) {
	svc, mem, c, p := setup(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.Add(ctx, c.ID, p.ID, 0), ErrInvalidQuantity)
	require.ErrorIs(t, svc.Add(ctx, 999, p.ID, 1), store.ErrCustomerNotFound)
	require.ErrorIs(t, svc.Add(ctx, c.ID, 999, 1), store.ErrProductNotFound)

	require.NoError(t, mem.DeactivateProduct(ctx, p.ID))
	require.ErrorIs(t, svc.Add(ctx, c.ID, p.ID, 1), store.ErrProductNotFound)
}

func TestViewPricesAreLive(t *testing.T) {
	svc, mem, c, p := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, c.ID, p.ID, 2))

	p.Price = money.MustFromString("12.50")
	_, err := mem.UpdateProduct(ctx, p)
	require.NoError(t, err)

	view, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, "12.50", view.Lines[0].UnitPrice.String())
	require.Equal(t, "25.00", view.Subtotal.String())
}

func TestSetQuantityAndRemove(t *testing.T) {
	svc, _, c, p := setup(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, c.ID, p.ID, 2))
	require.NoError(t, svc.SetQuantity(ctx, c.ID, p.ID, 5))

	view, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 5, view.Lines[0].Quantity)

	// Zero removes the line.
	require.NoError(t, svc.SetQuantity(ctx, c.ID, p.ID, 0))
	view, err = svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Empty(t, view.Lines)

	require.ErrorIs(t, svc.Remove(ctx, c.ID, p.ID), store.ErrNotFound)
}

func TestEstimateUsesTierAndPendingDiscount(t *testing.T) {
	svc, mem, _, p := setup(t)
	ctx := context.Background()

	vip, err := mem.CreateCustomer(ctx, store.Customer{
		Name:            "Vera",
		Tier:            store.TierVIP,
		PendingDiscount: money.MustFromString("1.00"),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Add(ctx, vip.ID, p.ID, 2))

	totals, err := svc.Estimate(ctx, vip.ID)
	require.NoError(t, err)
	// 20.00 - (15% + 1.00) = 16.00 taxable, tax 1.60, total 17.60.
	require.Equal(t, "4.00", totals.Discount.String())
	require.Equal(t, "1.60", totals.Tax.String())
	require.Equal(t, "17.60", totals.Total.String())
}
