package customer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/techhaven/backend-pos/internal/events"
	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/settlement"
	"github.com/techhaven/backend-pos/internal/store"
	"github.com/techhaven/backend-pos/internal/store/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	mem := memory.New()
	return &Service{Store: mem}, mem
}

func TestCreateDefaultsToRegular(t *testing.T) {
	svc, _ := newService(t)
	c, err := svc.Create(context.Background(), Input{Name: "Ada"})
	require.NoError(t, err)
	require.Equal(t, store.TierRegular, c.Tier)
	require.Zero(t, c.LoyaltyPoints)
	require.True(t, c.PendingDiscount.IsZero())
	require.True(t, c.Active)
}

func TestCreateRejectsUnknownTier(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(context.Background(), Input{Name: "Eve", Tier: "platinum"})
	require.ErrorIs(t, err, ErrInvalidTier)
}

func TestUpdatePreservesPointsAndPendingDiscount(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()
	c, err := mem.CreateCustomer(ctx, store.Customer{
		Name:            "Grace",
		Tier:            store.TierPremium,
		LoyaltyPoints:   600,
		PendingDiscount: money.MustFromString("10.00"),
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, c.ID, Input{Name: "Grace H", Tier: store.TierStudent})
	require.NoError(t, err)
	require.Equal(t, "Grace H", updated.Name)
	require.Equal(t, store.TierStudent, updated.Tier)
	require.Equal(t, int64(600), updated.LoyaltyPoints)
	require.Equal(t, "10.00", updated.PendingDiscount.String())
}

func TestDeactivateClearsCartKeepsBalances(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()
	c, err := mem.CreateCustomer(ctx, store.Customer{Name: "Lin", LoyaltyPoints: 250})
	require.NoError(t, err)
	p, err := mem.CreateProduct(ctx, store.Product{Name: "Pen", Price: money.MustFromString("2.00"), Stock: 5})
	require.NoError(t, err)
	require.NoError(t, mem.AddCartLine(ctx, store.CartLine{CustomerID: c.ID, ProductID: p.ID, Quantity: 1}))

	require.NoError(t, svc.Deactivate(ctx, c.ID))

	lines, err := mem.CartLines(ctx, c.ID)
	require.NoError(t, err)
	require.Empty(t, lines)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Equal(t, int64(250), got.LoyaltyPoints)

	require.NoError(t, svc.Restore(ctx, c.ID))
	got, err = svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, got.Active)
	require.Equal(t, int64(250), got.LoyaltyPoints)
}

func TestHistorySurvivesDeactivation(t *testing.T) {
	svc, mem := newService(t)
	ctx := context.Background()
	c, err := mem.CreateCustomer(ctx, store.Customer{Name: "Omar"})
	require.NoError(t, err)
	p, err := mem.CreateProduct(ctx, store.Product{Name: "Desk", Price: money.MustFromString("100.00"), Stock: 5})
	require.NoError(t, err)

	engine := &settlement.Service{Store: mem, Events: &events.Bus{Store: mem}}
	_, err = engine.SettleSale(ctx, settlement.SaleRequest{
		CustomerID:    &c.ID,
		PaymentMethod: "cash",
		Lines:         []settlement.Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, c.ID))

	rows, err := svc.History(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, store.KindSale, rows[0].Kind)
}
