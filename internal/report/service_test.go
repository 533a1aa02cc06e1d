package report

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/techhaven/backend-pos/internal/events"
	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/settlement"
	"github.com/techhaven/backend-pos/internal/store"
	"github.com/techhaven/backend-pos/internal/store/memory"
)

func seed(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	mem := memory.New()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := &Service{Store: mem, Redis: client, TTL: time.Minute}

	ctx := context.Background()
	p, err := mem.CreateProduct(ctx, store.Product{
		Name: "Laptop", Price: money.MustFromString("1000.00"), Stock: 10, LowStockThreshold: 2,
	})
	require.NoError(t, err)
	vip, err := mem.CreateCustomer(ctx, store.Customer{Name: "Vera", Tier: store.TierVIP})
	require.NoError(t, err)

	engine := &settlement.Service{Store: mem, Events: &events.Bus{Store: mem}}
	// One vip sale: 2000 - 300 + 170 = 1870.00.
	_, err = engine.SettleSale(ctx, settlement.SaleRequest{
		CustomerID:    &vip.ID,
		PaymentMethod: "card",
		Lines:         []settlement.Line{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	// One walk-in sale: 1000 + 100 = 1100.00.
	_, err = engine.SettleSale(ctx, settlement.SaleRequest{
		PaymentMethod: "cash",
		Lines:         []settlement.Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	return svc, mem
}

func TestDailySummary(t *testing.T) {
	svc, _ := seed(t)
	summary, err := svc.Daily(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.TransactionCount)
	require.Equal(t, int64(3), summary.ItemsSold)
	require.Equal(t, "2970.00", summary.Revenue.String())
	require.Equal(t, "1485.00", summary.AverageSale.String())
}

func TestDailySummaryIsCached(t *testing.T) {
	svc, mem := seed(t)
	ctx := context.Background()
	day := time.Now().UTC()

	first, err := svc.Daily(ctx, day)
	require.NoError(t, err)

	// Settle another sale behind the cache; the snapshot keeps serving.
	p, err := mem.CreateProduct(ctx, store.Product{Name: "Extra", Price: money.MustFromString("10.00"), Stock: 5})
	require.NoError(t, err)
	engine := &settlement.Service{Store: mem, Events: &events.Bus{Store: mem}}
	_, err = engine.SettleSale(ctx, settlement.SaleRequest{
		PaymentMethod: "cash",
		Lines:         []settlement.Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	second, err := svc.Daily(ctx, day)
	require.NoError(t, err)
	require.Equal(t, first.TransactionCount, second.TransactionCount)
	require.Equal(t, first.Revenue.String(), second.Revenue.String())
}

func TestByTierBucketsWalkIns(t *testing.T) {
	svc, _ := seed(t)
	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)

	rows, err := svc.ByTier(context.Background(), from, to)
	require.NoError(t, err)

	byTier := make(map[string]store.TierRevenue, len(rows))
	for _, row := range rows {
		byTier[row.Tier] = row
	}
	require.Equal(t, "1870.00", byTier[store.TierVIP].Revenue.String())
	require.Equal(t, "1100.00", byTier["walk-in"].Revenue.String())
}

func TestInventoryStatus(t *testing.T) {
	svc, mem := seed(t)
	ctx := context.Background()

	_, err := mem.CreateProduct(ctx, store.Product{Name: "Gone", Price: money.MustFromString("5.00"), Stock: 0})
	require.NoError(t, err)

	status, err := svc.Inventory(ctx)
	require.NoError(t, err)
	// Laptop is at 7 after the seed sales, threshold 2 -> in stock.
	require.Equal(t, int64(1), status.InStock)
	require.Equal(t, int64(1), status.OutOfStock)
	require.Equal(t, "7000.00", status.TotalValue.String())
}

func TestWriteRangeCSV(t *testing.T) {
	svc, _ := seed(t)
	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteRangeCSV(context.Background(), &buf, from, to))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "date,revenue,transactions,items_sold,average_sale", lines[0])
	require.Contains(t, lines[1], "2970.00")
}

func TestWriteTierCSV(t *testing.T) {
	svc, _ := seed(t)
	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteTierCSV(context.Background(), &buf, from, to))
	require.Contains(t, buf.String(), "tier,revenue,transactions")
	require.Contains(t, buf.String(), "walk-in,1100.00,1")
}
