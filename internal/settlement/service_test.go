package settlement

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/techhaven/backend-pos/internal/events"
	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/store"
	"github.com/techhaven/backend-pos/internal/store/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	mem := memory.New()
	svc := &Service{
		Store:  mem,
		Events: &events.Bus{Store: mem},
	}
	return svc, mem
}

func seedProduct(t *testing.T, mem *memory.Store, name, price string, stock, threshold int) store.Product {
	t.Helper()
	p, err := mem.CreateProduct(context.Background(), store.Product{
		Name:              name,
		Price:             money.MustFromString(price),
		Stock:             stock,
		LowStockThreshold: threshold,
	})
	require.NoError(t, err)
	return p
}

func seedCustomer(t *testing.T, mem *memory.Store, name, tier string, points int64, pending string) store.Customer {
	t.Helper()
	c, err := mem.CreateCustomer(context.Background(), store.Customer{
		Name:            name,
		Tier:            tier,
		LoyaltyPoints:   points,
		PendingDiscount: money.MustFromString(pending),
	})
	require.NoError(t, err)
	return c
}

func TestSettleSaleWalkIn(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Mouse", "10.00", 5, 1)

	result, err := svc.SettleSale(context.Background(), SaleRequest{
		PaymentMethod: "cash",
		Lines:         []Line{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, "20.00", result.Transaction.Subtotal.String())
	require.Equal(t, "0.00", result.Transaction.Discount.String())
	require.Equal(t, "2.00", result.Transaction.Tax.String())
	require.Equal(t, "22.00", result.Transaction.Total.String())
	require.Nil(t, result.Customer)
	require.Zero(t, result.PointsEarned)

	got, err := mem.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Stock)
}

func TestSettleSaleVIPDiscountAndPoints(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Keyboard", "10.00", 10, 1)
	c := seedCustomer(t, mem, "Ada", store.TierVIP, 1000, "0.00")

	result, err := svc.SettleSale(context.Background(), SaleRequest{
		CustomerID:    &c.ID,
		PaymentMethod: "card",
		Lines:         []Line{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	// 20.00 - 15% = 17.00 taxable, tax 1.70, total 18.70, 1 point.
	require.Equal(t, "3.00", result.Transaction.Discount.String())
	require.Equal(t, "1.70", result.Transaction.Tax.String())
	require.Equal(t, "18.70", result.Transaction.Total.String())
	require.Equal(t, int64(1), result.PointsEarned)
	require.Equal(t, int64(1001), result.Customer.LoyaltyPoints)
}

func TestSettleSaleConsumesPendingDiscountOnce(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Monitor", "100.00", 10, 1)
	c := seedCustomer(t, mem, "Grace", store.TierRegular, 0, "10.00")

	result, err := svc.SettleSale(context.Background(), SaleRequest{
		CustomerID:    &c.ID,
		PaymentMethod: "cash",
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "10.00", result.Transaction.Discount.String())
	require.Equal(t, "9.00", result.Transaction.Tax.String())
	require.Equal(t, "99.00", result.Transaction.Total.String())
	require.True(t, result.Customer.PendingDiscount.IsZero())

	// The banked discount is gone; a second sale pays full price.
	second, err := svc.SettleSale(context.Background(), SaleRequest{
		CustomerID:    &c.ID,
		PaymentMethod: "cash",
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.True(t, second.Transaction.Discount.IsZero())
}

func TestSettleSalePromotesTier(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Laptop", "5000.00", 3, 0)
	c := seedCustomer(t, mem, "Lin", store.TierRegular, 0, "0.00")

	result, err := svc.SettleSale(context.Background(), SaleRequest{
		CustomerID:    &c.ID,
		PaymentMethod: "card",
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	// total 5500.00 -> 550 points -> premium.
	require.Equal(t, int64(550), result.PointsEarned)
	require.Equal(t, store.TierPremium, result.Customer.Tier)
}

func TestSettleSaleClearsCart(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Cable", "5.00", 10, 1)
	c := seedCustomer(t, mem, "Joan", store.TierRegular, 0, "0.00")
	require.NoError(t, mem.AddCartLine(context.Background(), store.CartLine{
		CustomerID: c.ID, ProductID: p.ID, Quantity: 2,
	}))

	_, err := svc.SettleSale(context.Background(), SaleRequest{
		CustomerID:    &c.ID,
		PaymentMethod: "cash",
		Lines:         []Line{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	lines, err := mem.CartLines(context.Background(), c.ID)
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestSettleSaleInsufficientStockLeavesStateUntouched(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Webcam", "30.00", 1, 0)
	c := seedCustomer(t, mem, "Mira", store.TierRegular, 100, "0.00")

	_, err := svc.SettleSale(context.Background(), SaleRequest{
		CustomerID:    &c.ID,
		PaymentMethod: "cash",
		Lines:         []Line{{ProductID: p.ID, Quantity: 2}},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	got, err := mem.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Stock)
	cust, err := mem.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(100), cust.LoyaltyPoints)
}

func TestSettleSaleRejectsUnknownAndInactiveProducts(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Headset", "40.00", 5, 0)
	require.NoError(t, mem.DeactivateProduct(context.Background(), p.ID))

	_, err := svc.SettleSale(context.Background(), SaleRequest{
		PaymentMethod: "cash",
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrProductNotFound)

	_, err = svc.SettleSale(context.Background(), SaleRequest{
		PaymentMethod: "cash",
		Lines:         []Line{{ProductID: 999, Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrProductNotFound)
}

func TestSettleSaleValidation(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.SettleSale(context.Background(), SaleRequest{PaymentMethod: "cash"})
	require.ErrorIs(t, err, ErrEmptySale)
	_, err = svc.SettleSale(context.Background(), SaleRequest{
		PaymentMethod: "cash",
		Lines:         []Line{{ProductID: 1, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Last Unit", "10.00", 1, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SettleSale(context.Background(), SaleRequest{
				PaymentMethod: "cash",
				Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	var ok, oversold int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, store.ErrInsufficientStock)
			oversold++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, oversold)

	got, err := mem.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Stock)
}

func settleSale(t *testing.T, svc *Service, customerID *int64, lines ...Line) SaleResult {
	t.Helper()
	result, err := svc.SettleSale(context.Background(), SaleRequest{
		CustomerID:    customerID,
		PaymentMethod: "cash",
		Lines:         lines,
	})
	require.NoError(t, err)
	return result
}

func TestSettleReturnRefundsProportionalTax(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Tablet", "10.00", 10, 0)
	sale := settleSale(t, svc, nil, Line{ProductID: p.ID, Quantity: 2})

	result, err := svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: sale.Transaction.ID,
		Reason:        "defective",
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "11.00", result.Return.RefundAmount.String())
	require.Equal(t, "completed", result.Return.Status)
	require.Equal(t, "-10.00", result.Refund.Subtotal.String())
	require.Equal(t, "-1.00", result.Refund.Tax.String())
	require.Equal(t, "-11.00", result.Refund.Total.String())

	got, err := mem.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 9, got.Stock)
}

func TestSettleReturnUsesOriginalPrices(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "SSD", "50.00", 10, 0)
	sale := settleSale(t, svc, nil, Line{ProductID: p.ID, Quantity: 1})

	// Catalog price changes after the sale; the refund must not.
	p.Price = money.MustFromString("80.00")
	_, err := mem.UpdateProduct(context.Background(), p)
	require.NoError(t, err)

	result, err := svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: sale.Transaction.ID,
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "55.00", result.Return.RefundAmount.String())
}

func TestSettleReturnEnforcesCumulativeSubset(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "RAM", "20.00", 10, 0)
	sale := settleSale(t, svc, nil, Line{ProductID: p.ID, Quantity: 3})

	_, err := svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: sale.Transaction.ID,
		Lines:         []Line{{ProductID: p.ID, Quantity: 2}},
	})
	require.NoError(t, err)

	// Only one unit remains returnable.
	_, err = svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: sale.Transaction.ID,
		Lines:         []Line{{ProductID: p.ID, Quantity: 2}},
	})
	require.ErrorIs(t, err, store.ErrInvalidReturn)

	_, err = svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: sale.Transaction.ID,
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	got, err := mem.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, 10, got.Stock)
}

func TestSettleReturnRejectsForeignProductAndReturnRows(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "GPU", "500.00", 5, 0)
	other := seedProduct(t, mem, "CPU", "300.00", 5, 0)
	sale := settleSale(t, svc, nil, Line{ProductID: p.ID, Quantity: 1})

	_, err := svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: sale.Transaction.ID,
		Lines:         []Line{{ProductID: other.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrInvalidReturn)

	ret, err := svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: sale.Transaction.ID,
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	// A refund row can never itself be returned.
	_, err = svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: ret.Refund.ID,
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.ErrorIs(t, err, store.ErrInvalidReturn)
	_ = mem
}

func TestSettleReturnDebitsPointsFlooredAtZero(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Printer", "100.00", 5, 0)
	c := seedCustomer(t, mem, "Elena", store.TierRegular, 0, "0.00")

	sale := settleSale(t, svc, &c.ID, Line{ProductID: p.ID, Quantity: 1})
	require.Equal(t, int64(11), sale.PointsEarned)

	// Drain the balance below the upcoming debit.
	_, err := mem.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	err = mem.Tx(context.Background(), func(tx store.Tx) error {
		_, err := tx.AddLoyaltyPoints(context.Background(), c.ID, -10)
		return err
	})
	require.NoError(t, err)

	result, err := svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: sale.Transaction.ID,
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	// Debit of 11 against a balance of 1 floors at zero.
	require.Equal(t, int64(0), result.Customer.LoyaltyPoints)
}

func TestSettleReturnDemotesTier(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Server", "50000.00", 2, 0)
	c := seedCustomer(t, mem, "Noor", store.TierRegular, 0, "0.00")

	sale := settleSale(t, svc, &c.ID, Line{ProductID: p.ID, Quantity: 1})
	cust, err := mem.GetCustomer(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, store.TierVIP, cust.Tier)

	result, err := svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: sale.Transaction.ID,
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), result.Customer.LoyaltyPoints)
	require.Equal(t, store.TierRegular, result.Customer.Tier)
}

func TestReceiptMarksDiscontinuedProducts(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Legacy Dock", "25.00", 5, 0)
	sale := settleSale(t, svc, nil, Line{ProductID: p.ID, Quantity: 1})

	require.NoError(t, mem.DeactivateProduct(context.Background(), p.ID))

	receipt, err := svc.Receipt(context.Background(), sale.Transaction.ID)
	require.NoError(t, err)
	require.Len(t, receipt.Items, 1)
	require.Equal(t, "Legacy Dock (discontinued)", receipt.Items[0].ProductName)
}

func TestReturnHistory(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Charger", "15.00", 10, 0)
	c := seedCustomer(t, mem, "Omar", store.TierRegular, 0, "0.00")
	sale := settleSale(t, svc, &c.ID, Line{ProductID: p.ID, Quantity: 2})

	_, err := svc.SettleReturn(context.Background(), ReturnRequest{
		TransactionID: sale.Transaction.ID,
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	rows, err := svc.ReturnHistory(context.Background(), &c.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, sale.Transaction.ID, rows[0].TransactionID)
	_ = mem
}

func TestSaleEventsEmittedAfterCommit(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Hub", "10.00", 2, 2)

	_, err := svc.SettleSale(context.Background(), SaleRequest{
		PaymentMethod: "cash",
		Lines:         []Line{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	settled, err := mem.ListEvents(context.Background(), events.TopicSaleSettled, 10)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	low, err := mem.ListEvents(context.Background(), events.TopicLowStock, 10)
	require.NoError(t, err)
	require.Len(t, low, 1)
}

func TestFailedSaleEmitsNoEvents(t *testing.T) {
	svc, mem := newService(t)
	p := seedProduct(t, mem, "Lamp", "10.00", 1, 0)

	_, err := svc.SettleSale(context.Background(), SaleRequest{
		PaymentMethod: "cash",
		Lines:         []Line{{ProductID: p.ID, Quantity: 5}},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	all, err := mem.ListEvents(context.Background(), "", 10)
	require.NoError(t, err)
	require.Empty(t, all)
}
