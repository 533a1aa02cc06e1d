// Package pricing computes settlement totals. All arithmetic is exact
// decimal; every derived quantity is rounded half-up to two places at
// the point it is produced.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/techhaven/backend-pos/internal/money"
)

// TaxRate is the flat sales tax applied to the discounted subtotal.
var TaxRate = decimal.New(10, -2)

// Line is one priced cart line entering settlement.
type Line struct {
	ProductID int64
	UnitPrice money.Money
	Quantity  int
}

// Totals is the complete financial breakdown of a settlement.
type Totals struct {
	Subtotal money.Money
	Discount money.Money
	Tax      money.Money
	Total    money.Money
}

// LineTotal returns the extended price of a single line.
func LineTotal(l Line) money.Money {
	return l.UnitPrice.MulQty(l.Quantity)
}

// ComputeSale derives sale totals from priced lines, a tier discount
// rate, and any banked pending discount:
//
//	subtotal = Σ unit_price × quantity
//	discount = subtotal × rate + pending, clamped to subtotal
//	tax      = (subtotal − discount) × TaxRate
//	total    = subtotal − discount + tax
func ComputeSale(lines []Line, rate decimal.Decimal, pending money.Money) Totals {
	subtotal := money.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(LineTotal(l))
	}
	discount := subtotal.MulRate(rate).Add(pending).Round()
	if discount.Cmp(subtotal) > 0 {
		discount = subtotal
	}
	taxable := subtotal.Sub(discount)
	tax := taxable.MulRate(TaxRate)
	total := taxable.Add(tax)
	return Totals{Subtotal: subtotal, Discount: discount, Tax: tax, Total: total}
}

// ComputeRefund derives refund totals for returned lines. Refunds carry
// the proportional tax but never reverse a discount:
//
//	subtotal = Σ unit_price × quantity
//	tax      = subtotal × TaxRate
//	total    = subtotal + tax
func ComputeRefund(lines []Line) Totals {
	subtotal := money.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(LineTotal(l))
	}
	tax := subtotal.MulRate(TaxRate)
	return Totals{
		Subtotal: subtotal,
		Discount: money.Zero,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// PointsEarned converts a settled sale total into loyalty points: one
// point per ten whole currency units, floored.
func PointsEarned(total money.Money) int64 {
	if total.IsNegative() {
		return 0
	}
	return total.IntPartFloor() / 10
}

// PointsDebit converts a refund total into the loyalty points to claw
// back. The caller clamps the resulting balance at zero.
func PointsDebit(refundTotal money.Money) int64 {
	return PointsEarned(refundTotal.Abs())
}
