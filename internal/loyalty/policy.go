// Package loyalty holds the tier and point-redemption policy plus the
// services that apply it atomically against the store.
package loyalty

import (
	"github.com/shopspring/decimal"

	"github.com/techhaven/backend-pos/internal/money"
	"github.com/techhaven/backend-pos/internal/store"
)

// Tier thresholds in lifetime-style point balances.
const (
	PremiumThreshold = 500
	VIPThreshold     = 1000
)

// RedemptionUnit is the smallest redeemable block of points.
const RedemptionUnit = 100

// redemptionUnitValue is the currency value of one redemption unit.
var redemptionUnitValue = money.New(10)

var (
	vipRate     = decimal.New(15, -2)
	studentRate = decimal.New(10, -2)
)

// TierForPoints returns the tier a customer's balance entitles them to.
// The student tier is only ever assigned manually: it is preserved
// unless the balance justifies vip, and the policy never hands it out.
func TierForPoints(current string, points int64) string {
	if points >= VIPThreshold {
		return store.TierVIP
	}
	if current == store.TierStudent {
		return store.TierStudent
	}
	if points >= PremiumThreshold {
		return store.TierPremium
	}
	return store.TierRegular
}

// DiscountRateForTier returns the automatic checkout discount for a
// tier. Premium carries no automatic discount; its value is the lower
// vip threshold.
func DiscountRateForTier(tier string) decimal.Decimal {
	switch tier {
	case store.TierVIP:
		return vipRate
	case store.TierStudent:
		return studentRate
	default:
		return decimal.Zero
	}
}

// ValidateRedemption checks a requested redemption against a balance.
func ValidateRedemption(balance, points int64) error {
	if points <= 0 || points%RedemptionUnit != 0 {
		return store.ErrInvalidRedemptionAmount
	}
	if points > balance {
		return store.ErrInsufficientPoints
	}
	return nil
}

// RedemptionValue converts redeemed points into a currency discount:
// each block of 100 points is worth 10.00.
func RedemptionValue(points int64) money.Money {
	return redemptionUnitValue.MulQty(int(points / RedemptionUnit))
}
