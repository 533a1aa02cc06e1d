package loyalty

import (
	"testing"

	"github.com/techhaven/backend-pos/internal/store"
)

func TestTierForPoints(t *testing.T) {
	cases := []struct {
		current string
		points  int64
		want    string
	}{
		{store.TierRegular, 0, store.TierRegular},
		{store.TierRegular, 499, store.TierRegular},
		{store.TierRegular, 500, store.TierPremium},
		{store.TierRegular, 999, store.TierPremium},
		{store.TierRegular, 1000, store.TierVIP},
		{store.TierPremium, 100, store.TierRegular},
		{store.TierVIP, 400, store.TierRegular},
		{store.TierStudent, 0, store.TierStudent},
		{store.TierStudent, 700, store.TierStudent},
		{store.TierStudent, 1200, store.TierVIP},
	}
	for _, tc := range cases {
		if got := TierForPoints(tc.current, tc.points); got != tc.want {
			t.Fatalf("TierForPoints(%s, %d) = %s, want %s", tc.current, tc.points, got, tc.want)
		}
	}
}

func TestTierForPointsIsIdempotent(t *testing.T) {
	for _, tier := range []string{store.TierRegular, store.TierPremium, store.TierVIP, store.TierStudent} {
		for _, points := range []int64{0, 499, 500, 999, 1000, 5000} {
			once := TierForPoints(tier, points)
			twice := TierForPoints(once, points)
			if once != twice {
				t.Fatalf("reapplying policy changed tier: %s -> %s -> %s at %d points", tier, once, twice, points)
			}
		}
	}
}

func TestDiscountRateForTier(t *testing.T) {
	if got := DiscountRateForTier(store.TierVIP); got.String() != "0.15" {
		t.Fatalf("vip rate = %s, want 0.15", got)
	}
	if got := DiscountRateForTier(store.TierStudent); got.String() != "0.1" {
		t.Fatalf("student rate = %s, want 0.1", got)
	}
	if !DiscountRateForTier(store.TierRegular).IsZero() {
		t.Fatal("regular tier must carry no automatic discount")
	}
	if !DiscountRateForTier(store.TierPremium).IsZero() {
		t.Fatal("premium tier must carry no automatic discount")
	}
}

func TestValidateRedemption(t *testing.T) {
	if err := ValidateRedemption(500, 200); err != nil {
		t.Fatalf("valid redemption rejected: %v", err)
	}
	if err := ValidateRedemption(500, 0); err != store.ErrInvalidRedemptionAmount {
		t.Fatalf("expected ErrInvalidRedemptionAmount, got %v", err)
	}
	if err := ValidateRedemption(500, -100); err != store.ErrInvalidRedemptionAmount {
		t.Fatalf("expected ErrInvalidRedemptionAmount, got %v", err)
	}
	if err := ValidateRedemption(500, 150); err != store.ErrInvalidRedemptionAmount {
		t.Fatalf("expected ErrInvalidRedemptionAmount, got %v", err)
	}
	if err := ValidateRedemption(100, 200); err != store.ErrInsufficientPoints {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
}

func TestRedemptionValue(t *testing.T) {
	if got := RedemptionValue(100); got.String() != "10.00" {
		t.Fatalf("RedemptionValue(100) = %s, want 10.00", got)
	}
	if got := RedemptionValue(300); got.String() != "30.00" {
		t.Fatalf("RedemptionValue(300) = %s, want 30.00", got)
	}
}
