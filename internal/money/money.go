// Package money provides the single fixed-point currency type used across
// the service. All persisted and compared monetary values flow through
// Money; float64 never touches a price, total, or refund.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal amount of the store currency.
type Money struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Money{}

// New builds a Money from an integer amount of whole currency units.
func New(units int64) Money {
	return Money{d: decimal.NewFromInt(units)}
}

// NewFromCents builds a Money from an integer amount of hundredths.
func NewFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -2)}
}

// FromDecimal wraps a raw decimal value.
func FromDecimal(d decimal.Decimal) Money {
	return Money{d: d}
}

// FromString parses a decimal string such as "19.99".
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return Money{d: d}, nil
}

// MustFromString parses a decimal string and panics on failure. Test helper.
func MustFromString(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{d: m.d.Add(other.d)}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	return Money{d: m.d.Sub(other.d)}
}

// MulQty returns m scaled by an integer quantity.
func (m Money) MulQty(qty int) Money {
	return Money{d: m.d.Mul(decimal.NewFromInt(int64(qty)))}
}

// MulRate multiplies by a fractional rate and rounds half-up to two
// decimal places. Every derived quantity (discount, tax) is rounded at
// the point it is produced, not at display time.
func (m Money) MulRate(rate decimal.Decimal) Money {
	return Money{d: m.d.Mul(rate).Round(2)}
}

// Round returns m rounded half-up to two decimal places.
func (m Money) Round() Money {
	return Money{d: m.d.Round(2)}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{d: m.d.Neg()}
}

// Abs returns the magnitude of m.
func (m Money) Abs() Money {
	return Money{d: m.d.Abs()}
}

// Cmp compares m against other: -1 if less, 0 if equal, 1 if greater.
// Comparison is by numeric value, never by string form.
func (m Money) Cmp(other Money) int {
	return m.d.Cmp(other.d)
}

// Equal reports whether two amounts are numerically equal.
func (m Money) Equal(other Money) bool {
	return m.d.Equal(other.d)
}

// IsZero reports whether m is exactly zero.
func (m Money) IsZero() bool {
	return m.d.IsZero()
}

// IsNegative reports whether m is below zero.
func (m Money) IsNegative() bool {
	return m.d.IsNegative()
}

// IsPositive reports whether m is above zero.
func (m Money) IsPositive() bool {
	return m.d.IsPositive()
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

// IntPartFloor returns the whole-unit floor of m. Used for loyalty point
// accrual where fractional currency never earns a point.
func (m Money) IntPartFloor() int64 {
	return m.d.Floor().IntPart()
}

// String renders the amount with exactly two decimal places.
func (m Money) String() string {
	return m.d.StringFixed(2)
}

// MarshalJSON renders the amount as a quoted fixed-point string so JSON
// consumers never see binary floating point.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted or bare decimal literal.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer so Money can be bound as a SQL parameter.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner for text and numeric column reads.
func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Zero
		return nil
	case string:
		parsed, err := FromString(v)
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case []byte:
		parsed, err := FromString(string(v))
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	case int64:
		*m = New(v)
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}

// Sum adds a sequence of amounts.
func Sum(values ...Money) Money {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
