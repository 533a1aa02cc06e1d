package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestArithmeticIsExact(t *testing.T) {
	// 0.1 + 0.2 must be exactly 0.3, not 0.30000000000000004.
	a := MustFromString("0.1")
	b := MustFromString("0.2")
	require.True(t, a.Add(b).Equal(MustFromString("0.3")))

	price := MustFromString("19.99")
	require.Equal(t, "59.97", price.MulQty(3).String())
}

func TestMulRateRoundsHalfUp(t *testing.T) {
	// 10.05 * 0.5 = 5.025 -> 5.03 under half-up rounding.
	half := decimal.NewFromFloat(0.5)
	require.Equal(t, "5.03", MustFromString("10.05").MulRate(half).String())

	// 18.70 * 0.10 = 1.87 exactly, no rounding drift.
	tax := decimal.NewFromFloat(0.10)
	require.Equal(t, "1.87", MustFromString("18.70").MulRate(tax).String())
}

func TestComparisonIsNumeric(t *testing.T) {
	require.True(t, MustFromString("10").Equal(MustFromString("10.00")))
	require.Equal(t, 0, MustFromString("10").Cmp(MustFromString("10.0")))
	require.Equal(t, -1, MustFromString("9.99").Cmp(MustFromString("10")))
	require.True(t, MustFromString("-0.01").IsNegative())
	require.False(t, Zero.IsNegative())
}

func TestIntPartFloor(t *testing.T) {
	require.Equal(t, int64(22), MustFromString("22.00").IntPartFloor())
	require.Equal(t, int64(1), MustFromString("1.87").IntPartFloor())
	require.Equal(t, int64(0), MustFromString("0.99").IntPartFloor())
}

func TestJSONRoundTrip(t *testing.T) {
	out, err := json.Marshal(MustFromString("1234.5"))
	require.NoError(t, err)
	require.Equal(t, `"1234.50"`, string(out))

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`"19.99"`), &m))
	require.Equal(t, "19.99", m.String())
	require.NoError(t, json.Unmarshal([]byte(`7.5`), &m))
	require.Equal(t, "7.50", m.String())
}

func TestScan(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan("42.10"))
	require.Equal(t, "42.10", m.String())
	require.NoError(t, m.Scan([]byte("-3.05")))
	require.Equal(t, "-3.05", m.String())
	require.NoError(t, m.Scan(nil))
	require.True(t, m.IsZero())
	require.Error(t, m.Scan(3.14))
}

func TestSum(t *testing.T) {
	total := Sum(MustFromString("1.10"), MustFromString("2.20"), MustFromString("3.30"))
	require.Equal(t, "6.60", total.String())
	require.True(t, Sum().IsZero())
}
