package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRoundTrip_TwoFractionalDigits(t *testing.T) {
	for _, s := range []string{"0", "0.01", "0.1", "1", "4512.5", "450.75", "99999999.99", "-12.34", "123.45"} {
		x := dec(s)
		cents, err := ToMinorUnits(x)
		require.NoError(t, err)
		got := FromMinorUnits(cents)
		assert.Equal(t, x.StringFixed(2), got, "round trip of %s", s)
	}
}

func TestToMinorUnits_RoundsHalfAwayFromZero(t *testing.T) {
	for in, want := range map[string]int64{
		"1.005":  101,
		"-1.005": -101,
		"1.004":  100,
		"450.75": 45075,
	} {
		got, err := ToMinorUnits(dec(in))
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

func TestToMinorUnits_Int64Boundary(t *testing.T) {
	got, err := ToMinorUnits(dec("92233720368547758.07"))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	got, err = ToMinorUnits(dec("-92233720368547758.08"))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), got)

	for _, in := range []string{"92233720368547758.08", "-92233720368547758.09", "1e20"} {
		_, err := ToMinorUnits(dec(in))
		assert.ErrorIs(t, err, ErrOutOfRange, in)
	}
}

func TestFromMinorUnits_FixedTwoDigits(t *testing.T) {
	assert.Equal(t, "0.00", FromMinorUnits(0))
	assert.Equal(t, "0.05", FromMinorUnits(5))
	assert.Equal(t, "4512.50", FromMinorUnits(451250))
	assert.Equal(t, "-0.50", FromMinorUnits(-50))
}

func TestFromMinorUnitsNullable(t *testing.T) {
	assert.Nil(t, FromMinorUnitsNullable(nil))

	cents := int64(1999)
	got := FromMinorUnitsNullable(&cents)
	require.NotNil(t, got)
	assert.Equal(t, "19.99", *got)
}

func TestValueMinorUnits_ExactProduct(t *testing.T) {
	cases := []struct {
		qty   string
		price int64
		want  int64
	}{
		{"10", 45075, 450750},
		{"0.1", 5000000, 500000},
		// 0.12345678 * 3333 = 411.4814...
		{"0.12345678", 3333, 411},
		// Large values stay exact where float64 would drift.
		{"12345678901234567", 1, 12345678901234567},
	}
	for _, c := range cases {
		got, err := ValueMinorUnits(dec(c.qty), c.price)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, c.qty)
	}
}

func TestValueMinorUnits_Overflow(t *testing.T) {
	// 1000 units at 1e15 is 1e20 cents.
	_, err := ValueMinorUnits(dec("1000"), 100_000_000_000_000_000)
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.Equal(t, "1000000000000000000.00", FormatAmount(Value(dec("1000"), 100_000_000_000_000_000)))
}

func TestAddMinorUnits(t *testing.T) {
	sum, err := AddMinorUnits(451000, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(451250), sum)

	sum, err = AddMinorUnits(math.MaxInt64, -1)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64-1), sum)

	_, err = AddMinorUnits(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = AddMinorUnits(math.MinInt64, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCheckQuantityScale(t *testing.T) {
	require.NoError(t, CheckQuantityScale(dec("0.00000001")))
	require.NoError(t, CheckQuantityScale(dec("10")))
	assert.ErrorIs(t, CheckQuantityScale(dec("0.000000001")), ErrQuantityPrecision)
}

func TestFormatQuantity_PreservesPrecision(t *testing.T) {
	assert.Equal(t, "0.12345678", FormatQuantity(dec("0.12345678")))
	assert.Equal(t, "10", FormatQuantity(dec("10.00000000")))
}

func TestDisplayCurrency(t *testing.T) {
	code, err := DisplayCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, "USD", code)

	_, err = DisplayCurrency("XXXX")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}
