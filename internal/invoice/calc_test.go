package invoice

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestComputeExampleInvoice(t *testing.T) {
	items := []LineItem{{Quantity: Num(2), UnitPrice: Num(50)}}
	taxes := []TaxRule{{Rate: Num(10)}}
	discount := &Discount{Type: DiscountFixed, Value: Num(5)}

	b := Compute(items, taxes, discount)
	require.True(t, b.Subtotal.Equal(dec(t, "100")), "subtotal %s", b.Subtotal)
	require.True(t, b.Tax.Equal(dec(t, "10")), "tax %s", b.Tax)
	require.True(t, b.Discount.Equal(dec(t, "5")), "discount %s", b.Discount)
	require.True(t, b.Total.Equal(dec(t, "105")), "total %s", b.Total)
	require.Equal(t, 105.0, Total(items, taxes, discount))
}

func TestComputeTotalEqualsSubtotalWithoutAdjustments(t *testing.T) {
	items := []LineItem{
		{Quantity: Num(3), UnitPrice: Num(19.99)},
		{Quantity: Num(1), UnitPrice: Num(0.01)},
		{Quantity: Num(0), UnitPrice: Num(500)},
	}
	b := Compute(items, nil, nil)
	require.True(t, b.Total.Equal(b.Subtotal))
	require.True(t, b.Subtotal.Equal(dec(t, "59.98")), "subtotal %s", b.Subtotal)
}

func TestTaxesDoNotCompound(t *testing.T) {
	items := []LineItem{{Quantity: Num(4), UnitPrice: Num(25)}}
	base := Compute(items, []TaxRule{{Rate: Num(5)}}, nil)
	withExtra := Compute(items, []TaxRule{{Rate: Num(5)}, {Rate: Num(18)}}, nil)

	increase := withExtra.Total.Sub(base.Total)
	require.True(t, increase.Equal(dec(t, "18")), "expected +18 got %s", increase)

	reordered := Compute(items, []TaxRule{{Rate: Num(18)}, {Rate: Num(5)}}, nil)
	require.True(t, reordered.Total.Equal(withExtra.Total))
}

func TestPercentageDiscount(t *testing.T) {
	items := []LineItem{{Quantity: Num(1), UnitPrice: Num(80)}}
	b := Compute(items, []TaxRule{{Rate: Num(10)}}, &Discount{Type: DiscountPercentage, Value: Num(25)})
	require.True(t, b.Discount.Equal(dec(t, "20")), "discount %s", b.Discount)
	require.True(t, b.Total.Equal(dec(t, "68")), "total %s", b.Total)
}

func TestFixedDiscountMayExceedSubtotal(t *testing.T) {
	items := []LineItem{{Quantity: Num(1), UnitPrice: Num(10)}}
	b := Compute(items, nil, &Discount{Type: DiscountFixed, Value: Num(25)})
	require.True(t, b.Total.Equal(dec(t, "-15")), "total %s", b.Total)
}

func TestDiscountIgnoredWhenNotPositive(t *testing.T) {
	items := []LineItem{{Quantity: Num(2), UnitPrice: Num(10)}}
	cases := []*Discount{
		nil,
		{Type: DiscountFixed, Value: Num(0)},
		{Type: DiscountPercentage, Value: Num(-10)},
		{Type: "bogus", Value: Num(10)},
	}
	for _, d := range cases {
		b := Compute(items, nil, d)
		require.True(t, b.Discount.IsZero())
		require.True(t, b.Total.Equal(dec(t, "20")))
	}
}

func TestInvalidFieldsDegradeToZero(t *testing.T) {
	payload := `{
		"items": [
			{"description": "typing", "quantity": "", "unitPrice": 10},
			{"description": "garbage", "quantity": "2x", "unitPrice": "abc"},
			{"description": "missing price", "quantity": 3},
			{"description": "strings", "quantity": "2", "unitPrice": "12.5"},
			{"description": "bool", "quantity": true, "unitPrice": null}
		],
		"taxes": [{"rate": "oops"}, {"rate": "10"}],
		"discount": {"type": "fixed", "value": ""}
	}`
	var req totalsRequest
	require.NoError(t, json.Unmarshal([]byte(payload), &req))

	b := Compute(req.Items, req.Taxes, req.Discount)
	require.True(t, b.Subtotal.Equal(dec(t, "25")), "subtotal %s", b.Subtotal)
	require.True(t, b.Tax.Equal(dec(t, "2.5")), "tax %s", b.Tax)
	require.True(t, b.Total.Equal(dec(t, "27.5")), "total %s", b.Total)
}

func TestNumNonFinite(t *testing.T) {
	require.False(t, Num(math.NaN()).Valid())
	require.False(t, Num(math.Inf(1)).Valid())
	require.True(t, Num(math.Inf(-1)).Decimal().IsZero())
	require.False(t, ParseNumber("NaN").Valid())
	require.True(t, ParseNumber(" 1e2 ").Decimal().Equal(dec(t, "100")))
}

func TestParseNumberRejectsOutOfRangeExponents(t *testing.T) {
	for _, s := range []string{"1e400", "-1e400", "1e20000000", "Infinity", "-inf"} {
		n := ParseNumber(s)
		require.False(t, n.Valid(), s)
		require.True(t, n.Decimal().IsZero(), s)
	}

	tiny := ParseNumber("1e-20000000")
	require.True(t, tiny.Valid())
	require.GreaterOrEqual(t, tiny.Decimal().Exponent(), int32(-400))

	long := ParseNumber("0." + strings.Repeat("3", 1<<20))
	require.True(t, long.Valid())
	require.InDelta(t, 1.0/3, long.Decimal().InexactFloat64(), 1e-12)

	require.True(t, ParseNumber("0.125").Decimal().Equal(dec(t, "0.125")))
	require.Equal(t, int32(-3), ParseNumber("0.125").Decimal().Exponent())
}

func TestComputeStaysCheapOnExtremeInputs(t *testing.T) {
	var n Number
	require.NoError(t, n.UnmarshalJSON([]byte(`"1e20000000"`)))
	require.False(t, n.Valid())

	var tiny Number
	require.NoError(t, tiny.UnmarshalJSON([]byte(`1e-20000000`)))

	start := time.Now()
	b := Compute([]LineItem{
		{Quantity: n, UnitPrice: Num(1)},
		{Quantity: tiny, UnitPrice: Num(3)},
		{Quantity: Num(2), UnitPrice: Num(50)},
	}, []TaxRule{{Rate: Num(10)}}, nil)
	require.Less(t, time.Since(start), time.Second)
	require.InDelta(t, 110.0, b.Total.InexactFloat64(), 1e-9)
}
