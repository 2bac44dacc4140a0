package pricing

import (
	"testing"

	"checkout-engine/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestSplitGrossScenario(t *testing.T) {
	net, vat := SplitGross(dec("116.00"), dec("0.16"))
	assertDec(t, "100", Round(net))
	assertDec(t, "16", Round(vat))

	var totals Totals
	totals.AddLine(dec("116.00"), net, vat, 2)
	assertDec(t, "232", totals.Gross)

	f := totals.Final(decimal.Zero)
	assertDec(t, "232.00", f.Gross)
	assertDec(t, "200.00", f.Net)
	assertDec(t, "32.00", f.Vat)
	assertDec(t, "0", f.Discount)
}

func TestFinalSpreadsDiscountProportionally(t *testing.T) {
	net, vat := SplitGross(dec("1000.00"), dec("0.16"))
	var totals Totals
	totals.AddLine(dec("1000.00"), net, vat, 1)

	f := totals.Final(dec("80"))
	assertDec(t, "920.00", f.Gross)
	assertDec(t, "80.00", f.Discount)
	// 862.0689... * 0.92
	assertDec(t, "793.10", f.Net)
	assertDec(t, "126.90", f.Vat)
	assertDec(t, f.Gross.String(), f.Net.Add(f.Vat))
}

func TestFinalIdentityHoldsAcrossAwkwardPrices(t *testing.T) {
	rate := dec("0.16")
	prices := []string{"0.99", "13.37", "7.01", "250.50", "19.99"}

	var totals Totals
	for i, p := range prices {
		net, vat := SplitGross(dec(p), rate)
		totals.AddLine(dec(p), net, vat, i+1)
	}

	for _, d := range []string{"0", "0.01", "3.33", "100", "99999"} {
		f := totals.Final(dec(d))
		assert.True(t, f.Net.Add(f.Vat).Equal(f.Gross), "discount %s", d)
		assert.True(t, f.Gross.Add(f.Discount).Sub(Round(totals.Gross)).Abs().LessThanOrEqual(dec("0.01")), "discount %s", d)
		assert.False(t, f.Gross.IsNegative())
	}
}

func TestFinalClampsDiscountToGross(t *testing.T) {
	totals := Totals{Gross: dec("50"), Net: dec("43.10"), Vat: dec("6.90")}
	f := totals.Final(dec("75"))
	assertDec(t, "50", f.Discount)
	assertDec(t, "0", f.Gross)
	assertDec(t, "0", f.Net)
	assertDec(t, "0", f.Vat)
}

func TestFinalOnZeroGross(t *testing.T) {
	f := Totals{}.Final(dec("10"))
	assertDec(t, "0", f.Gross)
	assertDec(t, "0", f.Discount)
}

func TestCouponDiscount(t *testing.T) {
	cap80 := dec("80")
	tests := []struct {
		name  string
		kind  model.DiscountType
		value string
		max   *decimal.Decimal
		cart  string
		want  string
	}{
		{"percent capped by max", model.DiscountPercent, "10", &cap80, "1000.00", "80.00"},
		{"percent under max", model.DiscountPercent, "10", &cap80, "500.00", "50.00"},
		{"percent uncapped", model.DiscountPercent, "12.5", nil, "99.99", "12.50"},
		{"percent over cart", model.DiscountPercent, "150", nil, "40.00", "40.00"},
		{"fixed", model.DiscountFixed, "25", nil, "100.00", "25.00"},
		{"fixed over cart", model.DiscountFixed, "250", nil, "100.00", "100.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CouponDiscount(tt.kind, dec(tt.value), tt.max, dec(tt.cart))
			require.NoError(t, err)
			assertDec(t, tt.want, got)
		})
	}

	_, err := CouponDiscount(model.DiscountType("BOGO"), dec("1"), nil, dec("1"))
	assert.Error(t, err)
}

func TestParseRate(t *testing.T) {
	r, err := ParseRate("0.16")
	require.NoError(t, err)
	assertDec(t, "0.16", r)

	_, err = ParseRate("sixteen")
	assert.Error(t, err)
	_, err = ParseRate("-0.1")
	assert.Error(t, err)
}
