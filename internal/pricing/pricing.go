// Package pricing holds the monetary arithmetic of checkout: splitting
// VAT-inclusive prices, coupon discounts and spreading a discount over the
// net and VAT parts of an order. Intermediate values keep full precision;
// only the values returned by Final are rounded.
package pricing

import (
	"fmt"

	"checkout-engine/internal/model"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places persisted for every amount.
const Scale = 2

var one = decimal.NewFromInt(1)

// Round rounds half away from zero to the persisted scale.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// ParseRate parses a VAT rate such as "0.16".
func ParseRate(s string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse vat rate %q: %w", s, err)
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("vat rate must not be negative, got %s", s)
	}
	return rate, nil
}

// SplitGross splits a VAT-inclusive unit price into its net and VAT parts.
func SplitGross(gross, vatRate decimal.Decimal) (net, vat decimal.Decimal) {
	net = gross.Div(one.Add(vatRate))
	return net, gross.Sub(net)
}

// Totals accumulates order lines at full precision.
type Totals struct {
	Gross decimal.Decimal
	Net   decimal.Decimal
	Vat   decimal.Decimal
}

// AddLine adds qty units of a line to the running totals.
func (t *Totals) AddLine(unitGross, unitNet, unitVat decimal.Decimal, qty int) {
	q := decimal.NewFromInt(int64(qty))
	t.Gross = t.Gross.Add(unitGross.Mul(q))
	t.Net = t.Net.Add(unitNet.Mul(q))
	t.Vat = t.Vat.Add(unitVat.Mul(q))
}

// Final is the rounded, persisted view of an order's money.
type Final struct {
	Gross    decimal.Decimal
	Net      decimal.Decimal
	Vat      decimal.Decimal
	Discount decimal.Decimal
}

// Final applies discount to the totals. The discount is clamped to
// [0, Gross] and removed from net and VAT in the same proportion as from
// gross, so Gross == Net + Vat still holds afterwards. VAT is derived as
// Gross - Net after rounding so the identity is exact to the cent.
func (t Totals) Final(discount decimal.Decimal) Final {
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(t.Gross) {
		discount = t.Gross
	}

	keep := one
	if t.Gross.IsPositive() {
		keep = one.Sub(discount.Div(t.Gross))
	}

	gross := Round(t.Gross.Sub(discount))
	net := Round(t.Net.Mul(keep))
	return Final{
		Gross:    gross,
		Net:      net,
		Vat:      gross.Sub(net),
		Discount: Round(discount),
	}
}

// CouponDiscount computes the discount a coupon grants on cartGross.
// PERCENT is capped at maxDiscount (when set) and at cartGross; FIXED is
// capped at cartGross.
func CouponDiscount(kind model.DiscountType, value decimal.Decimal, maxDiscount *decimal.Decimal, cartGross decimal.Decimal) (decimal.Decimal, error) {
	var d decimal.Decimal
	switch kind {
	case model.DiscountPercent:
		d = cartGross.Mul(value).Div(decimal.NewFromInt(100))
		if maxDiscount != nil && d.GreaterThan(*maxDiscount) {
			d = *maxDiscount
		}
	case model.DiscountFixed:
		d = value
	default:
		return decimal.Zero, fmt.Errorf("unknown discount type %q", kind)
	}

	if d.GreaterThan(cartGross) {
		d = cartGross
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	return Round(d), nil
}
