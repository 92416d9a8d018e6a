package invoice

import "github.com/shopspring/decimal"

// DiscountType selects how a discount value is applied.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// LineItem is a single invoice row.
type LineItem struct {
	Description string `json:"description"`
	Quantity    Number `json:"quantity"`
	UnitPrice   Number `json:"unitPrice"`
}

// TaxRule is a percentage applied to the pre-discount subtotal.
type TaxRule struct {
	Name string `json:"name,omitempty"`
	Rate Number `json:"rate"`
}

// Discount is the invoice-wide discount rule.
type Discount struct {
	Type  DiscountType `json:"type"`
	Value Number       `json:"value"`
}

// Breakdown aggregates the computed invoice components.
type Breakdown struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Compute derives the amount due. Every tax is taken against the original
// subtotal, so taxes never compound. The total is not floored at zero and is
// not rounded to a currency precision.
func Compute(items []LineItem, taxes []TaxRule, discount *Discount) Breakdown {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Quantity.Decimal().Mul(it.UnitPrice.Decimal()))
	}

	tax := decimal.Zero
	for _, rule := range taxes {
		tax = tax.Add(percentOf(subtotal, rule.Rate.Decimal()))
	}

	off := DiscountAmount(subtotal, discount)
	return Breakdown{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: off,
		Total:    subtotal.Add(tax).Sub(off),
	}
}

// Total is Compute reduced to the amount due as a float.
func Total(items []LineItem, taxes []TaxRule, discount *Discount) float64 {
	return Compute(items, taxes, discount).Total.InexactFloat64()
}

// DiscountAmount returns the amount a discount takes off the subtotal. A
// missing rule, a non-positive value or an unknown type yields zero. Fixed
// discounts are not capped at the subtotal.
func DiscountAmount(subtotal decimal.Decimal, discount *Discount) decimal.Decimal {
	if discount == nil {
		return decimal.Zero
	}
	value := discount.Value.Decimal()
	if !value.IsPositive() {
		return decimal.Zero
	}
	switch discount.Type {
	case DiscountPercentage:
		return percentOf(subtotal, value)
	case DiscountFixed:
		return value
	default:
		return decimal.Zero
	}
}

func percentOf(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Shift(-2)
}
