// Package pricing computes order totals. All functions are pure: given the
// same line items, shipping cost, tax rate, and discount they always produce
// the same Totals, so callers can recompute after every cart mutation.
package pricing

import "github.com/shopspring/decimal"

// Item is a priced line item for totals calculation purposes.
type Item struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Subtotal returns unit price times quantity for this line.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Totals is the derived money breakdown for a cart or order.
// Total = Subtotal + ShippingCost + Tax - Discount, never negative.
type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Tax          decimal.Decimal `json:"tax"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`

	// Clamped reports that the discount exceeded the pre-discount total and
	// Total was floored at zero instead of going negative.
	Clamped bool `json:"clamped,omitempty"`
}

// Zero returns the all-zero totals of an empty cart.
func Zero() Totals {
	return Totals{
		Subtotal:     decimal.Zero,
		ShippingCost: decimal.Zero,
		Tax:          decimal.Zero,
		Discount:     decimal.Zero,
		Total:        decimal.Zero,
	}
}

// Compute derives Totals from line items, a resolved shipping cost, a tax
// rate, and a discount amount. Arithmetic is exact until the end: tax and the
// final figures are rounded to cents (half up) once, not per line item.
func Compute(items []Item, shippingCost, taxRate, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Subtotal())
	}

	tax := subtotal.Mul(taxRate).Round(2)
	subtotal = subtotal.Round(2)
	shippingCost = shippingCost.Round(2)
	discount = discount.Round(2)

	total := subtotal.Add(shippingCost).Add(tax).Sub(discount)
	clamped := false
	if total.IsNegative() {
		total = decimal.Zero
		clamped = true
	}

	return Totals{
		Subtotal:     subtotal,
		ShippingCost: shippingCost,
		Tax:          tax,
		Discount:     discount,
		Total:        total.Round(2),
		Clamped:      clamped,
	}
}
