// README: Pure money math: line totals, VAT, and deposit fee splits.
package money

import "github.com/shopspring/decimal"

// OwnerKind discriminates whose fee schedule applies to a deposit.
type OwnerKind string

const (
	OwnerRestaurant OwnerKind = "restaurant"
	OwnerCourier    OwnerKind = "courier"
)

// Round2 rounds to 2 decimal places, half away from zero. Every stored
// currency amount in the system goes through this exactly once per rule.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal is unit price times quantity, rounded per line.
func LineTotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return Round2(unitPrice.Mul(decimal.NewFromInt(int64(qty))))
}

// Subtotal sums already-rounded line totals and rounds the result.
func Subtotal(lines []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l)
	}
	return Round2(sum)
}

// VAT applies the government VAT rate to the food subtotal.
func VAT(subtotal, rate decimal.Decimal) decimal.Decimal {
	return Round2(subtotal.Mul(rate))
}

// Total composes the grand total. All inputs are already rounded, so the
// invariant total == subtotal + vat + tip + fee holds exactly.
func Total(subtotal, vat, tip, fee decimal.Decimal) decimal.Decimal {
	return subtotal.Add(vat).Add(tip).Add(fee)
}

// DepositSplit computes the platform fee and the usable net amount for a
// deposit. Restaurants get a VAT adjustment on the post-fee amount;
// couriers do not. Computed once at entry creation, immutable after.
func DepositSplit(gross, feeRate, vatRate decimal.Decimal, kind OwnerKind) (fee, net decimal.Decimal) {
	fee = Round2(gross.Mul(feeRate))
	rest := gross.Sub(fee)
	if kind == OwnerRestaurant {
		net = Round2(rest.Mul(decimal.NewFromInt(1).Add(vatRate)))
		return fee, net
	}
	net = Round2(rest)
	return fee, net
}
