package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest quantity a single line item may hold.
const MaxQuantity = 999

// MaxPriceScale is the largest number of decimal places accepted in a price.
// Prices computed by a browser can carry float noise such as
// 0.30000000000000004, so the bound is loose.
const MaxPriceScale = 20

// MaxUnitPrice is the largest accepted unit price.
var MaxUnitPrice = decimal.NewFromInt(100000)

// IntegerDigits returns the number of digits before the decimal point of d,
// or a negative figure for values below 0.1. It never materializes the
// exponent, so it is safe on inputs like 1e50000000.
func IntegerDigits(d decimal.Decimal) int {
	if d.IsZero() {
		return 0
	}
	return d.NumDigits() + int(d.Exponent())
}

// ValidateUnitPrice checks that price lies in [0, MaxUnitPrice] with at most
// MaxPriceScale decimal places.
func ValidateUnitPrice(price decimal.Decimal) error {
	switch {
	case price.IsZero():
		return nil
	case price.IsNegative():
		return fmt.Errorf("price must not be negative")
	case price.Exponent() < -MaxPriceScale:
		return fmt.Errorf("price must have at most %d decimal places", MaxPriceScale)
	case IntegerDigits(price) > IntegerDigits(MaxUnitPrice) || price.GreaterThan(MaxUnitPrice):
		return fmt.Errorf("price must not exceed %s", MaxUnitPrice)
	}
	return nil
}

// ValidateQuantity checks that quantity lies in [1, MaxQuantity].
func ValidateQuantity(quantity int) error {
	if quantity < 1 || quantity > MaxQuantity {
		return fmt.Errorf("quantity must be between 1 and %d", MaxQuantity)
	}
	return nil
}
