package payments

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/beatstore-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// ToMinorUnits converts a decimal price into cents, rounding half away from zero.
func ToMinorUnits(price decimal.Decimal) (int64, error) {
	minor := price.Mul(hundred).Round(0).IntPart()
	if minor <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "price must be greater than zero").
			WithDetails(map[string]any{"price": price.StringFixed(2)})
	}
	return minor, nil
}

// FromMinorUnits converts cents back into a two-place decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
