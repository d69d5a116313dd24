package pricing

import "fmt"

// Normalize rescales a unit price to the canonical comparison unit. Prices
// recorded per gram or per milliliter become per kilogram or per liter
// (factor 1000); every other unit passes through unchanged. A unit outside
// the enumeration is a data-model violation and panics.
func Normalize(unitPrice float64, unit Unit) (float64, Unit) {
	switch unit {
	case UnitGram:
		return unitPrice * 1000, UnitKilogram
	case UnitMilliliter:
		return unitPrice * 1000, UnitLiter
	case UnitPiece, UnitMeter, UnitKilogram, UnitLiter, UnitRoll, UnitTablet:
		return unitPrice, unit
	}
	panic(fmt.Sprintf("pricing: normalize called with unknown unit %q", unit))
}
