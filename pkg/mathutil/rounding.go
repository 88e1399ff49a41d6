// Package mathutil provides common mathematical utility functions.
package mathutil

import (
	"math"

	"github.com/haroldofalcao/optinutri/pkg/constants"
	"github.com/shopspring/decimal"
)

// RoundTo rounds a value to the given number of decimal places, half away
// from zero. Rounding goes through a decimal so that values such as 1.235 are
// not pushed the wrong way by their binary representation.
func RoundTo(val float64, places int32) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return val
	}
	return decimal.NewFromFloat(val).Round(places).InexactFloat64()
}

// Round rounds a value to two decimals, i.e. to represent real currency.
func Round(val float64) float64 {
	return RoundTo(val, constants.CostPlaces)
}

// RoundKcal rounds a calorie figure to its reporting precision.
func RoundKcal(val float64) float64 {
	return RoundTo(val, constants.KcalPlaces)
}

// RoundVolume rounds a volume figure to its reporting precision.
func RoundVolume(val float64) float64 {
	return RoundTo(val, constants.VolumePlaces)
}

// RoundGrams rounds protein and the other gram-based nutrients.
func RoundGrams(val float64) float64 {
	return RoundTo(val, constants.ProteinPlaces)
}

// SumRounded adds values as decimals and returns the total rounded to places.
// Used where a total must equal the sum of already rounded parts.
func SumRounded(values []float64, places int32) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(places).InexactFloat64()
}

// AtLeast reports whether val reaches bound once the tolerance is allowed for.
func AtLeast(val, bound, tolerance float64) bool {
	return val >= bound-tolerance
}

// AtMost reports whether val stays under bound once the tolerance is allowed for.
func AtMost(val, bound, tolerance float64) bool {
	return val <= bound+tolerance
}
