package billing

import "strings"

// Currencies the processor bills without a minor unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {}, "krw": {},
	"mga": {}, "pyg": {}, "rwf": {}, "ugx": {}, "vnd": {}, "vuv": {}, "xaf": {},
	"xof": {}, "xpf": {},
}

// MajorUnits converts an amount in minor units to a decimal amount in the
// currency's major unit (cents to dollars, but yen stay yen).
func MajorUnits(minor int64, currency string) float64 {
	if _, ok := zeroDecimalCurrencies[strings.ToLower(currency)]; ok {
		return float64(minor)
	}
	return float64(minor) / 100
}
