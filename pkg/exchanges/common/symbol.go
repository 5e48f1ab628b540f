package common

import (
	"math"
	"strings"
)

// JoinSymbol builds the SYMBOL.EXCHANGE instrument key.
func JoinSymbol(symbol, exchange string) string {
	return symbol + "." + exchange
}

// SplitSymbol splits a SYMBOL.EXCHANGE key back into its parts. The
// exchange part is empty when the key carries no dot.
func SplitSymbol(vtSymbol string) (symbol, exchange string) {
	idx := strings.LastIndex(vtSymbol, ".")
	if idx < 0 {
		return vtSymbol, ""
	}
	return vtSymbol[:idx], vtSymbol[idx+1:]
}

// RoundTo rounds value to the nearest multiple of target. A non-positive
// target returns value unchanged.
func RoundTo(value, target float64) float64 {
	if target <= 0 {
		return value
	}
	return math.Round(value/target) * target
}
