package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"chainLens/internal/dex"
)

var one = decimal.NewFromInt(1)

// PostProcess applies the descriptor adjustments to a raw pool price, in order:
// invert when inversed, then divide by 10^scale when scale is set.
func PostProcess(raw decimal.Decimal, inversed bool, scale *uint) (decimal.Decimal, error) {
	price := raw
	if inversed {
		if price.IsZero() {
			return decimal.Zero, fmt.Errorf("cannot invert a zero pool price")
		}
		price = one.DivRound(price, dex.DivisionPrecision)
	}
	if scale != nil && *scale > 0 {
		price = price.Shift(-int32(*scale))
	}
	return price, nil
}

// FormatTruncated renders d with exactly places fractional digits, dropping
// the rest without rounding.
func FormatTruncated(d decimal.Decimal, places int32) string {
	return d.Truncate(places).StringFixed(places)
}
