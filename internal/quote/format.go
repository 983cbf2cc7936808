package quote

import (
	"math/big"
	"strings"
)

const (
	gweiDecimals  = 9
	etherDecimals = 18
)

// formatUnits renders value scaled down by 10^decimals. Trailing zeros are
// trimmed but one fractional digit is always kept, so 10^9 wei is "1.0" gwei.
func formatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0.0"
	}
	if decimals == 0 {
		return value.String() + ".0"
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat := new(big.Rat).SetFrac(abs, denom)
	text := rat.FloatString(int(decimals))
	text = strings.TrimRight(text, "0")
	if strings.HasSuffix(text, ".") {
		text += "0"
	}
	if sign < 0 {
		return "-" + text
	}
	return text
}
