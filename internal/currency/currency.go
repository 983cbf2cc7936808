// Package currency converts USD amounts into a fixed table of fiat currencies.
// Rates are static; there is no live FX feed.
package currency

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"chainLens/internal/apperr"
)

// USD is the base currency every rate is quoted against.
const USD = "USD"

// divisionPrecision matches the fractional digits used by price arithmetic.
const divisionPrecision int32 = 40

// Rate is one currency and its value per US dollar.
type Rate struct {
	Code    string          `json:"code"`
	Symbol  string          `json:"symbol"`
	Name    string          `json:"name"`
	USDRate decimal.Decimal `json:"usd_rate"`
}

func rate(code, symbol, name, usdRate string) Rate {
	return Rate{Code: code, Symbol: symbol, Name: name, USDRate: decimal.RequireFromString(usdRate)}
}

var defaultRates = []Rate{
	rate("USD", "$", "United States Dollar", "1"),
	rate("EUR", "€", "Euro", "0.89"),
	rate("GBP", "£", "British Pound Sterling", "0.77"),
	rate("JPY", "¥", "Japanese Yen", "110.45"),
	rate("AUD", "A$", "Australian Dollar", "1.44"),
	rate("CAD", "C$", "Canadian Dollar", "1.31"),
	rate("CHF", "CHF", "Swiss Franc", "0.98"),
	rate("CNY", "¥", "Chinese Yuan Renminbi", "7.08"),
	rate("INR", "₹", "Indian Rupee", "74.57"),
	rate("RUB", "₽", "Russian Ruble", "74.25"),
	rate("BRL", "R$", "Brazilian Real", "5.03"),
	rate("ZAR", "R", "South African Rand", "14.7"),
	rate("KRW", "₩", "South Korean Won", "1160.45"),
	rate("MXN", "$", "Mexican Peso", "20.15"),
	rate("SGD", "S$", "Singapore Dollar", "1.34"),
	rate("HKD", "HK$", "Hong Kong Dollar", "7.85"),
	rate("SEK", "kr", "Swedish Krona", "8.9"),
	rate("NOK", "kr", "Norwegian Krone", "9.1"),
	rate("DKK", "kr", "Danish Krone", "6.63"),
	rate("PLN", "zł", "Polish Zloty", "3.96"),
	rate("TRY", "₺", "Turkish Lira", "8.53"),
	rate("AED", "د.إ", "United Arab Emirates Dirham", "3.67"),
	rate("SAR", "ر.س", "Saudi Riyal", "3.75"),
	rate("THB", "฿", "Thai Baht", "31.09"),
	rate("MYR", "RM", "Malaysian Ringgit", "4.18"),
}

// Converter looks up and converts between the currencies of its table.
type Converter struct {
	rates map[string]Rate
}

// NewConverter returns a converter over the built-in table.
func NewConverter() *Converter {
	return NewConverterWithRates(defaultRates)
}

// NewConverterWithRates returns a converter over rates.
func NewConverterWithRates(rates []Rate) *Converter {
	c := &Converter{rates: make(map[string]Rate, len(rates))}
	for _, r := range rates {
		c.rates[strings.ToUpper(r.Code)] = r
	}
	return c
}

// Lookup returns the full table entry of code.
func (c *Converter) Lookup(code string) (Rate, error) {
	r, ok := c.rates[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Rate{}, apperr.NotFoundf("currency %q is not supported", code)
	}
	return r, nil
}

// Symbol returns the display symbol of code.
func (c *Converter) Symbol(code string) (string, error) {
	r, err := c.Lookup(code)
	if err != nil {
		return "", err
	}
	return r.Symbol, nil
}

// Name returns the display name of code.
func (c *Converter) Name(code string) (string, error) {
	r, err := c.Lookup(code)
	if err != nil {
		return "", err
	}
	return r.Name, nil
}

// Rate returns how many units of code one US dollar buys.
func (c *Converter) Rate(code string) (decimal.Decimal, error) {
	r, err := c.Lookup(code)
	if err != nil {
		return decimal.Zero, err
	}
	return r.USDRate, nil
}

// Convert computes (amount / rate[from]) * rate[to].
func (c *Converter) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	fromRate, err := c.Rate(from)
	if err != nil {
		return decimal.Zero, err
	}
	toRate, err := c.Rate(to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.DivRound(fromRate, divisionPrecision).Mul(toRate), nil
}

// ConvertUSD computes amountUSD * rate[to].
func (c *Converter) ConvertUSD(amountUSD decimal.Decimal, to string) (decimal.Decimal, error) {
	toRate, err := c.Rate(to)
	if err != nil {
		return decimal.Zero, err
	}
	return amountUSD.Mul(toRate), nil
}

// Codes returns every supported code, sorted.
func (c *Converter) Codes() []string {
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
