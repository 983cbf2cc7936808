package dex

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"chainLens/internal/apperr"
)

// DivisionPrecision is the number of fractional digits kept by every price division.
const DivisionPrecision int32 = 40

// PoolType identifies the on-chain layout a price is read from.
type PoolType string

const (
	UniswapV3   PoolType = "uniswap-v3"
	UniswapV2   PoolType = "uniswap-v2"
	PancakeV2   PoolType = "pancakeswap-v2"
	QuickswapV3 PoolType = "quickswap-v3"
)

// ParsePoolType normalizes a configured pool type. An empty value means uniswap-v3.
func ParsePoolType(input string) (PoolType, error) {
	switch t := PoolType(strings.ToLower(strings.TrimSpace(input))); t {
	case "":
		return UniswapV3, nil
	case UniswapV3, UniswapV2, PancakeV2, QuickswapV3:
		return t, nil
	default:
		return "", apperr.Configf("unsupported pool type %q", input)
	}
}

// Extractor reads one pool shape: which view method to call and how to turn its
// outputs into a raw quote-per-base price.
type Extractor interface {
	Method() string
	Extract(values []interface{}) (decimal.Decimal, error)
}

// ExtractorFor returns the extractor of a pool type.
func ExtractorFor(t PoolType) (Extractor, error) {
	switch t {
	case UniswapV3:
		return sqrtPriceExtractor{method: "slot0"}, nil
	case QuickswapV3:
		return sqrtPriceExtractor{method: "globalState"}, nil
	case UniswapV2, PancakeV2:
		return reservesExtractor{}, nil
	default:
		return nil, apperr.Configf("unsupported pool type %q", t)
	}
}

type sqrtPriceExtractor struct {
	method string
}

func (e sqrtPriceExtractor) Method() string { return e.method }

func (e sqrtPriceExtractor) Extract(values []interface{}) (decimal.Decimal, error) {
	if len(values) == 0 {
		return decimal.Zero, fmt.Errorf("%s: empty result", e.method)
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s sqrt price: %w", e.method, err)
	}
	return SqrtPriceX96ToPrice(sqrtPrice), nil
}

type reservesExtractor struct{}

func (reservesExtractor) Method() string { return "getReserves" }

func (reservesExtractor) Extract(values []interface{}) (decimal.Decimal, error) {
	if len(values) < 2 {
		return decimal.Zero, fmt.Errorf("getReserves: expected 2 reserves, got %d values", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return decimal.Zero, fmt.Errorf("reserve0: %w", err)
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return decimal.Zero, fmt.Errorf("reserve1: %w", err)
	}
	return ReservesToPrice(reserve0, reserve1)
}

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// SqrtPriceX96ToPrice computes (sqrtPriceX96 / 2^96)^2 as sqrtPriceX96^2 / 2^192.
func SqrtPriceX96ToPrice(sqrtPriceX96 *big.Int) decimal.Decimal {
	squared := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)
	return decimal.NewFromBigInt(squared, 0).DivRound(decimal.NewFromBigInt(q192, 0), DivisionPrecision)
}

// ReservesToPrice returns reserve1/reserve0 after scaling both reserves down by
// 10^18, whatever the real token decimals are.
func ReservesToPrice(reserve0, reserve1 *big.Int) (decimal.Decimal, error) {
	r0 := decimal.NewFromBigInt(reserve0, -18)
	r1 := decimal.NewFromBigInt(reserve1, -18)
	if r0.IsZero() {
		return decimal.Zero, fmt.Errorf("getReserves: reserve0 is zero")
	}
	return r1.DivRound(r0, DivisionPrecision), nil
}
