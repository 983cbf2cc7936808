package quote

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"chainLens/internal/pgcache"
	"chainLens/internal/pricing"
)

const (
	selectNativePriceSQL = `
		SELECT price_usd::text
		FROM native_price_quotes
		WHERE network = $1 AND block_number = $2`

	insertNativePriceSQL = `
		INSERT INTO native_price_quotes (network, chain_id, block_number, price_usd, created_at)
		VALUES ($1, $2, $3, $4::numeric, now())
		ON CONFLICT (network, block_number) DO NOTHING`
)

// nativePriceSteps memoizes the USD price of network's native unit at block.
// Only pinned reads are written; a latest-state fallback does not describe block.
func nativePriceSteps(network string, chainID, block uint64, compute func(ctx context.Context) (pricing.NativeQuote, error)) pgcache.Steps[pricing.NativeQuote] {
	return pgcache.Steps[pricing.NativeQuote]{
		Read: func(ctx context.Context, q pgcache.Querier) (pricing.NativeQuote, bool, error) {
			return readNativePrice(ctx, q, network, block)
		},
		Compute: compute,
		Write: func(ctx context.Context, q pgcache.Querier, value pricing.NativeQuote) error {
			if !value.Pinned {
				return nil
			}
			return writeNativePrice(ctx, q, network, chainID, block, value.USD)
		},
	}
}

func readNativePrice(ctx context.Context, q pgcache.Querier, network string, block uint64) (pricing.NativeQuote, bool, error) {
	rows, err := q.Query(ctx, selectNativePriceSQL, network, int64(block))
	if err != nil {
		return pricing.NativeQuote{}, false, fmt.Errorf("query native price: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return pricing.NativeQuote{}, false, rows.Err()
	}
	var text string
	if err := rows.Scan(&text); err != nil {
		return pricing.NativeQuote{}, false, fmt.Errorf("scan native price: %w", err)
	}
	price, err := decimal.NewFromString(text)
	if err != nil {
		return pricing.NativeQuote{}, false, fmt.Errorf("parse cached price %q: %w", text, err)
	}
	return pricing.NativeQuote{USD: price, Pinned: true}, true, nil
}

func writeNativePrice(ctx context.Context, q pgcache.Querier, network string, chainID, block uint64, price decimal.Decimal) error {
	if _, err := q.Exec(ctx, insertNativePriceSQL, network, int64(chainID), int64(block), price.String()); err != nil {
		return fmt.Errorf("insert native price: %w", err)
	}
	return nil
}
