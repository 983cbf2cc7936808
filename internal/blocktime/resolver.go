// Package blocktime converts between wall-clock time and block height on any
// EVM chain using only header reads.
package blocktime

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"chainLens/internal/apperr"
	"chainLens/internal/chain"
)

// SearchWindow is the number of blocks searched on each side of the linear estimate.
// Targets outside the window resolve to the window boundary.
const SearchWindow = 1000

// ISO8601 is the date layout returned by BlockDate.
const ISO8601 = "2006-01-02T15:04:05.000Z"

// Resolver performs block/time conversions against a chain.Reader.
type Resolver struct {
	logger *zap.Logger
}

// New creates a resolver. logger may be nil.
func New(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

// Query selects a block: BlockHeight wins over Date, and with neither set the
// latest block is used.
type Query struct {
	Date        *time.Time
	BlockHeight *uint64
}

type anchors struct {
	genesis chain.BlockRef
	latest  chain.BlockRef
}

func loadAnchors(ctx context.Context, rd chain.Reader) (anchors, error) {
	genesis, err := rd.Block(ctx, 0)
	if err != nil {
		return anchors{}, fmt.Errorf("load genesis block: %w", err)
	}
	latest, err := rd.LatestBlock(ctx)
	if err != nil {
		return anchors{}, fmt.Errorf("load latest block: %w", err)
	}
	return anchors{genesis: genesis, latest: latest}, nil
}

func (a anchors) block(ctx context.Context, rd chain.Reader, number uint64) (chain.BlockRef, error) {
	switch number {
	case a.genesis.Number:
		return a.genesis, nil
	case a.latest.Number:
		return a.latest, nil
	}
	return rd.Block(ctx, number)
}

// BlockAt returns the first block whose timestamp is >= t. An exact timestamp
// match returns that block. Targets before genesis resolve to 0 and targets after
// the chain head resolve to the latest block.
func (r *Resolver) BlockAt(ctx context.Context, rd chain.Reader, t time.Time) (uint64, error) {
	a, err := loadAnchors(ctx, rd)
	if err != nil {
		return 0, err
	}
	return r.search(ctx, rd, a, t.Unix())
}

func (r *Resolver) search(ctx context.Context, rd chain.Reader, a anchors, target int64) (uint64, error) {
	latest := a.latest.Number
	if latest == 0 {
		return 0, nil
	}

	est := estimate(a, target)
	lower := new(big.Int).Sub(est, big.NewInt(SearchWindow))
	upper := new(big.Int).Add(est, big.NewInt(SearchWindow))
	lo := clampInt64(lower, 0, int64(latest))
	hi := clampInt64(upper, -1, int64(latest))

	r.logger.Debug("block search window",
		zap.Int64("target", target),
		zap.String("estimate", est.String()),
		zap.Int64("lower", lo),
		zap.Int64("upper", hi),
	)

	for lo <= hi {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		mid := lo + (hi-lo)/2
		block, err := a.block(ctx, rd, uint64(mid))
		if err != nil {
			return 0, fmt.Errorf("search block %d: %w", mid, err)
		}
		ts := int64(block.Timestamp)
		switch {
		case ts < target:
			lo = mid + 1
		case ts > target:
			hi = mid - 1
		default:
			return uint64(mid), nil
		}
	}

	if uint64(lo) > latest {
		return latest, nil
	}
	return uint64(lo), nil
}

// estimate returns floor((target - genesisTs) / avgBlockTime) with
// avgBlockTime = (latestTs - genesisTs) / latestNumber, in exact arithmetic.
func estimate(a anchors, target int64) *big.Int {
	span := int64(a.latest.Timestamp) - int64(a.genesis.Timestamp)
	if span <= 0 {
		if target >= int64(a.latest.Timestamp) {
			return new(big.Int).SetUint64(a.latest.Number)
		}
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(
		big.NewInt(target-int64(a.genesis.Timestamp)),
		new(big.Int).SetUint64(a.latest.Number),
	)
	// Div rounds toward negative infinity for a positive divisor.
	return num.Div(num, big.NewInt(span))
}

func clampInt64(v *big.Int, floor, ceil int64) int64 {
	if v.Cmp(big.NewInt(floor)) < 0 {
		return floor
	}
	if v.Cmp(big.NewInt(ceil)) > 0 {
		return ceil
	}
	return v.Int64()
}

// BlockTimestamp returns the unix timestamp of block number.
func (r *Resolver) BlockTimestamp(ctx context.Context, rd chain.Reader, number uint64) (uint64, error) {
	block, err := rd.Block(ctx, number)
	if err != nil {
		return 0, fmt.Errorf("block timestamp: %w", err)
	}
	return block.Timestamp, nil
}

// BlockDate returns the timestamp of block number as an ISO8601 UTC string.
func (r *Resolver) BlockDate(ctx context.Context, rd chain.Reader, number uint64) (string, error) {
	ts, err := r.BlockTimestamp(ctx, rd, number)
	if err != nil {
		return "", err
	}
	return time.Unix(int64(ts), 0).UTC().Format(ISO8601), nil
}

// FinalBlockNumber resolves q to a concrete block height. A date after the
// chain head or before genesis is an apperr.ErrValidation.
func (r *Resolver) FinalBlockNumber(ctx context.Context, rd chain.Reader, q Query) (uint64, error) {
	if q.BlockHeight != nil {
		return *q.BlockHeight, nil
	}
	if q.Date == nil {
		number, err := rd.LatestBlockNumber(ctx)
		if err != nil {
			return 0, err
		}
		return number, nil
	}

	a, err := loadAnchors(ctx, rd)
	if err != nil {
		return 0, err
	}
	target := q.Date.Unix()
	if err := a.validate(target); err != nil {
		return 0, err
	}
	return r.search(ctx, rd, a, target)
}

func (a anchors) validate(target int64) error {
	if target > int64(a.latest.Timestamp) || target < int64(a.genesis.Timestamp) {
		return apperr.Validationf("timestamp %d is in the future or before the creation of the chain", target)
	}
	return nil
}

// BlocksBetween returns the inclusive block range spanning start..end.
func (r *Resolver) BlocksBetween(ctx context.Context, rd chain.Reader, start, end time.Time) (BlockRange, error) {
	if start.After(end) {
		return BlockRange{}, apperr.Validationf("start date %s is after end date %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	a, err := loadAnchors(ctx, rd)
	if err != nil {
		return BlockRange{}, err
	}
	from, err := r.search(ctx, rd, a, start.Unix())
	if err != nil {
		return BlockRange{}, err
	}
	to, err := r.search(ctx, rd, a, end.Unix())
	if err != nil {
		return BlockRange{}, err
	}
	return BlockRange{From: from, To: to}, nil
}
