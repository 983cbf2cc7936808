package blocktime

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"chainLens/internal/apperr"
	"chainLens/internal/chain"
)

// syntheticChain has strictly increasing, slightly irregular timestamps.
type syntheticChain struct {
	latest uint64
	calls  int
}

func tsOf(i uint64) uint64 { return 1000 + 12*i + i%3 }

func (s *syntheticChain) LatestBlockNumber(context.Context) (uint64, error) { return s.latest, nil }

func (s *syntheticChain) Block(_ context.Context, number uint64) (chain.BlockRef, error) {
	s.calls++
	if number > s.latest {
		return chain.BlockRef{}, apperr.NotFoundf("block %d not found", number)
	}
	return chain.BlockRef{Number: number, Hash: common.BigToHash(new(big.Int).SetUint64(number)), Timestamp: tsOf(number)}, nil
}

func (s *syntheticChain) LatestBlock(ctx context.Context) (chain.BlockRef, error) {
	return s.Block(ctx, s.latest)
}

func (s *syntheticChain) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errors.New("not a contract chain")
}

func unix(ts uint64) time.Time { return time.Unix(int64(ts), 0) }

func TestBlockAtExactTimestamp(t *testing.T) {
	rd := &syntheticChain{latest: 5000}
	resolver := New(nil)

	for _, n := range []uint64{0, 1, 2, 17, 999, 2500, 4998, 4999, 5000} {
		rd.calls = 0
		got, err := resolver.BlockAt(context.Background(), rd, unix(tsOf(n)))
		if err != nil {
			t.Fatalf("block at ts(%d): %v", n, err)
		}
		if got != n {
			t.Fatalf("block at ts(%d) = %d", n, got)
		}
		if rd.calls > 2+12 {
			t.Fatalf("block at ts(%d) used %d header reads", n, rd.calls)
		}
	}
}

func TestBlockAtCeiling(t *testing.T) {
	rd := &syntheticChain{latest: 5000}
	resolver := New(nil)

	for _, n := range []uint64{3, 100, 1234, 4000} {
		target := tsOf(n) + 1
		got, err := resolver.BlockAt(context.Background(), rd, unix(target))
		if err != nil {
			t.Fatalf("block at %d: %v", target, err)
		}
		if tsOf(got) < target || tsOf(got-1) >= target {
			t.Fatalf("ceiling violated for %d: got block %d (ts %d, prev %d)", target, got, tsOf(got), tsOf(got-1))
		}
	}
}

func TestBlockAtBoundaries(t *testing.T) {
	rd := &syntheticChain{latest: 5000}
	resolver := New(nil)

	got, err := resolver.BlockAt(context.Background(), rd, unix(10))
	if err != nil || got != 0 {
		t.Fatalf("before genesis: %d, %v", got, err)
	}
	got, err = resolver.BlockAt(context.Background(), rd, unix(tsOf(5000)+3600))
	if err != nil || got != 5000 {
		t.Fatalf("after head: %d, %v", got, err)
	}
	got, err = resolver.BlockAt(context.Background(), &syntheticChain{latest: 0}, unix(99999))
	if err != nil || got != 0 {
		t.Fatalf("genesis-only chain: %d, %v", got, err)
	}
}

func TestBlockTimestampAndDate(t *testing.T) {
	rd := &syntheticChain{latest: 10}
	resolver := New(nil)

	ts, err := resolver.BlockTimestamp(context.Background(), rd, 5)
	if err != nil || ts != tsOf(5) {
		t.Fatalf("timestamp: %d, %v", ts, err)
	}
	date, err := resolver.BlockDate(context.Background(), rd, 0)
	if err != nil {
		t.Fatalf("date: %v", err)
	}
	if date != "1970-01-01T00:16:40.000Z" {
		t.Fatalf("date mismatch: %s", date)
	}
	if _, err := resolver.BlockTimestamp(context.Background(), rd, 11); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFinalBlockNumberPrecedence(t *testing.T) {
	rd := &syntheticChain{latest: 5000}
	resolver := New(nil)
	ctx := context.Background()

	height := uint64(42)
	date := unix(tsOf(1500))
	got, err := resolver.FinalBlockNumber(ctx, rd, Query{Date: &date, BlockHeight: &height})
	if err != nil || got != 42 {
		t.Fatalf("height precedence: %d, %v", got, err)
	}

	got, err = resolver.FinalBlockNumber(ctx, rd, Query{Date: &date})
	if err != nil || got != 1500 {
		t.Fatalf("date: %d, %v", got, err)
	}

	got, err = resolver.FinalBlockNumber(ctx, rd, Query{})
	if err != nil || got != 5000 {
		t.Fatalf("latest: %d, %v", got, err)
	}
}

func TestFinalBlockNumberRejectsOutOfChainDates(t *testing.T) {
	rd := &syntheticChain{latest: 5000}
	resolver := New(nil)

	for _, ts := range []uint64{tsOf(5000) + 1, 999} {
		date := unix(ts)
		_, err := resolver.FinalBlockNumber(context.Background(), rd, Query{Date: &date})
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("ts %d: expected validation error, got %v", ts, err)
		}
	}
}

func TestBlocksBetween(t *testing.T) {
	rd := &syntheticChain{latest: 5000}
	resolver := New(nil)

	got, err := resolver.BlocksBetween(context.Background(), rd, unix(tsOf(100)), unix(tsOf(130)+1))
	if err != nil {
		t.Fatalf("blocks between: %v", err)
	}
	if got.From != 100 || got.To != 131 || got.Len() != 32 {
		t.Fatalf("unexpected range %+v", got)
	}

	if _, err := resolver.BlocksBetween(context.Background(), rd, unix(tsOf(10)), unix(tsOf(5))); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSplitRange(t *testing.T) {
	ranges, err := BlockRange{From: 10, To: 25}.Split(5)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	want := []BlockRange{{10, 14}, {15, 19}, {20, 24}, {25, 25}}
	if len(ranges) != len(want) {
		t.Fatalf("got %d ranges", len(ranges))
	}
	for i := range want {
		if ranges[i] != want[i] {
			t.Fatalf("range %d: got %+v want %+v", i, ranges[i], want[i])
		}
	}
	if _, err := (BlockRange{From: 1, To: 2}).Split(0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]int64{
		"1700000000":           1700000000,
		"2023-11-14T22:13:20Z": 1700000000,
		"2024-01-01":           1704067200,
	}
	for input, want := range cases {
		got, err := ParseDate(input)
		if err != nil {
			t.Fatalf("%s: %v", input, err)
		}
		if got.Unix() != want {
			t.Fatalf("%s: got %d want %d", input, got.Unix(), want)
		}
	}
	if _, err := ParseDate("yesterday"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseBlockNumber(t *testing.T) {
	if got, err := ParseBlockNumber(" 18000000 "); err != nil || got != 18_000_000 {
		t.Fatalf("parse: %d, %v", got, err)
	}
	for _, input := range []string{"-1", "1.5", "", "0x10"} {
		if _, err := ParseBlockNumber(input); !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("%q: expected validation error, got %v", input, err)
		}
	}
}
