package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"chainLens/internal/apperr"
	"chainLens/internal/model"
)

func TestJsonlStorageAppendsQuotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "prices.jsonl")
	sink := NewJsonlStorage(path)

	first := []model.NativePriceQuote{
		{ChainID: 1, NetworkName: "eth-mainnet", BlockHeight: 18_000_000, Price: "$2000.000000", Currency: "USD", CurrencySymbol: "$", Pinned: true},
		{ChainID: 56, NetworkName: "bsc-mainnet", BlockHeight: 31_000_000, Price: "$500.000000", Currency: "USD", CurrencySymbol: "$"},
	}
	if err := sink.PutQuotes(first); err != nil {
		t.Fatalf("put quotes: %v", err)
	}
	if err := sink.PutQuotes(nil); err != nil {
		t.Fatalf("put empty batch: %v", err)
	}
	if err := sink.PutQuotes(first[:1]); err != nil {
		t.Fatalf("append quotes: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer file.Close()

	var got []model.NativePriceQuote
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var quote model.NativePriceQuote
		if err := json.Unmarshal(scanner.Bytes(), &quote); err != nil {
			t.Fatalf("decode line %q: %v", scanner.Text(), err)
		}
		got = append(got, quote)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan output: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(got))
	}
	if got[1].NetworkName != "bsc-mainnet" || got[1].Pinned {
		t.Fatalf("unexpected second line: %+v", got[1])
	}
	if got[2] != first[0] {
		t.Fatalf("appended line mismatch: %+v", got[2])
	}
}

func TestJsonlStorageRejectsIncompleteBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.jsonl")
	sink := NewJsonlStorage(path)

	batch := []model.NativePriceQuote{
		{ChainID: 1, NetworkName: "eth-mainnet", BlockHeight: 1, Price: "$1.000000", Currency: "USD", CurrencySymbol: "$"},
		{ChainID: 56, NetworkName: "bsc-mainnet", BlockHeight: 2, Currency: "USD"},
	}
	err := sink.PutQuotes(batch)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("rejected batch touched the output file: %v", err)
	}
}
