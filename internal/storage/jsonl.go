package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"chainLens/internal/apperr"
	"chainLens/internal/model"
)

var _ Storage = (*JsonlStorage)(nil)

// JsonlStorage appends quotes to a JSONL file, one object per line. A batch
// is checked and encoded in full before the file is touched, so a rejected
// batch leaves no partial lines behind.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// Path returns the output file.
func (s *JsonlStorage) Path() string {
	return s.path
}

// PutQuotes appends quotes as JSON lines. The file and its directory are
// created on first write.
func (s *JsonlStorage) PutQuotes(quotes []model.NativePriceQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	batch, err := encodeQuotes(quotes)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	if _, err := file.Write(batch); err != nil {
		file.Close()
		return fmt.Errorf("append %d quotes: %w", len(quotes), err)
	}
	return file.Close()
}

func encodeQuotes(quotes []model.NativePriceQuote) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, quote := range quotes {
		if err := checkQuote(quote); err != nil {
			return nil, fmt.Errorf("quote %d: %w", i, err)
		}
		if err := enc.Encode(quote); err != nil {
			return nil, fmt.Errorf("marshal quote %s@%d: %w", quote.NetworkName, quote.BlockHeight, err)
		}
	}
	return buf.Bytes(), nil
}

func checkQuote(quote model.NativePriceQuote) error {
	switch {
	case quote.NetworkName == "":
		return apperr.Validationf("missing network name")
	case quote.ChainID == 0:
		return apperr.Validationf("%s: missing chain id", quote.NetworkName)
	case quote.Price == "" || quote.Currency == "":
		return apperr.Validationf("%s@%d: missing price or currency", quote.NetworkName, quote.BlockHeight)
	}
	return nil
}
