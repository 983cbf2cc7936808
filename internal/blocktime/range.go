package blocktime

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chainLens/internal/apperr"
)

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	if r.To < r.From {
		return 0
	}
	return r.To - r.From + 1
}

// Split splits the range into consecutive batches of at most batchSize blocks.
func (r BlockRange) Split(batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if r.To < r.From {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0, r.Len()/batchSize+1)
	start := r.From
	for {
		end := r.To
		if r.To-start+1 > batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == r.To {
			return ranges, nil
		}
		start = end + 1
	}
}

// ParseDate parses unix seconds, RFC3339, or a bare YYYY-MM-DD date (UTC midnight).
func ParseDate(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, apperr.Validationf("date is required")
	}

	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return time.Time{}, apperr.Validationf("invalid unix timestamp %q", input)
		}
		return time.Unix(val, 0).UTC(), nil
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if tm, err := time.Parse(layout, input); err == nil {
			return tm.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validationf("invalid date %q: want unix seconds or RFC3339", input)
}

// ParseBlockNumber parses a non-negative decimal block number.
func ParseBlockNumber(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if !isNumeric(input) {
		return 0, apperr.Validationf("invalid block number %q: it must be a non-negative integer", input)
	}
	val, err := strconv.ParseUint(input, 10, 64)
	if err != nil {
		return 0, apperr.Validationf("invalid block number %q: %v", input, err)
	}
	return val, nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
