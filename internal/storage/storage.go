package storage

import "chainLens/internal/model"

// Storage defines a sink for native price quotes.
type Storage interface {
	PutQuotes(quotes []model.NativePriceQuote) error
}
