package domain

import "context"

// WatchlistSource supplies the symbols a user wants watched (portfolios, watchlists)
type WatchlistSource interface {
	Symbols(ctx context.Context) ([]string, error)
}

// QuoteValidator checks a symbol against the quote endpoint before it is subscribed
type QuoteValidator interface {
	Validate(ctx context.Context, symbol string) (bool, error)
}

// PriceReader is the read-only surface presentation code renders from
type PriceReader interface {
	GetPrice(symbol string) (PriceRecord, bool)
	Prices() []PriceRecord
	State() ConnectionState
}
