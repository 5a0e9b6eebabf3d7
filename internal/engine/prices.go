package engine

// Quote is the last bid/ask of a symbol
type Quote struct {
	Bid float64
	Ask float64
}

// PriceCache holds the last quote per symbol. It is owned by the dispatcher goroutine.
type PriceCache struct {
	quotes map[string]Quote
}

// NewPriceCache creates an empty cache
func NewPriceCache() *PriceCache {
	return &PriceCache{quotes: make(map[string]Quote)}
}

// Set stores a quote; both sides must be positive
func (p *PriceCache) Set(symbol string, bid, ask float64) error {
	if symbol == "" {
		return newError(CodeInvalidArgument, "symbol cannot be empty")
	}
	if bid <= 0 || ask <= 0 {
		return newError(CodeInvalidArgument, "bid and ask must be greater than 0")
	}
	p.quotes[symbol] = Quote{Bid: bid, Ask: ask}
	return nil
}

// Get returns the quote of a symbol
func (p *PriceCache) Get(symbol string) (Quote, bool) {
	q, ok := p.quotes[symbol]
	return q, ok
}

// entryPrice is ask for BUY and bid for SELL
func (q Quote) entryPrice(side Side) float64 {
	if side == SideBuy {
		return q.Ask
	}
	return q.Bid
}

// markPrice is bid for BUY and ask for SELL
func (q Quote) markPrice(side Side) float64 {
	if side == SideBuy {
		return q.Bid
	}
	return q.Ask
}
