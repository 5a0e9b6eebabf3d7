package engine

// Ledger holds balances and every order ever opened, in open order
type Ledger struct {
	balances map[string]BalanceEntry
	orders   []*Order
	index    map[string]*Order

	// open leveraged orders per symbol, in open order; the sweep only walks these
	leveraged map[string][]*Order
	symbols   []string
}

func newLedger(initialUSD float64) *Ledger {
	return &Ledger{
		balances:  map[string]BalanceEntry{USD: {Qty: initialUSD}},
		index:     make(map[string]*Order),
		leveraged: make(map[string][]*Order),
	}
}

func (l *Ledger) balance(asset string) BalanceEntry {
	return l.balances[asset]
}

// setBalance replaces the entry of an asset
func (l *Ledger) setBalance(asset string, entry BalanceEntry) {
	l.balances[asset] = entry
}

func (l *Ledger) usd() float64 {
	return l.balances[USD].Qty
}

func (l *Ledger) setUSD(qty float64) {
	l.setBalance(USD, BalanceEntry{Qty: qty})
}

func (l *Ledger) store(o *Order) {
	l.orders = append(l.orders, o)
	l.index[o.ID] = o

	if o.Status == StatusOpen && o.IsLeveraged() {
		if _, seen := l.leveraged[o.Symbol]; !seen {
			l.symbols = append(l.symbols, o.Symbol)
		}
		l.leveraged[o.Symbol] = append(l.leveraged[o.Symbol], o)
	}
}

func (l *Ledger) order(id string) (*Order, bool) {
	o, ok := l.index[id]
	return o, ok
}

// untrack drops a no longer open order from the leveraged index
func (l *Ledger) untrack(o *Order) {
	open := l.leveraged[o.Symbol]
	for i, candidate := range open {
		if candidate == o {
			l.leveraged[o.Symbol] = append(open[:i:i], open[i+1:]...)
			return
		}
	}
}

// openLeveraged returns a snapshot of the open leveraged orders of a symbol
func (l *Ledger) openLeveraged(symbol string) []*Order {
	return append([]*Order(nil), l.leveraged[symbol]...)
}

// leveragedSymbols lists every symbol that ever had a leveraged order, in first-seen order
func (l *Ledger) leveragedSymbols() []string {
	return l.symbols
}
