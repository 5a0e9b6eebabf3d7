package engine

// Balance returns the usd balance
func (e *Engine) Balance() float64 {
	return e.ledger.usd()
}

// Assets returns a copy of every balance entry
func (e *Engine) Assets() map[string]BalanceEntry {
	out := make(map[string]BalanceEntry, len(e.ledger.balances))
	for k, v := range e.ledger.balances {
		out[k] = v
	}
	return out
}

// Order returns a copy of an order by id
func (e *Engine) Order(id string) (Order, bool) {
	o, ok := e.ledger.order(id)
	if !ok {
		return Order{}, false
	}
	return o.clone(), true
}

// OpenOrders returns copies of open orders in open order
func (e *Engine) OpenOrders() []Order {
	out := make([]Order, 0)
	for _, o := range e.ledger.orders {
		if o.Status == StatusOpen {
			out = append(out, o.clone())
		}
	}
	return out
}

// ClosedOrders returns closed orders with PnL computed from the stored open and close prices
func (e *Engine) ClosedOrders() []ClosedOrder {
	out := make([]ClosedOrder, 0)
	for _, o := range e.ledger.orders {
		if o.Status != StatusClosed || o.ClosePrice == nil {
			continue
		}
		out = append(out, ClosedOrder{Order: o.clone(), PnL: o.PnL(*o.ClosePrice)})
	}
	return out
}
