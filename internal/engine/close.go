package engine

import (
	"go.uber.org/zap"
)

// CloseResult reports a closed order and the usd credited for it
type CloseResult struct {
	Order    Order
	Credited float64
}

// Close closes an open order at the current mark price
func (e *Engine) Close(orderID string) (CloseResult, error) {
	o, ok := e.ledger.order(orderID)
	if !ok || o.Status != StatusOpen {
		return CloseResult{}, newError(CodeNotFound, "order not found")
	}

	quote, ok := e.prices.Get(o.Symbol)
	if !ok {
		return CloseResult{}, newError(CodePriceUnavailable, "price unavailable for %s", o.Symbol)
	}

	credited := e.closeAt(o, quote.markPrice(o.Side))
	return CloseResult{Order: o.clone(), Credited: credited}, nil
}

// closeAt settles an open order at mark and marks it CLOSED. Callers check the status.
func (e *Engine) closeAt(o *Order, mark float64) float64 {
	var credited float64
	if o.IsLeveraged() {
		credited = *o.Margin + o.PnL(mark)
		if credited < 0 && e.cfg.FloorNegativeEquity {
			credited = 0
		}
		e.ledger.untrack(o)
	} else {
		credited = mark * o.Qty
	}

	holding := e.ledger.balance(o.Symbol)
	e.ledger.setBalance(o.Symbol, BalanceEntry{Qty: holding.Qty - o.Qty, Side: holding.Side})
	e.ledger.setUSD(e.ledger.usd() + credited)
	o.Status = StatusClosed
	o.ClosePrice = &mark

	e.logger.Info("order closed",
		zap.String("order_id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.Float64("close_price", mark),
		zap.Float64("credited", credited),
		zap.Float64("usd_balance", e.ledger.usd()),
	)
	return credited
}
