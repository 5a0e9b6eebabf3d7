package engine

import (
	"go.uber.org/zap"
)

// ApplyTick stores a quote and runs the liquidation sweep for its symbol
func (e *Engine) ApplyTick(symbol string, bid, ask float64) ([]string, error) {
	if err := e.prices.Set(symbol, bid, ask); err != nil {
		return nil, err
	}
	return e.Sweep(symbol), nil
}

// Sweep force-closes leveraged open orders whose equity is at or below maintenance margin.
// An empty symbol sweeps every quoted symbol. Returns the liquidated order ids.
// Only open leveraged orders are visited.
func (e *Engine) Sweep(symbol string) []string {
	symbols := []string{symbol}
	if symbol == "" {
		symbols = e.ledger.leveragedSymbols()
	}

	var liquidated []string
	for _, s := range symbols {
		quote, ok := e.prices.Get(s)
		if !ok {
			continue
		}

		for _, o := range e.ledger.openLeveraged(s) {
			mark := quote.markPrice(o.Side)
			equity := *o.Margin + o.PnL(mark)
			maintenance := o.PositionSize() * e.cfg.MaintenanceMarginRatio
			if equity > maintenance {
				continue
			}

			e.logger.Warn("liquidating order",
				zap.String("order_id", o.ID),
				zap.String("symbol", o.Symbol),
				zap.Float64("mark_price", mark),
				zap.Float64("equity", equity),
				zap.Float64("maintenance_margin", maintenance),
			)
			e.closeAt(o, mark)
			liquidated = append(liquidated, o.ID)
		}
	}

	return liquidated
}
