package engine

import (
	"go.uber.org/zap"
)

// OpenRequest describes a create-order command
type OpenRequest struct {
	// CommandID is the correlation id of the command; it determines the order id
	CommandID string
	Side      string
	Symbol    string
	Qty       *float64
	Leverage  *int
	Margin    *float64
}

// Open executes a spot order (no leverage) or a margin order (leverage + margin) and
// returns the new order id. Opening twice with the same CommandID returns the existing
// order without touching the ledger.
func (e *Engine) Open(req OpenRequest) (string, error) {
	side, err := ParseSide(req.Side)
	if err != nil {
		return "", err
	}
	if req.Symbol == "" {
		return "", newError(CodeInvalidArgument, "symbol cannot be empty")
	}

	orderID := newOrderID(req.CommandID)
	if existing, ok := e.ledger.order(orderID); ok {
		e.logger.Debug("order already opened for command",
			zap.String("command_id", req.CommandID),
			zap.String("order_id", existing.ID),
		)
		return existing.ID, nil
	}

	if req.Leverage == nil {
		if req.Margin != nil {
			return "", newError(CodeInvalidArgument, "margin requires leverage")
		}
		return e.openSpot(orderID, side, req)
	}
	return e.openMargin(orderID, side, req)
}

func (e *Engine) openSpot(orderID string, side Side, req OpenRequest) (string, error) {
	if req.Qty == nil || *req.Qty <= 0 {
		return "", newError(CodeInvalidArgument, "qty should be greater than 0")
	}
	qty := *req.Qty

	quote, ok := e.prices.Get(req.Symbol)
	if !ok {
		return "", newError(CodePriceUnavailable, "price unavailable for %s", req.Symbol)
	}
	price := quote.entryPrice(side)

	notional := price * qty
	usd := e.ledger.usd()
	if notional > usd {
		return "", newError(CodeInsufficientBalance, "Insufficient balance")
	}

	holding := e.ledger.balance(req.Symbol)
	e.ledger.setUSD(usd - notional)
	e.ledger.setBalance(req.Symbol, BalanceEntry{Qty: holding.Qty + qty, Side: side})
	e.ledger.store(&Order{
		ID:        orderID,
		Side:      side,
		Symbol:    req.Symbol,
		Qty:       qty,
		OpenPrice: price,
		Status:    StatusOpen,
	})

	e.logger.Info("spot order opened",
		zap.String("order_id", orderID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(side)),
		zap.Float64("qty", qty),
		zap.Float64("price", price),
		zap.Float64("usd_balance", e.ledger.usd()),
	)
	return orderID, nil
}

func (e *Engine) openMargin(orderID string, side Side, req OpenRequest) (string, error) {
	leverage := *req.Leverage
	if leverage < 1 || leverage > e.cfg.MaxLeverage {
		return "", newError(CodeInvalidArgument, "leverage must be between 1 and %d", e.cfg.MaxLeverage)
	}
	if req.Margin == nil || *req.Margin <= 0 {
		return "", newError(CodeInvalidArgument, "margin should be greater than 0")
	}
	margin := *req.Margin

	quote, ok := e.prices.Get(req.Symbol)
	if !ok {
		return "", newError(CodePriceUnavailable, "price unavailable for %s", req.Symbol)
	}

	usd := e.ledger.usd()
	if margin > usd {
		return "", newError(CodeInsufficientBalance, "Insufficient balance")
	}

	price := quote.entryPrice(side)
	positionSize := margin * float64(leverage)
	qty := positionSize / price

	holding := e.ledger.balance(req.Symbol)
	e.ledger.setUSD(usd - margin)
	e.ledger.setBalance(req.Symbol, BalanceEntry{Qty: holding.Qty + qty, Side: side})
	e.ledger.store(&Order{
		ID:        orderID,
		Side:      side,
		Symbol:    req.Symbol,
		Qty:       qty,
		OpenPrice: price,
		Status:    StatusOpen,
		Leverage:  &leverage,
		Margin:    &margin,
	})

	e.logger.Info("margin order opened",
		zap.String("order_id", orderID),
		zap.String("symbol", req.Symbol),
		zap.String("side", string(side)),
		zap.Int("leverage", leverage),
		zap.Float64("margin", margin),
		zap.Float64("qty", qty),
		zap.Float64("price", price),
		zap.Float64("usd_balance", e.ledger.usd()),
	)
	return orderID, nil
}
