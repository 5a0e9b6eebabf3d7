package engine

import (
	"strings"
)

// USD is the reserve currency balance key
const USD = "usd"

// Side is the direction of an order
type Side string

// Order sides
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts "buy"/"sell" in any case
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", newError(CodeInvalidArgument, "Invalid order type it should be `buy` | `sell`")
	}
}

// Status is the lifecycle state of an order
type Status string

// Order statuses
const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Order is a spot or leveraged position. Leverage and Margin are both set or both nil.
type Order struct {
	ID         string
	Side       Side
	Symbol     string
	Qty        float64
	OpenPrice  float64
	Status     Status
	Leverage   *int
	Margin     *float64
	ClosePrice *float64
}

// IsLeveraged reports whether the order was opened in margin mode
func (o *Order) IsLeveraged() bool {
	return o.Leverage != nil && o.Margin != nil
}

// PnL returns the profit of the position valued at mark
func (o *Order) PnL(mark float64) float64 {
	if o.Side == SideBuy {
		return (mark - o.OpenPrice) * o.Qty
	}
	return (o.OpenPrice - mark) * o.Qty
}

// PositionSize is margin * leverage, zero for spot orders
func (o *Order) PositionSize() float64 {
	if !o.IsLeveraged() {
		return 0
	}
	return *o.Margin * float64(*o.Leverage)
}

func (o *Order) clone() Order {
	c := *o
	if o.Leverage != nil {
		v := *o.Leverage
		c.Leverage = &v
	}
	if o.Margin != nil {
		v := *o.Margin
		c.Margin = &v
	}
	if o.ClosePrice != nil {
		v := *o.ClosePrice
		c.ClosePrice = &v
	}
	return c
}

// ClosedOrder is a closed order with its realised PnL
type ClosedOrder struct {
	Order
	PnL float64
}

// BalanceEntry is the holding of one asset
type BalanceEntry struct {
	Qty  float64
	Side Side
}
