package main

import (
	"fmt"

	"github.com/ismaiel54/margin-exchange/internal/protocol"
)

type options struct {
	kind     string
	symbol   string
	side     string
	qty      float64
	leverage int
	margin   float64
	orderID  string
}

// buildCommand maps CLI flags to a command; zero qty/leverage/margin mean "not set"
func buildCommand(o options) (protocol.Command, error) {
	switch protocol.Kind(o.kind) {
	case protocol.KindCreateOrder:
		cmd := &protocol.CreateOrder{Symbol: o.symbol, Type: o.side}
		if o.qty != 0 {
			qty := o.qty
			cmd.Qty = &qty
		}
		if o.leverage != 0 {
			leverage := o.leverage
			cmd.Leverage = &leverage
		}
		if o.margin != 0 {
			margin := o.margin
			cmd.Margin = &margin
		}
		return cmd, nil
	case protocol.KindCloseTrade:
		if o.orderID == "" {
			return nil, fmt.Errorf("-order-id is required for %s", o.kind)
		}
		return &protocol.CloseTrade{OrderID: o.orderID}, nil
	case protocol.KindGetBalance:
		return &protocol.GetBalance{}, nil
	case protocol.KindGetAssets:
		return &protocol.GetAssets{}, nil
	case protocol.KindGetOpenTrades:
		return &protocol.GetOpenTrades{}, nil
	case protocol.KindGetClosedTrades:
		return &protocol.GetClosedTrades{}, nil
	case protocol.KindTick:
		return nil, fmt.Errorf("ticks are published by tick-feeder")
	default:
		return nil, fmt.Errorf("unknown kind %q", o.kind)
	}
}
