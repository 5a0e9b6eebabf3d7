package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/ismaiel54/margin-exchange/internal/engine"
	"github.com/ismaiel54/margin-exchange/internal/msg"
	"github.com/ismaiel54/margin-exchange/internal/protocol"
	"go.uber.org/zap"
)

const tradeCreated = "Trade created successfully"

// Dispatcher is the single consumer of the command stream. It owns the engine;
// every command is executed on the tailer goroutine, one at a time.
type Dispatcher struct {
	engine  *engine.Engine
	replier Replier
	tailer  *msg.Tailer
	logger  *zap.Logger
}

// New creates a dispatcher that resumes after the given command offset
func New(eng *engine.Engine, log msg.Log, stream string, after int64, replier Replier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		engine:  eng,
		replier: replier,
		tailer:  msg.NewTailer(log, stream, after, logger),
		logger:  logger,
	}
}

// Run tails the command stream until ctx is done
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.tailer.Run(ctx, d.HandleRecord)
}

// IsRunning reports whether the command tailer is running
func (d *Dispatcher) IsRunning() bool {
	return d.tailer.IsRunning()
}

// Cursor returns the offset of the last handled command
func (d *Dispatcher) Cursor() int64 {
	return d.tailer.Cursor()
}

// HandleRecord executes one command record and publishes its reply.
// Records that cannot be correlated are logged and skipped.
func (d *Dispatcher) HandleRecord(ctx context.Context, rec msg.Record) error {
	payload, err := protocol.CommandPayload(rec)
	if err != nil {
		d.logger.Warn("skipping command record", zap.Int64("offset", rec.Offset), zap.Error(err))
		return nil
	}

	header, err := protocol.DecodeHeader(payload)
	if err != nil {
		d.logger.Warn("skipping malformed command",
			zap.Int64("offset", rec.Offset),
			zap.String("command_id", header.ID),
			zap.Error(err),
		)
		return nil
	}

	cmd, err := protocol.DecodeCommand(header, payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownKind) || header.ID == "" {
			d.logger.Warn("skipping command",
				zap.Int64("offset", rec.Offset),
				zap.String("command_id", header.ID),
				zap.String("kind", string(header.Kind)),
				zap.Error(err),
			)
			return nil
		}
		if header.Kind == protocol.KindTick {
			d.logger.Warn("skipping malformed tick", zap.Int64("offset", rec.Offset), zap.Error(err))
			return nil
		}
		rep := protocol.NewErrorReply(header.ID, engine.CodeInvalidArgument.StatusCode(), err.Error())
		return d.replier.Reply(ctx, rec.Offset, header.Kind, rep)
	}

	if cmd.CommandID() == "" && cmd.Kind() != protocol.KindTick {
		d.logger.Warn("skipping command without id",
			zap.Int64("offset", rec.Offset),
			zap.String("kind", string(cmd.Kind())),
		)
		return nil
	}

	rep, ok := d.execute(cmd)
	if !ok {
		return nil
	}

	d.logger.Debug("command handled",
		zap.Int64("offset", rec.Offset),
		zap.String("command_id", cmd.CommandID()),
		zap.String("kind", string(cmd.Kind())),
		zap.Bool("ok", rep.OK()),
	)

	if err := d.replier.Reply(ctx, rec.Offset, cmd.Kind(), rep); err != nil {
		return fmt.Errorf("failed to reply to %s: %w", cmd.CommandID(), err)
	}
	return nil
}

// execute runs cmd against the engine. ok is false for commands that are never replied to.
func (d *Dispatcher) execute(cmd protocol.Command) (rep protocol.Reply, ok bool) {
	id := cmd.CommandID()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("command panicked",
				zap.String("command_id", id),
				zap.String("kind", string(cmd.Kind())),
				zap.Any("panic", r),
			)
			rep = protocol.NewErrorReply(id, engine.CodeInternal.StatusCode(), "Internal Server Error")
			ok = cmd.Kind() != protocol.KindTick
		}
	}()

	var data any
	var err error

	switch c := cmd.(type) {
	case *protocol.Tick:
		d.handleTick(c)
		return protocol.Reply{}, false
	case *protocol.CreateOrder:
		data, err = d.createOrder(c)
	case *protocol.CloseTrade:
		data, err = d.closeTrade(c)
	case *protocol.GetBalance:
		data = protocol.BalanceResult{USD: d.engine.Balance()}
	case *protocol.GetAssets:
		data = d.assets()
	case *protocol.GetOpenTrades:
		data = d.openTrades()
	case *protocol.GetClosedTrades:
		data = d.closedTrades()
	default:
		err = fmt.Errorf("unhandled command kind %q", cmd.Kind())
	}

	if err != nil {
		code := engine.CodeOf(err)
		if code == engine.CodeInternal {
			d.logger.Error("command failed",
				zap.String("command_id", id),
				zap.String("kind", string(cmd.Kind())),
				zap.Error(err),
			)
		}
		return protocol.NewErrorReply(id, code.StatusCode(), err.Error()), true
	}

	rep, err = protocol.NewDataReply(id, data)
	if err != nil {
		return protocol.NewErrorReply(id, engine.CodeInternal.StatusCode(), err.Error()), true
	}
	return rep, true
}

func (d *Dispatcher) handleTick(t *protocol.Tick) {
	liquidated, err := d.engine.ApplyTick(t.Symbol, t.Bid, t.Ask)
	if err != nil {
		d.logger.Warn("rejected tick",
			zap.String("symbol", t.Symbol),
			zap.Float64("bid", t.Bid),
			zap.Float64("ask", t.Ask),
			zap.Error(err),
		)
		return
	}
	if len(liquidated) > 0 {
		d.logger.Info("liquidated orders",
			zap.String("symbol", t.Symbol),
			zap.Strings("order_ids", liquidated),
		)
	}
}

func (d *Dispatcher) createOrder(c *protocol.CreateOrder) (protocol.CreateOrderResult, error) {
	orderID, err := d.engine.Open(engine.OpenRequest{
		CommandID: c.CommandID(),
		Side:      c.Type,
		Symbol:    c.Symbol,
		Qty:       c.Qty,
		Leverage:  c.Leverage,
		Margin:    c.Margin,
	})
	if err != nil {
		return protocol.CreateOrderResult{}, err
	}
	return protocol.CreateOrderResult{OrderID: orderID, Message: tradeCreated}, nil
}

func (d *Dispatcher) closeTrade(c *protocol.CloseTrade) (protocol.CloseTradeResult, error) {
	res, err := d.engine.Close(c.OrderID)
	if err != nil {
		return protocol.CloseTradeResult{}, err
	}
	return protocol.CloseTradeResult{
		OrderID:    res.Order.ID,
		ClosePrice: *res.Order.ClosePrice,
		Credited:   res.Credited,
		Message:    "Trade closed successfully",
	}, nil
}

func (d *Dispatcher) assets() protocol.AssetsResult {
	out := protocol.AssetsResult{Assets: make(map[string]protocol.AssetView)}
	for asset, entry := range d.engine.Assets() {
		out.Assets[asset] = protocol.AssetView{Qty: entry.Qty, Type: string(entry.Side)}
	}
	return out
}

func (d *Dispatcher) openTrades() protocol.TradesResult {
	out := protocol.TradesResult{Orders: make([]protocol.TradeView, 0)}
	for _, o := range d.engine.OpenOrders() {
		out.Orders = append(out.Orders, tradeView(o))
	}
	return out
}

func (d *Dispatcher) closedTrades() protocol.TradesResult {
	out := protocol.TradesResult{Orders: make([]protocol.TradeView, 0)}
	for _, c := range d.engine.ClosedOrders() {
		v := tradeView(c.Order)
		pnl := c.PnL
		v.PnL = &pnl
		out.Orders = append(out.Orders, v)
	}
	return out
}

func tradeView(o engine.Order) protocol.TradeView {
	return protocol.TradeView{
		OrderID:    o.ID,
		Type:       string(o.Side),
		Symbol:     o.Symbol,
		Qty:        o.Qty,
		OpenPrice:  o.OpenPrice,
		Status:     string(o.Status),
		Leverage:   o.Leverage,
		Margin:     o.Margin,
		ClosePrice: o.ClosePrice,
	}
}
