package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ismaiel54/margin-exchange/internal/config"
	"github.com/ismaiel54/margin-exchange/internal/correlator"
	"github.com/ismaiel54/margin-exchange/internal/dispatcher"
	"github.com/ismaiel54/margin-exchange/internal/engine"
	"github.com/ismaiel54/margin-exchange/internal/logging"
	"github.com/ismaiel54/margin-exchange/internal/market"
	"github.com/ismaiel54/margin-exchange/internal/msg"
	"github.com/ismaiel54/margin-exchange/internal/protocol"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig("exchange-sim")

	var (
		transport = flag.String("transport", config.TransportMemory, "Log backend: memory or pebble")
		symbols   = flag.String("symbols", "BTCUSDT=50000,ETHUSDT=3000", "Symbols and starting mid prices")
		rounds    = flag.Int("rounds", 200, "Tick rounds to publish")
		interval  = flag.Duration("interval", 10*time.Millisecond, "Time between tick rounds")
		seed      = flag.Int64("seed", 42, "Random seed for prices")
		leverage  = flag.Int("leverage", 100, "Leverage of the scripted margin trades")
	)
	flag.Parse()
	cfg.Transport = *transport

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Transport == config.TransportKafka {
		logger.Fatal("exchange-sim runs in-process; use memory or pebble")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	start, order, err := market.ParseSymbols(*symbols)
	if err != nil {
		logger.Fatal("invalid symbols", zap.Error(err))
	}

	log, err := msg.OpenLog(cfg, cfg.ServiceName, logger)
	if err != nil {
		logger.Fatal("failed to open transport", zap.Error(err))
	}
	defer log.Close()

	producer := msg.NewProducer(log, cfg.LogMaxLen, logger)
	defer producer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the pebble log keeps earlier runs; resume the engine after them
	after, err := log.Last(ctx, cfg.CommandStream)
	if err != nil {
		logger.Fatal("failed to read command stream", zap.Error(err))
	}

	eng := engine.New(engine.Config{
		InitialUSDBalance:      cfg.InitialUSDBalance,
		MaxLeverage:            cfg.MaxLeverage,
		MaintenanceMarginRatio: cfg.MaintenanceMarginRatio,
		FloorNegativeEquity:    cfg.FloorNegativeEquity,
	}, logger)
	disp := dispatcher.New(eng, log, cfg.CommandStream, after, dispatcher.NewDirectReplier(producer, cfg.ReplyStream), logger)
	go func() {
		if err := disp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatcher stopped", zap.Error(err))
		}
	}()

	client := correlator.New(log, producer, correlator.Options{
		CommandStream: cfg.CommandStream,
		ReplyStream:   cfg.ReplyStream,
		Timeout:       cfg.ReplyTimeout,
	}, logger)
	if err := client.Start(ctx); err != nil {
		logger.Fatal("failed to start correlator", zap.Error(err))
	}
	defer client.Close()

	// one round first so every symbol has a quote
	walker := market.NewWalker(*seed, start, order, 0.0002, 0.002)
	market.Feed(ctx, producer, cfg.CommandStream, walker, *interval, 1, logger)

	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		sent, failed := market.Feed(ctx, producer, cfg.CommandStream, walker, *interval, *rounds, logger)
		logger.Info("tick feed finished", zap.Int("sent", sent), zap.Int("failed", failed))
	}()

	tr := &trader{client: client, logger: logger}
	if err := tr.run(ctx, order, *leverage, feedDone); err != nil {
		logger.Error("scripted trader failed", zap.Error(err))
		os.Exit(1)
	}
}

type trader struct {
	client *correlator.Correlator
	logger *zap.Logger
}

// run opens one spot and one margin position per symbol, lets the ticks play out,
// closes whatever survived and prints the account
func (t *trader) run(ctx context.Context, symbols []string, leverage int, feedDone <-chan struct{}) error {
	var spotIDs []string
	for i, symbol := range symbols {
		side := "buy"
		if i%2 == 1 {
			side = "sell"
		}

		qty := 0.1
		var spot protocol.CreateOrderResult
		if err := t.client.Call(ctx, &protocol.CreateOrder{Symbol: symbol, Type: side, Qty: &qty}, &spot); err != nil {
			return fmt.Errorf("spot %s: %w", symbol, err)
		}
		spotIDs = append(spotIDs, spot.OrderID)

		margin := 1000.0
		lev := leverage
		var leveraged protocol.CreateOrderResult
		if err := t.client.Call(ctx, &protocol.CreateOrder{Symbol: symbol, Type: side, Leverage: &lev, Margin: &margin}, &leveraged); err != nil {
			return fmt.Errorf("margin %s: %w", symbol, err)
		}
		t.logger.Info("positions opened",
			zap.String("symbol", symbol),
			zap.String("side", side),
			zap.String("spot_order_id", spot.OrderID),
			zap.String("margin_order_id", leveraged.OrderID),
		)
	}

	select {
	case <-feedDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, id := range spotIDs {
		var closed protocol.CloseTradeResult
		if err := t.client.Call(ctx, &protocol.CloseTrade{OrderID: id}, &closed); err != nil {
			return fmt.Errorf("close %s: %w", id, err)
		}
	}

	var open protocol.TradesResult
	if err := t.client.Call(ctx, &protocol.GetOpenTrades{}, &open); err != nil {
		return err
	}
	for _, o := range open.Orders {
		var closed protocol.CloseTradeResult
		if err := t.client.Call(ctx, &protocol.CloseTrade{OrderID: o.OrderID}, &closed); err != nil {
			return fmt.Errorf("close %s: %w", o.OrderID, err)
		}
	}

	var history protocol.TradesResult
	if err := t.client.Call(ctx, &protocol.GetClosedTrades{}, &history); err != nil {
		return err
	}
	var balance protocol.BalanceResult
	if err := t.client.Call(ctx, &protocol.GetBalance{}, &balance); err != nil {
		return err
	}

	fmt.Printf("\n=== Simulation Summary ===\n")
	for _, o := range history.Orders {
		lev := "spot"
		if o.Leverage != nil {
			lev = fmt.Sprintf("%dx", *o.Leverage)
		}
		var pnl float64
		if o.PnL != nil {
			pnl = *o.PnL
		}
		var closePrice float64
		if o.ClosePrice != nil {
			closePrice = *o.ClosePrice
		}
		fmt.Printf("%-10s %-4s %-5s open=%.2f close=%.2f pnl=%.2f\n", o.Symbol, o.Type, lev, o.OpenPrice, closePrice, pnl)
	}
	fmt.Printf("USD balance: %.2f\n\n", balance.USD)
	return nil
}
