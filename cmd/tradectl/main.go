package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/ismaiel54/margin-exchange/internal/config"
	"github.com/ismaiel54/margin-exchange/internal/correlator"
	"github.com/ismaiel54/margin-exchange/internal/logging"
	"github.com/ismaiel54/margin-exchange/internal/msg"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig("tradectl")

	var o options
	flag.StringVar(&o.kind, "kind", "get-balance", "Command kind: create-order, close-trade, get-balance, get-assets, get-open-trades, get-closed-trades")
	flag.StringVar(&o.symbol, "symbol", "BTCUSDT", "Symbol for create-order")
	flag.StringVar(&o.side, "side", "buy", "Order side for create-order: buy or sell")
	flag.Float64Var(&o.qty, "qty", 0, "Spot quantity")
	flag.IntVar(&o.leverage, "leverage", 0, "Leverage for a margin order")
	flag.Float64Var(&o.margin, "margin", 0, "Margin for a margin order")
	flag.StringVar(&o.orderID, "order-id", "", "Order id for close-trade")
	brokers := flag.String("brokers", cfg.KafkaBrokers, "Kafka broker addresses")
	timeout := flag.Duration("timeout", cfg.ReplyTimeout, "Reply timeout")
	flag.Parse()

	cfg.KafkaBrokers = *brokers
	cfg.ReplyTimeout = *timeout

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cmd, err := buildCommand(o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	if cfg.Transport != config.TransportKafka {
		fmt.Fprintf(os.Stderr, "tradectl needs TRANSPORT=kafka; %s logs are private to the engine process\n", cfg.Transport)
		os.Exit(2)
	}

	log, err := msg.OpenLog(cfg, cfg.ServiceName, logger)
	if err != nil {
		logger.Fatal("failed to open transport", zap.Error(err))
	}
	defer log.Close()

	producer := msg.NewProducer(log, cfg.LogMaxLen, logger)
	defer producer.Close()

	ctx := context.Background()
	c := correlator.New(log, producer, correlator.Options{
		CommandStream: cfg.CommandStream,
		ReplyStream:   cfg.ReplyStream,
		Timeout:       cfg.ReplyTimeout,
	}, logger)
	if err := c.Start(ctx); err != nil {
		logger.Fatal("failed to start correlator", zap.Error(err))
	}
	defer c.Close()

	rep, err := c.Send(ctx, cmd)
	if err != nil {
		logger.Error("command failed",
			zap.String("kind", string(cmd.Kind())),
			zap.String("command_id", cmd.CommandID()),
			zap.Error(err),
		)
		os.Exit(1)
	}

	id, _ := json.Marshal(rep.ID)
	out, _ := json.MarshalIndent(map[string]json.RawMessage{
		"id":    id,
		"error": rep.Error,
		"data":  rep.Data,
	}, "", "  ")
	fmt.Println(string(out))

	if err := rep.Err(); err != nil {
		os.Exit(1)
	}
}
