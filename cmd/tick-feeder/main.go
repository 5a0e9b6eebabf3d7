package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ismaiel54/margin-exchange/internal/config"
	"github.com/ismaiel54/margin-exchange/internal/logging"
	"github.com/ismaiel54/margin-exchange/internal/market"
	"github.com/ismaiel54/margin-exchange/internal/msg"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig("tick-feeder")

	var (
		symbols  = flag.String("symbols", "BTCUSDT=50000,ETHUSDT=3000", "Symbols and starting mid prices")
		interval = flag.Duration("interval", 500*time.Millisecond, "Time between tick rounds")
		count    = flag.Int("count", 0, "Number of tick rounds (0 runs until interrupted)")
		seed     = flag.Int64("seed", 42, "Random seed for deterministic generation")
		spread   = flag.Float64("spread", 0.0002, "Relative bid/ask spread")
		step     = flag.Float64("step", 0.001, "Maximum relative move per tick")
		brokers  = flag.String("brokers", cfg.KafkaBrokers, "Kafka broker addresses")
	)
	flag.Parse()
	cfg.KafkaBrokers = *brokers

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	start, order, err := market.ParseSymbols(*symbols)
	if err != nil {
		logger.Fatal("invalid symbols", zap.Error(err))
	}
	if cfg.Transport != config.TransportKafka {
		logger.Fatal("tick-feeder needs TRANSPORT=kafka", zap.String("transport", cfg.Transport))
	}

	logger.Info("starting tick-feeder",
		zap.Strings("symbols", order),
		zap.Duration("interval", *interval),
		zap.Int("count", *count),
		zap.Int64("seed", *seed),
		zap.Strings("brokers", cfg.Brokers()),
	)

	log, err := msg.OpenLog(cfg, cfg.ServiceName, logger)
	if err != nil {
		logger.Fatal("failed to open transport", zap.Error(err))
	}
	defer log.Close()

	producer := msg.NewProducer(log, cfg.LogMaxLen, logger)
	defer producer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sent, failed := market.Feed(ctx, producer, cfg.CommandStream, market.NewWalker(*seed, start, order, *spread, *step), *interval, *count, logger)

	logger.Info("tick-feeder completed",
		zap.Int("sent", sent),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		os.Exit(1)
	}
}
