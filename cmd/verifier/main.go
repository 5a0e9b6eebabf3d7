package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ismaiel54/margin-exchange/internal/config"
	"github.com/ismaiel54/margin-exchange/internal/logging"
	"github.com/ismaiel54/margin-exchange/internal/msg"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig("verifier")

	var (
		duration = flag.Duration("duration", 30*time.Second, "How long to tail the reply stream")
		fromEnd  = flag.Bool("from-end", false, "Only count replies written after start")
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

	logger.Info("starting verifier",
		zap.Duration("duration", *duration),
		zap.String("transport", cfg.Transport),
		zap.String("reply_stream", cfg.ReplyStream),
	)

	log, err := msg.OpenLog(cfg, cfg.ServiceName, logger)
	if err != nil {
		logger.Fatal("failed to open transport", zap.Error(err))
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	after := msg.Before
	if *fromEnd {
		if after, err = log.Last(ctx, cfg.ReplyStream); err != nil {
			logger.Fatal("failed to read reply stream end", zap.Error(err))
		}
	}

	counter := newReplyCounter()
	tailer := msg.NewTailer(log, cfg.ReplyStream, after, logger)
	err = tailer.Run(ctx, func(ctx context.Context, rec msg.Record) error {
		counter.observe(rec)
		return nil
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("tailer error", zap.Error(err))
	}

	report := counter.report()

	fmt.Println("\n=== Verification Results ===")
	fmt.Printf("Total replies consumed: %d\n", report.Total)
	fmt.Printf("Unique correlation ids: %d\n", report.Unique)
	fmt.Printf("Malformed replies: %d\n", report.Malformed)
	fmt.Printf("Duplicate correlation ids: %d\n", len(report.Duplicates))

	if len(report.Duplicates) > 0 {
		fmt.Println("\nDuplicates found:")
		for id, count := range report.Duplicates {
			fmt.Printf("  Correlation ID: %s, Count: %d, First Offset: %d\n", id, count, report.FirstOffset[id])
		}
		fmt.Println("\nVERIFICATION FAILED: duplicate replies detected")
		os.Exit(1)
	}

	fmt.Println("\nVERIFICATION PASSED: every correlation id was replied to at most once")
}
