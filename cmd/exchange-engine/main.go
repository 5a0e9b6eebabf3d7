package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/ismaiel54/margin-exchange/internal/chaos"
	"github.com/ismaiel54/margin-exchange/internal/config"
	"github.com/ismaiel54/margin-exchange/internal/dispatcher"
	"github.com/ismaiel54/margin-exchange/internal/engine"
	"github.com/ismaiel54/margin-exchange/internal/journal"
	"github.com/ismaiel54/margin-exchange/internal/logging"
	"github.com/ismaiel54/margin-exchange/internal/msg"
	"github.com/ismaiel54/margin-exchange/internal/observability"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig("exchange-engine")

	// Initialize logger
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("starting exchange-engine service",
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("http_port", cfg.HTTPPort),
		zap.String("transport", cfg.Transport),
		zap.String("command_stream", cfg.CommandStream),
		zap.String("reply_stream", cfg.ReplyStream),
		zap.String("start_cursor", cfg.StartCursor),
		zap.Bool("journal_enabled", cfg.JournalEnabled),
		zap.Bool("floor_negative_equity", cfg.FloorNegativeEquity),
	)
	if cfg.Transport == config.TransportMemory {
		logger.Warn("memory transport is private to this process; no client can reach the engine")
	}

	// Optional continuous profiling
	if cfg.PyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.ServiceName,
			ServerAddress:   cfg.PyroscopeAddr,
			Logger:          logger.Sugar(),
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logger.Fatal("failed to start profiler", zap.Error(err))
		}
		defer func() { _ = profiler.Stop() }()
		logger.Info("profiling enabled", zap.String("pyroscope_addr", cfg.PyroscopeAddr))
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal("failed to create data directory", zap.Error(err))
	}

	// Open transport
	log, err := msg.OpenLog(cfg, cfg.ServiceName, logger)
	if err != nil {
		logger.Fatal("failed to open transport", zap.Error(err))
	}
	defer log.Close()

	chaosCfg := chaos.LoadConfig()
	if chaosCfg.Enabled {
		logger.Warn("fault injection enabled",
			zap.String("target_stream", chaosCfg.TargetStream),
			zap.Int("drop_pct", chaosCfg.DropPct),
		)
		log = chaos.Wrap(log, chaos.New(chaosCfg, logger))
	}

	producer := msg.NewProducer(log, cfg.LogMaxLen, logger)
	defer producer.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Replies go straight to the reply stream, or through the journal outbox
	var replier dispatcher.Replier = dispatcher.NewDirectReplier(producer, cfg.ReplyStream)
	publisherErrCh := make(chan error, 1)
	if cfg.JournalEnabled {
		dbPath := filepath.Join(cfg.DataDir, "journal.db")
		store, err := journal.Open(dbPath)
		if err != nil {
			logger.Fatal("failed to open journal", zap.Error(err))
		}
		defer store.Close()
		logger.Info("journal opened", zap.String("path", dbPath))

		replier = journal.NewReplier(store, logger)
		publisher := journal.NewPublisher(store, producer, cfg.ReplyStream, logger)
		go func() {
			if err := publisher.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				publisherErrCh <- err
			}
		}()
	}

	startOffset, err := cfg.StartOffset()
	if err != nil {
		logger.Fatal("invalid start cursor", zap.Error(err))
	}

	eng := engine.New(engine.Config{
		InitialUSDBalance:      cfg.InitialUSDBalance,
		MaxLeverage:            cfg.MaxLeverage,
		MaintenanceMarginRatio: cfg.MaintenanceMarginRatio,
		FloorNegativeEquity:    cfg.FloorNegativeEquity,
	}, logger)
	disp := dispatcher.New(eng, log, cfg.CommandStream, startOffset, replier, logger)

	// Create health checker
	healthChecker := observability.NewHealthChecker(logger)

	// Create gRPC server
	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	// Start HTTP health server
	httpErrCh := make(chan error, 1)
	go func() {
		if err := healthChecker.StartHTTPServer(cfg.HTTPAddr()); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()

	// Start dispatcher
	dispatcherErrCh := make(chan error, 1)
	go func() {
		if err := disp.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			dispatcherErrCh <- err
		}
	}()

	// Wait for the dispatcher to start tailing
	readyCtx, readyCancel := context.WithTimeout(runCtx, 5*time.Second)
	for !disp.IsRunning() && readyCtx.Err() == nil {
		time.Sleep(50 * time.Millisecond)
	}
	readyCancel()
	if disp.IsRunning() {
		healthChecker.SetTransportReady(true)
	} else {
		logger.Warn("dispatcher not running yet")
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
	case err := <-httpErrCh:
		logger.Error("HTTP server error", zap.Error(err))
	case err := <-dispatcherErrCh:
		logger.Error("dispatcher error", zap.Error(err))
	case err := <-publisherErrCh:
		logger.Error("publisher error", zap.Error(err))
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	healthChecker.SetTransportReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("exchange-engine service stopped", zap.Int64("command_cursor", disp.Cursor()))
}
