package engine

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// orderNamespace seeds order ids derived from command ids, so replaying the same
// command stream yields the same order ids
var orderNamespace = uuid.MustParse("6f1c9a52-3b0e-4f59-9a43-6c2b1d7e8a10")

// Config holds ledger settings
type Config struct {
	InitialUSDBalance      float64
	MaxLeverage            int
	MaintenanceMarginRatio float64
	// FloorNegativeEquity credits 0 instead of a negative margin settlement
	FloorNegativeEquity bool
}

// DefaultConfig returns the settings of a fresh demo account
func DefaultConfig() Config {
	return Config{
		InitialUSDBalance:      200000,
		MaxLeverage:            100,
		MaintenanceMarginRatio: 0.005,
	}
}

// Engine executes orders against the ledger. It is not safe for concurrent use;
// the dispatcher serializes every call.
type Engine struct {
	cfg    Config
	ledger *Ledger
	prices *PriceCache
	logger *zap.Logger
}

// New creates an engine with a fresh ledger and an empty price cache
func New(cfg Config, logger *zap.Logger) *Engine {
	if cfg.MaxLeverage < 1 {
		cfg.MaxLeverage = 1
	}
	return &Engine{
		cfg:    cfg,
		ledger: newLedger(cfg.InitialUSDBalance),
		prices: NewPriceCache(),
		logger: logger,
	}
}

// Prices returns the engine's price cache
func (e *Engine) Prices() *PriceCache {
	return e.prices
}

func newOrderID(commandID string) string {
	if commandID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(orderNamespace, []byte(commandID)).String()
}
