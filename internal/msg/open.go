package msg

import (
	"fmt"
	"path/filepath"

	"github.com/ismaiel54/margin-exchange/internal/config"
	"go.uber.org/zap"
)

// OpenLog opens the transport selected by cfg.Transport.
// Memory and pebble logs are single-process; kafka is shared between processes.
func OpenLog(cfg *config.Config, clientID string, logger *zap.Logger) (Log, error) {
	switch cfg.Transport {
	case config.TransportMemory:
		return NewMemoryLog(), nil
	case config.TransportPebble:
		path := filepath.Join(cfg.DataDir, "log")
		l, err := OpenPebbleLog(path)
		if err != nil {
			return nil, err
		}
		logger.Info("pebble log opened", zap.String("path", path))
		return l, nil
	case config.TransportKafka:
		return NewKafkaLog(cfg.Brokers(), clientID, logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
