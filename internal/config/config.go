package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transport backends
const (
	TransportMemory = "memory"
	TransportPebble = "pebble"
	TransportKafka  = "kafka"
)

// StartBeginning replays the command stream from its first record
const StartBeginning = "beginning"

// Config holds configuration for all services
type Config struct {
	// Service name
	ServiceName string

	// gRPC server port
	GRPCPort int

	// HTTP server port
	HTTPPort int

	// Log level: debug, info, warn, error
	LogLevel string

	// Transport backend: memory, pebble or kafka
	Transport string

	// Kafka brokers (comma-separated)
	KafkaBrokers string

	// Directory for the pebble log and the reply journal
	DataDir string

	// Stream names
	CommandStream string
	ReplyStream   string

	// Approximate maximum number of records kept per stream (0 disables trimming)
	LogMaxLen int64

	// How long a client waits for a reply
	ReplyTimeout time.Duration

	// Ledger settings
	InitialUSDBalance      float64
	MaxLeverage            int
	MaintenanceMarginRatio float64
	FloorNegativeEquity    bool

	// Reply journal (sqlite outbox) in DataDir
	JournalEnabled bool

	// Dispatcher start position: "beginning" or an explicit offset
	StartCursor string

	// Pyroscope server address, profiling disabled when empty
	PyroscopeAddr string
}

// LoadConfig loads configuration from an optional .env file and environment variables
func LoadConfig(serviceName string) *Config {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:            getEnvAsString("SERVICE_NAME", serviceName),
		GRPCPort:               getEnvAsInt("PORT_GRPC", 50051),
		HTTPPort:               getEnvAsInt("PORT_HTTP", 8080),
		LogLevel:               getEnvAsString("LOG_LEVEL", "info"),
		Transport:              strings.ToLower(getEnvAsString("TRANSPORT", TransportKafka)),
		KafkaBrokers:           getEnvAsString("KAFKA_BROKERS", "127.0.0.1:9092"),
		DataDir:                getEnvAsString("DATA_DIR", "./.data/exchange"),
		CommandStream:          getEnvAsString("COMMAND_STREAM", "exchange.commands"),
		ReplyStream:            getEnvAsString("REPLY_STREAM", "exchange.replies"),
		LogMaxLen:              getEnvAsInt64("LOG_MAX_LEN", 100000),
		ReplyTimeout:           time.Duration(getEnvAsInt("REPLY_TIMEOUT_MS", 5000)) * time.Millisecond,
		InitialUSDBalance:      getEnvAsFloat("INITIAL_USD_BALANCE", 200000),
		MaxLeverage:            getEnvAsInt("MAX_LEVERAGE", 100),
		MaintenanceMarginRatio: getEnvAsFloat("MAINTENANCE_MARGIN_RATIO", 0.005),
		FloorNegativeEquity:    getEnvAsBool("FLOOR_NEGATIVE_EQUITY", false),
		JournalEnabled:         getEnvAsBool("JOURNAL_ENABLED", false),
		StartCursor:            getEnvAsString("START_CURSOR", StartBeginning),
		PyroscopeAddr:          getEnvAsString("PYROSCOPE_ADDR", ""),
	}

	return cfg
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// HTTPAddr returns the HTTP server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// Brokers returns the trimmed Kafka broker list
func (c *Config) Brokers() []string {
	brokers := make([]string, 0)
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// StartOffset resolves StartCursor to the offset the dispatcher resumes after.
// -1 means "before the first record".
func (c *Config) StartOffset() (int64, error) {
	if c.StartCursor == "" || c.StartCursor == StartBeginning {
		return -1, nil
	}
	offset, err := strconv.ParseInt(c.StartCursor, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid START_CURSOR %q: %w", c.StartCursor, err)
	}
	if offset < -1 {
		return 0, fmt.Errorf("invalid START_CURSOR %q: must be >= -1", c.StartCursor)
	}
	return offset, nil
}

// Validate checks settings that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportMemory, TransportPebble, TransportKafka:
	default:
		return fmt.Errorf("unknown TRANSPORT %q", c.Transport)
	}
	if c.Transport == TransportKafka && len(c.Brokers()) == 0 {
		return fmt.Errorf("KAFKA_BROKERS cannot be empty")
	}
	if c.CommandStream == "" || c.ReplyStream == "" {
		return fmt.Errorf("stream names cannot be empty")
	}
	if c.CommandStream == c.ReplyStream {
		return fmt.Errorf("command and reply streams must differ")
	}
	if c.ReplyTimeout <= 0 {
		return fmt.Errorf("REPLY_TIMEOUT_MS must be greater than 0")
	}
	if c.MaxLeverage < 1 {
		return fmt.Errorf("MAX_LEVERAGE must be at least 1")
	}
	if c.MaintenanceMarginRatio < 0 || c.MaintenanceMarginRatio >= 1 {
		return fmt.Errorf("MAINTENANCE_MARGIN_RATIO must be in [0, 1)")
	}
	if _, err := c.StartOffset(); err != nil {
		return err
	}
	return nil
}

func getEnvAsString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
