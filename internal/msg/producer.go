package msg

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Producer appends records to a Log and keeps streams near their maximum length
type Producer struct {
	log          Log
	logger       *zap.Logger
	maxLen       int64
	trimEvery    int64
	produceCount int64
	errorCount   int64
	stopOnce     sync.Once
	stop         chan struct{}
}

// NewProducer creates a new producer. maxLen <= 0 disables trimming.
func NewProducer(log Log, maxLen int64, logger *zap.Logger) *Producer {
	trimEvery := maxLen / 10
	if trimEvery < 1 {
		trimEvery = 1
	}

	p := &Producer{
		log:       log,
		logger:    logger,
		maxLen:    maxLen,
		trimEvery: trimEvery,
		stop:      make(chan struct{}),
	}

	// Start periodic logging
	go p.logStats()

	return p
}

// Send appends fields to the stream and returns the record offset
func (p *Producer) Send(ctx context.Context, stream string, fields map[string]string) (int64, error) {
	offset, err := p.log.Append(ctx, stream, fields)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return 0, fmt.Errorf("failed to send to %s: %w", stream, err)
	}

	n := atomic.AddInt64(&p.produceCount, 1)
	if p.maxLen > 0 && n%p.trimEvery == 0 {
		if err := p.log.Trim(ctx, stream, p.maxLen); err != nil {
			p.logger.Warn("failed to trim stream",
				zap.String("stream", stream),
				zap.Int64("max_len", p.maxLen),
				zap.Error(err),
			)
		}
	}

	return offset, nil
}

// Close stops the stats logger; the underlying log is owned by the caller
func (p *Producer) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// logStats logs producer statistics periodically
func (p *Producer) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.logger.Info("producer stats",
				zap.Int64("produced", atomic.LoadInt64(&p.produceCount)),
				zap.Int64("errors", atomic.LoadInt64(&p.errorCount)),
			)
		}
	}
}
