package msg

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Handler processes one record
type Handler func(ctx context.Context, rec Record) error

// Tailer reads a stream from a cursor and hands every record to a handler, in order, one at a time
type Tailer struct {
	log        Log
	logger     *zap.Logger
	stream     string
	batch      int
	cursor     int64
	running    int32
	processed  int64
	errorCount int64
}

// NewTailer creates a tailer that resumes after the given offset
func NewTailer(log Log, stream string, after int64, logger *zap.Logger) *Tailer {
	return &Tailer{
		log:    log,
		logger: logger,
		stream: stream,
		batch:  defaultReadCount,
		cursor: after,
	}
}

// Run tails the stream until ctx is done or the log is closed.
// A failing or panicking handler is logged and the cursor still advances.
func (t *Tailer) Run(ctx context.Context, handler Handler) error {
	t.logger.Info("starting tailer",
		zap.String("stream", t.stream),
		zap.Int64("after", t.Cursor()),
	)

	atomic.StoreInt32(&t.running, 1)
	defer atomic.StoreInt32(&t.running, 0)

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go t.logStats(statsCtx)

	backoff := 100 * time.Millisecond
	for {
		records, err := t.log.Read(ctx, t.stream, t.Cursor(), t.batch)
		if err != nil {
			if ctx.Err() != nil {
				t.logger.Info("tailer stopping", zap.String("stream", t.stream))
				return ctx.Err()
			}
			if errors.Is(err, ErrClosed) {
				return err
			}
			t.logger.Warn("read failed, retrying",
				zap.String("stream", t.stream),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 2*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 100 * time.Millisecond

		for _, rec := range records {
			if err := t.handle(ctx, rec, handler); err != nil {
				t.logger.Error("handler failed",
					zap.String("stream", t.stream),
					zap.Int64("offset", rec.Offset),
					zap.Error(err),
				)
				atomic.AddInt64(&t.errorCount, 1)
			} else {
				atomic.AddInt64(&t.processed, 1)
			}
			atomic.StoreInt64(&t.cursor, rec.Offset)
		}
	}
}

func (t *Tailer) handle(ctx context.Context, rec Record, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, rec)
}

// Cursor returns the offset of the last record handed to the handler
func (t *Tailer) Cursor() int64 {
	return atomic.LoadInt64(&t.cursor)
}

// IsRunning returns whether the tailer is running
func (t *Tailer) IsRunning() bool {
	return atomic.LoadInt32(&t.running) == 1
}

// Stats returns the processed and failed record counts
func (t *Tailer) Stats() (processed, failed int64) {
	return atomic.LoadInt64(&t.processed), atomic.LoadInt64(&t.errorCount)
}

// logStats logs tailer statistics periodically
func (t *Tailer) logStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, failed := t.Stats()
			t.logger.Info("tailer stats",
				zap.String("stream", t.stream),
				zap.Int64("cursor", t.Cursor()),
				zap.Int64("processed", processed),
				zap.Int64("errors", failed),
			)
		}
	}
}
