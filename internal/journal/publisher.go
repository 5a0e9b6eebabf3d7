package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/ismaiel54/margin-exchange/internal/msg"
	"go.uber.org/zap"
)

// Publisher drains the reply outbox to the reply stream
type Publisher struct {
	store     *Store
	producer  *msg.Producer
	stream    string
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewPublisher creates a new outbox publisher
func NewPublisher(store *Store, producer *msg.Producer, stream string, logger *zap.Logger) *Publisher {
	return &Publisher{
		store:     store,
		producer:  producer,
		stream:    stream,
		logger:    logger,
		interval:  250 * time.Millisecond,
		batchSize: 100,
	}
}

// Run starts the publisher loop
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.logger.Error("failed to publish batch", zap.Error(err))
			}
		}
	}
}

// PublishBatch publishes up to one batch of queued replies and returns how many were sent
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	entries, err := p.store.ListUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unpublished replies: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	now := time.Now().UnixMilli()
	published := 0

	for _, entry := range entries {
		rep, err := entry.Reply()
		if err != nil {
			p.logger.Error("failed to decode queued reply",
				zap.String("command_id", entry.CommandID),
				zap.Error(err),
			)
			continue
		}

		// stop at the first failure so replies keep their order
		if _, err := p.producer.Send(ctx, p.stream, rep.Fields()); err != nil {
			return published, fmt.Errorf("failed to publish reply %s: %w", entry.CommandID, err)
		}

		if err := p.store.MarkPublished(ctx, entry.ID, now); err != nil {
			return published, err
		}

		published++
		p.logger.Debug("published reply", zap.String("command_id", entry.CommandID))
	}

	if published > 0 {
		p.logger.Info("published reply batch",
			zap.Int("published", published),
			zap.Int("total", len(entries)),
		)
	}
	return published, nil
}
