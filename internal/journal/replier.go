package journal

import (
	"context"

	"github.com/ismaiel54/margin-exchange/internal/protocol"
	"go.uber.org/zap"
)

// Replier queues dispatcher replies in the outbox; a Publisher sends them
type Replier struct {
	store  *Store
	logger *zap.Logger
}

// NewReplier creates a journaling replier
func NewReplier(store *Store, logger *zap.Logger) *Replier {
	return &Replier{store: store, logger: logger}
}

// Reply journals the reply unless the command was already answered
func (r *Replier) Reply(ctx context.Context, offset int64, kind protocol.Kind, rep protocol.Reply) error {
	res, err := r.store.RecordReply(ctx, offset, kind, rep)
	if err != nil {
		return err
	}
	if res.Duplicate {
		r.logger.Debug("reply already journaled",
			zap.String("command_id", rep.ID),
			zap.Int64("offset", offset),
		)
	}
	return nil
}
