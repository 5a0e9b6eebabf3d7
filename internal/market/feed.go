package market

import (
	"context"
	"time"

	"github.com/ismaiel54/margin-exchange/internal/msg"
	"github.com/ismaiel54/margin-exchange/internal/protocol"
	"go.uber.org/zap"
)

// Feed publishes tick rounds to stream until ctx is done or count rounds were sent (0 means no limit)
func Feed(ctx context.Context, producer *msg.Producer, stream string, w *Walker, interval time.Duration, count int, logger *zap.Logger) (sent, failed int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for round := 0; count == 0 || round < count; round++ {
		for _, tick := range w.Next(time.Now().UnixMilli()) {
			fields, err := protocol.CommandFields(tick)
			if err != nil {
				failed++
				continue
			}
			if _, err := producer.Send(ctx, stream, fields); err != nil {
				logger.Error("failed to send tick", zap.String("symbol", tick.Symbol), zap.Error(err))
				failed++
				continue
			}
			sent++
			logger.Debug("tick sent",
				zap.String("symbol", tick.Symbol),
				zap.Float64("bid", tick.Bid),
				zap.Float64("ask", tick.Ask),
			)
		}
		if count > 0 && round == count-1 {
			break
		}

		select {
		case <-ctx.Done():
			return sent, failed
		case <-ticker.C:
		}
	}
	return sent, failed
}
