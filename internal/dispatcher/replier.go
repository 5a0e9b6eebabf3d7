package dispatcher

import (
	"context"

	"github.com/ismaiel54/margin-exchange/internal/msg"
	"github.com/ismaiel54/margin-exchange/internal/protocol"
)

// Replier publishes the reply to a command. offset is the command's offset on the command stream.
type Replier interface {
	Reply(ctx context.Context, offset int64, kind protocol.Kind, rep protocol.Reply) error
}

// DirectReplier appends replies straight to the reply stream
type DirectReplier struct {
	producer *msg.Producer
	stream   string
}

// NewDirectReplier creates a replier that sends through producer
func NewDirectReplier(producer *msg.Producer, stream string) *DirectReplier {
	return &DirectReplier{producer: producer, stream: stream}
}

// Reply appends the reply record
func (r *DirectReplier) Reply(ctx context.Context, offset int64, kind protocol.Kind, rep protocol.Reply) error {
	_, err := r.producer.Send(ctx, r.stream, rep.Fields())
	return err
}
