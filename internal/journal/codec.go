package journal

import (
	"encoding/json"
	"fmt"

	"github.com/ismaiel54/margin-exchange/internal/protocol"
)

func encodeReply(rep protocol.Reply) (string, error) {
	fields := rep.Fields()
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal reply: %w", err)
	}
	return string(data), nil
}

// Reply decodes the queued reply
func (e OutboxEntry) Reply() (protocol.Reply, error) {
	var fields map[string]string
	if err := json.Unmarshal([]byte(e.ReplyJSON), &fields); err != nil {
		return protocol.Reply{}, fmt.Errorf("failed to unmarshal reply: %w", err)
	}
	return protocol.ReplyFromFields(fields)
}
