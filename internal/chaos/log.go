package chaos

import (
	"context"

	"github.com/ismaiel54/margin-exchange/internal/msg"
)

// DroppedOffset is returned by Append for a record that was discarded
const DroppedOffset int64 = -1

// Log injects delays and drops into appends of the wrapped log. Reads are untouched.
type Log struct {
	msg.Log
	chaos *Chaos
}

// Wrap decorates log with fault injection
func Wrap(log msg.Log, c *Chaos) *Log {
	return &Log{Log: log, chaos: c}
}

// Append delays and possibly drops the record before handing it to the wrapped log
func (l *Log) Append(ctx context.Context, stream string, fields map[string]string) (int64, error) {
	if err := l.chaos.MaybeDelay(ctx, stream, "append"); err != nil {
		return 0, err
	}
	if l.chaos.MaybeDrop(stream, "append") {
		return DroppedOffset, nil
	}
	return l.Log.Append(ctx, stream, fields)
}

var _ msg.Log = (*Log)(nil)
