package msg

import (
	"context"
	"errors"
)

// ErrClosed is returned by a Log after Close
var ErrClosed = errors.New("log closed")

// Before is the cursor that precedes the first record of any stream
const Before int64 = -1

// Log is an ordered, append-only log of key-value records split into named streams.
//
// Offsets are assigned by the log, start at 0 and grow by one per record within a stream.
type Log interface {
	// Append stores a record and returns its offset
	Append(ctx context.Context, stream string, fields map[string]string) (int64, error)

	// Read blocks until at least one record with an offset greater than after exists,
	// then returns up to count records in offset order
	Read(ctx context.Context, stream string, after int64, count int) ([]Record, error)

	// Last returns the offset of the newest record, or Before when the stream is empty
	Last(ctx context.Context, stream string) (int64, error)

	// Trim drops the oldest records so that about maxLen remain
	Trim(ctx context.Context, stream string, maxLen int64) error

	// Close releases resources and wakes blocked readers with ErrClosed
	Close() error
}

const defaultReadCount = 100

func normalizeCount(count int) int {
	if count <= 0 {
		return defaultReadCount
	}
	return count
}
