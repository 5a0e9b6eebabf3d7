package msg

import (
	"context"
	"sync"
)

type memStream struct {
	base    int64
	records []Record
	notify  chan struct{}
}

// MemoryLog is an in-process Log
type MemoryLog struct {
	mu      sync.Mutex
	streams map[string]*memStream
	closed  bool
	done    chan struct{}
}

// NewMemoryLog creates an empty in-process log
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		streams: make(map[string]*memStream),
		done:    make(chan struct{}),
	}
}

// stream must be called with l.mu held
func (l *MemoryLog) stream(name string) *memStream {
	s, ok := l.streams[name]
	if !ok {
		s = &memStream{notify: make(chan struct{})}
		l.streams[name] = s
	}
	return s
}

// Append stores a record and wakes blocked readers
func (l *MemoryLog) Append(ctx context.Context, stream string, fields map[string]string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}

	s := l.stream(stream)
	offset := s.base + int64(len(s.records))
	s.records = append(s.records, Record{
		Stream:    stream,
		Offset:    offset,
		Fields:    copyFields(fields),
		Timestamp: nowMillis(),
	})

	close(s.notify)
	s.notify = make(chan struct{})

	return offset, nil
}

// Read returns records after the cursor, blocking while there are none
func (l *MemoryLog) Read(ctx context.Context, stream string, after int64, count int) ([]Record, error) {
	count = normalizeCount(count)

	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil, ErrClosed
		}

		s := l.stream(stream)
		idx := after + 1 - s.base
		if idx < 0 {
			// cursor points into trimmed history; resume at the oldest retained record
			idx = 0
		}
		if idx < int64(len(s.records)) {
			end := idx + int64(count)
			if end > int64(len(s.records)) {
				end = int64(len(s.records))
			}
			out := make([]Record, 0, end-idx)
			for _, rec := range s.records[idx:end] {
				rec.Fields = copyFields(rec.Fields)
				out = append(out, rec)
			}
			l.mu.Unlock()
			return out, nil
		}
		wait := s.notify
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.done:
			return nil, ErrClosed
		case <-wait:
		}
	}
}

// Last returns the newest offset in the stream
func (l *MemoryLog) Last(ctx context.Context, stream string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}
	s := l.stream(stream)
	return s.base + int64(len(s.records)) - 1, nil
}

// Trim keeps at most maxLen records
func (l *MemoryLog) Trim(ctx context.Context, stream string, maxLen int64) error {
	if maxLen < 1 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	s := l.stream(stream)
	drop := int64(len(s.records)) - maxLen
	if drop <= 0 {
		return nil
	}

	kept := make([]Record, maxLen)
	copy(kept, s.records[drop:])
	s.records = kept
	s.base += drop
	return nil
}

// Len returns the number of retained records in a stream
func (l *MemoryLog) Len(stream string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.stream(stream).records)
}

// Close wakes all blocked readers
func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		close(l.done)
	}
	return nil
}

var _ Log = (*MemoryLog)(nil)
