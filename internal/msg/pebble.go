package msg

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
)

// keys: l/<stream>/<8-byte big-endian offset>
func streamPrefix(stream string) []byte { return []byte("l/" + stream + "/") }

func recordKey(stream string, offset int64) []byte {
	key := streamPrefix(stream)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(offset))
	return append(key, buf[:]...)
}

func keyOffset(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(key)-8:]))
}

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type storedRecord struct {
	Fields    map[string]string `json:"fields"`
	Timestamp int64             `json:"ts"`
}

type pebbleStream struct {
	first  int64
	next   int64
	notify chan struct{}
}

// PebbleLog is a durable single-process Log stored in pebble
type PebbleLog struct {
	db      *pebble.DB
	mu      sync.Mutex
	streams map[string]*pebbleStream
	closed  bool
	done    chan struct{}
}

// OpenPebbleLog opens or creates a pebble log at path
func OpenPebbleLog(path string) (*PebbleLog, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble log: %w", err)
	}
	return &PebbleLog{
		db:      db,
		streams: make(map[string]*pebbleStream),
		done:    make(chan struct{}),
	}, nil
}

// stream loads stream bounds from disk on first use; l.mu must be held
func (l *PebbleLog) stream(name string) (*pebbleStream, error) {
	if s, ok := l.streams[name]; ok {
		return s, nil
	}
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid stream name %q", name)
	}

	prefix := streamPrefix(name)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	s := &pebbleStream{notify: make(chan struct{})}
	if iter.First() {
		s.first = keyOffset(iter.Key())
		if iter.Last() {
			s.next = keyOffset(iter.Key()) + 1
		}
	}
	l.streams[name] = s
	return s, nil
}

// Append writes a record with a synced write
func (l *PebbleLog) Append(ctx context.Context, stream string, fields map[string]string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}
	s, err := l.stream(stream)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(storedRecord{Fields: fields, Timestamp: nowMillis()})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal record: %w", err)
	}

	offset := s.next
	if err := l.db.Set(recordKey(stream, offset), data, pebble.Sync); err != nil {
		return 0, fmt.Errorf("failed to append record: %w", err)
	}
	s.next++

	close(s.notify)
	s.notify = make(chan struct{})

	return offset, nil
}

// Read returns records after the cursor, blocking while there are none
func (l *PebbleLog) Read(ctx context.Context, stream string, after int64, count int) ([]Record, error) {
	count = normalizeCount(count)

	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return nil, ErrClosed
		}
		s, err := l.stream(stream)
		if err != nil {
			l.mu.Unlock()
			return nil, err
		}

		start := after + 1
		if start < s.first {
			start = s.first
		}
		if start < s.next {
			end := start + int64(count)
			if end > s.next {
				end = s.next
			}
			records, err := l.scan(stream, start, end)
			l.mu.Unlock()
			return records, err
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

func (l *PebbleLog) scan(stream string, start, end int64) ([]Record, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: recordKey(stream, start),
		UpperBound: recordKey(stream, end),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	records := make([]Record, 0, end-start)
	for iter.First(); iter.Valid(); iter.Next() {
		var stored storedRecord
		if err := json.Unmarshal(iter.Value(), &stored); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		records = append(records, Record{
			Stream:    stream,
			Offset:    keyOffset(iter.Key()),
			Fields:    stored.Fields,
			Timestamp: stored.Timestamp,
		})
	}
	return records, iter.Error()
}

// Last returns the newest offset in the stream
func (l *PebbleLog) Last(ctx context.Context, stream string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrClosed
	}
	s, err := l.stream(stream)
	if err != nil {
		return 0, err
	}
	return s.next - 1, nil
}

// Trim deletes the oldest records so that at most maxLen remain
func (l *PebbleLog) Trim(ctx context.Context, stream string, maxLen int64) error {
	if maxLen < 1 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	s, err := l.stream(stream)
	if err != nil {
		return err
	}

	newFirst := s.next - maxLen
	if newFirst <= s.first {
		return nil
	}
	if err := l.db.DeleteRange(recordKey(stream, s.first), recordKey(stream, newFirst), pebble.Sync); err != nil {
		return fmt.Errorf("failed to trim stream: %w", err)
	}
	s.first = newFirst
	return nil
}

// Close closes the underlying database
func (l *PebbleLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)
	return l.db.Close()
}

var _ Log = (*PebbleLog)(nil)
