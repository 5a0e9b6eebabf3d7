package msg

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTailer_HandlesInOrderAndSurvivesFailures(t *testing.T) {
	l := NewMemoryLog()
	defer l.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, v := range []string{"ok-1", "fail", "panic", "ok-2"} {
		_, err := l.Append(ctx, "s", map[string]string{"v": v})
		require.NoError(t, err)
	}

	var mu sync.Mutex
	var seen []string
	tailer := NewTailer(l, "s", Before, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		done <- tailer.Run(ctx, func(ctx context.Context, rec Record) error {
			v := rec.Fields["v"]
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
			switch v {
			case "fail":
				return errors.New("boom")
			case "panic":
				panic("bad record")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return tailer.Cursor() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, tailer.IsRunning())

	processed, failed := tailer.Stats()
	assert.Equal(t, int64(2), processed)
	assert.Equal(t, int64(2), failed)

	mu.Lock()
	assert.Equal(t, []string{"ok-1", "fail", "panic", "ok-2"}, seen)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("tailer did not stop")
	}
}

func TestTailer_ResumesAfterCursor(t *testing.T) {
	l := NewMemoryLog()
	defer l.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, "s", map[string]string{})
		require.NoError(t, err)
	}

	var first int64 = -100
	tailer := NewTailer(l, "s", 1, zap.NewNop())
	go tailer.Run(ctx, func(ctx context.Context, rec Record) error {
		if first == -100 {
			first = rec.Offset
		}
		return nil
	})

	require.Eventually(t, func() bool { return tailer.Cursor() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.Equal(t, int64(2), first)
}

func TestTailer_StopsWhenLogCloses(t *testing.T) {
	l := NewMemoryLog()
	tailer := NewTailer(l, "s", Before, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		done <- tailer.Run(context.Background(), func(context.Context, Record) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, l.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("tailer did not stop on close")
	}
}

func TestProducer_TrimsToMaxLen(t *testing.T) {
	l := NewMemoryLog()
	defer l.Close()
	p := NewProducer(l, 20, zap.NewNop())
	defer p.Close()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		_, err := p.Send(ctx, "s", map[string]string{"i": "x"})
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, l.Len("s"), 20)
	last, err := l.Last(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(99), last)
}

func TestProducer_ReportsClosedLog(t *testing.T) {
	l := NewMemoryLog()
	p := NewProducer(l, 0, zap.NewNop())
	defer p.Close()
	require.NoError(t, l.Close())

	_, err := p.Send(context.Background(), "s", map[string]string{})
	assert.ErrorIs(t, err, ErrClosed)
}
