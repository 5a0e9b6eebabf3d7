package msg

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ismaiel54/margin-exchange/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// logFactories returns every Log implementation that runs without external services
func logFactories(t *testing.T) map[string]func(t *testing.T) Log {
	return map[string]func(t *testing.T) Log{
		"memory": func(t *testing.T) Log {
			return NewMemoryLog()
		},
		"pebble": func(t *testing.T) Log {
			l, err := OpenPebbleLog(filepath.Join(t.TempDir(), "log"))
			require.NoError(t, err)
			return l
		},
	}
}

func TestLog_AppendReadInOrder(t *testing.T) {
	for name, open := range logFactories(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			defer l.Close()
			ctx := context.Background()

			last, err := l.Last(ctx, "cmds")
			require.NoError(t, err)
			assert.Equal(t, Before, last)

			for i := 0; i < 5; i++ {
				off, err := l.Append(ctx, "cmds", map[string]string{"n": string(rune('a' + i))})
				require.NoError(t, err)
				assert.Equal(t, int64(i), off)
			}

			records, err := l.Read(ctx, "cmds", Before, 3)
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, "a", records[0].Fields["n"])
			assert.Equal(t, int64(2), records[2].Offset)

			records, err = l.Read(ctx, "cmds", records[2].Offset, 10)
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "d", records[0].Fields["n"])
			assert.Equal(t, "e", records[1].Fields["n"])

			last, err = l.Last(ctx, "cmds")
			require.NoError(t, err)
			assert.Equal(t, int64(4), last)
		})
	}
}

func TestLog_StreamsAreIndependent(t *testing.T) {
	for name, open := range logFactories(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			defer l.Close()
			ctx := context.Background()

			_, err := l.Append(ctx, "a", map[string]string{"v": "1"})
			require.NoError(t, err)
			off, err := l.Append(ctx, "b", map[string]string{"v": "2"})
			require.NoError(t, err)
			assert.Equal(t, int64(0), off)

			records, err := l.Read(ctx, "b", Before, 10)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "2", records[0].Fields["v"])
		})
	}
}

func TestLog_ReadBlocksUntilAppend(t *testing.T) {
	for name, open := range logFactories(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			defer l.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			got := make(chan []Record, 1)
			go func() {
				records, err := l.Read(ctx, "replies", Before, 10)
				if err == nil {
					got <- records
				}
			}()

			select {
			case <-got:
				t.Fatal("read returned before any record was appended")
			case <-time.After(50 * time.Millisecond):
			}

			_, err := l.Append(ctx, "replies", map[string]string{"id": "x"})
			require.NoError(t, err)

			select {
			case records := <-got:
				require.Len(t, records, 1)
				assert.Equal(t, "x", records[0].Fields["id"])
			case <-time.After(2 * time.Second):
				t.Fatal("blocked read was not woken by append")
			}
		})
	}
}

func TestLog_ReadHonoursContext(t *testing.T) {
	for name, open := range logFactories(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			defer l.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			_, err := l.Read(ctx, "empty", Before, 10)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestLog_CloseWakesReaders(t *testing.T) {
	for name, open := range logFactories(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)

			errCh := make(chan error, 1)
			go func() {
				_, err := l.Read(context.Background(), "empty", Before, 10)
				errCh <- err
			}()

			time.Sleep(20 * time.Millisecond)
			require.NoError(t, l.Close())

			select {
			case err := <-errCh:
				assert.ErrorIs(t, err, ErrClosed)
			case <-time.After(2 * time.Second):
				t.Fatal("reader not woken by close")
			}
		})
	}
}

func TestLog_TrimKeepsNewest(t *testing.T) {
	for name, open := range logFactories(t) {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			defer l.Close()
			ctx := context.Background()

			for i := 0; i < 10; i++ {
				_, err := l.Append(ctx, "s", map[string]string{"i": string(rune('0' + i))})
				require.NoError(t, err)
			}

			require.NoError(t, l.Trim(ctx, "s", 3))

			// a cursor inside trimmed history resumes at the oldest retained record
			records, err := l.Read(ctx, "s", Before, 100)
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, int64(7), records[0].Offset)
			assert.Equal(t, "9", records[2].Fields["i"])

			// offsets keep growing after a trim
			off, err := l.Append(ctx, "s", map[string]string{"i": "x"})
			require.NoError(t, err)
			assert.Equal(t, int64(10), off)

			// trimming to a larger size is a no-op
			require.NoError(t, l.Trim(ctx, "s", 100))
			records, err = l.Read(ctx, "s", Before, 100)
			require.NoError(t, err)
			assert.Len(t, records, 4)
		})
	}
}

func TestPebbleLog_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	ctx := context.Background()

	l, err := OpenPebbleLog(path)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := l.Append(ctx, "cmds", map[string]string{"message": "m"})
		require.NoError(t, err)
	}
	require.NoError(t, l.Trim(ctx, "cmds", 2))
	require.NoError(t, l.Close())

	l, err = OpenPebbleLog(path)
	require.NoError(t, err)
	defer l.Close()

	last, err := l.Last(ctx, "cmds")
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)

	records, err := l.Read(ctx, "cmds", Before, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].Offset)

	off, err := l.Append(ctx, "cmds", map[string]string{"message": "m"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), off)
}

func TestPebbleLog_RejectsSlashInStream(t *testing.T) {
	l, err := OpenPebbleLog(filepath.Join(t.TempDir(), "log"))
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Append(context.Background(), "a/b", map[string]string{})
	assert.Error(t, err)
}

func TestOpenLog_SelectsTransport(t *testing.T) {
	cfg := &config.Config{Transport: config.TransportMemory}
	l, err := OpenLog(cfg, "test", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryLog{}, l)
	require.NoError(t, l.Close())

	cfg = &config.Config{Transport: config.TransportPebble, DataDir: t.TempDir()}
	l, err = OpenLog(cfg, "test", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &PebbleLog{}, l)
	require.NoError(t, l.Close())

	_, err = OpenLog(&config.Config{Transport: "redis"}, "test", zap.NewNop())
	assert.Error(t, err)
}
