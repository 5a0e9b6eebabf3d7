package correlator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ismaiel54/margin-exchange/internal/dispatcher"
	"github.com/ismaiel54/margin-exchange/internal/engine"
	"github.com/ismaiel54/margin-exchange/internal/msg"
	"github.com/ismaiel54/margin-exchange/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startCorrelator(t *testing.T, log msg.Log, timeout time.Duration) *Correlator {
	t.Helper()
	producer := msg.NewProducer(log, 0, zap.NewNop())
	t.Cleanup(producer.Close)

	c := New(log, producer, Options{Timeout: timeout}, zap.NewNop())
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func startEngine(t *testing.T, ctx context.Context, log msg.Log) {
	t.Helper()
	producer := msg.NewProducer(log, 0, zap.NewNop())
	t.Cleanup(producer.Close)

	d := dispatcher.New(
		engine.New(engine.DefaultConfig(), zap.NewNop()),
		log, msg.StreamCommands, msg.Before,
		dispatcher.NewDirectReplier(producer, msg.StreamReplies),
		zap.NewNop(),
	)
	go func() { _ = d.Run(ctx) }()
}

func publishTick(t *testing.T, log msg.Log, symbol string, bid, ask float64) {
	t.Helper()
	fields, err := protocol.CommandFields(&protocol.Tick{Symbol: symbol, Bid: bid, Ask: ask})
	require.NoError(t, err)
	_, err = log.Append(context.Background(), msg.StreamCommands, fields)
	require.NoError(t, err)
}

func f64(v float64) *float64 { return &v }

func TestCorrelator_RoundTripThroughEngine(t *testing.T) {
	log := msg.NewMemoryLog()
	defer log.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startEngine(t, ctx, log)
	c := startCorrelator(t, log, 2*time.Second)

	publishTick(t, log, "BTCUSDT", 49990, 50000)

	var created protocol.CreateOrderResult
	require.NoError(t, c.Call(ctx, &protocol.CreateOrder{Symbol: "BTCUSDT", Type: "buy", Qty: f64(1)}, &created))
	assert.NotEmpty(t, created.OrderID)

	var balance protocol.BalanceResult
	require.NoError(t, c.Call(ctx, &protocol.GetBalance{}, &balance))
	assert.Equal(t, 150000.0, balance.USD)

	publishTick(t, log, "BTCUSDT", 49000, 49500)

	var closed protocol.CloseTradeResult
	require.NoError(t, c.Call(ctx, &protocol.CloseTrade{OrderID: created.OrderID}, &closed))
	assert.Equal(t, 49000.0, closed.ClosePrice)

	require.NoError(t, c.Call(ctx, &protocol.GetBalance{}, &balance))
	assert.Equal(t, 199000.0, balance.USD)

	err := c.Call(ctx, &protocol.CloseTrade{OrderID: created.OrderID}, nil)
	var re *protocol.ReplyError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 404, re.StatusCode)

	assert.Zero(t, c.Pending())
}

func TestCorrelator_ConcurrentCallsGetTheirOwnReply(t *testing.T) {
	log := msg.NewMemoryLog()
	defer log.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startEngine(t, ctx, log)
	c := startCorrelator(t, log, 2*time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cmd := &protocol.GetBalance{}
			rep, err := c.Send(ctx, cmd)
			if err != nil {
				errs <- err
				return
			}
			if rep.ID != cmd.CommandID() {
				errs <- errors.New("reply id mismatch")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Zero(t, c.Pending())
}

func TestCorrelator_TimeoutAndLateReplyDropped(t *testing.T) {
	log := msg.NewMemoryLog()
	defer log.Close()
	ctx := context.Background()

	c := startCorrelator(t, log, 50*time.Millisecond)

	cmd := &protocol.GetBalance{}
	_, err := c.Send(ctx, cmd)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, c.Pending())

	// the reply shows up after the waiter expired
	late, err := protocol.NewDataReply(cmd.CommandID(), protocol.BalanceResult{USD: 1})
	require.NoError(t, err)
	_, err = log.Append(ctx, msg.StreamReplies, late.Fields())
	require.NoError(t, err)

	// a malformed reply does not stop the loop either
	_, err = log.Append(ctx, msg.StreamReplies, map[string]string{"data": "{}"})
	require.NoError(t, err)

	go func() {
		records, err := log.Read(ctx, msg.StreamCommands, 0, 1)
		if err != nil || len(records) == 0 {
			return
		}
		payload, _ := protocol.CommandPayload(records[0])
		h, _ := protocol.DecodeHeader(payload)
		rep, _ := protocol.NewDataReply(h.ID, protocol.BalanceResult{USD: 7})
		_, _ = log.Append(ctx, msg.StreamReplies, rep.Fields())
	}()

	var balance protocol.BalanceResult
	require.NoError(t, c.Call(ctx, &protocol.GetBalance{}, &balance))
	assert.Equal(t, 7.0, balance.USD)
}

func TestCorrelator_IgnoresRepliesBeforeStart(t *testing.T) {
	log := msg.NewMemoryLog()
	defer log.Close()
	ctx := context.Background()

	stale, err := protocol.NewDataReply("old", protocol.BalanceResult{USD: 1})
	require.NoError(t, err)
	_, err = log.Append(ctx, msg.StreamReplies, stale.Fields())
	require.NoError(t, err)

	c := startCorrelator(t, log, time.Second)
	require.Eventually(t, c.IsRunning, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), c.tailer.Cursor())
}

func TestCorrelator_ContextCancelRemovesWaiter(t *testing.T) {
	log := msg.NewMemoryLog()
	defer log.Close()

	c := startCorrelator(t, log, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Send(ctx, &protocol.GetAssets{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, c.Pending())
}

func TestCorrelator_SendBeforeStart(t *testing.T) {
	log := msg.NewMemoryLog()
	defer log.Close()

	c := New(log, msg.NewProducer(log, 0, zap.NewNop()), Options{}, zap.NewNop())
	_, err := c.Send(context.Background(), &protocol.GetBalance{})
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Equal(t, DefaultTimeout, c.opts.Timeout)
}

func TestCorrelator_MalformedReplyFailsWithoutWaiting(t *testing.T) {
	log := msg.NewMemoryLog()
	defer log.Close()
	ctx := context.Background()

	c := startCorrelator(t, log, 5*time.Second)

	go func() {
		records, err := log.Read(ctx, msg.StreamCommands, msg.Before, 1)
		if err != nil || len(records) == 0 {
			return
		}
		payload, _ := protocol.CommandPayload(records[0])
		h, _ := protocol.DecodeHeader(payload)
		_, _ = log.Append(ctx, msg.StreamReplies, map[string]string{
			msg.FieldID:    h.ID,
			msg.FieldError: "{}",
			msg.FieldData:  "{broken",
		})
	}()

	started := time.Now()
	err := c.Call(ctx, &protocol.GetBalance{}, nil)
	assert.Less(t, time.Since(started), time.Second)

	var replyErr *protocol.ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, 500, replyErr.StatusCode)
	assert.Equal(t, "malformed reply", replyErr.Message)
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.Zero(t, c.Pending())
}
