package market

import (
	"context"
	"testing"
	"time"

	"github.com/ismaiel54/margin-exchange/internal/msg"
	"github.com/ismaiel54/margin-exchange/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFeed_PublishesTickCommands(t *testing.T) {
	log := msg.NewMemoryLog()
	defer log.Close()
	producer := msg.NewProducer(log, 0, zap.NewNop())
	defer producer.Close()

	w := NewWalker(1, map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 3000}, []string{"BTCUSDT", "ETHUSDT"}, 0.0002, 0.001)
	sent, failed := Feed(context.Background(), producer, msg.StreamCommands, w, time.Millisecond, 3, zap.NewNop())
	assert.Equal(t, 6, sent)
	assert.Zero(t, failed)

	records, err := log.Read(context.Background(), msg.StreamCommands, msg.Before, 10)
	require.NoError(t, err)
	require.Len(t, records, 6)

	payload, err := protocol.CommandPayload(records[1])
	require.NoError(t, err)
	h, err := protocol.DecodeHeader(payload)
	require.NoError(t, err)
	cmd, err := protocol.DecodeCommand(h, payload)
	require.NoError(t, err)
	tick, ok := cmd.(*protocol.Tick)
	require.True(t, ok)
	assert.Equal(t, "ETHUSDT", tick.Symbol)
}

func TestFeed_StopsOnCancel(t *testing.T) {
	log := msg.NewMemoryLog()
	defer log.Close()
	producer := msg.NewProducer(log, 0, zap.NewNop())
	defer producer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWalker(1, map[string]float64{"BTCUSDT": 50000}, []string{"BTCUSDT"}, 0.0002, 0.001)
	sent, _ := Feed(ctx, producer, msg.StreamCommands, w, time.Hour, 0, zap.NewNop())
	assert.LessOrEqual(t, sent, 1)
}
