//go:build integration
// +build integration

package msg

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestIntegration_KafkaLogRoundTrip(t *testing.T) {
	if os.Getenv("INTEGRATION") != "1" {
		t.Skip("Skipping integration test. Set INTEGRATION=1 to run.")
	}

	brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
	if brokers[0] == "" {
		brokers = []string{"127.0.0.1:9092"}
	}

	logger, _ := zap.NewDevelopment()
	l, err := NewKafkaLog(brokers, "msg-integration-test", logger)
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stream := fmt.Sprintf("it.log.%d", time.Now().UnixNano())

	start, err := l.Last(ctx, stream)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := l.Append(ctx, stream, map[string]string{FieldID: fmt.Sprintf("id-%d", i)})
		require.NoError(t, err)
	}

	var got []Record
	cursor := start
	for len(got) < 3 {
		records, err := l.Read(ctx, stream, cursor, 10)
		require.NoError(t, err)
		got = append(got, records...)
		cursor = records[len(records)-1].Offset
	}
	assert.Equal(t, "id-0", got[0].Fields[FieldID])
	assert.Equal(t, "id-2", got[2].Fields[FieldID])

	last, err := l.Last(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, got[2].Offset, last)

	require.NoError(t, l.Trim(ctx, stream, 1))
}
