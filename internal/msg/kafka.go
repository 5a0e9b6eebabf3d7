package msg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"go.uber.org/zap"
)

// Every stream maps to partition 0 of a topic with the same name so that offsets are totally ordered.
const kafkaPartition int32 = 0

type kafkaReader struct {
	mu      sync.Mutex
	client  *kgo.Client
	next    int64
	pending []*kgo.Record
}

// KafkaLog is a Log backed by single-partition Kafka topics
type KafkaLog struct {
	brokers  []string
	clientID string
	producer *kgo.Client
	logger   *zap.Logger

	mu      sync.Mutex
	readers map[string]*kafkaReader
	closed  bool
}

// NewKafkaLog creates a Kafka backed log
func NewKafkaLog(brokers []string, clientID string, logger *zap.Logger) (*KafkaLog, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.DisableIdempotentWrite(),
		kgo.AllowAutoTopicCreation(),
		kgo.RecordPartitioner(kgo.ManualPartitioner()),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	logger.Info("kafka log initialized",
		zap.Strings("brokers", brokers),
		zap.String("client_id", clientID),
	)

	return &KafkaLog{
		brokers:  brokers,
		clientID: clientID,
		producer: client,
		logger:   logger,
		readers:  make(map[string]*kafkaReader),
	}, nil
}

// Append produces a record synchronously; fields travel as record headers
func (l *KafkaLog) Append(ctx context.Context, stream string, fields map[string]string) (int64, error) {
	record := &kgo.Record{
		Topic:     stream,
		Partition: kafkaPartition,
		Key:       []byte(fields[FieldID]),
		Headers:   toHeaders(fields),
	}

	produceCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	produced, err := l.producer.ProduceSync(produceCtx, record).First()
	if err != nil {
		if errors.Is(err, kgo.ErrClientClosed) {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("failed to produce record: %w", err)
	}
	return produced.Offset, nil
}

func (l *KafkaLog) reader(stream string, after int64) (*kafkaReader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}
	if r, ok := l.readers[stream]; ok {
		return r, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(l.brokers...),
		kgo.ClientID(l.clientID),
		kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
			stream: {kafkaPartition: kgo.NewOffset().At(after + 1)},
		}),
		// a cursor that points into deleted records resumes at the oldest retained one
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka reader: %w", err)
	}

	r := &kafkaReader{client: client, next: after + 1}
	l.readers[stream] = r
	return r, nil
}

// Read polls the stream's partition from the cursor, blocking until records arrive
func (l *KafkaLog) Read(ctx context.Context, stream string, after int64, count int) ([]Record, error) {
	count = normalizeCount(count)

	r, err := l.reader(stream, after)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next != after+1 {
		r.client.SetOffsets(map[string]map[int32]kgo.EpochOffset{
			stream: {kafkaPartition: {Epoch: -1, Offset: after + 1}},
		})
		r.pending = nil
		r.next = after + 1
	}

	for {
		out := make([]Record, 0, count)
		rest := r.pending[:0]
		for _, rec := range r.pending {
			if rec.Offset <= after {
				continue
			}
			if len(out) < count {
				out = append(out, fromKafkaRecord(rec))
			} else {
				rest = append(rest, rec)
			}
		}
		r.pending = rest
		if len(out) > 0 {
			r.next = out[len(out)-1].Offset + 1
			return out, nil
		}

		fetches := r.client.PollRecords(ctx, count)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if fetches.IsClientClosed() {
			return nil, ErrClosed
		}
		for _, fe := range fetches.Errors() {
			l.logger.Warn("kafka fetch error",
				zap.String("stream", fe.Topic),
				zap.Int32("partition", fe.Partition),
				zap.Error(fe.Err),
			)
		}
		r.pending = append(r.pending, fetches.Records()...)
	}
}

// Last asks the partition leader for the high watermark
func (l *KafkaLog) Last(ctx context.Context, stream string) (int64, error) {
	req := kmsg.NewPtrListOffsetsRequest()
	req.ReplicaID = -1
	topic := kmsg.NewListOffsetsRequestTopic()
	topic.Topic = stream
	partition := kmsg.NewListOffsetsRequestTopicPartition()
	partition.Partition = kafkaPartition
	partition.Timestamp = -1 // latest
	topic.Partitions = append(topic.Partitions, partition)
	req.Topics = append(req.Topics, topic)

	resp, err := req.RequestWith(ctx, l.producer)
	if err != nil {
		return 0, fmt.Errorf("failed to list offsets: %w", err)
	}

	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if p.Partition != kafkaPartition {
				continue
			}
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				if errors.Is(err, kerr.UnknownTopicOrPartition) {
					return Before, nil
				}
				return 0, fmt.Errorf("failed to list offsets: %w", err)
			}
			return p.Offset - 1, nil
		}
	}
	return Before, nil
}

// Trim deletes records below the high watermark minus maxLen
func (l *KafkaLog) Trim(ctx context.Context, stream string, maxLen int64) error {
	if maxLen < 1 {
		return nil
	}

	last, err := l.Last(ctx, stream)
	if err != nil {
		return err
	}
	target := last + 1 - maxLen
	if target <= 0 {
		return nil
	}

	req := kmsg.NewPtrDeleteRecordsRequest()
	req.TimeoutMillis = 5000
	topic := kmsg.NewDeleteRecordsRequestTopic()
	topic.Topic = stream
	partition := kmsg.NewDeleteRecordsRequestTopicPartition()
	partition.Partition = kafkaPartition
	partition.Offset = target
	topic.Partitions = append(topic.Partitions, partition)
	req.Topics = append(req.Topics, topic)

	resp, err := req.RequestWith(ctx, l.producer)
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				return fmt.Errorf("failed to delete records: %w", err)
			}
		}
	}
	return nil
}

// Close closes the producer and all readers
func (l *KafkaLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	for _, r := range l.readers {
		r.client.Close()
	}
	l.producer.Close()
	return nil
}

func toHeaders(fields map[string]string) []kgo.RecordHeader {
	headers := make([]kgo.RecordHeader, 0, len(fields))
	for k, v := range fields {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return headers
}

func fromKafkaRecord(rec *kgo.Record) Record {
	fields := make(map[string]string, len(rec.Headers))
	for _, h := range rec.Headers {
		fields[h.Key] = string(h.Value)
	}
	return Record{
		Stream:    rec.Topic,
		Offset:    rec.Offset,
		Fields:    fields,
		Timestamp: rec.Timestamp.UnixMilli(),
	}
}

var _ Log = (*KafkaLog)(nil)
