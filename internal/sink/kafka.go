package sink

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/pcapscan/internal/config"
	"firestige.xyz/pcapscan/internal/log"
	"firestige.xyz/pcapscan/internal/metrics"
	"firestige.xyz/pcapscan/internal/schema"
)

const (
	defaultKafkaBatchSize    = 100
	defaultKafkaBatchTimeout = time.Second
	defaultKafkaMaxAttempts  = 3
)

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one JSON message per row. Rows carrying the address and
// port columns are keyed by their flow so a flow stays on one partition.
type Kafka struct {
	writer messageWriter
	topic  string
	logger log.Logger

	sent   uint64
	failed uint64
}

// NewKafka validates cfg and creates a synchronous kafka writer.
func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := defaultKafkaBatchTimeout
	if cfg.BatchTimeout != "" {
		d, err := time.ParseDuration(cfg.BatchTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid kafka batch_timeout: %w", err)
		}
		timeout = d
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultKafkaBatchSize
	}

	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:          cfg.Brokers,
		Topic:            cfg.Topic,
		Balancer:         &kafka.Hash{},
		BatchSize:        batchSize,
		BatchTimeout:     timeout,
		MaxAttempts:      defaultKafkaMaxAttempts,
		CompressionCodec: codec,
		Async:            false,
	})

	k := newKafka(w, cfg.Topic)
	k.logger.WithFields(map[string]interface{}{
		"brokers":       cfg.Brokers,
		"batch_size":    batchSize,
		"batch_timeout": timeout.String(),
		"compression":   cfg.Compression,
	}).Info("kafka sink created")
	return k, nil
}

func newKafka(w messageWriter, topic string) *Kafka {
	return &Kafka{
		writer: w,
		topic:  topic,
		logger: log.GetLogger().WithField("topic", topic),
	}
}

func compressionCodec(name string) (kafka.CompressionCodec, error) {
	switch name {
	case "none", "":
		return nil, nil
	case "gzip":
		return compress.Gzip.Codec(), nil
	case "snappy":
		return compress.Snappy.Codec(), nil
	case "lz4":
		return compress.Lz4.Codec(), nil
	default:
		return nil, fmt.Errorf("invalid compression type: %s", name)
	}
}

// Write publishes every row of rec in one call.
func (k *Kafka) Write(ctx context.Context, rec arrow.Record) error {
	if rec.NumRows() == 0 {
		return nil
	}
	msgs, err := k.messages(rec)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		k.failed += uint64(len(msgs))
		metrics.SinkErrorsTotal.WithLabelValues(KindKafka).Inc()
		return fmt.Errorf("kafka write failed: %w", err)
	}
	k.sent += uint64(len(msgs))
	metrics.SinkMessagesTotal.WithLabelValues(KindKafka).Add(float64(len(msgs)))
	return nil
}

func (k *Kafka) messages(rec arrow.Record) ([]kafka.Message, error) {
	var buf bytes.Buffer
	if err := array.RecordToJSON(rec, &buf); err != nil {
		return nil, fmt.Errorf("serialize batch failed: %w", err)
	}
	lines := bytes.Split(bytes.TrimSuffix(buf.Bytes(), []byte("\n")), []byte("\n"))
	if int64(len(lines)) != rec.NumRows() {
		return nil, fmt.Errorf("serialize batch failed: %d lines for %d rows", len(lines), rec.NumRows())
	}

	keyed := newFlowKey(rec)
	ts := columnIndex(rec.Schema(), "timestamp")
	msgs := make([]kafka.Message, len(lines))
	for i, line := range lines {
		msgs[i] = kafka.Message{Value: line, Key: keyed.key(i)}
		if ts >= 0 {
			if v, ok := schema.ArrayValue(rec.Column(ts), i); ok {
				msgs[i].Time = v.(time.Time)
			}
		}
	}
	return msgs, nil
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	if err := k.writer.Close(); err != nil {
		k.logger.WithError(err).Error("error closing kafka writer")
		return err
	}
	k.logger.WithFields(map[string]interface{}{
		"total_sent":   k.sent,
		"total_failed": k.failed,
	}).Info("kafka sink closed")
	return nil
}

// flowKey renders "src_ip:src_port-dst_ip:dst_port" from a batch.
type flowKey struct {
	cols []arrow.Array
}

func newFlowKey(rec arrow.Record) flowKey {
	names := []string{"src_ip", "src_port", "dst_ip", "dst_port"}
	cols := make([]arrow.Array, len(names))
	for i, n := range names {
		idx := columnIndex(rec.Schema(), n)
		if idx < 0 {
			return flowKey{}
		}
		cols[i] = rec.Column(idx)
	}
	return flowKey{cols: cols}
}

func (f flowKey) key(row int) []byte {
	if f.cols == nil {
		return nil
	}
	parts := make([]string, len(f.cols))
	for i, c := range f.cols {
		v, ok := schema.ArrayValue(c, row)
		if !ok {
			return nil
		}
		switch x := v.(type) {
		case int64:
			parts[i] = strconv.FormatInt(x, 10)
		default:
			parts[i] = fmt.Sprint(x)
		}
	}
	return []byte(parts[0] + ":" + parts[1] + "-" + parts[2] + ":" + parts[3])
}

func columnIndex(sch *arrow.Schema, name string) int {
	idx := sch.FieldIndices(name)
	if len(idx) == 0 {
		return -1
	}
	return idx[0]
}
