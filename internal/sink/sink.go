// Package sink writes arrow batches to an output.
package sink

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"firestige.xyz/pcapscan/internal/config"
	"firestige.xyz/pcapscan/internal/schema"
)

// Sink kinds.
const (
	KindTable = "table"
	KindJSONL = "jsonl"
	KindCSV   = "csv"
	KindArrow = "arrow"
	KindKafka = "kafka"
)

// Sink consumes batches in order. Write does not retain rec.
type Sink interface {
	Write(ctx context.Context, rec arrow.Record) error
	Close() error
}

// Config carries what a sink needs besides its destination.
type Config struct {
	// Schema of every batch. Sinks that write a header use it even when no
	// batch arrives.
	Schema *arrow.Schema
	Kafka  config.KafkaConfig
}

// New returns the sink for kind writing to w. The kafka sink ignores w.
func New(kind string, cfg Config, w io.Writer) (Sink, error) {
	if cfg.Schema == nil && kind != KindKafka && kind != KindJSONL {
		return nil, fmt.Errorf("sink %s requires a schema", kind)
	}
	switch kind {
	case KindTable, "":
		return NewTable(w, cfg.Schema), nil
	case KindJSONL:
		return NewJSONL(w), nil
	case KindCSV:
		return NewCSV(w, cfg.Schema), nil
	case KindArrow:
		return NewArrow(w, cfg.Schema), nil
	case KindKafka:
		return NewKafka(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unknown output format: %s", kind)
	}
}

// nullText renders a null value in text outputs.
const nullText = "-"

// formatValue renders row i of arr for text outputs.
func formatValue(arr arrow.Array, i int) string {
	v, ok := schema.ArrayValue(arr, i)
	if !ok {
		return nullText
	}
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []byte:
		return hex.EncodeToString(x)
	default:
		return fmt.Sprint(x)
	}
}
