package sink

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"firestige.xyz/pcapscan/internal/metrics"
)

// JSONL writes one JSON object per row. Nulls are JSON null, binary values
// are base64 and timestamps are strings.
type JSONL struct {
	w *bufio.Writer
}

// NewJSONL creates a JSON lines sink.
func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{w: bufio.NewWriter(w)}
}

// Write renders rec.
func (j *JSONL) Write(_ context.Context, rec arrow.Record) error {
	if err := array.RecordToJSON(rec, j.w); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(KindJSONL).Inc()
		return fmt.Errorf("write jsonl: %w", err)
	}
	if err := j.w.Flush(); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(KindJSONL).Inc()
		return fmt.Errorf("write jsonl: %w", err)
	}
	metrics.SinkMessagesTotal.WithLabelValues(KindJSONL).Add(float64(rec.NumRows()))
	return nil
}

func (j *JSONL) Close() error { return j.w.Flush() }
