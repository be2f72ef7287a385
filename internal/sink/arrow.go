package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	"firestige.xyz/pcapscan/internal/metrics"
)

// Arrow writes an Arrow IPC stream. The schema message is written even when
// no batch follows.
type Arrow struct {
	w *ipc.Writer
}

// NewArrow creates an IPC stream sink.
func NewArrow(w io.Writer, sch *arrow.Schema) *Arrow {
	return &Arrow{w: ipc.NewWriter(w, ipc.WithSchema(sch))}
}

// Write appends rec to the stream.
func (a *Arrow) Write(_ context.Context, rec arrow.Record) error {
	if err := a.w.Write(rec); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(KindArrow).Inc()
		return fmt.Errorf("write arrow stream: %w", err)
	}
	metrics.SinkMessagesTotal.WithLabelValues(KindArrow).Add(float64(rec.NumRows()))
	return nil
}

// Close ends the stream.
func (a *Arrow) Close() error { return a.w.Close() }
