package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"

	"firestige.xyz/pcapscan/internal/metrics"
)

// CSV writes a header line with the first batch, then one line per row.
// Nulls are empty cells.
type CSV struct {
	w *csv.Writer
}

// NewCSV creates a csv sink.
func NewCSV(w io.Writer, sch *arrow.Schema) *CSV {
	return &CSV{w: csv.NewWriter(w, sch, csv.WithHeader(true), csv.WithNullWriter(""))}
}

// Write renders rec.
func (c *CSV) Write(_ context.Context, rec arrow.Record) error {
	if err := c.w.Write(rec); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(KindCSV).Inc()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := c.w.Flush(); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(KindCSV).Inc()
		return fmt.Errorf("write csv: %w", err)
	}
	metrics.SinkMessagesTotal.WithLabelValues(KindCSV).Add(float64(rec.NumRows()))
	return nil
}

func (c *CSV) Close() error { return c.w.Flush() }
