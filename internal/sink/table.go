package sink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow"

	"firestige.xyz/pcapscan/internal/metrics"
)

// Table writes aligned columns, one header line then one line per row.
// Columns are aligned within each batch.
type Table struct {
	tw     *tabwriter.Writer
	schema *arrow.Schema
	header bool
}

// NewTable creates a table sink.
func NewTable(w io.Writer, sch *arrow.Schema) *Table {
	return &Table{
		tw:     tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
		schema: sch,
	}
}

func (t *Table) writeHeader() {
	if t.header {
		return
	}
	t.header = true
	names := make([]string, t.schema.NumFields())
	for i, f := range t.schema.Fields() {
		names[i] = strings.ToUpper(f.Name)
	}
	fmt.Fprintln(t.tw, strings.Join(names, "\t"))
}

// Write renders rec.
func (t *Table) Write(_ context.Context, rec arrow.Record) error {
	t.writeHeader()
	cells := make([]string, rec.NumCols())
	for i := 0; i < int(rec.NumRows()); i++ {
		for c := range cells {
			cells[c] = formatValue(rec.Column(c), i)
		}
		fmt.Fprintln(t.tw, strings.Join(cells, "\t"))
	}
	if err := t.tw.Flush(); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(KindTable).Inc()
		return fmt.Errorf("write table: %w", err)
	}
	metrics.SinkMessagesTotal.WithLabelValues(KindTable).Add(float64(rec.NumRows()))
	return nil
}

// Close writes the header if no batch was written.
func (t *Table) Close() error {
	t.writeHeader()
	return t.tw.Flush()
}
