// Package batch accumulates decoded fields into arrow record batches.
package batch

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/schema"
)

// Builder collects projected rows up to a fixed capacity. Only the projected
// columns are materialized on Append. A Builder is not safe for concurrent use.
type Builder struct {
	proj     *schema.Projection
	builders []array.Builder
	capacity int
	rows     int
}

// NewBuilder creates a builder for proj holding at most capacity rows.
func NewBuilder(mem memory.Allocator, proj *schema.Projection, capacity int) (*Builder, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidBatchSize, capacity)
	}
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	cols := proj.Columns()
	b := &Builder{
		proj:     proj,
		builders: make([]array.Builder, len(cols)),
		capacity: capacity,
	}
	for i, c := range cols {
		b.builders[i] = array.NewBuilder(mem, c.Type)
	}
	b.reserve()
	return b, nil
}

func (b *Builder) reserve() {
	for _, ab := range b.builders {
		ab.Reserve(b.capacity)
	}
}

// Append adds one row. Appending to a full builder is a programming error.
func (b *Builder) Append(f *core.Fields) {
	if b.rows >= b.capacity {
		panic("batch: append to full builder")
	}
	for i, c := range b.proj.Columns() {
		c.Append(b.builders[i], f)
	}
	b.rows++
}

// IsFull reports whether the builder holds capacity rows.
func (b *Builder) IsFull() bool { return b.rows >= b.capacity }

// Len returns the number of rows accumulated since the last Take.
func (b *Builder) Len() int { return b.rows }

// Cap returns the configured batch size.
func (b *Builder) Cap() int { return b.capacity }

// Schema returns the schema of the records produced by Take.
func (b *Builder) Schema() *arrow.Schema { return b.proj.Schema() }

// Take drains the accumulated rows, in insertion order, into a record and
// resets the builder. The caller must Release the record.
func (b *Builder) Take() arrow.Record {
	arrs := make([]arrow.Array, len(b.builders))
	for i, ab := range b.builders {
		arrs[i] = ab.NewArray()
	}
	rec := array.NewRecord(b.proj.Schema(), arrs, int64(b.rows))
	for _, a := range arrs {
		a.Release()
	}

	b.rows = 0
	b.reserve()
	return rec
}

// Release frees the builder memory. The builder must not be used afterwards.
func (b *Builder) Release() {
	for _, ab := range b.builders {
		ab.Release()
	}
	b.builders = nil
	b.rows = 0
}
