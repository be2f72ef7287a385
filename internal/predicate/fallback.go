package predicate

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/cel-go/cel"

	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/schema"
)

// Fallback evaluates an expression row by row over finished batches. Null
// values are left out of the activation, so an expression that reads one
// fails to evaluate and the row does not match.
type Fallback struct {
	expr string
	prg  cel.Program
	refs []string
}

// NewFallback compiles expr for client-side evaluation. Unlike Translate it
// accepts any bool expression over the schema.
func NewFallback(expr string) (*Fallback, error) {
	checked, err := compile(expr)
	if err != nil {
		return nil, err
	}
	e, err := env()
	if err != nil {
		return nil, err
	}
	prg, err := e.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidPredicate, err)
	}
	return &Fallback{
		expr: expr,
		prg:  prg,
		refs: references(checked.NativeRep().Expr()),
	}, nil
}

// Columns returns the columns a batch must carry for Filter.
func (fb *Fallback) Columns() []string { return fb.refs }

func (fb *Fallback) String() string { return fb.expr }

// Match evaluates the expression against vars, keyed by column name.
func (fb *Fallback) Match(vars map[string]any) bool {
	out, _, err := fb.prg.Eval(vars)
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Filter returns the rows of rec that match, in order. The result shares
// rec's schema and must be released by the caller.
func (fb *Fallback) Filter(mem memory.Allocator, rec arrow.Record) (arrow.Record, error) {
	cols := make([]arrow.Array, len(fb.refs))
	for i, name := range fb.refs {
		idx := rec.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return nil, fmt.Errorf("%w: %q is not in the batch", core.ErrUnknownColumn, name)
		}
		cols[i] = rec.Column(idx[0])
	}

	rows := int(rec.NumRows())
	vars := make(map[string]any, len(fb.refs))
	var runs [][2]int64
	kept := int64(0)
	for row := 0; row < rows; row++ {
		for i, name := range fb.refs {
			if v, ok := schema.ArrayValue(cols[i], row); ok {
				vars[name] = v
			} else {
				delete(vars, name)
			}
		}
		if !fb.Match(vars) {
			continue
		}
		kept++
		if n := len(runs); n > 0 && runs[n-1][1] == int64(row) {
			runs[n-1][1]++
		} else {
			runs = append(runs, [2]int64{int64(row), int64(row) + 1})
		}
	}

	switch {
	case kept == int64(rows):
		rec.Retain()
		return rec, nil
	case kept == 0:
		return rec.NewSlice(0, 0), nil
	case len(runs) == 1:
		return rec.NewSlice(runs[0][0], runs[0][1]), nil
	}
	return concatRuns(mem, rec, runs, kept)
}

func concatRuns(mem memory.Allocator, rec arrow.Record, runs [][2]int64, rows int64) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	slices := make([]arrow.Record, len(runs))
	for i, r := range runs {
		slices[i] = rec.NewSlice(r[0], r[1])
	}
	defer func() {
		for _, s := range slices {
			s.Release()
		}
	}()

	out := make([]arrow.Array, rec.NumCols())
	defer func() {
		for _, a := range out {
			if a != nil {
				a.Release()
			}
		}
	}()
	parts := make([]arrow.Array, len(slices))
	for c := range out {
		for i, s := range slices {
			parts[i] = s.Column(c)
		}
		a, err := array.Concatenate(parts, mem)
		if err != nil {
			return nil, fmt.Errorf("filter batch: %w", err)
		}
		out[c] = a
	}
	return array.NewRecord(rec.Schema(), out, rows), nil
}
