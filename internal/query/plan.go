// Package query is the planning boundary toward a host query engine: four
// nullable parameters in, a static schema and a pull-based batch stream out.
package query

import (
	"errors"
	"fmt"
	"strings"

	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/predicate"
	"firestige.xyz/pcapscan/internal/schema"
)

// Options are the planning parameters. A nil field means "not set".
type Options struct {
	Columns   *[]string // nil: every column
	Predicate *string   // nil: no filter
	MaxRows   *int64    // nil: unbounded
	BatchSize *int      // nil: session default

	// NoPushdown plans every predicate as a client-side filter.
	NoPushdown bool
}

// Plan is the negotiated shape of a scan, fixed before any data is read.
type Plan struct {
	// Output is the projection the caller asked for.
	Output *schema.Projection
	// Read is what the session reads. It widens Output with the columns the
	// fallback filter needs when the predicate is not pushed down.
	Read *schema.Projection

	Predicate string
	Native    predicate.Predicate // nil when not pushed down
	Fallback  *predicate.Fallback // set when a predicate is not pushed down
	Reason    error               // why Native is nil

	MaxRows   int64 // -1 is unbounded
	BatchSize int   // 0 is the session default
}

// NewPlan validates opts and negotiates pushdown. An untranslatable
// predicate is planned as a fallback filter; a predicate that is not a
// valid bool expression over the schema fails with core.ErrInvalidPredicate.
func NewPlan(opts Options) (*Plan, error) {
	p := &Plan{MaxRows: -1}

	if opts.BatchSize != nil {
		if *opts.BatchSize < 0 {
			return nil, fmt.Errorf("%w: %d", core.ErrInvalidBatchSize, *opts.BatchSize)
		}
		p.BatchSize = *opts.BatchSize
	}
	if opts.MaxRows != nil {
		if *opts.MaxRows < 0 {
			return nil, fmt.Errorf("%w: %d", core.ErrInvalidRowLimit, *opts.MaxRows)
		}
		p.MaxRows = *opts.MaxRows
	}

	var cols []string
	if opts.Columns != nil {
		cols = *opts.Columns
		if cols == nil {
			cols = []string{}
		}
	}
	out, err := schema.Project(cols)
	if err != nil {
		return nil, err
	}
	p.Output, p.Read = out, out

	if opts.Predicate == nil || strings.TrimSpace(*opts.Predicate) == "" {
		return p, nil
	}
	p.Predicate = *opts.Predicate

	if opts.NoPushdown {
		p.Reason = fmt.Errorf("%w: pushdown disabled", core.ErrUnsupportedPredicate)
	} else {
		native, err := predicate.Translate(p.Predicate)
		if err == nil {
			p.Native = native
			return p, nil
		}
		if errors.Is(err, core.ErrInvalidPredicate) {
			return nil, err
		}
		p.Reason = err
	}

	fb, err := predicate.NewFallback(p.Predicate)
	if err != nil {
		return nil, err
	}
	p.Fallback = fb
	if p.Read, err = out.Widen(fb.Columns()); err != nil {
		return nil, err
	}
	return p, nil
}

// PushedDown reports whether the predicate, if any, runs in the session.
func (p *Plan) PushedDown() bool { return p.Fallback == nil }

// Widened reports whether the session reads columns the caller will not see.
func (p *Plan) Widened() bool { return p.Read.Len() != p.Output.Len() }

// String renders the plan on one line for logs and the validate command.
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "columns=%d", p.Output.Len())
	switch {
	case p.Native != nil:
		fmt.Fprintf(&b, " filter=native(%s)", p.Native)
	case p.Fallback != nil:
		fmt.Fprintf(&b, " filter=fallback(%s)", p.Fallback)
		if p.Widened() {
			fmt.Fprintf(&b, " read=%d", p.Read.Len())
		}
	}
	if p.MaxRows >= 0 {
		fmt.Fprintf(&b, " limit=%d", p.MaxRows)
	}
	if p.BatchSize > 0 {
		fmt.Fprintf(&b, " batch=%d", p.BatchSize)
	}
	return b.String()
}
