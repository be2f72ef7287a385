package query

import (
	"errors"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"firestige.xyz/pcapscan/internal/log"
	"firestige.xyz/pcapscan/internal/metrics"
	"firestige.xyz/pcapscan/internal/scan"
)

// Scan streams the batches of one planned query over one capture file.
type Scan struct {
	plan    *Plan
	session *scan.Session
	mem     memory.Allocator
	logger  log.Logger

	// remaining is the ceiling left to apply here when it could not be
	// given to the session; -1 when the session owns it or it is unbounded.
	remaining int64
	done      bool
}

// Open plans opts and opens path. mem may be nil.
func Open(path string, opts Options, mem memory.Allocator) (*Scan, error) {
	plan, err := NewPlan(opts)
	if err != nil {
		return nil, err
	}
	return OpenPlan(path, plan, mem)
}

// OpenPlan opens path with an existing plan, so one plan can drive many
// files.
func OpenPlan(path string, plan *Plan, mem memory.Allocator) (*Scan, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	sess, err := scan.Open(path, scan.Options{BatchSize: plan.BatchSize, Allocator: mem})
	if err != nil {
		return nil, err
	}

	cfg := scan.Config{Columns: plan.Read.Names()}
	q := &Scan{
		plan:      plan,
		session:   sess,
		mem:       mem,
		logger:    log.GetLogger().WithField("session", sess.ID()),
		remaining: -1,
	}
	if plan.PushedDown() {
		cfg.Predicate = plan.Predicate
		cfg.Native = plan.Native
		if plan.MaxRows >= 0 {
			limit := plan.MaxRows
			cfg.MaxRows = &limit
		}
	} else {
		q.remaining = plan.MaxRows
	}
	if err := sess.Configure(cfg); err != nil {
		sess.Close()
		return nil, err
	}
	q.logger.WithField("plan", plan.String()).Debug("query planned")
	return q, nil
}

// Plan returns the negotiated plan.
func (q *Scan) Plan() *Plan { return q.plan }

// Schema returns the schema of every batch Next returns. It is known before
// any data is read.
func (q *Scan) Schema() *arrow.Schema { return q.plan.Output.Schema() }

// Stats returns the underlying session counters.
func (q *Scan) Stats() scan.Stats { return q.session.Stats() }

// Next returns the next non-empty batch or io.EOF. Errors from the session
// are returned as they occur; rows read before a fatal error have already
// been returned. The caller must Release every returned record.
func (q *Scan) Next() (arrow.Record, error) {
	for !q.done {
		if q.remaining == 0 {
			q.finish()
			break
		}
		rec, err := q.session.NextBatch()
		if errors.Is(err, io.EOF) {
			q.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		out, err := q.shape(rec)
		rec.Release()
		if err != nil {
			return nil, err
		}
		if out.NumRows() == 0 {
			out.Release()
			continue
		}
		return out, nil
	}
	return nil, io.EOF
}

// shape applies the fallback filter, the ceiling and the final projection.
func (q *Scan) shape(rec arrow.Record) (arrow.Record, error) {
	if q.plan.PushedDown() {
		rec.Retain()
		return rec, nil
	}

	filtered, err := q.plan.Fallback.Filter(q.mem, rec)
	if err != nil {
		return nil, err
	}
	if dropped := rec.NumRows() - filtered.NumRows(); dropped > 0 {
		metrics.RowsFilteredTotal.WithLabelValues(metrics.StageFallback).Add(float64(dropped))
	}

	if q.remaining >= 0 && filtered.NumRows() > q.remaining {
		sliced := filtered.NewSlice(0, q.remaining)
		filtered.Release()
		filtered = sliced
	}
	if q.remaining >= 0 {
		q.remaining -= filtered.NumRows()
	}

	if !q.plan.Widened() {
		return filtered, nil
	}
	defer filtered.Release()
	n := q.plan.Output.Len()
	return array.NewRecord(q.plan.Output.Schema(), filtered.Columns()[:n], filtered.NumRows()), nil
}

// finish stops pulling once the local ceiling is met; the session is
// closed early so the file is released.
func (q *Scan) finish() {
	q.done = true
	if err := q.session.Close(); err != nil {
		q.logger.WithError(err).Warn("failed to close session")
	}
}

// Close releases the session. It is idempotent.
func (q *Scan) Close() error {
	q.done = true
	return q.session.Close()
}
