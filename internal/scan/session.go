// Package scan drives one capture file through decoding into arrow batches.
package scan

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/google/uuid"

	"firestige.xyz/pcapscan/internal/batch"
	"firestige.xyz/pcapscan/internal/core"
	"firestige.xyz/pcapscan/internal/core/decoder"
	"firestige.xyz/pcapscan/internal/log"
	"firestige.xyz/pcapscan/internal/metrics"
	"firestige.xyz/pcapscan/internal/pcapfile"
	"firestige.xyz/pcapscan/internal/predicate"
	"firestige.xyz/pcapscan/internal/schema"
)

// DefaultBatchSize is used when Options.BatchSize is 0.
const DefaultBatchSize = 8192

// State is the lifecycle state of a Session.
type State int

const (
	StateCreated State = iota
	StateConfigured
	StateStreaming
	StateExhausted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options are fixed when a session is opened.
type Options struct {
	BatchSize int              // rows per batch, 0 means DefaultBatchSize
	Allocator memory.Allocator // nil means memory.DefaultAllocator
	Logger    log.Logger       // nil means log.GetLogger()
}

// Config narrows a session. It is applied at most once.
type Config struct {
	// Columns to emit, in order. nil emits every column.
	Columns []string
	// Predicate is a CEL expression; empty means no filtering. If it cannot
	// be pushed down the session does not filter and the caller must.
	Predicate string
	// Native is an already translated predicate. It takes the place of
	// Predicate, which is then only used for logging.
	Native predicate.Predicate
	// MaxRows caps the rows emitted across all batches; nil is unbounded.
	// It is ignored when Predicate is not pushed down; PushdownError then
	// says so.
	MaxRows *int64
}

// Stats counts the work done by a session.
type Stats struct {
	Records       uint64 // records read from the file
	CapturedBytes uint64
	Rows          uint64 // rows emitted
	Filtered      uint64 // records rejected by the native predicate
	Batches       uint64
	Anomalies     uint64 // records with at least one decode anomaly
}

// Session owns one open capture file and a forward-only cursor over it.
// It is not safe for concurrent use; run one session per goroutine.
type Session struct {
	id     string
	path   string
	logger log.Logger
	mem    memory.Allocator

	reader  *pcapfile.Reader
	records *pcapfile.RecordDecoder
	decoder decoder.Decoder

	state     State
	batchSize int
	proj      *schema.Projection
	pred      predicate.Predicate
	pushErr   error // why the predicate was not pushed down
	remaining int64 // -1 is unbounded
	builder   *batch.Builder

	// pending is a fatal error held back until the rows read before it
	// have been returned.
	pending error
	stats   Stats
}

// Open opens path and validates its global header. The file stays open
// until the session is exhausted or closed.
func Open(path string, opts Options) (*Session, error) {
	if opts.BatchSize < 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidBatchSize, opts.BatchSize)
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.DefaultAllocator
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}

	id := uuid.NewString()
	logger := opts.Logger.WithFields(map[string]interface{}{"session": id, "file": path})

	r, err := pcapfile.Open(path)
	if err != nil {
		metrics.ScanErrorsTotal.WithLabelValues(errorKind(err)).Inc()
		return nil, err
	}

	hdr := r.Header()
	logger.WithFields(map[string]interface{}{
		"link_type":  pcapfile.LinkTypeName(hdr.LinkType),
		"snap_len":   hdr.SnapLen,
		"byte_order": hdr.ByteOrder.String(),
		"version":    fmt.Sprintf("%d.%d", hdr.VersionMajor, hdr.VersionMinor),
		"nanosecond": hdr.Nanosecond,
	}).Debug("capture opened")

	return &Session{
		id:        id,
		path:      path,
		logger:    logger,
		mem:       opts.Allocator,
		reader:    r,
		records:   pcapfile.NewRecordDecoder(r),
		decoder:   decoder.NewStandardDecoder(hdr.LinkType),
		state:     StateCreated,
		batchSize: opts.BatchSize,
		proj:      schema.Full(),
		remaining: -1,
	}, nil
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// Path returns the capture file path.
func (s *Session) Path() string { return s.path }

// Header returns the validated global header.
func (s *Session) Header() core.GlobalHeader { return s.reader.Header() }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// BatchSize returns the configured rows per batch.
func (s *Session) BatchSize() int { return s.batchSize }

// Stats returns counters for the work done so far.
func (s *Session) Stats() Stats { return s.stats }

// Schema returns the schema of every batch. Before Configure this is the
// full schema.
func (s *Session) Schema() *arrow.Schema { return s.proj.Schema() }

// PushedDown reports whether the configured predicate is applied natively.
func (s *Session) PushedDown() bool { return s.pred != nil }

// PushdownError explains why a configured predicate was not pushed down.
// It wraps core.ErrUnsupportedPredicate, or is nil.
func (s *Session) PushdownError() error { return s.pushErr }

// Configure applies projection, predicate and row ceiling. Predicate
// translation is attempted once, here; an untranslatable predicate is not an
// error, see PushedDown.
func (s *Session) Configure(cfg Config) error {
	switch s.state {
	case StateClosed:
		return core.ErrSessionClosed
	case StateCreated:
	default:
		return core.ErrAlreadyConfigured
	}

	if cfg.MaxRows != nil && *cfg.MaxRows < 0 {
		return fmt.Errorf("%w: %d", core.ErrInvalidRowLimit, *cfg.MaxRows)
	}
	proj, err := schema.Project(cfg.Columns)
	if err != nil {
		return err
	}
	builder, err := batch.NewBuilder(s.mem, proj, s.batchSize)
	if err != nil {
		return err
	}

	pred := cfg.Native
	if pred == nil && cfg.Predicate != "" {
		p, err := predicate.Translate(cfg.Predicate)
		if err != nil {
			s.pushErr = err
			if cfg.MaxRows != nil {
				s.pushErr = fmt.Errorf("%w; row ceiling %d not applied", err, *cfg.MaxRows)
			}
			metrics.PushdownTotal.WithLabelValues(metrics.PushdownUnsupported).Inc()
			s.logger.WithError(s.pushErr).Debug("predicate not pushed down")
		} else {
			pred = p
		}
	}
	if pred != nil {
		s.pred = pred
		metrics.PushdownTotal.WithLabelValues(metrics.PushdownNative).Inc()
		s.logger.WithField("predicate", pred.String()).Debug("predicate pushed down")
	}

	s.proj = proj
	s.builder = builder
	if cfg.MaxRows != nil && s.pushErr == nil {
		s.remaining = *cfg.MaxRows
	}
	s.state = StateConfigured
	return nil
}

// NextBatch returns the next batch, at most BatchSize rows in file order.
// It returns io.EOF once the file or the row ceiling is exhausted and never
// returns an empty batch. A fatal read error is reported once, after the
// rows read before it have been returned; io.EOF follows. The caller must
// Release every returned record.
func (s *Session) NextBatch() (arrow.Record, error) {
	switch s.state {
	case StateClosed:
		return nil, core.ErrSessionClosed
	case StateExhausted:
		return nil, io.EOF
	case StateCreated:
		if err := s.Configure(Config{}); err != nil {
			return nil, err
		}
	}

	if s.pending != nil {
		err := s.pending
		s.pending = nil
		s.exhaust()
		return nil, err
	}
	s.state = StateStreaming

	for s.remaining != 0 {
		rec, err := s.records.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.fail(err)
			if s.builder.Len() > 0 {
				s.pending = err
				return s.take(), nil
			}
			s.exhaust()
			return nil, err
		}

		f := s.decoder.Decode(rec)
		s.observe(&f)
		if s.pred != nil && !s.pred.Eval(&f) {
			s.stats.Filtered++
			metrics.RowsFilteredTotal.WithLabelValues(metrics.StageNative).Inc()
			continue
		}

		s.builder.Append(&f)
		if s.remaining > 0 {
			s.remaining--
		}
		if s.builder.IsFull() && s.remaining != 0 {
			return s.take(), nil
		}
	}

	// End of file or row ceiling: flush what is left and release the file.
	if s.builder.Len() == 0 {
		s.exhaust()
		return nil, io.EOF
	}
	out := s.take()
	s.exhaust()
	return out, nil
}

// Close releases the file and builder memory. It is idempotent.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}
	err := s.release()
	s.state = StateClosed
	s.logger.WithFields(map[string]interface{}{
		"records": s.stats.Records,
		"rows":    s.stats.Rows,
		"batches": s.stats.Batches,
	}).Debug("session closed")
	return err
}

func (s *Session) take() arrow.Record {
	rec := s.builder.Take()
	n := uint64(rec.NumRows())
	s.stats.Rows += n
	s.stats.Batches++
	metrics.RowsTotal.Add(float64(n))
	metrics.BatchRows.Observe(float64(n))
	return rec
}

func (s *Session) observe(f *core.Fields) {
	s.stats.Records++
	s.stats.CapturedBytes += uint64(f.CapturedLength)
	metrics.RecordsTotal.Inc()
	metrics.CapturedBytesTotal.Add(float64(f.CapturedLength))

	if f.Anomalies == 0 {
		return
	}
	s.stats.Anomalies++
	labels := f.Anomalies.Labels()
	for _, l := range labels {
		metrics.AnomaliesTotal.WithLabelValues(l).Inc()
	}
	if s.logger.IsDebugEnabled() {
		s.logger.WithFields(map[string]interface{}{
			"packet":    f.PacketNumber,
			"anomalies": f.Anomalies.String(),
		}).Debug("decode anomaly")
	}
}

func (s *Session) fail(err error) {
	metrics.ScanErrorsTotal.WithLabelValues(errorKind(err)).Inc()
	s.logger.WithError(err).WithField("records", s.stats.Records).Warn("scan stopped")
}

// exhaust moves to StateExhausted and releases the file.
func (s *Session) exhaust() {
	if err := s.release(); err != nil {
		s.logger.WithError(err).Warn("failed to close capture file")
	}
	s.state = StateExhausted
}

func (s *Session) release() error {
	if s.builder != nil {
		s.builder.Release()
		s.builder = nil
	}
	return s.reader.Close()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrFormat):
		return "format"
	case errors.Is(err, core.ErrTruncatedRecord):
		return "truncated"
	default:
		return "io"
	}
}
