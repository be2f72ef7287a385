// Package summary computes per-file capture statistics in parallel.
package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/panjf2000/ants/v2"

	"firestige.xyz/pcapscan/internal/log"
	"firestige.xyz/pcapscan/internal/pcapfile"
	"firestige.xyz/pcapscan/internal/scan"
)

// columns read by each session.
var columns = []string{"captured_length", "truncated", "has_arp", "has_ip", "has_tcp", "has_udp", "has_icmp", "has_dns"}

// FileStats are the counts for one capture file.
type FileStats struct {
	Path     string
	LinkType string

	Records       uint64
	CapturedBytes uint64
	Truncated     uint64 // records above the snap length
	Anomalies     uint64 // records with a decode anomaly

	ARP  uint64
	IP   uint64
	TCP  uint64
	UDP  uint64
	ICMP uint64
	DNS  uint64

	// Err is the error that stopped the file, if any. Counts cover the
	// records read before it.
	Err error
}

// Add accumulates o into s. Path, LinkType and Err are left alone.
func (s *FileStats) Add(o FileStats) {
	s.Records += o.Records
	s.CapturedBytes += o.CapturedBytes
	s.Truncated += o.Truncated
	s.Anomalies += o.Anomalies
	s.ARP += o.ARP
	s.IP += o.IP
	s.TCP += o.TCP
	s.UDP += o.UDP
	s.ICMP += o.ICMP
	s.DNS += o.DNS
}

// Run scans every path with at most workers concurrent sessions, 0 meaning
// GOMAXPROCS. Results are in path order. A file that fails to scan carries
// its error in FileStats.Err; Run itself fails only when it cannot schedule
// work or ctx is cancelled.
func Run(ctx context.Context, paths []string, workers int) ([]FileStats, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(paths) && len(paths) > 0 {
		workers = len(paths)
	}

	logger := log.GetLogger()
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		logger.Errorf("stats worker panic: %v", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]FileStats, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		results[i].Path = path
		if ctx.Err() != nil {
			results[i].Err = ctx.Err()
			continue
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					logger.WithField("file", path).Errorf("stats worker panic: %v", v)
					results[i] = FileStats{Path: path, Err: fmt.Errorf("scan %s panicked: %v", path, v)}
				}
			}()
			results[i] = scanFile(ctx, path)
		})
		if err != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("schedule %s: %w", path, err)
		}
	}
	wg.Wait()

	logger.WithFields(map[string]interface{}{
		"files":   len(paths),
		"workers": workers,
	}).Debug("stats finished")
	return results, ctx.Err()
}

// scanFile is File; tests replace it.
var scanFile = File

// File scans one capture. Cancellation is checked between batches.
func File(ctx context.Context, path string) FileStats {
	st := FileStats{Path: path}

	sess, err := scan.Open(path, scan.Options{})
	if err != nil {
		st.Err = err
		return st
	}
	defer sess.Close()
	st.LinkType = pcapfile.LinkTypeName(sess.Header().LinkType)

	if err := sess.Configure(scan.Config{Columns: columns}); err != nil {
		st.Err = err
		return st
	}

	for {
		if err := ctx.Err(); err != nil {
			st.Err = err
			break
		}
		rec, err := sess.NextBatch()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			st.Err = err
			break
		}
		st.count(rec)
		rec.Release()
	}
	st.Anomalies = sess.Stats().Anomalies
	return st
}

func (s *FileStats) count(rec arrow.Record) {
	n := int(rec.NumRows())
	s.Records += uint64(n)

	lengths := rec.Column(0).(*array.Uint32)
	for i := 0; i < n; i++ {
		s.CapturedBytes += uint64(lengths.Value(i))
	}

	counters := []*uint64{&s.Truncated, &s.ARP, &s.IP, &s.TCP, &s.UDP, &s.ICMP, &s.DNS}
	for c, dst := range counters {
		flags := rec.Column(c + 1).(*array.Boolean)
		for i := 0; i < n; i++ {
			if flags.Value(i) {
				*dst++
			}
		}
	}
}
