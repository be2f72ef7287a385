// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapscan/internal/config"
	"firestige.xyz/pcapscan/internal/log"
	"firestige.xyz/pcapscan/internal/query"
	"firestige.xyz/pcapscan/internal/sink"
)

var scanCmd = &cobra.Command{
	Use:   "scan [FILE]",
	Short: "Decode a capture file and write its rows",
	Long: `Decode a capture file into rows and write them in the selected format.

The capture file is the positional argument or the "file" field of a query
file. Flags override the query file; the query file overrides the global
configuration.

Output formats: table, jsonl, csv, arrow (IPC stream), kafka.

Examples:
  pcapscan scan capture.pcap -C packet_number,src_ip,dst_ip,dns_query_name -w 'has_dns'
  pcapscan scan capture.pcap -w 'dns_query_name.endsWith(".example.com")' -o jsonl
  pcapscan scan capture.pcap -o arrow > capture.arrows
  pcapscan scan -q query.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildScanRequest(cmd, args)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		_, err = runScan(ctx, req, cmd.OutOrStdout())
		return err
	},
}

var (
	scanColumns    []string
	scanWhere      string
	scanLimit      int64
	scanBatchSize  int
	scanFormat     string
	scanQueryFile  string
	scanNoPushdown bool
)

// newSink builds the output sink; tests replace it.
var newSink = sink.New

func init() {
	scanCmd.Flags().StringSliceVarP(&scanColumns, "columns", "C", nil,
		"columns to output, in order (default all)")
	scanCmd.Flags().StringVarP(&scanWhere, "where", "w", "",
		"CEL filter expression over column names")
	scanCmd.Flags().Int64VarP(&scanLimit, "limit", "n", 0,
		"maximum number of rows (default unbounded)")
	scanCmd.Flags().IntVarP(&scanBatchSize, "batch-size", "b", 0,
		"rows per batch (default from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "o", "",
		"output format: table/jsonl/csv/arrow/kafka (default from config)")
	scanCmd.Flags().StringVarP(&scanQueryFile, "query", "q", "",
		"query file (JSON or YAML)")
	scanCmd.Flags().BoolVar(&scanNoPushdown, "no-pushdown", false,
		"filter every batch client-side instead of inside the scanner")
}

// scanRequest is a fully resolved scan invocation.
type scanRequest struct {
	File    string
	Options query.Options
	Format  string
	Kafka   config.KafkaConfig
}

// buildScanRequest merges the global config, the query file and the flags,
// in increasing precedence.
func buildScanRequest(cmd *cobra.Command, args []string) (scanRequest, error) {
	cfg := globalCfg
	if cfg == nil {
		var err error
		if cfg, err = config.Load(""); err != nil {
			return scanRequest{}, err
		}
	}

	req := scanRequest{
		Format: cfg.Output.Format,
		Kafka:  cfg.Kafka,
	}
	batchSize := cfg.Scan.BatchSize
	req.Options.NoPushdown = !cfg.Scan.Pushdown

	if scanQueryFile != "" {
		q, err := config.LoadQueryConfig(scanQueryFile)
		if err != nil {
			return scanRequest{}, err
		}
		req.File = q.File
		if q.Columns != nil {
			cols := q.Columns
			req.Options.Columns = &cols
		}
		if q.Where != "" {
			where := q.Where
			req.Options.Predicate = &where
		}
		req.Options.MaxRows = q.Limit
		if q.BatchSize > 0 {
			batchSize = q.BatchSize
		}
		if q.Format != "" {
			req.Format = q.Format
		}
	}

	flags := cmd.Flags()
	if len(args) == 1 {
		req.File = args[0]
	}
	if flags.Changed("columns") {
		cols := append([]string{}, scanColumns...)
		req.Options.Columns = &cols
	}
	if flags.Changed("where") {
		where := scanWhere
		req.Options.Predicate = &where
	}
	if flags.Changed("limit") {
		limit := scanLimit
		req.Options.MaxRows = &limit
	}
	if flags.Changed("batch-size") {
		batchSize = scanBatchSize
	}
	if flags.Changed("format") {
		req.Format = scanFormat
	}
	if scanNoPushdown {
		req.Options.NoPushdown = true
	}
	req.Options.BatchSize = &batchSize

	if req.File == "" {
		return scanRequest{}, errors.New("a capture file is required (argument or query file)")
	}
	return req, nil
}

// runScan streams every batch of req into a sink writing to out and
// returns the number of rows written.
func runScan(ctx context.Context, req scanRequest, out io.Writer) (int64, error) {
	logger := log.GetLogger().WithField("file", req.File)

	q, err := query.Open(req.File, req.Options, nil)
	if err != nil {
		return 0, err
	}
	defer q.Close()

	plan := q.Plan()
	if !plan.PushedDown() {
		logger.WithError(plan.Reason).Info("filtering client-side")
	}

	s, err := newSink(req.Format, sink.Config{Schema: q.Schema(), Kafka: req.Kafka}, out)
	if err != nil {
		return 0, err
	}

	var rows int64
	err = func() error {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := q.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			n := rec.NumRows()
			werr := s.Write(ctx, rec)
			rec.Release()
			if werr != nil {
				return werr
			}
			rows += n
		}
	}()
	if cerr := s.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to close %s output: %w", req.Format, cerr)
	}

	st := q.Stats()
	logger.WithFields(map[string]interface{}{
		"records": st.Records,
		"rows":    rows,
		"batches": st.Batches,
		"plan":    plan.String(),
	}).Info("scan finished")
	return rows, err
}
