// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapscan/internal/summary"
)

var statsCmd = &cobra.Command{
	Use:   "stats FILE...",
	Short: "Show per-file capture statistics",
	Long: `Scan capture files in parallel and count records, bytes and decoded layers.

Shows: records, captured bytes, ARP/IP/TCP/UDP/ICMP/DNS counts, records
above the snap length and records with decode anomalies. A file that fails
is reported with its error; the others are still counted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workers := statsWorkers
		if !cmd.Flags().Changed("workers") && globalCfg != nil {
			workers = globalCfg.Stats.Workers
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runStats(ctx, args, workers, statsJSON, cmd.OutOrStdout())
	},
}

var (
	statsWorkers int
	statsJSON    bool
)

func init() {
	statsCmd.Flags().IntVarP(&statsWorkers, "workers", "j", 0,
		"concurrent files (default GOMAXPROCS)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false,
		"print JSON instead of a table")
}

type fileStatsJSON struct {
	Path          string `json:"path"`
	LinkType      string `json:"link_type,omitempty"`
	Records       uint64 `json:"records"`
	CapturedBytes uint64 `json:"captured_bytes"`
	ARP           uint64 `json:"arp"`
	IP            uint64 `json:"ip"`
	TCP           uint64 `json:"tcp"`
	UDP           uint64 `json:"udp"`
	ICMP          uint64 `json:"icmp"`
	DNS           uint64 `json:"dns"`
	Truncated     uint64 `json:"truncated"`
	Anomalies     uint64 `json:"anomalies"`
	Error         string `json:"error,omitempty"`
}

func toJSON(s summary.FileStats) fileStatsJSON {
	out := fileStatsJSON{
		Path: s.Path, LinkType: s.LinkType,
		Records: s.Records, CapturedBytes: s.CapturedBytes,
		ARP: s.ARP, IP: s.IP, TCP: s.TCP, UDP: s.UDP, ICMP: s.ICMP, DNS: s.DNS,
		Truncated: s.Truncated, Anomalies: s.Anomalies,
	}
	if s.Err != nil {
		out.Error = s.Err.Error()
	}
	return out
}

// runStats prints one line per file and a total. It fails when any file
// failed, after printing everything.
func runStats(ctx context.Context, paths []string, workers int, asJSON bool, out io.Writer) error {
	results, err := summary.Run(ctx, paths, workers)
	if err != nil {
		return fmt.Errorf("stats interrupted: %w", err)
	}

	total := summary.FileStats{Path: "TOTAL"}
	failed := 0
	for _, r := range results {
		total.Add(r)
		if r.Err != nil {
			failed++
		}
	}

	if asJSON {
		files := make([]fileStatsJSON, len(results))
		for i, r := range results {
			files[i] = toJSON(r)
		}
		resultJSON, err := json.MarshalIndent(map[string]any{"files": files, "total": toJSON(total)}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format result: %w", err)
		}
		fmt.Fprintln(out, string(resultJSON))
	} else {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "FILE\tRECORDS\tBYTES\tARP\tIP\tTCP\tUDP\tICMP\tDNS\tTRUNCATED\tANOMALIES\tERROR\t")
		for _, r := range append(results, total) {
			errText := "-"
			if r.Err != nil {
				errText = r.Err.Error()
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t\n",
				r.Path, r.Records, r.CapturedBytes, r.ARP, r.IP, r.TCP, r.UDP, r.ICMP, r.DNS,
				r.Truncated, r.Anomalies, errText)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}
