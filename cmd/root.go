// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"firestige.xyz/pcapscan/internal/config"
	"firestige.xyz/pcapscan/internal/log"
	"firestige.xyz/pcapscan/internal/metrics"
)

var (
	// Global flags
	configFile string
	envFile    string
	logLevel   string

	// globalCfg is loaded before every command runs.
	globalCfg     *config.GlobalConfig
	metricsServer *metrics.Server
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pcapscan",
	Short: "pcapscan - columnar scanner for classic pcap capture files",
	Long: `pcapscan reads classic pcap capture files and decodes each record into a
fixed, flat set of nullable protocol fields (Ethernet, VLAN, ARP, IPv4, TCP,
UDP, ICMP, DNS) emitted as Arrow batches.

Filters are CEL expressions over column names. Simple comparisons run inside
the scanner; anything else is evaluated on each batch after decoding.

Examples:
  pcapscan schema
  pcapscan scan capture.pcap -C src_ip,dst_ip,dst_port -w 'dst_port == 53' -n 20
  pcapscan scan -q query.yaml -o jsonl
  pcapscan stats *.pcap -j 4`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown(cmd.Context())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file with PCAPSCAN_* overrides, ignored when missing")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log level (debug/info/warn/error)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(validateCmd)
}

// setup loads .env, the global config, the logger and the metrics server.
func setup(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.ValidateAndApplyDefaults(); err != nil {
			return err
		}
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	globalCfg = cfg

	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := metricsServer.Start(context.Background()); err != nil {
			metricsServer = nil
			return err
		}
	}
	return nil
}

// teardown stops the metrics server and closes the log file.
func teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	if metricsServer != nil {
		err = metricsServer.Stop(ctx)
		metricsServer = nil
	}
	return errors.Join(err, log.Close())
}
