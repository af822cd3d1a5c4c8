package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"gnt2influx/internal/config"
	"gnt2influx/internal/influx"
	"gnt2influx/internal/logging"
	"gnt2influx/internal/pipeline"
)

type rootOptions struct {
	input          string
	configPath     string
	testConnection bool
	dryRun         bool
	verbose        bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gnt2influx",
		Short: "Import G-NetTrack drive-test logs into InfluxDB",
		Long: `gnt2influx converts G-NetTrack Lite/Pro exports (CSV, TSV, or KML) into
InfluxDB points and writes them to a 1.x or 2.x server. The API generation
is chosen automatically from the configured credentials.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "input file (.csv, .txt, .tsv, or .kml)")
	cmd.Flags().BoolVar(&opts.testConnection, "test-connection", false, "test the InfluxDB connection and exit")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "parse and count records without writing")

	// Shared with the serve subcommand.
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.toml", "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newServeCmd(opts))

	return cmd
}

// loadConfig resolves configuration and installs the logger.
func loadConfig(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	log := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if _, err := os.Stat(opts.configPath); err != nil {
		log.Debug("config file not found, using defaults and environment", "path", opts.configPath)
	}
	log.Debug("configuration loaded", "config", cfg.String())

	return cfg, log, nil
}

func runIngest(ctx context.Context, opts *rootOptions) error {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return err
	}

	client, err := influx.New(cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	defer client.Close()

	if opts.testConnection {
		if err := client.TestConnection(ctx); err != nil {
			logConnectionHint(log, cfg)
			return err
		}
		return nil
	}

	if opts.input == "" {
		return fmt.Errorf("no input file specified, use --input")
	}
	if _, err := os.Stat(opts.input); err != nil {
		return fmt.Errorf("input file not accessible: %w", err)
	}

	pipe := pipeline.New(cfg, client, nil, log)

	pipeOpts := pipeline.Options{DryRun: opts.dryRun}
	if opts.dryRun && opts.verbose {
		pipeOpts.PreviewLines = 3
	}

	if opts.dryRun {
		summary, err := pipe.Run(ctx, opts.input, pipeOpts)
		if err != nil {
			return err
		}
		log.Info("dry run complete", "records", summary.Records, "skipped", summary.Skipped)
		for _, line := range summary.Preview {
			fmt.Println(line)
		}
		return nil
	}

	// Connectivity is only checked when a write will follow.
	if err := client.TestConnection(ctx); err != nil {
		logConnectionHint(log, cfg)
		return err
	}
	if err := client.EnsureDatabase(ctx); err != nil {
		return err
	}

	summary, err := pipe.Run(ctx, opts.input, pipeOpts)
	if err != nil {
		return err
	}

	log.Info("import complete",
		"records", summary.Written,
		"skipped", summary.Skipped,
		"database", cfg.InfluxDB.Database)
	log.Info("query the data with",
		"example", fmt.Sprintf("SELECT * FROM %s LIMIT 10", influx.Measurement))

	return nil
}

// logConnectionHint points at the usual cause: nothing listening on the
// configured URL.
func logConnectionHint(log *slog.Logger, cfg *config.Config) {
	log.Error("could not reach InfluxDB", "url", cfg.InfluxDB.URL)
	log.Info("start a local instance with",
		"example", "docker run -d --name influxdb -p 8086:8086 -e INFLUXDB_DB=gnettrack influxdb:1.8")
}
