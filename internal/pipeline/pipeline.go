// Package pipeline drives one ingest run: parse an input file into canonical
// records, then write them to InfluxDB in batches.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"gnt2influx/internal/config"
	"gnt2influx/internal/influx"
	"gnt2influx/internal/observability"
	"gnt2influx/internal/parser"
	"gnt2influx/internal/record"
)

// Input format labels, also used on metrics.
const (
	FormatCSV = "csv"
	FormatKML = "kml"
)

// Options modify a single run.
type Options struct {
	// DryRun parses and counts but never writes.
	DryRun bool

	// PreviewLines renders up to this many line-protocol lines into the
	// summary without sending them. Zero disables the preview.
	PreviewLines int
}

// Summary reports what one run did.
type Summary struct {
	Format  string   `json:"format"`
	Records int      `json:"records"`
	Skipped int      `json:"skipped"`
	Written int      `json:"written"`
	DryRun  bool     `json:"dry_run"`
	Preview []string `json:"preview,omitempty"`
}

// WriteError marks a failure in the write stage, after parsing succeeded.
// Callers can use errors.As to tell it apart from input errors.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// Pipeline wires the parsers to the InfluxDB client. The collector may be
// nil; one-shot CLI runs have no metrics endpoint to serve.
type Pipeline struct {
	cfg       *config.Config
	client    influx.Client
	collector *observability.Collector
	log       *slog.Logger
}

func New(cfg *config.Config, client influx.Client, collector *observability.Collector, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{cfg: cfg, client: client, collector: collector, log: log}
}

// Run ingests one file. The parser is chosen by extension: .kml in any case
// selects the placemark parser, everything else the tabular parser. Parsing
// and writing are strictly sequential; the whole file is held in memory
// between the two stages.
func (p *Pipeline) Run(ctx context.Context, inputPath string, opts Options) (*Summary, error) {
	start := time.Now()
	format := detectFormat(inputPath)

	p.log.Info("processing input file", "path", inputPath, "format", format)

	records, skipped, err := p.parse(inputPath, format)
	if err != nil {
		return nil, err
	}

	p.collector.RecordParsed(format, len(records))
	p.collector.RecordSkipped(format, skipped)

	summary := &Summary{
		Format:  format,
		Records: len(records),
		Skipped: skipped,
		DryRun:  opts.DryRun,
	}

	if opts.PreviewLines > 0 {
		summary.Preview = p.preview(records, opts.PreviewLines)
	}

	if len(records) == 0 {
		p.log.Warn("no records parsed from input file", "path", inputPath)
		p.collector.ObserveIngestDuration(format, time.Since(start))
		return summary, nil
	}

	if opts.DryRun {
		p.log.Info("dry run, skipping write", "records", len(records))
		p.collector.ObserveIngestDuration(format, time.Since(start))
		return summary, nil
	}

	batchSize := p.cfg.Processing.BatchSize
	if err := p.client.WriteRecordsBatch(ctx, records, batchSize); err != nil {
		p.collector.RecordWriteFailure()
		return nil, &WriteError{Err: fmt.Errorf("failed to write records: %w", err)}
	}

	summary.Written = len(records)
	p.collector.RecordWritten(summary.Written, batchCount(summary.Written, batchSize))
	p.collector.ObserveIngestDuration(format, time.Since(start))

	p.log.Info("ingest complete",
		"records", summary.Records,
		"skipped", summary.Skipped,
		"written", summary.Written,
		"duration", time.Since(start).Round(time.Millisecond))

	return summary, nil
}

func (p *Pipeline) parse(inputPath, format string) ([]record.NetworkMeasurement, int, error) {
	skipInvalid := p.cfg.Processing.SkipInvalid

	if format == FormatKML {
		kml := parser.NewKML(skipInvalid, p.log)
		recs, err := kml.ParseFile(inputPath)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse KML file: %w", err)
		}
		return recs, kml.Skipped(), nil
	}

	tab := parser.NewTabular(skipInvalid, p.log)
	recs, err := tab.ParseFile(inputPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse input file: %w", err)
	}
	return recs, tab.Skipped(), nil
}

// preview renders the head of the record list as line protocol. A failure
// here never fails the run.
func (p *Pipeline) preview(records []record.NetworkMeasurement, n int) []string {
	if n > len(records) {
		n = len(records)
	}
	lines, err := influx.FormatLines(records[:n])
	if err != nil {
		p.log.Warn("failed to render line-protocol preview", "error", err)
		return nil
	}
	return lines
}

func detectFormat(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".kml") {
		return FormatKML
	}
	return FormatCSV
}

func batchCount(records, batchSize int) int {
	if batchSize <= 0 {
		return 1
	}
	return (records + batchSize - 1) / batchSize
}
