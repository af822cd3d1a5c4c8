package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"gnt2influx/internal/config"
	"gnt2influx/internal/observability"
	"gnt2influx/internal/record"
)

// fakeClient records write calls instead of talking to a server.
type fakeClient struct {
	writes     [][]record.NetworkMeasurement
	batchSizes []int
	writeErr   error
	closed     bool
}

func (f *fakeClient) TestConnection(ctx context.Context) error { return nil }
func (f *fakeClient) EnsureDatabase(ctx context.Context) error { return nil }

func (f *fakeClient) WriteRecords(ctx context.Context, recs []record.NetworkMeasurement) error {
	return f.WriteRecordsBatch(ctx, recs, len(recs))
}

func (f *fakeClient) WriteRecordsBatch(ctx context.Context, recs []record.NetworkMeasurement, batchSize int) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, recs)
	f.batchSizes = append(f.batchSizes, batchSize)
	return nil
}

func (f *fakeClient) Close() { f.closed = true }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Processing: config.ProcessingConfig{
			BatchSize:   1000,
			SkipInvalid: true,
		},
	}
}

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

const csvFixture = `Timestamp,Longitude,Latitude,Level
2024-03-15 10:30:00,139.6917,35.6895,-95
2024-03-15 10:30:01,139.6918,35.6896,-96
2024-03-15 10:30:02,139.6919,35.6897,-97
`

const kmlFixture = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
  <Document>
    <Placemark>
      <ExtendedData>
        <Data name="時間"><value>2024.03.15_10.30.00</value></Data>
        <Data name="RSRP"><value>-95 dBm</value></Data>
      </ExtendedData>
      <Point><coordinates>139.6917,35.6895</coordinates></Point>
    </Placemark>
  </Document>
</kml>
`

// ----------------------------------------------------------------
// format dispatch
// ----------------------------------------------------------------

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{path: "drive.kml", want: FormatKML},
		{path: "DRIVE.KML", want: FormatKML},
		{path: "export.Kml", want: FormatKML},
		{path: "drive.csv", want: FormatCSV},
		{path: "drive.txt", want: FormatCSV},
		{path: "drive.tsv", want: FormatCSV},
		{path: "noextension", want: FormatCSV},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := detectFormat(tt.path); got != tt.want {
				t.Errorf("detectFormat(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------
// Run
// ----------------------------------------------------------------

func TestRun_CSV(t *testing.T) {
	path := writeFixture(t, "drive.csv", csvFixture)
	client := &fakeClient{}
	p := New(testConfig(), client, nil, testLogger())

	summary, err := p.Run(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Format != FormatCSV {
		t.Errorf("format = %q, want csv", summary.Format)
	}
	if summary.Records != 3 || summary.Written != 3 || summary.Skipped != 0 {
		t.Errorf("summary = %+v, want 3 records written", summary)
	}
	if len(client.writes) != 1 || len(client.writes[0]) != 3 {
		t.Fatalf("client writes = %v, want one call with 3 records", client.writes)
	}
	if client.batchSizes[0] != 1000 {
		t.Errorf("batch size = %d, want 1000 from config", client.batchSizes[0])
	}
}

func TestRun_KML(t *testing.T) {
	path := writeFixture(t, "drive.kml", kmlFixture)
	client := &fakeClient{}
	p := New(testConfig(), client, nil, testLogger())

	summary, err := p.Run(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Format != FormatKML {
		t.Errorf("format = %q, want kml", summary.Format)
	}
	if summary.Records != 1 || summary.Written != 1 {
		t.Errorf("summary = %+v, want 1 record written", summary)
	}
}

func TestRun_DryRunNeverWrites(t *testing.T) {
	path := writeFixture(t, "drive.csv", csvFixture)
	client := &fakeClient{writeErr: errors.New("write called during dry run")}
	p := New(testConfig(), client, nil, testLogger())

	summary, err := p.Run(context.Background(), path, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !summary.DryRun {
		t.Error("summary.DryRun = false, want true")
	}
	if summary.Records != 3 || summary.Written != 0 {
		t.Errorf("summary = %+v, want 3 records and nothing written", summary)
	}
}

func TestRun_PreviewLines(t *testing.T) {
	path := writeFixture(t, "drive.csv", csvFixture)
	p := New(testConfig(), &fakeClient{}, nil, testLogger())

	summary, err := p.Run(context.Background(), path, Options{DryRun: true, PreviewLines: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(summary.Preview) != 2 {
		t.Fatalf("preview has %d lines, want 2", len(summary.Preview))
	}
	for i, line := range summary.Preview {
		if !strings.HasPrefix(line, "network_measurements,") {
			t.Errorf("preview line %d = %q, want line-protocol prefix", i, line)
		}
	}
}

func TestRun_PreviewClampedToRecordCount(t *testing.T) {
	path := writeFixture(t, "drive.csv", csvFixture)
	p := New(testConfig(), &fakeClient{}, nil, testLogger())

	summary, err := p.Run(context.Background(), path, Options{DryRun: true, PreviewLines: 50})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Preview) != 3 {
		t.Errorf("preview has %d lines, want 3", len(summary.Preview))
	}
}

func TestRun_EmptyInputSucceedsWithoutWrite(t *testing.T) {
	path := writeFixture(t, "drive.csv", "Timestamp,Longitude\n")
	client := &fakeClient{writeErr: errors.New("write called for empty input")}
	p := New(testConfig(), client, nil, testLogger())

	summary, err := p.Run(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Records != 0 || summary.Written != 0 {
		t.Errorf("summary = %+v, want empty", summary)
	}
}

func TestRun_SkippedRowsCounted(t *testing.T) {
	fixture := "Timestamp,Level\n2024-03-15 10:30:00,-95\nbogus-time,-96\n2024-03-15 10:30:02,-97\n"
	path := writeFixture(t, "drive.csv", fixture)
	p := New(testConfig(), &fakeClient{}, nil, testLogger())

	summary, err := p.Run(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Records != 2 || summary.Skipped != 1 {
		t.Errorf("summary = %+v, want 2 records and 1 skipped", summary)
	}
}

func TestRun_AbortOnInvalidRow(t *testing.T) {
	fixture := "Timestamp,Level\n2024-03-15 10:30:00,-95\nbogus-time,-96\n"
	path := writeFixture(t, "drive.csv", fixture)
	cfg := testConfig()
	cfg.Processing.SkipInvalid = false
	client := &fakeClient{}
	p := New(cfg, client, nil, testLogger())

	if _, err := p.Run(context.Background(), path, Options{}); err == nil {
		t.Fatal("expected parse error to abort the run")
	}
	if len(client.writes) != 0 {
		t.Errorf("client writes = %v, want none after parse failure", client.writes)
	}
}

func TestRun_WriteFailurePropagates(t *testing.T) {
	path := writeFixture(t, "drive.csv", csvFixture)
	client := &fakeClient{writeErr: errors.New("connection refused")}
	p := New(testConfig(), client, nil, testLogger())

	_, err := p.Run(context.Background(), path, Options{})
	if err == nil {
		t.Fatal("expected write error to propagate")
	}
	var we *WriteError
	if !errors.As(err, &we) {
		t.Errorf("error %v is not a WriteError", err)
	}
	if !strings.Contains(err.Error(), "failed to write records") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRun_ParseErrorIsNotWriteError(t *testing.T) {
	fixture := "Timestamp,Level\nbogus-time,-95\n"
	path := writeFixture(t, "drive.csv", fixture)
	cfg := testConfig()
	cfg.Processing.SkipInvalid = false
	p := New(cfg, &fakeClient{}, nil, testLogger())

	_, err := p.Run(context.Background(), path, Options{})
	if err == nil {
		t.Fatal("expected parse error")
	}
	var we *WriteError
	if errors.As(err, &we) {
		t.Errorf("parse error %v should not be a WriteError", err)
	}
}

func TestRun_MissingFile(t *testing.T) {
	p := New(testConfig(), &fakeClient{}, nil, testLogger())
	if _, err := p.Run(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), Options{}); err == nil {
		t.Fatal("expected error for missing input file")
	}
}

// ----------------------------------------------------------------
// metrics
// ----------------------------------------------------------------

func TestRun_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	fixture := "Timestamp,Level\n2024-03-15 10:30:00,-95\nbogus-time,-96\n2024-03-15 10:30:02,-97\n"
	path := writeFixture(t, "drive.csv", fixture)
	cfg := testConfig()
	cfg.Processing.BatchSize = 1
	p := New(cfg, &fakeClient{}, collector, testLogger())

	if _, err := p.Run(context.Background(), path, Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := testutil.ToFloat64(collector.RecordsParsed.WithLabelValues("csv")); got != 2 {
		t.Errorf("records_parsed{csv} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.RowsSkipped.WithLabelValues("csv")); got != 1 {
		t.Errorf("rows_skipped{csv} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.PointsWritten); got != 2 {
		t.Errorf("points_written = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.BatchesWritten); got != 2 {
		t.Errorf("batches_written = %v, want 2", got)
	}
}

func TestRun_RecordsWriteFailureMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	path := writeFixture(t, "drive.csv", csvFixture)
	client := &fakeClient{writeErr: errors.New("boom")}
	p := New(testConfig(), client, collector, testLogger())

	if _, err := p.Run(context.Background(), path, Options{}); err == nil {
		t.Fatal("expected write error")
	}
	if got := testutil.ToFloat64(collector.WriteFailures); got != 1 {
		t.Errorf("write_failures = %v, want 1", got)
	}
}

// ----------------------------------------------------------------
// batchCount
// ----------------------------------------------------------------

func TestBatchCount(t *testing.T) {
	tests := []struct {
		name      string
		records   int
		batchSize int
		want      int
	}{
		{name: "even split", records: 2000, batchSize: 1000, want: 2},
		{name: "remainder adds a batch", records: 2500, batchSize: 1000, want: 3},
		{name: "single partial batch", records: 5, batchSize: 1000, want: 1},
		{name: "zero batch size means one batch", records: 5, batchSize: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := batchCount(tt.records, tt.batchSize); got != tt.want {
				t.Errorf("batchCount(%d, %d) = %d, want %d", tt.records, tt.batchSize, got, tt.want)
			}
		})
	}
}
