package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of the ingest path and provides
// the handler that exposes them. All recording methods are nil-safe so
// one-shot CLI runs can pass a nil collector through the pipeline.
type Collector struct {
	gatherer prometheus.Gatherer

	RecordsParsed  *prometheus.CounterVec
	RowsSkipped    *prometheus.CounterVec
	PointsWritten  prometheus.Counter
	BatchesWritten prometheus.Counter
	WriteFailures  prometheus.Counter
	IngestDuration *prometheus.HistogramVec
}

// NewCollector registers the ingest metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil. Re-registration of
// an identical collector is tolerated.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	parsed, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnt2influx_records_parsed_total",
		Help: "Total number of records parsed from input files, labeled by input format.",
	}, []string{"format"}), "gnt2influx_records_parsed_total")
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnt2influx_rows_skipped_total",
		Help: "Total number of invalid rows or placemarks skipped, labeled by input format.",
	}, []string{"format"}), "gnt2influx_rows_skipped_total")
	if err != nil {
		return nil, err
	}

	points, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gnt2influx_points_written_total",
		Help: "Total number of points written to InfluxDB.",
	}), "gnt2influx_points_written_total")
	if err != nil {
		return nil, err
	}

	batches, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gnt2influx_batches_written_total",
		Help: "Total number of write batches sent to InfluxDB.",
	}), "gnt2influx_batches_written_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gnt2influx_write_failures_total",
		Help: "Total number of failed InfluxDB write operations.",
	}), "gnt2influx_write_failures_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gnt2influx_ingest_duration_seconds",
		Help:    "End-to-end duration of one ingest run in seconds, labeled by input format.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
	}, []string{"format"}), "gnt2influx_ingest_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		RecordsParsed:  parsed,
		RowsSkipped:    skipped,
		PointsWritten:  points,
		BatchesWritten: batches,
		WriteFailures:  failures,
		IngestDuration: duration,
	}, nil
}

// RecordParsed counts records successfully parsed from one input file.
func (c *Collector) RecordParsed(format string, n int) {
	if c == nil || c.RecordsParsed == nil || n <= 0 {
		return
	}
	c.RecordsParsed.WithLabelValues(format).Add(float64(n))
}

// RecordSkipped counts invalid rows or placemarks dropped during parsing.
func (c *Collector) RecordSkipped(format string, n int) {
	if c == nil || c.RowsSkipped == nil || n <= 0 {
		return
	}
	c.RowsSkipped.WithLabelValues(format).Add(float64(n))
}

// RecordWritten counts points and batches delivered to InfluxDB.
func (c *Collector) RecordWritten(points, batches int) {
	if c == nil {
		return
	}
	if c.PointsWritten != nil && points > 0 {
		c.PointsWritten.Add(float64(points))
	}
	if c.BatchesWritten != nil && batches > 0 {
		c.BatchesWritten.Add(float64(batches))
	}
}

// RecordWriteFailure counts one failed write operation.
func (c *Collector) RecordWriteFailure() {
	if c == nil || c.WriteFailures == nil {
		return
	}
	c.WriteFailures.Inc()
}

// ObserveIngestDuration records the wall-clock duration of one ingest run.
func (c *Collector) ObserveIngestDuration(format string, d time.Duration) {
	if c == nil || c.IngestDuration == nil {
		return
	}
	c.IngestDuration.WithLabelValues(format).Observe(d.Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
