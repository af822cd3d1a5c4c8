// Package influx writes canonical measurements to InfluxDB, speaking either
// the 1.x or the 2.x HTTP API behind one interface. The dialect is chosen
// once at construction from the credentials present and never re-evaluated.
package influx

import (
	"context"
	"log/slog"

	"gnt2influx/internal/config"
	"gnt2influx/internal/record"
)

// Client is the version-independent surface the rest of the application
// writes through.
type Client interface {
	// TestConnection verifies the server is reachable and the credentials work.
	TestConnection(ctx context.Context) error

	// EnsureDatabase makes sure the target database exists. Against 2.x
	// servers bucket lifecycle is managed externally and this only logs.
	EnsureDatabase(ctx context.Context) error

	// WriteRecords writes all records as a single atomic batch. An empty
	// input is a no-op success.
	WriteRecords(ctx context.Context, records []record.NetworkMeasurement) error

	// WriteRecordsBatch splits records into consecutive chunks of at most
	// batchSize and writes them in order; the first failing chunk aborts
	// the rest. Chunks already written stay written.
	WriteRecordsBatch(ctx context.Context, records []record.NetworkMeasurement, batchSize int) error

	// Close releases the underlying HTTP client.
	Close()
}

// New builds a client for the configured server. A token plus an org
// selects the 2.x API, with the database name reused as the bucket name;
// anything less falls back to 1.x with optional basic auth.
func New(cfg config.InfluxDBConfig, log *slog.Logger) (Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.UseV2() {
		return newV2(cfg, log)
	}
	return newV1(cfg, log)
}

// writeBatches is the chunking loop shared by both dialects.
func writeBatches(ctx context.Context, log *slog.Logger, records []record.NetworkMeasurement, batchSize int, write func(context.Context, []record.NetworkMeasurement) error) error {
	if len(records) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(records)
	}

	log.Info("writing records in batches", "records", len(records), "batch_size", batchSize)

	batch := 0
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		batch++
		log.Debug("writing batch", "batch", batch, "records", end-start)
		if err := write(ctx, records[start:end]); err != nil {
			return err
		}
	}

	log.Info("successfully wrote all records", "records", len(records))
	return nil
}
