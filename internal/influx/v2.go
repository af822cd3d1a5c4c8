package influx

import (
	"context"
	"fmt"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"gnt2influx/internal/config"
	"gnt2influx/internal/record"
)

// v2Client speaks the InfluxDB 2.x API: token auth, org and bucket
// addressing, and the blocking write API.
type v2Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	log      *slog.Logger
}

func newV2(cfg config.InfluxDBConfig, log *slog.Logger) (*v2Client, error) {
	c := influxdb2.NewClient(cfg.URL, cfg.Token)

	log.Debug("using InfluxDB 2.x API",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Database)

	return &v2Client{
		client:   c,
		writeAPI: c.WriteAPIBlocking(cfg.Org, cfg.Database),
		bucket:   cfg.Database,
		log:      log,
	}, nil
}

// TestConnection runs the server health check.
func (c *v2Client) TestConnection(ctx context.Context) error {
	check, err := c.client.Health(ctx)
	if err != nil {
		c.log.Error("InfluxDB connection test failed", "error", err)
		return fmt.Errorf("connection test failed: %w", err)
	}
	if check.Status != domain.HealthCheckStatusPass {
		c.log.Error("InfluxDB health check not passing", "status", check.Status)
		return fmt.Errorf("health check status %q", check.Status)
	}

	c.log.Info("successfully connected to InfluxDB", "api", "2.x")
	return nil
}

// EnsureDatabase only logs: bucket lifecycle is managed outside this tool
// on 2.x servers.
func (c *v2Client) EnsureDatabase(ctx context.Context) error {
	c.log.Info("bucket lifecycle is managed by the server, skipping creation", "bucket", c.bucket)
	return nil
}

func (c *v2Client) WriteRecords(ctx context.Context, records []record.NetworkMeasurement) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*write.Point, 0, len(records))
	for _, rec := range records {
		pd := buildPoint(rec)
		points = append(points, write.NewPoint(Measurement, pd.tags, pd.fields, pd.ts))
	}

	if err := c.writeAPI.WritePoint(ctx, points...); err != nil {
		c.log.Error("failed to write records", "records", len(records), "error", err)
		return fmt.Errorf("write failed: %w", err)
	}

	c.log.Debug("wrote records", "records", len(records))
	return nil
}

func (c *v2Client) WriteRecordsBatch(ctx context.Context, records []record.NetworkMeasurement, batchSize int) error {
	return writeBatches(ctx, c.log, records, batchSize, c.WriteRecords)
}

func (c *v2Client) Close() {
	c.client.Close()
}
