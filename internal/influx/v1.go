package influx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influx1 "github.com/influxdata/influxdb1-client/v2"

	"gnt2influx/internal/config"
	"gnt2influx/internal/record"
)

// v1Client speaks the InfluxDB 1.x API: query-based administration plus
// batch point writes against a named database.
type v1Client struct {
	client   influx1.Client
	database string
	log      *slog.Logger
}

func newV1(cfg config.InfluxDBConfig, log *slog.Logger) (*v1Client, error) {
	httpCfg := influx1.HTTPConfig{
		Addr:    cfg.URL,
		Timeout: 30 * time.Second,
	}
	// The library attaches basic auth whenever a username is set.
	if cfg.Username != "" {
		httpCfg.Username = cfg.Username
		httpCfg.Password = cfg.Password
	}

	c, err := influx1.NewHTTPClient(httpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB 1.x client: %w", err)
	}

	log.Debug("using InfluxDB 1.x API",
		"url", cfg.URL,
		"database", cfg.Database,
		"auth", cfg.Username != "")

	return &v1Client{client: c, database: cfg.Database, log: log}, nil
}

// TestConnection issues SHOW DATABASES, which exercises both reachability
// and credentials. The 1.x library takes no context; the timeout configured
// on the HTTP client bounds the call instead.
func (c *v1Client) TestConnection(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resp, err := c.client.Query(influx1.NewQuery("SHOW DATABASES", "", ""))
	if err == nil && resp.Error() != nil {
		err = resp.Error()
	}
	if err != nil {
		c.log.Error("InfluxDB connection test failed", "error", err)
		return fmt.Errorf("connection test failed: %w", err)
	}

	c.log.Info("successfully connected to InfluxDB", "api", "1.x")
	return nil
}

// EnsureDatabase issues CREATE DATABASE. Errors are swallowed: the statement
// is idempotent where the database already exists, and where creation is
// forbidden the subsequent write surfaces the real problem.
func (c *v1Client) EnsureDatabase(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q := influx1.NewQuery(fmt.Sprintf("CREATE DATABASE %q", c.database), "", "")
	resp, err := c.client.Query(q)
	if err == nil && resp.Error() != nil {
		err = resp.Error()
	}
	if err != nil {
		c.log.Debug("create database failed, continuing", "database", c.database, "error", err)
		return nil
	}

	c.log.Info("database created or already exists", "database", c.database)
	return nil
}

func (c *v1Client) WriteRecords(ctx context.Context, records []record.NetworkMeasurement) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bp, err := influx1.NewBatchPoints(influx1.BatchPointsConfig{
		Database:  c.database,
		Precision: "ns",
	})
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	for _, rec := range records {
		pd := buildPoint(rec)
		pt, err := influx1.NewPoint(Measurement, pd.tags, pd.fields, pd.ts)
		if err != nil {
			return fmt.Errorf("failed to build point: %w", err)
		}
		bp.AddPoint(pt)
	}

	if err := c.client.Write(bp); err != nil {
		c.log.Error("failed to write records", "records", len(records), "error", err)
		return fmt.Errorf("write failed: %w", err)
	}

	c.log.Debug("wrote records", "records", len(records))
	return nil
}

func (c *v1Client) WriteRecordsBatch(ctx context.Context, records []record.NetworkMeasurement, batchSize int) error {
	return writeBatches(ctx, c.log, records, batchSize, c.WriteRecords)
}

func (c *v1Client) Close() {
	if err := c.client.Close(); err != nil {
		c.log.Debug("error closing InfluxDB client", "error", err)
	}
}
