// Package config provides centralized configuration management for gnt2influx.
// Settings are resolved in three layers: struct tag defaults first, then an
// optional TOML file, then environment variable overrides. The merged result
// is validated on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// Every setting has a TOML key and an environment variable override.
type Config struct {
	InfluxDB   InfluxDBConfig   `toml:"influxdb"`
	Logging    LoggingConfig    `toml:"logging"`
	Processing ProcessingConfig `toml:"processing"`
	Server     ServerConfig     `toml:"server"`
}

// InfluxDBConfig holds connection settings for the target InfluxDB server.
// Which API generation is spoken is derived from the credentials present,
// see UseV2.
type InfluxDBConfig struct {
	// URL is the InfluxDB HTTP endpoint (default: http://localhost:8086)
	URL string `toml:"url" env:"INFLUXDB_URL" default:"http://localhost:8086"`

	// Database is the 1.x database name; against 2.x servers it is reused
	// as the bucket name (default: gnettrack)
	Database string `toml:"database" env:"INFLUXDB_DATABASE" default:"gnettrack"`

	// Username enables basic auth against 1.x servers when non-empty
	Username string `toml:"username" env:"INFLUXDB_USERNAME"`

	// Password is the basic auth password for 1.x servers
	Password string `toml:"password" env:"INFLUXDB_PASSWORD"`

	// Org is the 2.x organization name
	Org string `toml:"org" env:"INFLUXDB_ORG"`

	// Token is the 2.x API token
	Token string `toml:"token" env:"INFLUXDB_TOKEN"`
}

// UseV2 reports whether the 2.x API should be used. Both a token and an
// org must be present; anything less falls back to the 1.x API.
func (c *InfluxDBConfig) UseV2() bool {
	return c.Token != "" && c.Org != ""
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `toml:"level" env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `toml:"format" env:"LOG_FORMAT" default:"text"`
}

// ProcessingConfig holds record conversion and write settings.
type ProcessingConfig struct {
	// BatchSize is the number of points written per InfluxDB request (default: 1000)
	BatchSize int `toml:"batch_size" env:"BATCH_SIZE" default:"1000"`

	// SkipInvalid controls whether rows that fail conversion are skipped
	// with a warning or abort the whole file (default: true)
	SkipInvalid bool `toml:"skip_invalid" env:"SKIP_INVALID" default:"true"`
}

// ServerConfig holds HTTP server settings for serve mode.
type ServerConfig struct {
	// Addr is the listen address (default: :8080)
	Addr string `toml:"addr" env:"SERVER_ADDR" default:":8080"`

	// ReadTimeout is the maximum duration for reading the request body (default: 15s)
	ReadTimeout Duration `toml:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"15s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout Duration `toml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// RequestTimeout bounds a single request including ingest processing (default: 10m)
	RequestTimeout Duration `toml:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"10m"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout Duration `toml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxUploadBytes is the maximum accepted upload size in bytes (default: 100MB)
	MaxUploadBytes int64 `toml:"max_upload_bytes" env:"SERVER_MAX_UPLOAD_BYTES" default:"104857600"`

	// IngestWait is how long a request waits for the single ingest slot
	// before being rejected (default: 30s)
	IngestWait Duration `toml:"ingest_wait" env:"SERVER_INGEST_WAIT" default:"30s"`
}

// Duration wraps time.Duration so values like "15s" decode from both TOML
// and environment variables.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}
