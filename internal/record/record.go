// Package record defines the canonical measurement type shared by the
// parsers and the InfluxDB writers.
package record

import "time"

// NetworkMeasurement is a single network observation at a point in time,
// normalized from whatever source format produced it.
//
// Every field except Timestamp is optional. Pointer fields are nil when the
// source did not report a value; a nil field is omitted from the stored
// point rather than written as zero. Values are never mutated after the
// parser hands the record off.
type NetworkMeasurement struct {
	Timestamp time.Time `json:"timestamp"`

	// Position and motion
	Longitude *float64 `json:"longitude,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`

	// Network identity
	OperatorName *string `json:"operator_name,omitempty"`
	OperatorCode *string `json:"operator_code,omitempty"`
	CGI          *string `json:"cgi,omitempty"`
	CellName     *string `json:"cellname,omitempty"`
	Node         *string `json:"node,omitempty"`
	CellID       *string `json:"cell_id,omitempty"`
	LAC          *string `json:"lac,omitempty"`
	NetworkTech  *string `json:"network_tech,omitempty"`
	NetworkMode  *string `json:"network_mode,omitempty"`
	ARFCN        *string `json:"arfcn,omitempty"`

	// Radio quality
	Level *float64 `json:"level,omitempty"`
	Qual  *float64 `json:"qual,omitempty"`
	SNR   *float64 `json:"snr,omitempty"`
	CQI   *float64 `json:"cqi,omitempty"`

	// Throughput
	DLBitrate *float64 `json:"dl_bitrate,omitempty"`
	ULBitrate *float64 `json:"ul_bitrate,omitempty"`
}

// Float returns a pointer to v. Convenience for building records by hand,
// mostly in tests.
func Float(v float64) *float64 { return &v }

// String returns a pointer to s.
func String(s string) *string { return &s }
