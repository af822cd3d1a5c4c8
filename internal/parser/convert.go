package parser

// convert.go holds the field-level conversion helpers shared by the tabular
// and KML parsers. All of them degrade gracefully: a value that cannot be
// understood becomes "not reported" rather than an error. The one exception
// is the timestamp, which carries the measurement's identity and therefore
// fails the row when present but unparseable.

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are probed in order against tabular timestamp cells.
// The mix covers the formats different G-NetTrack versions have been seen
// to write.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"02.01.2006 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.000Z",
}

// ParseTimestamp converts a tabular timestamp cell to UTC.
//
// An empty cell yields the current time: exports taken mid-drive sometimes
// miss the column and the rows are still worth keeping. A non-empty cell
// must match one of the known layouts or be a Unix epoch in seconds.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", value)
}

// OptFloat converts a numeric cell to an optional float. Empty cells, "N/A"
// and "null" are the absence markers G-NetTrack writes; anything else that
// fails to parse is treated the same way.
func OptFloat(value string) *float64 {
	switch value {
	case "", "N/A", "null":
		return nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &f
}

// OptText converts a text cell to an optional string, trimming whitespace.
// Empty cells carry no information and would otherwise surface as empty
// tag values, which InfluxDB rejects.
func OptText(value string) *string {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil
	}
	return &s
}

// UnitFloat parses a numeric value that may carry a unit suffix such as
// "km/h" or "dBm", written with or without a separating space.
func UnitFloat(value, unit string) *float64 {
	s := strings.ReplaceAll(value, " "+unit, "")
	s = strings.ReplaceAll(s, unit, "")
	s = strings.TrimSpace(s)

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
