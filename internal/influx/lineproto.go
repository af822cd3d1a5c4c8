package influx

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"gnt2influx/internal/record"
)

// FormatLines renders each record as the line-protocol line it would be
// written as, without touching the network. Tags and fields are emitted in
// lexical key order: the encoder requires ordered tags, and deterministic
// output keeps dry-run previews stable.
func FormatLines(records []record.NetworkMeasurement) ([]string, error) {
	lines := make([]string, 0, len(records))

	for i, rec := range records {
		pd := buildPoint(rec)

		var enc lineprotocol.Encoder
		enc.SetPrecision(lineprotocol.Nanosecond)
		enc.StartLine(Measurement)

		for _, key := range slices.Sorted(maps.Keys(pd.tags)) {
			enc.AddTag(key, pd.tags[key])
		}
		for _, key := range slices.Sorted(maps.Keys(pd.fields)) {
			value, ok := lineprotocol.NewValue(pd.fields[key])
			if !ok {
				return nil, fmt.Errorf("record %d: field %q holds an unrepresentable value", i, key)
			}
			enc.AddField(key, value)
		}
		enc.EndLine(pd.ts)

		if err := enc.Err(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		lines = append(lines, strings.TrimSuffix(string(enc.Bytes()), "\n"))
	}

	return lines, nil
}
