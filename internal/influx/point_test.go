package influx

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gnt2influx/internal/record"
)

// ----------------------------------------------------------------
// buildPoint
// ----------------------------------------------------------------

func TestBuildPoint_FullRecord(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	rec := record.NetworkMeasurement{
		Timestamp:    ts,
		Longitude:    record.Float(139.6917),
		Latitude:     record.Float(35.6895),
		Altitude:     record.Float(44.5),
		Speed:        record.Float(42),
		OperatorName: record.String("KDDI"),
		OperatorCode: record.String("440-50"),
		CGI:          record.String("440-50-12345-678"),
		CellName:     record.String("Shibuya North"),
		Node:         record.String("12345"),
		CellID:       record.String("678"),
		LAC:          record.String("9999"),
		NetworkTech:  record.String("LTE"),
		NetworkMode:  record.String("4G"),
		Level:        record.Float(-95),
		Qual:         record.Float(-12),
		SNR:          record.Float(18.5),
		CQI:          record.Float(11),
		ARFCN:        record.String("1850"),
		DLBitrate:    record.Float(52000),
		ULBitrate:    record.Float(12000),
	}

	pd := buildPoint(rec)

	wantTags := map[string]string{
		"measurement_type": "gnettrack",
		"operator_name":    "KDDI",
		"operator_code":    "440-50",
		"cell_id":          "678",
		"network_tech":     "LTE",
		"network_mode":     "4G",
		"lac":              "9999",
	}
	if len(pd.tags) != len(wantTags) {
		t.Errorf("got %d tags, want %d: %v", len(pd.tags), len(wantTags), pd.tags)
	}
	for k, want := range wantTags {
		if got := pd.tags[k]; got != want {
			t.Errorf("tag %s = %q, want %q", k, got, want)
		}
	}

	wantFloats := map[string]float64{
		"longitude":  139.6917,
		"latitude":   35.6895,
		"altitude":   44.5,
		"speed":      42,
		"level":      -95,
		"qual":       -12,
		"snr":        18.5,
		"cqi":        11,
		"dl_bitrate": 52000,
		"ul_bitrate": 12000,
	}
	wantStrings := map[string]string{
		"cgi":      "440-50-12345-678",
		"cellname": "Shibuya North",
		"node":     "12345",
		"arfcn":    "1850",
	}
	if len(pd.fields) != len(wantFloats)+len(wantStrings) {
		t.Errorf("got %d fields, want %d: %v", len(pd.fields), len(wantFloats)+len(wantStrings), pd.fields)
	}
	for k, want := range wantFloats {
		got, ok := pd.fields[k].(float64)
		if !ok || got != want {
			t.Errorf("field %s = %v, want %v", k, pd.fields[k], want)
		}
	}
	for k, want := range wantStrings {
		got, ok := pd.fields[k].(string)
		if !ok || got != want {
			t.Errorf("field %s = %v, want %q", k, pd.fields[k], want)
		}
	}

	if !pd.ts.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", pd.ts, ts)
	}
}

func TestBuildPoint_AbsentAttributesOmitted(t *testing.T) {
	rec := record.NetworkMeasurement{
		Timestamp: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		Longitude: record.Float(139.6917),
	}

	pd := buildPoint(rec)

	if len(pd.tags) != 1 || pd.tags["measurement_type"] != "gnettrack" {
		t.Errorf("tags = %v, want only measurement_type", pd.tags)
	}
	if len(pd.fields) != 1 {
		t.Errorf("fields = %v, want only longitude", pd.fields)
	}
	if _, ok := pd.fields["longitude"]; !ok {
		t.Error("longitude field missing")
	}
}

// ----------------------------------------------------------------
// clampNano
// ----------------------------------------------------------------

func TestClampNano(t *testing.T) {
	valid := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	epoch := time.Unix(0, 0).UTC()

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{name: "ordinary timestamp", in: valid, want: valid},
		{name: "zero time clamps to epoch", in: time.Time{}, want: epoch},
		{name: "far future clamps to epoch", in: time.Date(5000, 1, 1, 0, 0, 0, 0, time.UTC), want: epoch},
		{name: "far past clamps to epoch", in: time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC), want: epoch},
		{name: "range boundary survives", in: time.Date(1678, 1, 1, 0, 0, 0, 0, time.UTC), want: time.Date(1678, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampNano(tt.in); !got.Equal(tt.want) {
				t.Errorf("clampNano(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------
// FormatLines
// ----------------------------------------------------------------

func TestFormatLines(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	rec := record.NetworkMeasurement{
		Timestamp:    ts,
		Longitude:    record.Float(139.123),
		Latitude:     record.Float(35.456),
		Speed:        record.Float(42),
		Level:        record.Float(-95),
		OperatorName: record.String("KDDI"),
		NetworkTech:  record.String("LTE"),
	}

	lines, err := FormatLines([]record.NetworkMeasurement{rec})
	if err != nil {
		t.Fatalf("FormatLines: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}

	want := fmt.Sprintf(
		"network_measurements,measurement_type=gnettrack,network_tech=LTE,operator_name=KDDI latitude=35.456,level=-95,longitude=139.123,speed=42 %d",
		ts.UnixNano())
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
}

func TestFormatLines_EscapesSpecialCharacters(t *testing.T) {
	rec := record.NetworkMeasurement{
		Timestamp:    time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		Longitude:    record.Float(139.123),
		OperatorName: record.String("au KDDI"),
		CellName:     record.String("Shibuya North"),
	}

	lines, err := FormatLines([]record.NetworkMeasurement{rec})
	if err != nil {
		t.Fatalf("FormatLines: %v", err)
	}

	if !strings.Contains(lines[0], `operator_name=au\ KDDI`) {
		t.Errorf("tag space not escaped: %q", lines[0])
	}
	if !strings.Contains(lines[0], `cellname="Shibuya North"`) {
		t.Errorf("string field not quoted: %q", lines[0])
	}
}

func TestFormatLines_MultipleRecords(t *testing.T) {
	recs := []record.NetworkMeasurement{
		{Timestamp: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), Level: record.Float(-90)},
		{Timestamp: time.Date(2024, 3, 15, 10, 30, 1, 0, time.UTC), Level: record.Float(-91)},
	}

	lines, err := FormatLines(recs)
	if err != nil {
		t.Fatalf("FormatLines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		if strings.ContainsRune(line, '\n') {
			t.Errorf("line %d contains a newline: %q", i, line)
		}
		if !strings.HasPrefix(line, "network_measurements,") {
			t.Errorf("line %d = %q, want measurement prefix", i, line)
		}
	}
}

func TestFormatLines_NoFieldsFails(t *testing.T) {
	recs := []record.NetworkMeasurement{
		{Timestamp: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
	}

	_, err := FormatLines(recs)
	if err == nil {
		t.Fatal("expected error for a record with no reportable values")
	}
	if !strings.Contains(err.Error(), "record 0") {
		t.Errorf("error %q does not name the failing record", err)
	}
}
