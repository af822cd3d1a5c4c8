package influx

import (
	"time"

	"gnt2influx/internal/record"
)

const (
	// Measurement is the InfluxDB measurement all points are written to.
	Measurement = "network_measurements"

	// sourceTagKey and sourceTagValue mark drive-test imports so they can
	// be told apart from other writers sharing the database.
	sourceTagKey   = "measurement_type"
	sourceTagValue = "gnettrack"
)

// pointData is one record in wire-ready form, shared by both client
// generations and the line-protocol preview. Tags exist only for present
// attributes, so tag sets vary per point.
type pointData struct {
	tags   map[string]string
	fields map[string]interface{}
	ts     time.Time
}

// buildPoint assembles the tag and field sets for one record. Absent
// attributes are omitted entirely rather than written as zero values.
func buildPoint(rec record.NetworkMeasurement) pointData {
	tags := map[string]string{
		sourceTagKey: sourceTagValue,
	}
	addTag := func(key string, v *string) {
		if v != nil {
			tags[key] = *v
		}
	}
	addTag("operator_name", rec.OperatorName)
	addTag("operator_code", rec.OperatorCode)
	addTag("cell_id", rec.CellID)
	addTag("network_tech", rec.NetworkTech)
	addTag("network_mode", rec.NetworkMode)
	addTag("lac", rec.LAC)

	fields := make(map[string]interface{})
	addFloat := func(key string, v *float64) {
		if v != nil {
			fields[key] = *v
		}
	}
	addText := func(key string, v *string) {
		if v != nil {
			fields[key] = *v
		}
	}
	addFloat("longitude", rec.Longitude)
	addFloat("latitude", rec.Latitude)
	addFloat("altitude", rec.Altitude)
	addFloat("speed", rec.Speed)
	addFloat("level", rec.Level)
	addFloat("qual", rec.Qual)
	addFloat("snr", rec.SNR)
	addFloat("cqi", rec.CQI)
	addFloat("dl_bitrate", rec.DLBitrate)
	addFloat("ul_bitrate", rec.ULBitrate)
	addText("cgi", rec.CGI)
	addText("cellname", rec.CellName)
	addText("node", rec.Node)
	addText("arfcn", rec.ARFCN)

	return pointData{tags: tags, fields: fields, ts: clampNano(rec.Timestamp)}
}

// clampNano keeps timestamps inside the range UnixNano can represent.
// Out-of-range values collapse to the epoch instead of erroring.
func clampNano(t time.Time) time.Time {
	if y := t.Year(); y < 1678 || y > 2261 {
		return time.Unix(0, 0).UTC()
	}
	return t
}
