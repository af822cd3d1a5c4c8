package parser

// kml.go parses KML placemark exports. Each <Placemark> carries ExtendedData
// entries whose names are the Japanese labels G-NetTrack writes on KDDI
// handsets, plus a <coordinates> element in "lon,lat[,alt]" form.

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gnt2influx/internal/record"
)

// ExtendedData labels found in placemark exports.
const (
	kmlLabelTech     = "技術"
	kmlLabelRSRP     = "RSRP"
	kmlLabelSpeed    = "速度"
	kmlLabelAltitude = "高度"
	kmlLabelTime     = "時間"
)

// kmlOperator is the operator attributed to KML exports; the format carries
// no operator field of its own.
const kmlOperator = "KDDI"

// kmlTimeLayouts are probed in order after underscores are normalized to
// spaces, covering "2025.10.03_10.20.09" style values and the plainer
// date-time forms.
var kmlTimeLayouts = []string{
	"2006.01.02 15.04.05",
	"2006.01.02_15.04.05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
}

// KML parses KML placemark exports into canonical records.
type KML struct {
	skipInvalid bool
	log         *slog.Logger
	skipped     int
}

// NewKML returns a KML parser. With skipInvalid set, placemarks that fail
// conversion are counted and skipped; otherwise the first bad placemark
// aborts the file.
func NewKML(skipInvalid bool, log *slog.Logger) *KML {
	if log == nil {
		log = slog.Default()
	}
	return &KML{skipInvalid: skipInvalid, log: log}
}

// Skipped returns the number of placemarks skipped by the last ParseFile call.
func (p *KML) Skipped() int { return p.skipped }

// ParseFile parses the export at path. Records come back in document order.
func (p *KML) ParseFile(path string) ([]record.NetworkMeasurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return p.parse(f)
}

// placemark accumulates the fields of one <Placemark> while its subtree is
// being scanned. All values are kept raw until the element closes.
type placemark struct {
	tech        *string
	rsrp        *string
	speed       *string
	altitude    *string
	time        *string
	coordinates *string
}

// set routes one ExtendedData entry into the accumulator.
func (pm *placemark) set(name, value string, log *slog.Logger) {
	switch name {
	case kmlLabelTech:
		pm.tech = &value
	case kmlLabelRSRP:
		pm.rsrp = &value
	case kmlLabelSpeed:
		pm.speed = &value
	case kmlLabelAltitude:
		pm.altitude = &value
	case kmlLabelTime:
		pm.time = &value
	default:
		log.Debug("ignoring unknown KML data field", "name", name)
	}
}

func (p *KML) parse(r io.Reader) ([]record.NetworkMeasurement, error) {
	p.skipped = 0

	dec := xml.NewDecoder(newBOMReader(r))

	var records []record.NetworkMeasurement
	var pm placemark
	inPlacemark := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !p.skipInvalid {
				return nil, fmt.Errorf("failed to read KML: %w", err)
			}
			// A syntax error poisons the decoder, so the rest of the
			// document is unreachable either way.
			p.skipped++
			p.log.Warn("stopping at malformed KML", "error", err)
			break
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "Placemark":
				inPlacemark = true
				pm = placemark{}

			case "Data":
				if !inPlacemark {
					continue
				}
				name := attrValue(el, "name")
				var entry struct {
					Value string `xml:"value"`
				}
				if err := dec.DecodeElement(&entry, &el); err != nil {
					if !p.skipInvalid {
						return nil, fmt.Errorf("failed to read KML: %w", err)
					}
					p.skipped++
					p.log.Warn("skipping unreadable KML data element", "error", err)
					continue
				}
				pm.set(name, strings.TrimSpace(entry.Value), p.log)

			case "coordinates":
				if !inPlacemark {
					continue
				}
				var raw string
				if err := dec.DecodeElement(&raw, &el); err != nil {
					if !p.skipInvalid {
						return nil, fmt.Errorf("failed to read KML: %w", err)
					}
					p.skipped++
					p.log.Warn("skipping unreadable KML coordinates", "error", err)
					continue
				}
				v := strings.TrimSpace(raw)
				pm.coordinates = &v
			}

		case xml.EndElement:
			if el.Name.Local == "Placemark" && inPlacemark {
				inPlacemark = false

				rec, err := pm.record()
				if err != nil {
					if !p.skipInvalid {
						return nil, fmt.Errorf("invalid placemark: %w", err)
					}
					p.skipped++
					p.log.Warn("skipping invalid placemark", "error", err)
					continue
				}
				records = append(records, rec)
			}
		}
	}

	if p.skipped > 0 {
		p.log.Warn("encountered errors while parsing file", "skipped", p.skipped)
	}

	return records, nil
}

// record converts a completed placemark. Coordinates and data values all
// degrade to "not reported" when malformed; only a time value that is
// present but unparseable invalidates the placemark.
func (pm *placemark) record() (record.NetworkMeasurement, error) {
	var rec record.NetworkMeasurement

	if pm.coordinates != nil {
		parts := strings.Split(*pm.coordinates, ",")
		if len(parts) >= 2 {
			rec.Longitude = floatToken(parts[0])
			rec.Latitude = floatToken(parts[1])
		}
	}

	ts, err := parseKMLTime(pm.time)
	if err != nil {
		return record.NetworkMeasurement{}, err
	}
	rec.Timestamp = ts

	if pm.speed != nil {
		rec.Speed = UnitFloat(*pm.speed, "km/h")
	}
	if pm.rsrp != nil {
		rec.Level = UnitFloat(*pm.rsrp, "dBm")
	}
	if pm.altitude != nil {
		rec.Altitude = UnitFloat(*pm.altitude, "m")
	}
	if pm.tech != nil {
		rec.NetworkTech = OptText(*pm.tech)
	}
	rec.OperatorName = record.String(kmlOperator)

	return rec, nil
}

// floatToken parses one coordinate token, nil when malformed.
func floatToken(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseKMLTime converts the 時間 value to UTC. Underscores double as field
// separators in some exports and are normalized to spaces first. A missing
// value defaults to the current time, same as the tabular parser.
func parseKMLTime(value *string) (time.Time, error) {
	if value == nil {
		return time.Now().UTC(), nil
	}

	normalized := strings.ReplaceAll(*value, "_", " ")
	for _, layout := range kmlTimeLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse KML timestamp: %q", *value)
}

// attrValue returns the named attribute of a start element, or "".
func attrValue(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
