package parser

// tabular.go parses G-NetTrack tabular exports (CSV or TSV).
//
// The delimiter is sniffed from the first line of the file: a tab anywhere
// in it means the whole file is tab-separated, otherwise comma. Column
// meaning is resolved from the header through a case-insensitive alias
// table, so exports from different app versions and radio technologies map
// onto the same record fields.

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gnt2influx/internal/record"
)

// column identifies the canonical record field a header cell maps to.
type column int

const (
	colUnknown column = iota
	colTimestamp
	colLongitude
	colLatitude
	colSpeed
	colOperatorName
	colOperatorCode
	colCGI
	colCellName
	colNode
	colCellID
	colLAC
	colNetworkTech
	colNetworkMode
	colLevel
	colQual
	colSNR
	colCQI
	colARFCN
	colDLBitrate
	colULBitrate
)

// headerAliases maps lowercased header cells to canonical columns. The
// aliases cover the header variants different G-NetTrack versions write,
// including the per-technology names for signal level (RSRP, RSCP, RXLEVEL)
// and quality (RSRQ, ECNO, RXQUAL).
var headerAliases = map[string]column{
	"timestamp": colTimestamp,
	"time":      colTimestamp,

	"longitude": colLongitude,
	"lon":       colLongitude,
	"latitude":  colLatitude,
	"lat":       colLatitude,
	"speed":     colSpeed,

	"operator":      colOperatorName,
	"operator_name": colOperatorName,
	"mcc-mnc":       colOperatorCode,
	"operator_code": colOperatorCode,

	"cgi":      colCGI,
	"cellname": colCellName,
	"node":     colNode,
	"rnc":      colNode,
	"enodeb":   colNode,
	"cellid":   colCellID,
	"cell_id":  colCellID,
	"lac":      colLAC,

	"networktech":  colNetworkTech,
	"network_tech": colNetworkTech,
	"tech":         colNetworkTech,
	"networkmode":  colNetworkMode,
	"network_mode": colNetworkMode,
	"mode":         colNetworkMode,

	"level":   colLevel,
	"rsrp":    colLevel,
	"rscp":    colLevel,
	"rxlevel": colLevel,
	"qual":    colQual,
	"rsrq":    colQual,
	"ecno":    colQual,
	"rxqual":  colQual,
	"snr":     colSNR,
	"cqi":     colCQI,
	"arfcn":   colARFCN,

	"dl_bitrate":       colDLBitrate,
	"downlink_bitrate": colDLBitrate,
	"ul_bitrate":       colULBitrate,
	"uplink_bitrate":   colULBitrate,
}

// Tabular parses CSV/TSV drive-test exports into canonical records.
type Tabular struct {
	skipInvalid bool
	log         *slog.Logger
	skipped     int
}

// NewTabular returns a tabular parser. With skipInvalid set, rows that fail
// conversion are counted and skipped; otherwise the first bad row aborts
// the file.
func NewTabular(skipInvalid bool, log *slog.Logger) *Tabular {
	if log == nil {
		log = slog.Default()
	}
	return &Tabular{skipInvalid: skipInvalid, log: log}
}

// Skipped returns the number of rows skipped by the last ParseFile call.
func (p *Tabular) Skipped() int { return p.skipped }

// ParseFile parses the export at path. Records come back in file order.
func (p *Tabular) ParseFile(path string) ([]record.NetworkMeasurement, error) {
	delim, err := sniffDelimiter(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	return p.parse(f, delim)
}

// sniffDelimiter decides between comma and tab from the first line of the
// file. The choice is made once and applies to the whole file.
func sniffDelimiter(path string) (rune, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	br := bufio.NewReader(newBOMReader(f))
	line, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, err
	}

	if strings.ContainsRune(line, '\t') {
		return '\t', nil
	}
	return ',', nil
}

func (p *Tabular) parse(r io.Reader, comma rune) ([]record.NetworkMeasurement, error) {
	p.skipped = 0

	cr := csv.NewReader(newBOMReader(r))
	cr.Comma = comma
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		// An empty file simply has nothing to convert.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make([]column, len(header))
	for i, cell := range header {
		c, ok := headerAliases[strings.ToLower(strings.TrimSpace(cell))]
		if !ok {
			p.log.Debug("ignoring unknown column", "column", cell)
			continue
		}
		cols[i] = c
	}

	// The header is line 1, so data rows start counting at 2.
	var records []record.NetworkMeasurement
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !p.skipInvalid {
				return nil, fmt.Errorf("failed to read line %d: %w", line, err)
			}
			p.skipped++
			p.log.Warn("skipping malformed line", "line", line, "error", err)
			continue
		}

		rec, err := recordFromRow(cols, row)
		if err != nil {
			if !p.skipInvalid {
				return nil, fmt.Errorf("failed to parse record at line %d: %w", line, err)
			}
			p.skipped++
			p.log.Warn("skipping invalid record", "line", line, "error", err)
			continue
		}

		records = append(records, rec)
	}

	if p.skipped > 0 {
		p.log.Warn("encountered errors while parsing file", "skipped", p.skipped)
	}

	return records, nil
}

// recordFromRow converts one data row using the resolved column mapping.
// Only a timestamp that is present but unparseable makes the row invalid;
// every other field degrades to "not reported". Rows shorter than the
// header simply lack the trailing columns.
func recordFromRow(cols []column, row []string) (record.NetworkMeasurement, error) {
	var rec record.NetworkMeasurement

	ts := ""
	for i, col := range cols {
		if i >= len(row) || col == colUnknown {
			continue
		}

		value := row[i]
		switch col {
		case colTimestamp:
			ts = value
		case colLongitude:
			rec.Longitude = OptFloat(value)
		case colLatitude:
			rec.Latitude = OptFloat(value)
		case colSpeed:
			rec.Speed = OptFloat(value)
		case colOperatorName:
			rec.OperatorName = OptText(value)
		case colOperatorCode:
			rec.OperatorCode = OptText(value)
		case colCGI:
			rec.CGI = OptText(value)
		case colCellName:
			rec.CellName = OptText(value)
		case colNode:
			rec.Node = OptText(value)
		case colCellID:
			rec.CellID = OptText(value)
		case colLAC:
			rec.LAC = OptText(value)
		case colNetworkTech:
			rec.NetworkTech = OptText(value)
		case colNetworkMode:
			rec.NetworkMode = OptText(value)
		case colLevel:
			rec.Level = OptFloat(value)
		case colQual:
			rec.Qual = OptFloat(value)
		case colSNR:
			rec.SNR = OptFloat(value)
		case colCQI:
			rec.CQI = OptFloat(value)
		case colARFCN:
			rec.ARFCN = OptText(value)
		case colDLBitrate:
			rec.DLBitrate = OptFloat(value)
		case colULBitrate:
			rec.ULBitrate = OptFloat(value)
		}
	}

	t, err := ParseTimestamp(ts)
	if err != nil {
		return record.NetworkMeasurement{}, err
	}
	rec.Timestamp = t

	return rec, nil
}
