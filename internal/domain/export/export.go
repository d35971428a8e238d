// Package export renders loaded readings as CSV, JSON or XLSX documents.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/okian/padmon/internal/domain/model"
)

// Format is an export document type.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// Field names accepted in a selection.
const (
	FieldBloodFlow   = "bloodFlow"
	FieldTemperature = "temperature"
	FieldPressure    = "pressure"
	FieldMotion      = "motion"
	FieldRiskScore   = "padRiskScore"
)

// TimeLayout formats exported timestamps (UTC, millisecond precision).
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Errors returned by the exporter.
var (
	ErrNoData        = errors.New("no data to export")
	ErrUnknownFormat = errors.New("unknown export format")
	ErrUnknownField  = errors.New("unknown export field")
)

// Fields selects which values are written. The timestamp is always included.
type Fields struct {
	BloodFlow   bool
	Temperature bool
	Pressure    bool
	Motion      bool
	RiskScore   bool
}

// DefaultFields is everything except motion.
func DefaultFields() Fields {
	return Fields{BloodFlow: true, Temperature: true, Pressure: true, RiskScore: true}
}

// ParseFields reads a comma separated list of field names. An empty list
// selects the defaults.
func ParseFields(s string) (Fields, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultFields(), nil
	}
	var f Fields
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case FieldBloodFlow:
			f.BloodFlow = true
		case FieldTemperature:
			f.Temperature = true
		case FieldPressure:
			f.Pressure = true
		case FieldMotion:
			f.Motion = true
		case FieldRiskScore:
			f.RiskScore = true
		case "timestamp", "":
		default:
			return Fields{}, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
	}
	return f, nil
}

// ParseFormat maps a query value to a Format. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv"
	}
}

// Filename suggests a download name for an export made at now.
func Filename(f Format, now time.Time) string {
	return fmt.Sprintf("pad_data_export_%s.%s", now.UTC().Format(time.DateOnly), f)
}

// Write renders readings in format f to w.
func Write(w io.Writer, f Format, readings []model.SensorReading, fields Fields) error {
	if len(readings) == 0 {
		return ErrNoData
	}
	switch f {
	case FormatCSV:
		return writeCSV(w, readings, fields)
	case FormatJSON:
		return writeJSON(w, readings, fields)
	case FormatXLSX:
		return writeXLSX(w, readings, fields)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// column is one flat output column.
type column struct {
	header string
	value  func(model.SensorReading) any
}

// columns lists the flat columns for a selection, timestamp first.
func columns(fields Fields) []column {
	cols := []column{{"timestamp", func(r model.SensorReading) any { return formatTime(r.Timestamp) }}}
	if fields.BloodFlow {
		cols = append(cols, column{FieldBloodFlow, func(r model.SensorReading) any { return r.BloodFlow }})
	}
	if fields.Temperature {
		cols = append(cols, column{FieldTemperature, func(r model.SensorReading) any { return r.Temperature }})
	}
	if fields.Pressure {
		cols = append(cols, column{FieldPressure, func(r model.SensorReading) any { return r.Pressure }})
	}
	if fields.Motion {
		cols = append(cols,
			column{"motion.x", func(r model.SensorReading) any { return r.Motion.X }},
			column{"motion.y", func(r model.SensorReading) any { return r.Motion.Y }},
			column{"motion.z", func(r model.SensorReading) any { return r.Motion.Z }},
		)
	}
	if fields.RiskScore {
		cols = append(cols, column{FieldRiskScore, func(r model.SensorReading) any { return r.PadRiskScore }})
	}
	return cols
}

func formatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(TimeLayout)
}

func writeCSV(w io.Writer, readings []model.SensorReading, fields Fields) error {
	cols := columns(fields)
	cw := csv.NewWriter(w)

	row := make([]string, len(cols))
	for i, c := range cols {
		row[i] = c.header
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range readings {
		for i, c := range cols {
			row[i] = csvValue(c.value(r))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// record is the JSON shape of one exported reading.
type record struct {
	Timestamp    string        `json:"timestamp"`
	BloodFlow    *float64      `json:"bloodFlow,omitempty"`
	Temperature  *float64      `json:"temperature,omitempty"`
	Pressure     *float64      `json:"pressure,omitempty"`
	Motion       *model.Motion `json:"motion,omitempty"`
	PadRiskScore *int          `json:"padRiskScore,omitempty"`
}

func writeJSON(w io.Writer, readings []model.SensorReading, fields Fields) error {
	out := make([]record, len(readings))
	for i := range readings {
		r := &readings[i]
		rec := record{Timestamp: formatTime(r.Timestamp)}
		if fields.BloodFlow {
			rec.BloodFlow = &r.BloodFlow
		}
		if fields.Temperature {
			rec.Temperature = &r.Temperature
		}
		if fields.Pressure {
			rec.Pressure = &r.Pressure
		}
		if fields.Motion {
			rec.Motion = &r.Motion
		}
		if fields.RiskScore {
			rec.PadRiskScore = &r.PadRiskScore
		}
		out[i] = rec
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json export: %w", err)
	}
	return nil
}
