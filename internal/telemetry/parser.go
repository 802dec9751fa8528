// Package telemetry reads the flight logger CSV into route points.
package telemetry

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"drone_routes/internal/models"
)

// ExpectedColumns is the logger's header row. Two labels repeat, so columns
// are always addressed by position.
var ExpectedColumns = []string{
	"file name",
	"Date",
	"Time",
	"Time",
	"AEX",
	"Latitude",
	"Longitude",
	"Speed",
	"Course",
	"Magn",
	"Altit",
	"SPP",
	"SRR",
	"M-Lux",
	"R Ir",
	"G Ir",
	"R Ir",
	"I Ir",
	"IBright",
	"Shutter",
	"Gain",
}

// Column positions within a row.
const (
	colFileName = iota
	colDate
	colTime
	colTimeStatus
	colAEX
	colLatitude
	colLongitude
	colSpeed
	colCourse
	colMagn
	colAltitude
	colSPP
	colSRR
	colMLux
	colRIr1
	colGIr
	colRIr2
	colIIr
	colIBright
	colShutter
	colGain
)

const utf8BOM = "\ufeff"

// ParseError reports a CSV that cannot be read as a route log.
type ParseError struct {
	// Column is the 1-based position of the first mismatching header,
	// zero when the problem is not tied to one column.
	Column int
	Line   int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseBytes parses an in-memory CSV upload.
func ParseBytes(buf []byte) ([]models.FlightPoint, error) {
	return Parse(bytes.NewReader(buf))
}

// Parse validates the header row and returns one point per usable data row,
// in file order. Rows without a file name, latitude or longitude are skipped.
func Parse(r io.Reader) ([]models.FlightPoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &ParseError{Msg: "CSV has no header row"}
	}
	if err != nil {
		return nil, wrapReadError(err)
	}
	if err := ValidateHeader(header); err != nil {
		return nil, err
	}

	var (
		points  []models.FlightPoint
		skipped int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, wrapReadError(err)
		}

		point := pointFromRecord(record)
		if point.FileName == "" || point.Latitude == "" || point.Longitude == "" {
			line, _ := reader.FieldPos(0)
			skipped++
			logrus.WithFields(logrus.Fields{
				"line":      line,
				"file_name": point.FileName,
				"latitude":  point.Latitude,
				"longitude": point.Longitude,
			}).Warn("Skipping CSV row without file name or coordinates")
			continue
		}
		point.Seq = len(points)
		points = append(points, point)
	}

	logrus.WithFields(logrus.Fields{
		"points":  len(points),
		"skipped": skipped,
	}).Info("Parsed route CSV")
	return points, nil
}

// ValidateHeader checks the header row against ExpectedColumns, column by column.
func ValidateHeader(header []string) error {
	if len(header) != len(ExpectedColumns) {
		return &ParseError{
			Msg: fmt.Sprintf("CSV validation failed: expected %d columns, got %d", len(ExpectedColumns), len(header)),
		}
	}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		name = strings.TrimSpace(name)
		if name != ExpectedColumns[i] {
			return &ParseError{
				Column: i + 1,
				Msg:    fmt.Sprintf("CSV validation failed: column %d should be '%s', got '%s'", i+1, ExpectedColumns[i], name),
			}
		}
	}
	return nil
}

func pointFromRecord(record []string) models.FlightPoint {
	field := func(i int) string {
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	return models.FlightPoint{
		FileName:   field(colFileName),
		Date:       field(colDate),
		Time:       field(colTime),
		TimeStatus: field(colTimeStatus),
		AEX:        field(colAEX),
		Latitude:   field(colLatitude),
		Longitude:  field(colLongitude),
		Speed:      field(colSpeed),
		Course:     field(colCourse),
		Magn:       field(colMagn),
		Altitude:   field(colAltitude),
		SPP:        field(colSPP),
		SRR:        field(colSRR),
		MLux:       field(colMLux),
		RIr1:       field(colRIr1),
		GIr:        field(colGIr),
		RIr2:       field(colRIr2),
		IIr:        field(colIIr),
		IBright:    field(colIBright),
		Shutter:    field(colShutter),
		Gain:       field(colGain),
	}
}

func wrapReadError(err error) error {
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &ParseError{Line: csvErr.Line, Msg: "malformed CSV", Err: csvErr.Err}
	}
	return &ParseError{Msg: "failed to read CSV", Err: err}
}
