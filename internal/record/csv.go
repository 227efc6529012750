package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/wegman-software/osm-gazetteer/internal/osmid"
)

// Header lists the CSV columns in order
var Header = []string{"name", "alt_name", "operator", "osm_id", "location", "latitude", "longitude", "admin_level"}

// ErrHeader is returned when a CSV input does not start with Header
var ErrHeader = errors.New("unexpected csv header")

// CSVWriter writes records as CSV rows. It is not safe for concurrent use.
type CSVWriter struct {
	w      *csv.Writer
	header bool
	row    []string
}

// NewCSVWriter creates a writer; the header is written with the first record
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{
		w:   csv.NewWriter(w),
		row: make([]string, len(Header)),
	}
}

// Write appends one record
func (cw *CSVWriter) Write(r *Record) error {
	if err := cw.writeHeader(); err != nil {
		return err
	}

	location, err := json.Marshal(nonNil(r.Location))
	if err != nil {
		return fmt.Errorf("failed to encode location: %w", err)
	}

	cw.row[0] = r.Name
	cw.row[1] = r.AltName
	cw.row[2] = r.Operator
	cw.row[3] = r.OSMID.String()
	cw.row[4] = string(location)
	cw.row[5] = formatCoord(r.Latitude)
	cw.row[6] = formatCoord(r.Longitude)
	cw.row[7] = strconv.FormatUint(uint64(r.AdminLevel), 10)

	return cw.w.Write(cw.row)
}

func (cw *CSVWriter) writeHeader() error {
	if cw.header {
		return nil
	}
	cw.header = true
	return cw.w.Write(Header)
}

// Flush writes buffered rows and reports any write error
func (cw *CSVWriter) Flush() error {
	if err := cw.writeHeader(); err != nil {
		return err
	}
	cw.w.Flush()
	return cw.w.Error()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CSVReader reads records written by CSVWriter
type CSVReader struct {
	r    *csv.Reader
	line int
}

// NewCSVReader validates the header and returns a reader positioned at
// the first record
func NewCSVReader(r io.Reader) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty input", ErrHeader)
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i, col := range Header {
		if header[i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrHeader, i+1, header[i], col)
		}
	}

	return &CSVReader{r: cr, line: 1}, nil
}

// Read returns the next record, or io.EOF at the end of input. Malformed
// osm ids wrap osmid.ErrInvalidDiscriminant or osmid.ErrInvalidRef.
func (cr *CSVReader) Read() (Record, error) {
	row, err := cr.r.Read()
	if err != nil {
		return Record{}, err
	}
	cr.line++

	id, err := osmid.Parse(row[3])
	if err != nil {
		return Record{}, fmt.Errorf("line %d: %w", cr.line, err)
	}

	var location []string
	if err := json.Unmarshal([]byte(row[4]), &location); err != nil {
		return Record{}, fmt.Errorf("line %d: invalid location: %w", cr.line, err)
	}

	lat, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return Record{}, fmt.Errorf("line %d: invalid latitude: %w", cr.line, err)
	}
	lon, err := strconv.ParseFloat(row[6], 64)
	if err != nil {
		return Record{}, fmt.Errorf("line %d: invalid longitude: %w", cr.line, err)
	}
	level, err := strconv.ParseUint(row[7], 10, 8)
	if err != nil {
		return Record{}, fmt.Errorf("line %d: invalid admin_level: %w", cr.line, err)
	}

	return Record{
		Name:       row[0],
		AltName:    row[1],
		Operator:   row[2],
		OSMID:      id,
		Location:   location,
		Latitude:   lat,
		Longitude:  lon,
		AdminLevel: uint8(level),
	}, nil
}
