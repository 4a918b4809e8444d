// Package importer bulk-loads materials, products and orders from CSV.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrEmptyFile     = errors.New("csv has no header row")
	ErrInvalidValue  = errors.New("invalid value")
	ErrMalformedCSV  = errors.New("malformed csv")
)

// Stats counts the outcome of an import. Rejected rows are counted in Errors
// and do not abort the import.
type Stats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

// header maps canonical column names to record indexes.
type header map[string]int

// newHeader resolves the header row against aliases, which maps every accepted
// spelling to its canonical column name.
func newHeader(row []string, aliases map[string]string, required ...string) (header, error) {
	h := make(header, len(row))
	for i, raw := range row {
		name := normalizeColumn(raw)
		if canonical, ok := aliases[name]; ok {
			if _, dup := h[canonical]; !dup {
				h[canonical] = i
			}
		}
	}

	var missing []string
	for _, col := range required {
		if _, ok := h[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return h, nil
}

// get returns the trimmed value of col, or "" when the column is absent or
// the record is short.
func (h header) get(record []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// has reports whether col was present in the header row.
func (h header) has(col string) bool {
	_, ok := h[col]
	return ok
}

func normalizeColumn(raw string) string {
	name := strings.TrimPrefix(raw, "\ufeff")
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "_")
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// readHeader reads the first row of cr.
func readHeader(cr *csv.Reader, aliases map[string]string, required ...string) (header, error) {
	row, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("%w: header: %w", ErrMalformedCSV, err)
	}
	return newHeader(row, aliases, required...)
}

// parseMoney parses an amount with an optional currency prefix and thousands
// separators, e.g. "Q1,250.50".
func parseMoney(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "Qq$")
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidValue)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q", ErrInvalidValue, raw)
	}
	return d.InexactFloat64(), nil
}

// parseNumber parses a plain quantity, returning def when raw is empty.
func parseNumber(raw string, def float64) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: number %q", ErrInvalidValue, raw)
	}
	return d.InexactFloat64(), nil
}

// parseCount parses a whole, positive count, returning def when raw is empty.
func parseCount(raw string, def int) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() || !d.IsPositive() {
		return 0, fmt.Errorf("%w: count %q", ErrInvalidValue, raw)
	}
	return int(d.IntPart()), nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "0", "no", "n", "false", "f":
		return false, nil
	case "1", "si", "sí", "s", "yes", "y", "true", "t", "x":
		return true, nil
	}
	return false, fmt.Errorf("%w: flag %q", ErrInvalidValue, raw)
}

// csvRow is a data record with its 1-based record number, header included.
type csvRow struct {
	line   int
	record []string
}

// readRows reads every non-blank record after the header. A syntax error
// anywhere in the file fails the whole read, so callers never act on a
// partially parsed upload.
func readRows(cr *csv.Reader) ([]csvRow, error) {
	var rows []csvRow
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrMalformedCSV, line, err)
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, csvRow{line: line, record: record})
	}
}

func isBlank(record []string) bool {
	for _, v := range record {
		if v != "" {
			return false
		}
	}
	return true
}

func round2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
