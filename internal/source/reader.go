package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// RowFunc receives every data row of a file. Row numbers start at 1 for the
// first row after the header. Fields are only valid for the duration of the call.
type RowFunc func(row int, fields []string) error

// CSVReader streams a MaxMind CSV file one row at a time, discarding the header.
type CSVReader struct {
	reader *csv.Reader
}

// NewCSVReader wraps an io.Reader with MaxMind CSV conventions.
func NewCSVReader(r io.Reader) *CSVReader {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return &CSVReader{reader: reader}
}

// Each calls fn for every data row. A row that is not valid CSV aborts the
// read; fn decides itself whether a well-formed row is usable.
func (cr *CSVReader) Each(fn RowFunc) error {
	if _, err := cr.reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("reading header: %w", err)
	}

	row := 0
	for {
		fields, err := cr.reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading row %d: %w", row+1, err)
		}

		row++
		if err := fn(row, fields); err != nil {
			return err
		}
	}
}

// EachInFile opens path and streams its rows into fn.
func EachInFile(path string, fn RowFunc) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return NewCSVReader(f).Each(fn)
}
