package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var (
	ErrNoHeader    = errors.New("input has no header row")
	ErrRowWidth    = errors.New("row width does not match header")
	ErrEmptyHeader = errors.New("header contains an empty column name")
)

// RowStream reads CSV rows one at a time after validating the header.
type RowStream struct {
	reader *csv.Reader
	header []string
	line   int
}

func NewRowStream(r io.Reader) (*RowStream, error) {
	reader := csv.NewReader(r)
	// Width is checked against the header below so the error names the row.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}
	for i, name := range header {
		if name == "" {
			return nil, fmt.Errorf("%w: column %d", ErrEmptyHeader, i)
		}
	}
	return &RowStream{reader: reader, header: header}, nil
}

func (rs *RowStream) Header() []string {
	return rs.header
}

// Next returns the next data row, or io.EOF once the input is exhausted.
func (rs *RowStream) Next() ([]string, error) {
	row, err := rs.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("error reading record %d: %w", rs.line, err)
	}
	line := rs.line
	rs.line++
	if len(row) != len(rs.header) {
		return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrRowWidth, line, len(row), len(rs.header))
	}
	return row, nil
}

// Rows returns how many data rows have been read so far.
func (rs *RowStream) Rows() int {
	return rs.line
}
