package data

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Table is a header plus raw string rows, all of header width.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

type CSVReader struct {
	opener Opener
	logger *slog.Logger
}

func NewCSVReader(opener Opener, logger *slog.Logger) *CSVReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVReader{opener: opener, logger: logger}
}

// Load reads the whole table at location.
func (cr *CSVReader) Load(ctx context.Context, location string) (*Table, error) {
	start := time.Now()
	rc, err := cr.opener.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	table, err := ReadTable(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	cr.logger.Info("dataset loaded",
		"location", location,
		"rows", len(table.Rows),
		"columns", len(table.Header),
		"elapsed", time.Since(start).String(),
	)
	return table, nil
}

// ReadTable reads a CSV table from r, checking ctx between rows.
func ReadTable(ctx context.Context, r io.Reader) (*Table, error) {
	rs, err := NewRowStream(r)
	if err != nil {
		return nil, err
	}
	table := &Table{Header: rs.Header()}
	for {
		if rs.Rows()%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := rs.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
