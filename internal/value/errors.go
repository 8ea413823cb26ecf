package value

import (
	"fmt"
	"strings"
)

// ColumnError reports a failure tied to a single predictor column. Row is -1
// when the failure is not tied to a particular record.
type ColumnError struct {
	Op     string
	Column int
	Name   string
	Row    int
	Err    error
}

func (e *ColumnError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": column ")
	fmt.Fprintf(&b, "%d", e.Column)
	if e.Name != "" {
		fmt.Fprintf(&b, " (%s)", e.Name)
	}
	if e.Row >= 0 {
		fmt.Fprintf(&b, ", row %d", e.Row)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ColumnError) Unwrap() error { return e.Err }

// NewColumnError builds a ColumnError that is not tied to a row.
func NewColumnError(op string, column int, err error) *ColumnError {
	return &ColumnError{Op: op, Column: column, Row: -1, Err: err}
}

// WithName returns a copy of e labelled with a column header.
func (e *ColumnError) WithName(name string) *ColumnError {
	c := *e
	c.Name = name
	return &c
}
