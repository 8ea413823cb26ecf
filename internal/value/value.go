package value

import (
	"math"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNumber Kind = iota
	KindCategory
	KindMissing
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindCategory:
		return "category"
	case KindMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Value is a single observed cell: a number, a category label or missing.
// The zero Value is a Number holding 0; use Missing() for an empty cell.
type Value struct {
	kind  Kind
	num   float64
	label string
}

func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

func Category(label string) Value {
	return Value{kind: KindCategory, label: label}
}

func Missing() Value {
	return Value{kind: KindMissing}
}

// Parse converts a raw CSV field. Empty fields are missing, fields that parse
// as a finite real number are numbers and everything else is a category kept
// exactly as given. NaN and infinities count as missing.
func Parse(raw string) Value {
	if len(raw) == 0 {
		return Missing()
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return Missing()
		}
		return Number(n)
	}
	return Category(raw)
}

// ParseInput is Parse for interactively captured text: surrounding
// whitespace, including the line terminator, is dropped first.
func ParseInput(raw string) Value {
	return Parse(strings.TrimSpace(raw))
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Float returns the number held by v.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Label returns the category label held by v.
func (v Value) Label() (string, bool) {
	if v.kind != KindCategory {
		return "", false
	}
	return v.label, true
}

// Compare orders values for deduplication: numbers before categories before
// missing, numbers numerically and categories lexically.
func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		if v.kind < o.kind {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindNumber:
		switch {
		case v.num < o.num:
			return -1
		case v.num > o.num:
			return 1
		}
		return 0
	case KindCategory:
		return strings.Compare(v.label, o.label)
	default:
		return 0
	}
}

func (v Value) Less(o Value) bool { return v.Compare(o) < 0 }

func (v Value) Equal(o Value) bool { return v.Compare(o) == 0 }

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindCategory:
		return strconv.Quote(v.label)
	default:
		return "<missing>"
	}
}

// Record is one row of predictor values, aligned by column index with the
// column statistics and weights derived from the population.
type Record []Value

// ParseRecord parses every raw field of a row.
func ParseRecord(fields []string) Record {
	rec := make(Record, len(fields))
	for i, f := range fields {
		rec[i] = Parse(f)
	}
	return rec
}

// MissingRecord returns a record of the given width with every field missing.
func MissingRecord(width int) Record {
	rec := make(Record, width)
	for i := range rec {
		rec[i] = Missing()
	}
	return rec
}

// Filled returns the indices of the non-missing fields of r.
func (r Record) Filled() []int {
	var idx []int
	for i, v := range r {
		if !v.IsMissing() {
			idx = append(idx, i)
		}
	}
	return idx
}
