package data

import (
	"errors"
	"fmt"

	"github.com/opfromthestart/loan-mining/internal/value"
)

var (
	ErrEmptyDataset   = errors.New("dataset is empty")
	ErrNonBinary      = errors.New("target is not 0 or 1")
	ErrRaggedDataset  = errors.New("inconsistent record width")
	ErrTargetMismatch = errors.New("records and targets have different lengths")
)

type DataValidator struct{}

func NewDataValidator() *DataValidator {
	return &DataValidator{}
}

// ValidateDataset checks shape and that every target is a binary number.
func (dv *DataValidator) ValidateDataset(ds *Dataset) error {
	if ds.Len() == 0 {
		return ErrEmptyDataset
	}
	if len(ds.Records) != len(ds.Targets) {
		return fmt.Errorf("%w: %d vs %d", ErrTargetMismatch, len(ds.Records), len(ds.Targets))
	}
	for i, rec := range ds.Records {
		if len(rec) != ds.Width() {
			return fmt.Errorf("%w at record %d: expected %d, got %d", ErrRaggedDataset, i, ds.Width(), len(rec))
		}
	}
	return dv.ValidateTargets(ds.Targets)
}

func (dv *DataValidator) ValidateTargets(targets []value.Value) error {
	if len(targets) == 0 {
		return ErrEmptyDataset
	}
	for i, t := range targets {
		f, err := value.TargetFloat(t)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if f != 0 && f != 1 {
			return fmt.Errorf("row %d: %w: %v", i, ErrNonBinary, f)
		}
	}
	return nil
}

// ValidateSplit checks both halves of a population/holdout split. A
// population with a single outcome is accepted; every weight is then 0.
func (dv *DataValidator) ValidateSplit(population, holdout *Dataset) error {
	if err := dv.ValidateDataset(population); err != nil {
		return fmt.Errorf("population validation failed: %w", err)
	}
	if holdout.Len() > 0 {
		if err := dv.ValidateDataset(holdout); err != nil {
			return fmt.Errorf("holdout validation failed: %w", err)
		}
	}
	return nil
}

// SingleClass reports whether every target of ds has the same value.
func (dv *DataValidator) SingleClass(ds *Dataset) bool {
	stats := dv.GetDatasetStats(ds)
	return stats.Positives == 0 || stats.Negatives == 0
}

// DatasetStats is a shape summary for display.
type DatasetStats struct {
	Samples       int
	Features      int
	Positives     int
	Negatives     int
	InvalidTarget int
	// MissingCells counts Missing values per predictor column.
	MissingCells []int
}

func (s DatasetStats) PositiveRate() float64 {
	n := s.Positives + s.Negatives
	if n == 0 {
		return 0
	}
	return float64(s.Positives) / float64(n)
}

func (dv *DataValidator) GetDatasetStats(ds *Dataset) DatasetStats {
	stats := DatasetStats{
		Samples:      ds.Len(),
		Features:     ds.Width(),
		MissingCells: make([]int, ds.Width()),
	}
	for _, t := range ds.Targets {
		f, ok := t.Float()
		switch {
		case ok && f == 1:
			stats.Positives++
		case ok && f == 0:
			stats.Negatives++
		default:
			stats.InvalidTarget++
		}
	}
	for _, rec := range ds.Records {
		for j, v := range rec {
			if j < len(stats.MissingCells) && v.IsMissing() {
				stats.MissingCells[j]++
			}
		}
	}
	return stats
}
