package evaluation

import (
	"errors"
	"fmt"

	"github.com/opfromthestart/loan-mining/internal/data"
)

var ErrBadRatio = errors.New("population ratio must satisfy 0 < num <= den")

// PrefixSplitter keeps the first n*Num/Den rows as the population and holds
// out the rest. Row order is preserved on both sides.
type PrefixSplitter struct {
	Num int
	Den int
}

func NewPrefixSplitter(num, den int) (*PrefixSplitter, error) {
	if den <= 0 || num <= 0 || num > den {
		return nil, fmt.Errorf("%w: %d/%d", ErrBadRatio, num, den)
	}
	return &PrefixSplitter{Num: num, Den: den}, nil
}

func DefaultPrefixSplitter() *PrefixSplitter {
	return &PrefixSplitter{Num: 29, Den: 30}
}

// Cut returns the population size for n rows.
func (ps *PrefixSplitter) Cut(n int) int {
	return n * ps.Num / ps.Den
}

func (ps *PrefixSplitter) Split(ds *data.Dataset) (population, holdout *data.Dataset, err error) {
	if ds.Len() == 0 {
		return nil, nil, fmt.Errorf("cannot split empty dataset")
	}
	cut := ps.Cut(ds.Len())
	if cut == 0 {
		return nil, nil, fmt.Errorf("population would be empty for %d rows at %d/%d", ds.Len(), ps.Num, ps.Den)
	}
	return ds.Slice(0, cut), ds.Slice(cut, ds.Len()), nil
}
