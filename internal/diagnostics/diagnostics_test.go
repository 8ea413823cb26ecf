package diagnostics

import (
	"bytes"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/opfromthestart/loan-mining/internal/association"
	"github.com/opfromthestart/loan-mining/internal/preprocessing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report() *Report {
	return &Report{
		Schema: &preprocessing.Schema{
			Names: []string{"AMT_INCOME", "CODE_GENDER", "EMPTY"},
			Columns: []preprocessing.ColumnType{
				{Kind: preprocessing.Numeric, Mean: 3, SD: 1.4142135623730951, Present: 5},
				{Kind: preprocessing.Categorical, Distinct: 2, Categories: []string{"F", "M"}, Present: 4, HasMissing: true},
				{Kind: preprocessing.Categorical, HasMissing: true},
			},
		},
		Weights: association.Weights{0.25, 0.5, 0},
	}
}

func render(t *testing.T, write func(io.Writer) error) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, write(&buf))
	return buf.String()
}

func TestReportSections(t *testing.T) {
	r := report()

	assert.Equal(t,
		"0\tAMT_INCOME\tnumeric\tmean=3\tsd=1.414214\tpresent=5\n"+
			"1\tCODE_GENDER\tcategorical\tdistinct=2\tpresent=4\tmissing\n"+
			"2\tEMPTY\tcategorical\tdistinct=0\tpresent=0\tmissing\n",
		render(t, r.WriteColumnTypes))

	assert.Equal(t, "0\tAMT_INCOME\t0.25\n1\tCODE_GENDER\t0.5\n2\tEMPTY\t0\n", render(t, r.WriteWeights))
	assert.Equal(t, "1\t0.5\tCODE_GENDER\n0\t0.25\tAMT_INCOME\n2\t0\tEMPTY\n", render(t, r.WriteRank))
	assert.Equal(t, "1\tCODE_GENDER\t[F, M]\n2\tEMPTY\t[]\n", render(t, r.WriteCategories))
}

func TestUnnamedColumns(t *testing.T) {
	r := report()
	r.Schema.Names = nil
	assert.True(t, strings.HasPrefix(render(t, r.WriteWeights), "0\tcol0\t"))
}

func TestWriterPlain(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diag")
	paths, err := NewWriter(dir, false, nil).Write(report())
	require.NoError(t, err)
	require.Len(t, paths, 4)

	got, err := os.ReadFile(filepath.Join(dir, WeightsRankFile))
	require.NoError(t, err)
	assert.Equal(t, "1\t0.5\tCODE_GENDER\n0\t0.25\tAMT_INCOME\n2\t0\tEMPTY\n", string(got))
}

func TestWriterCompressed(t *testing.T) {
	dir := t.TempDir()
	paths, err := NewWriter(dir, true, nil).Write(report())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, CategoricalValuesFile+".zst"), paths[3])

	raw, err := os.ReadFile(paths[3])
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	plain, err := dec.DecodeAll(raw, nil)
	require.NoError(t, err)
	assert.Equal(t, "1\tCODE_GENDER\t[F, M]\n2\tEMPTY\t[]\n", string(plain))
}

func TestWriterRejectsMismatchedWeights(t *testing.T) {
	r := report()
	r.Weights = r.Weights[:2]
	_, err := NewWriter(t.TempDir(), false, nil).Write(r)
	assert.ErrorIs(t, err, ErrWeightCount)
}

func TestWriterNonFiniteStatistics(t *testing.T) {
	r := report()
	// [1e308, -1e308] overflows the population sd.
	r.Schema.Columns[0].Mean = 0
	r.Schema.Columns[0].SD = math.Inf(1)
	r.Weights[0] = math.NaN()

	dir := t.TempDir()
	var paths []string
	require.NotPanics(t, func() {
		var err error
		paths, err = NewWriter(dir, false, nil).Write(r)
		require.NoError(t, err)
	})
	require.Len(t, paths, 4)

	types, err := os.ReadFile(filepath.Join(dir, ColumnTypesFile))
	require.NoError(t, err)
	assert.Contains(t, string(types), "0\tAMT_INCOME\tnumeric\tmean=0\tsd=+Inf\tpresent=5\n")

	weights, err := os.ReadFile(filepath.Join(dir, ColumnWeightsFile))
	require.NoError(t, err)
	assert.Contains(t, string(weights), "0\tAMT_INCOME\tNaN\n")
}
