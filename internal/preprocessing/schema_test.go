package preprocessing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/opfromthestart/loan-mining/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsOf(cols ...[]string) []value.Record {
	rows := make([]value.Record, len(cols[0]))
	for i := range rows {
		fields := make([]string, len(cols))
		for j := range cols {
			fields[j] = cols[j][i]
		}
		rows[i] = value.ParseRecord(fields)
	}
	return rows
}

func TestInferNumericStats(t *testing.T) {
	rows := rowsOf([]string{"1", "2", "3", "4", "5"})

	schema, err := InferTypes(rows, []string{"x"})
	require.NoError(t, err)
	require.Equal(t, 1, schema.Width())

	col := schema.Columns[0]
	assert.Equal(t, Numeric, col.Kind)
	assert.InDelta(t, 3.0, col.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(2), col.SD, 1e-12)
	assert.Equal(t, 5, col.Present)
	assert.False(t, col.HasMissing)
}

func TestInferIgnoresMissingInNumericStats(t *testing.T) {
	rows := rowsOf([]string{"2", "", "4", ""})

	schema, err := InferTypes(rows, nil)
	require.NoError(t, err)

	col := schema.Columns[0]
	assert.Equal(t, Numeric, col.Kind)
	assert.InDelta(t, 3.0, col.Mean, 1e-12)
	assert.InDelta(t, 1.0, col.SD, 1e-12)
	assert.True(t, col.HasMissing)
}

func TestInferCategorical(t *testing.T) {
	rows := rowsOf([]string{"M", "F", "", "M", "XNA"})

	schema, err := InferTypes(rows, []string{"CODE_GENDER"})
	require.NoError(t, err)

	col := schema.Columns[0]
	assert.Equal(t, Categorical, col.Kind)
	assert.Equal(t, 3, col.Distinct)
	assert.Equal(t, []string{"F", "M", "XNA"}, col.Categories)
	assert.Equal(t, 4, col.Present)
	assert.True(t, col.HasMissing)
}

func TestInferAllMissingIsDegenerateCategorical(t *testing.T) {
	rows := rowsOf([]string{"", "", ""})

	schema, err := InferTypes(rows, nil)
	require.NoError(t, err)

	col := schema.Columns[0]
	assert.Equal(t, Categorical, col.Kind)
	assert.Equal(t, 0, col.Distinct)
	assert.True(t, col.Degenerate())
}

func TestInferMixedColumn(t *testing.T) {
	rows := rowsOf(
		[]string{"a", "b", "c", "d"},
		[]string{"3.5", "", "red", "1"},
	)

	_, err := InferTypes(rows, []string{"ok", "mixed"})
	require.ErrorIs(t, err, ErrMixedColumnType)

	var colErr *value.ColumnError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, 1, colErr.Column)
	assert.Equal(t, "mixed", colErr.Name)
	assert.Equal(t, 2, colErr.Row)
}

func TestInferRejectsRaggedRows(t *testing.T) {
	rows := []value.Record{
		{value.Number(1), value.Number(2)},
		{value.Number(1)},
	}
	_, err := InferTypes(rows, nil)
	assert.ErrorIs(t, err, ErrWidthMismatch)

	_, err = InferTypes(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyPopulation)
}

func TestInferIsOrderIndependent(t *testing.T) {
	num := []string{"1.5", "", "7", "3.25", "9", "-2", "", "4"}
	cat := []string{"a", "b", "", "a", "c", "b", "a", ""}
	rows := rowsOf(num, cat)

	base, err := InferTypes(rows, nil)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]value.Record, len(rows))
		copy(shuffled, rows)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := InferTypes(shuffled, nil)
		require.NoError(t, err)
		for j := range base.Columns {
			assert.Equal(t, base.Columns[j].Kind, got.Columns[j].Kind)
			assert.InDelta(t, base.Columns[j].Mean, got.Columns[j].Mean, 1e-9)
			assert.InDelta(t, base.Columns[j].SD, got.Columns[j].SD, 1e-9)
			assert.Equal(t, base.Columns[j].Distinct, got.Columns[j].Distinct)
			assert.Equal(t, base.Columns[j].Categories, got.Columns[j].Categories)
		}
	}
}
