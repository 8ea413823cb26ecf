package models

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/opfromthestart/loan-mining/internal/association"
	"github.com/opfromthestart/loan-mining/internal/distance"
	"github.com/opfromthestart/loan-mining/internal/preprocessing"
	"github.com/opfromthestart/loan-mining/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numbers(ns ...float64) []value.Value {
	out := make([]value.Value, len(ns))
	for i, n := range ns {
		out[i] = value.Number(n)
	}
	return out
}

func singleColumn(fields ...string) []value.Record {
	rows := make([]value.Record, len(fields))
	for i, f := range fields {
		rows[i] = value.Record{value.Parse(f)}
	}
	return rows
}

func fitted(t *testing.T, cfg ModelConfig, rows []value.Record, targets []value.Value) *KNN {
	t.Helper()
	knn, err := CreateModel(cfg)
	require.NoError(t, err)
	require.NoError(t, knn.Fit(context.Background(), rows, targets, nil))
	return knn
}

func TestPredictTwoNearest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.K = 2
	knn := fitted(t, cfg, singleColumn("0", "1", "2", "3"), numbers(0, 0, 1, 1))

	pred, err := knn.Predict(context.Background(), value.Record{value.Number(1.1)})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, pred.Score, 1e-12)
	require.Len(t, pred.Neighbors, 2)
	assert.Equal(t, 1, pred.Neighbors[0].Row)
	assert.Equal(t, 2, pred.Neighbors[1].Row)
	assert.Equal(t, 4, pred.Evaluated)
}

func TestDivisorPolicy(t *testing.T) {
	rows := singleColumn("0", "1", "2", "3")
	targets := numbers(0, 0, 1, 1)
	query := value.Record{value.Number(1.1)}

	tests := []struct {
		divisor DivisorPolicy
		want    float64
	}{
		{DivideByK, 2.0 / 8.0},
		{DivideByNeighbors, 2.0 / 4.0},
	}
	for _, tt := range tests {
		t.Run(string(tt.divisor), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.K = 8
			cfg.Divisor = tt.divisor
			knn := fitted(t, cfg, rows, targets)

			pred, err := knn.Predict(context.Background(), query)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, pred.Score, 1e-12)
			assert.Len(t, pred.Neighbors, 4)
		})
	}
}

func TestMissingQueryKeepsScanOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.K = 2
	knn := fitted(t, cfg, singleColumn("0", "1", "2", "3"), numbers(0, 0, 1, 1))

	// Every record is at distance 0 from an empty query, so the first K win.
	pred, err := knn.Predict(context.Background(), value.MissingRecord(1))
	require.NoError(t, err)
	assert.Equal(t, 0.0, pred.Score)
	assert.Equal(t, 0, pred.Neighbors[0].Row)
	assert.Equal(t, 1, pred.Neighbors[1].Row)
}

func randomDataset(rng *rand.Rand, n int) ([]value.Record, []value.Value) {
	labels := []string{"a", "b", "c", "d"}
	rows := make([]value.Record, n)
	targets := make([]value.Value, n)
	for i := range rows {
		y := float64(rng.Intn(2))
		num := value.Number(float64(rng.Intn(20)) + 5*y)
		if rng.Intn(10) == 0 {
			num = value.Missing()
		}
		rows[i] = value.Record{
			num,
			value.Category(labels[rng.Intn(len(labels))]),
			value.Number(rng.Float64()),
		}
		targets[i] = value.Number(y)
	}
	return rows, targets
}

func TestPartitionedScanMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rows, targets := randomDataset(rng, 500)

	seqCfg := DefaultConfig()
	seqCfg.K = 15
	seq := fitted(t, seqCfg, rows, targets)

	for _, parts := range []int{2, 3, 8, 1000} {
		t.Run(fmt.Sprintf("partitions=%d", parts), func(t *testing.T) {
			cfg := seqCfg
			cfg.Partitions = parts
			par := fitted(t, cfg, rows, targets)

			for q := 0; q < 20; q++ {
				query, _ := randomDataset(rng, 1)
				want, err := seq.Predict(context.Background(), query[0])
				require.NoError(t, err)
				got, err := par.Predict(context.Background(), query[0])
				require.NoError(t, err)

				assert.Equal(t, want.Score, got.Score)
				assert.Equal(t, want.Neighbors, got.Neighbors)
				assert.Equal(t, len(rows), got.Evaluated)
			}
		})
	}
}

func TestMaxCheckLimitsColumns(t *testing.T) {
	rows := []value.Record{
		{value.Category("x"), value.Number(0)},
		{value.Category("y"), value.Number(0)},
		{value.Category("x"), value.Number(100)},
	}
	schema, err := preprocessing.InferTypes(rows, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.K = 1
	cfg.MaxCheck = 1
	knn, err := CreateModel(cfg)
	require.NoError(t, err)
	require.NoError(t, knn.FitWithWeights(rows, numbers(0, 1, 1), schema, association.Weights{1, 1}, []int{0, 1}))

	// Only column 0 is inspected, so rows 0 and 2 tie and the first wins.
	pred, err := knn.Predict(context.Background(), value.Record{value.Category("x"), value.Number(100)})
	require.NoError(t, err)
	assert.Equal(t, 0, pred.Neighbors[0].Row)
	assert.Equal(t, 0.0, pred.Score)
}

func TestPredictErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.K = 2
	knn := fitted(t, cfg, singleColumn("0", "1", "2", "3"), numbers(0, 0, 1, 1))

	t.Run("not fitted", func(t *testing.T) {
		_, err := NewKNN(cfg).Predict(context.Background(), value.Record{value.Number(1)})
		assert.ErrorIs(t, err, ErrNotFitted)
	})

	t.Run("width", func(t *testing.T) {
		_, err := knn.Predict(context.Background(), value.Record{value.Number(1), value.Number(2)})
		assert.ErrorIs(t, err, ErrWidthMismatch)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := knn.Predict(context.Background(), value.Record{value.Category("high")})
		require.ErrorIs(t, err, distance.ErrTypeMismatch)
		var ce *value.ColumnError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, 0, ce.Column)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := knn.Predict(ctx, value.Record{value.Number(1)})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNonNumericNeighborTarget(t *testing.T) {
	rows := singleColumn("0", "1", "2")
	schema, err := preprocessing.InferTypes(rows, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.K = 2
	knn, err := CreateModel(cfg)
	require.NoError(t, err)
	targets := []value.Value{value.Number(0), value.Category("yes"), value.Number(1)}
	require.NoError(t, knn.FitWithWeights(rows, targets, schema, association.Weights{1}, nil))

	_, err = knn.Predict(context.Background(), value.Record{value.Number(1)})
	assert.ErrorIs(t, err, value.ErrNonNumericTarget)
}

func TestFitValidation(t *testing.T) {
	knn := NewKNN(DefaultConfig())
	ctx := context.Background()

	assert.ErrorIs(t, knn.Fit(ctx, nil, nil, nil), ErrEmptyPopulation)
	assert.ErrorIs(t, knn.Fit(ctx, singleColumn("1", "2"), numbers(0), nil), ErrTargetLength)

	mixed := singleColumn("1", "blue", "3")
	assert.ErrorIs(t, knn.Fit(ctx, mixed, numbers(0, 1, 0), nil), preprocessing.ErrMixedColumnType)
	assert.False(t, knn.Fitted())
}

func TestFitRanksColumns(t *testing.T) {
	rows := []value.Record{
		{value.Number(5), value.Number(10)},
		{value.Number(5), value.Number(20)},
		{value.Number(5), value.Number(10)},
		{value.Number(6), value.Number(20)},
	}
	knn := fitted(t, DefaultConfig(), rows, numbers(1, 0, 1, 0))

	assert.Equal(t, []int{1, 0}, knn.Order())
	assert.InDelta(t, 1.0, knn.Weights()[1], 1e-12)
	assert.Equal(t, 2, knn.Width())
	assert.Equal(t, 4, knn.PopulationSize())
}

func TestPredictBatchPreservesOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.K = 1
	cfg.Workers = 3
	knn := fitted(t, cfg, singleColumn("0", "1", "2", "3"), numbers(0, 0, 1, 1))

	queries := []value.Record{
		{value.Number(0)}, {value.Number(3)}, {value.Number(1)}, {value.Number(2)},
	}
	preds, err := knn.PredictBatch(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, preds, 4)
	for i, want := range []float64{0, 1, 0, 1} {
		assert.Equal(t, want, preds[i].Score, "query %d", i)
	}

	queries = append(queries, value.Record{value.Category("bad")})
	_, err = knn.PredictBatch(context.Background(), queries)
	assert.ErrorIs(t, err, distance.ErrTypeMismatch)
}

func TestCreateModel(t *testing.T) {
	_, err := CreateModel(ModelConfig{K: 0})
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = CreateModel(ModelConfig{K: 3, Divisor: "median"})
	assert.ErrorIs(t, err, ErrUnknownDivisor)

	knn, err := CreateModel(ModelConfig{K: 3, Divisor: "Neighbors"})
	require.NoError(t, err)
	assert.Equal(t, DivideByNeighbors, knn.Divisor)
	assert.Equal(t, 1, knn.Partitions)
	assert.Equal(t, "CorrelationKNN", knn.GetName())
}
