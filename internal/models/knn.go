package models

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opfromthestart/loan-mining/internal/association"
	"github.com/opfromthestart/loan-mining/internal/distance"
	"github.com/opfromthestart/loan-mining/internal/metrics"
	"github.com/opfromthestart/loan-mining/internal/preprocessing"
	"github.com/opfromthestart/loan-mining/internal/topk"
	"github.com/opfromthestart/loan-mining/internal/value"
	"golang.org/x/sync/errgroup"
)

// ctxCheckEvery is how many population rows are scanned between
// cancellation checks.
const ctxCheckEvery = 1024

// KNN is a correlation-weighted nearest-neighbor estimator. Fit derives the
// column types, association weights and check order from the population;
// afterwards the model is read-only and Predict may be called concurrently.
type KNN struct {
	BaseModel
	K          int
	MaxCheck   int
	Divisor    DivisorPolicy
	Partitions int
	Workers    int

	population []value.Record
	targets    []value.Value
	schema     *preprocessing.Schema
	weights    association.Weights
	order      []int
	metric     *distance.Metric
	logger     *slog.Logger
}

func NewKNN(config ModelConfig) *KNN {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &KNN{
		K:          config.K,
		MaxCheck:   config.MaxCheck,
		Divisor:    config.Divisor,
		Partitions: config.Partitions,
		Workers:    config.Workers,
		logger:     logger,
		BaseModel: BaseModel{
			Name: "CorrelationKNN",
			Params: map[string]any{
				"k":          config.K,
				"max_check":  config.MaxCheck,
				"divisor":    string(config.Divisor),
				"partitions": config.Partitions,
			},
		},
	}
}

// Fit types the population columns, scores them against the targets and
// ranks them into the check order. The population slices are retained, not
// copied, and must not be modified afterwards.
func (knn *KNN) Fit(ctx context.Context, population []value.Record, targets []value.Value, names []string) error {
	if len(population) == 0 {
		return ErrEmptyPopulation
	}
	if len(population) != len(targets) {
		return fmt.Errorf("%w: %d records, %d targets", ErrTargetLength, len(population), len(targets))
	}

	start := time.Now()
	schema, err := preprocessing.NewTypeInferer(knn.logger).Infer(population, names)
	if err != nil {
		return fmt.Errorf("infer column types: %w", err)
	}

	weights, err := association.NewEngine(knn.Workers, knn.logger).Compute(ctx, targets, population, schema)
	if err != nil {
		return fmt.Errorf("compute association weights: %w", err)
	}

	return knn.fitWith(population, targets, schema, weights, weights.Rank(), start)
}

// FitWithWeights installs precomputed statistics, e.g. to evaluate a
// hand-picked check order.
func (knn *KNN) FitWithWeights(population []value.Record, targets []value.Value, schema *preprocessing.Schema, weights association.Weights, order []int) error {
	if len(population) == 0 {
		return ErrEmptyPopulation
	}
	if len(population) != len(targets) {
		return fmt.Errorf("%w: %d records, %d targets", ErrTargetLength, len(population), len(targets))
	}
	return knn.fitWith(population, targets, schema, weights, order, time.Now())
}

func (knn *KNN) fitWith(population []value.Record, targets []value.Value, schema *preprocessing.Schema, weights association.Weights, order []int, start time.Time) error {
	metric, err := distance.NewMetric(schema, weights)
	if err != nil {
		return err
	}
	if order == nil {
		order = weights.Rank()
	}
	if err := metric.ValidateOrder(order); err != nil {
		return err
	}

	knn.population = population
	knn.targets = targets
	knn.schema = schema
	knn.weights = weights
	knn.order = order
	knn.metric = metric

	metrics.PopulationSize.Set(float64(len(population)))
	knn.logger.Info("model fitted",
		"model", knn.Name,
		"population", len(population),
		"columns", schema.Width(),
		"k", knn.K,
		"elapsed", time.Since(start).String(),
	)
	return nil
}

func (knn *KNN) Fitted() bool { return knn.metric != nil }

func (knn *KNN) Width() int {
	if knn.schema == nil {
		return 0
	}
	return knn.schema.Width()
}

func (knn *KNN) Schema() *preprocessing.Schema { return knn.schema }

func (knn *KNN) Weights() association.Weights { return knn.weights }

// Order returns the column check order, strongest association first.
func (knn *KNN) Order() []int { return knn.order }

func (knn *KNN) PopulationSize() int { return len(knn.population) }

// Predict scans the whole population for the K records nearest to query and
// returns the mean of their targets. Distances only select neighbors; they do
// not weight the vote.
func (knn *KNN) Predict(ctx context.Context, query value.Record) (*Prediction, error) {
	pred, err := knn.predict(ctx, query)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	metrics.QueryDuration.Observe(pred.Duration.Seconds())
	metrics.DistanceEvaluations.Add(float64(pred.Evaluated))
	metrics.PrunedEvaluations.Add(float64(pred.Pruned))
	return pred, nil
}

func (knn *KNN) predict(ctx context.Context, query value.Record) (*Prediction, error) {
	if !knn.Fitted() {
		return nil, ErrNotFitted
	}
	if knn.K <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != knn.Width() {
		return nil, fmt.Errorf("%w: got %d fields, expected %d", ErrWidthMismatch, len(query), knn.Width())
	}

	start := time.Now()
	sel, st, err := knn.search(ctx, query)
	if err != nil {
		return nil, err
	}

	entries := sel.Entries()
	pred := &Prediction{
		Neighbors: make([]Neighbor, len(entries)),
		Evaluated: st.evaluated,
		Pruned:    st.pruned,
	}
	var sum float64
	for i, e := range entries {
		t, err := value.TargetFloat(knn.targets[e.Item])
		if err != nil {
			return nil, fmt.Errorf("neighbor row %d: %w", e.Item, err)
		}
		sum += t
		pred.Neighbors[i] = Neighbor{Row: e.Item, Distance: e.Distance, Target: t}
	}

	divisor := float64(knn.K)
	if knn.Divisor == DivideByNeighbors {
		divisor = float64(len(entries))
	}
	if divisor > 0 {
		pred.Score = sum / divisor
	}
	pred.Duration = time.Since(start)

	knn.logger.Debug("query scored",
		"score", pred.Score,
		"neighbors", len(entries),
		"evaluated", st.evaluated,
		"pruned", st.pruned,
		"elapsed", pred.Duration.String(),
	)
	return pred, nil
}

type scanStats struct {
	evaluated int
	pruned    int
}

func (knn *KNN) search(ctx context.Context, query value.Record) (*topk.Selector[int], scanStats, error) {
	n := len(knn.population)
	parts := knn.Partitions
	if parts > n {
		parts = n
	}
	if parts <= 1 {
		sel := topk.New[int](knn.K)
		st, err := knn.scan(ctx, query, 0, n, sel)
		return sel, st, err
	}

	size := (n + parts - 1) / parts
	sels := make([]*topk.Selector[int], parts)
	stats := make([]scanStats, parts)
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < parts; p++ {
		lo := p * size
		hi := min(lo+size, n)
		sels[p] = topk.New[int](knn.K)
		g.Go(func() error {
			st, err := knn.scan(gctx, query, lo, hi, sels[p])
			stats[p] = st
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, scanStats{}, err
	}

	merged := topk.New[int](knn.K)
	var total scanStats
	for p := range sels {
		merged.Merge(sels[p])
		total.evaluated += stats[p].evaluated
		total.pruned += stats[p].pruned
	}
	return merged, total, nil
}

// scan scores population rows [lo, hi) into sel, bounding every distance by
// the current K-th best.
func (knn *KNN) scan(ctx context.Context, query value.Record, lo, hi int, sel *topk.Selector[int]) (scanStats, error) {
	var st scanStats
	for i := lo; i < hi; i++ {
		if (i-lo)%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return st, err
			}
		}
		m, err := knn.metric.Measure(query, knn.population[i], sel.Threshold(), knn.order, knn.MaxCheck)
		if err != nil {
			return st, fmt.Errorf("population row %d: %w", i, err)
		}
		st.evaluated++
		if m.Pruned {
			st.pruned++
		}
		sel.Insert(m.Distance, i)
	}
	return st, nil
}

// PredictBatch scores independent queries concurrently, bounded by Workers.
// The first failure cancels the remaining queries.
func (knn *KNN) PredictBatch(ctx context.Context, queries []value.Record) ([]*Prediction, error) {
	out := make([]*Prediction, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(knn.Workers, 1))
	for i, q := range queries {
		g.Go(func() error {
			p, err := knn.Predict(gctx, q)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			out[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
