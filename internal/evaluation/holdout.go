package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/opfromthestart/loan-mining/internal/data"
	"github.com/opfromthestart/loan-mining/internal/models"
	"github.com/opfromthestart/loan-mining/internal/value"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc observes how many of total queries have been scored.
type ProgressFunc func(done, total int)

// HoldoutEvaluator scores every held-out record against a fitted predictor.
type HoldoutEvaluator struct {
	MaxWorkers int
	Cutoff     float64
	// ProgressEvery throttles progress callbacks; 0 reports every query.
	ProgressEvery int
	Progress      ProgressFunc
	Logger        *slog.Logger
}

func NewHoldoutEvaluator(workers int) *HoldoutEvaluator {
	return &HoldoutEvaluator{
		MaxWorkers: workers,
		Cutoff:     0.5,
		Logger:     slog.Default(),
	}
}

// HoldoutResult pairs the summary with the individual predictions, in
// holdout order.
type HoldoutResult struct {
	Metrics     *HoldoutMetrics
	Predictions []float64
	Outcomes    []float64
	Elapsed     time.Duration
}

func (he *HoldoutEvaluator) Evaluate(ctx context.Context, predictor models.Predictor, holdout *data.Dataset) (*HoldoutResult, error) {
	outcomes, err := value.TargetFloats(holdout.Targets)
	if err != nil {
		return nil, fmt.Errorf("holdout targets: %w", err)
	}

	start := time.Now()
	total := holdout.Len()
	preds := make([]float64, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(he.MaxWorkers, 1))
	for i, query := range holdout.Records {
		g.Go(func() error {
			p, err := predictor.Predict(gctx, query)
			if err != nil {
				return fmt.Errorf("holdout row %d: %w", i, err)
			}
			preds[i] = p.Score
			he.report(int(done.Add(1)), total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m, err := CalculateMetrics(outcomes, preds, he.Cutoff)
	if err != nil {
		return nil, err
	}
	res := &HoldoutResult{Metrics: m, Predictions: preds, Outcomes: outcomes, Elapsed: time.Since(start)}

	he.logger().Info("holdout evaluated",
		"queries", total,
		"rmse", m.RMSE,
		"baseline", m.Baseline,
		"distinct", len(m.Distinct),
		"elapsed", res.Elapsed.String(),
	)
	return res, nil
}

func (he *HoldoutEvaluator) report(done, total int) {
	if he.Progress == nil {
		return
	}
	if he.ProgressEvery > 1 && done%he.ProgressEvery != 0 && done != total {
		return
	}
	he.Progress(done, total)
}

func (he *HoldoutEvaluator) logger() *slog.Logger {
	if he.Logger == nil {
		return slog.Default()
	}
	return he.Logger
}
