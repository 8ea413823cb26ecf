package experiment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/opfromthestart/loan-mining/internal/association"
	"github.com/opfromthestart/loan-mining/internal/data"
	"github.com/opfromthestart/loan-mining/internal/evaluation"
	"github.com/opfromthestart/loan-mining/internal/models"
	"github.com/opfromthestart/loan-mining/internal/preprocessing"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrEmptyGrid = errors.New("experiment grid has no k values")

type ExperimentConfig struct {
	Experiment struct {
		// PopulationSplits are "num/den" population ratios, e.g. "29/30".
		PopulationSplits []string `yaml:"population_splits"`
		// MaxQueries caps how many held-out rows are scored; 0 scores all.
		MaxQueries int `yaml:"max_queries"`
		Workers    int `yaml:"workers"`
		KNN        struct {
			K        []int    `yaml:"k"`
			MaxCheck []int    `yaml:"max_check"`
			Divisor  []string `yaml:"divisor"`
		} `yaml:"knn"`
	} `yaml:"experiment"`
}

func DefaultExperimentConfig() *ExperimentConfig {
	cfg := &ExperimentConfig{}
	cfg.Experiment.PopulationSplits = []string{"29/30"}
	cfg.Experiment.Workers = 4
	cfg.Experiment.KNN.K = []int{10, 30}
	cfg.Experiment.KNN.MaxCheck = []int{0}
	cfg.Experiment.KNN.Divisor = []string{string(models.DivideByK)}
	return cfg
}

type ExperimentRunner struct {
	Config *ExperimentConfig
	Logger *slog.Logger
}

// NewRunner reads a YAML grid. Omitted lists fall back to the defaults.
func NewRunner(configFile string, logger *slog.Logger) (*ExperimentRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	raw, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("read experiment config: %w", err)
	}
	config := &ExperimentConfig{}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("parse experiment config: %w", err)
	}
	def := DefaultExperimentConfig()
	if len(config.Experiment.PopulationSplits) == 0 {
		config.Experiment.PopulationSplits = def.Experiment.PopulationSplits
	}
	if len(config.Experiment.KNN.MaxCheck) == 0 {
		config.Experiment.KNN.MaxCheck = def.Experiment.KNN.MaxCheck
	}
	if len(config.Experiment.KNN.Divisor) == 0 {
		config.Experiment.KNN.Divisor = def.Experiment.KNN.Divisor
	}
	if config.Experiment.Workers <= 0 {
		config.Experiment.Workers = def.Experiment.Workers
	}
	if len(config.Experiment.KNN.K) == 0 {
		return nil, ErrEmptyGrid
	}
	return &ExperimentRunner{Config: config, Logger: logger}, nil
}

type ExperimentResult struct {
	Split          string
	K              int
	MaxCheck       int
	Divisor        string
	Queries        int
	RMSE           float64
	Baseline       float64
	MeanPrediction float64
	Distinct       int
	Accuracy       float64
	FitTimeMs      int64
	EvalTimeMs     int64
}

// RunAllExperiments evaluates every grid point on the holdout of every
// split. Column statistics depend only on the split, so they are computed
// once per split and shared by its grid points.
func (r *ExperimentRunner) RunAllExperiments(ctx context.Context, ds *data.Dataset) ([]ExperimentResult, error) {
	var results []ExperimentResult
	for _, split := range r.Config.Experiment.PopulationSplits {
		splitter, err := parseSplit(split)
		if err != nil {
			return nil, err
		}
		population, holdout, err := splitter.Split(ds)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", split, err)
		}
		if n := r.Config.Experiment.MaxQueries; n > 0 && holdout.Len() > n {
			holdout = holdout.Slice(0, n)
		}

		start := time.Now()
		schema, err := preprocessing.NewTypeInferer(r.Logger).Infer(population.Records, population.Names)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", split, err)
		}
		weights, err := association.NewEngine(r.Config.Experiment.Workers, r.Logger).
			Compute(ctx, population.Targets, population.Records, schema)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", split, err)
		}
		order := weights.Rank()
		fitTime := time.Since(start)

		for _, k := range r.Config.Experiment.KNN.K {
			for _, maxCheck := range r.Config.Experiment.KNN.MaxCheck {
				for _, div := range r.Config.Experiment.KNN.Divisor {
					result, err := r.evaluate(ctx, population, holdout, schema, weights, order, k, maxCheck, div)
					if err != nil {
						return nil, fmt.Errorf("split %s k=%d max_check=%d: %w", split, k, maxCheck, err)
					}
					result.Split = split
					result.FitTimeMs = fitTime.Milliseconds()
					results = append(results, result)
				}
			}
		}
	}
	return results, nil
}

func (r *ExperimentRunner) evaluate(
	ctx context.Context,
	population, holdout *data.Dataset,
	schema *preprocessing.Schema,
	weights association.Weights,
	order []int,
	k, maxCheck int,
	divisor string,
) (ExperimentResult, error) {
	model, err := models.CreateModel(models.ModelConfig{
		K:        k,
		MaxCheck: maxCheck,
		Divisor:  models.DivisorPolicy(divisor),
		Workers:  r.Config.Experiment.Workers,
		Logger:   r.Logger,
	})
	if err != nil {
		return ExperimentResult{}, err
	}
	if err := model.FitWithWeights(population.Records, population.Targets, schema, weights, order); err != nil {
		return ExperimentResult{}, err
	}

	res, err := evaluation.NewHoldoutEvaluator(r.Config.Experiment.Workers).Evaluate(ctx, model, holdout)
	if err != nil {
		return ExperimentResult{}, err
	}
	m := res.Metrics
	r.Logger.Info("experiment point evaluated", "k", k, "max_check", maxCheck, "divisor", model.Divisor, "rmse", m.RMSE)

	return ExperimentResult{
		K:              k,
		MaxCheck:       maxCheck,
		Divisor:        string(model.Divisor),
		Queries:        m.NumSamples,
		RMSE:           m.RMSE,
		Baseline:       m.Baseline,
		MeanPrediction: m.MeanPrediction,
		Distinct:       len(m.Distinct),
		Accuracy:       m.Accuracy,
		EvalTimeMs:     res.Elapsed.Milliseconds(),
	}, nil
}

func parseSplit(s string) (*evaluation.PrefixSplitter, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return nil, fmt.Errorf("%w: %q", evaluation.ErrBadRatio, s)
	}
	n, err1 := strconv.Atoi(strings.TrimSpace(num))
	d, err2 := strconv.Atoi(strings.TrimSpace(den))
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%w: %q", evaluation.ErrBadRatio, s)
	}
	return evaluation.NewPrefixSplitter(n, d)
}

func fixed(f float64) string {
	return decimal.NewFromFloat(f).StringFixed(4)
}

func (r *ExperimentRunner) ExportResults(results []ExperimentResult, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		"Split", "K", "MaxCheck", "Divisor", "Queries",
		"RMSE", "Baseline", "MeanPrediction", "Distinct", "Accuracy",
		"FitTimeMs", "EvalTimeMs",
	}); err != nil {
		return err
	}
	for _, result := range results {
		if err := writer.Write([]string{
			result.Split,
			strconv.Itoa(result.K),
			strconv.Itoa(result.MaxCheck),
			result.Divisor,
			strconv.Itoa(result.Queries),
			fixed(result.RMSE),
			fixed(result.Baseline),
			fixed(result.MeanPrediction),
			strconv.Itoa(result.Distinct),
			fixed(result.Accuracy),
			strconv.FormatInt(result.FitTimeMs, 10),
			strconv.FormatInt(result.EvalTimeMs, 10),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
