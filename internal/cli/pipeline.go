package cli

import (
	"context"
	"fmt"

	"github.com/opfromthestart/loan-mining/internal/data"
	"github.com/opfromthestart/loan-mining/internal/evaluation"
	"github.com/opfromthestart/loan-mining/internal/models"
	"github.com/opfromthestart/loan-mining/internal/preprocessing"
)

func (a *app) source() (*data.Source, error) {
	return data.NewSource(data.S3Config{
		Endpoint:  a.cfg.S3.Endpoint,
		AccessKey: a.cfg.S3.AccessKey,
		SecretKey: a.cfg.S3.SecretKey,
		UseSSL:    a.cfg.S3.UseSSL,
	})
}

func (a *app) loadTable(ctx context.Context, location string) (*data.Table, error) {
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	return data.NewCSVReader(src, a.logger).Load(ctx, location)
}

// loadDataset reads data.path and separates target, id and predictor columns.
func (a *app) loadDataset(ctx context.Context) (*data.Dataset, error) {
	table, err := a.loadTable(ctx, a.cfg.Data.Path)
	if err != nil {
		return nil, err
	}
	opts := data.DatasetOptions{
		TargetColumn: a.cfg.Data.TargetColumn,
		IDColumns:    a.cfg.Data.IDColumns,
	}
	if a.cfg.Data.PositiveLabel != "" {
		enc, err := preprocessing.NewTargetEncoder(a.cfg.Data.PositiveLabel, a.cfg.Data.NegativeLabel)
		if err != nil {
			return nil, err
		}
		opts.Encoder = enc
	}
	ds, err := data.BuildDataset(table, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.Data.Path, err)
	}
	return ds, nil
}

// split cuts ds into population and holdout and validates both.
func (a *app) split(ds *data.Dataset) (population, holdout *data.Dataset, err error) {
	splitter, err := evaluation.NewPrefixSplitter(a.cfg.Data.PopulationNum, a.cfg.Data.PopulationDen)
	if err != nil {
		return nil, nil, err
	}
	population, holdout, err = splitter.Split(ds)
	if err != nil {
		return nil, nil, err
	}
	validator := data.NewDataValidator()
	if err := validator.ValidateSplit(population, holdout); err != nil {
		return nil, nil, err
	}
	if validator.SingleClass(population) {
		a.logger.Warn("population has a single outcome, every column weight will be 0",
			"rows", population.Len())
	}
	return population, holdout, nil
}

func (a *app) modelConfig() models.ModelConfig {
	return models.ModelConfig{
		K:          a.cfg.Model.K,
		MaxCheck:   a.cfg.Model.MaxCheck,
		Divisor:    models.DivisorPolicy(a.cfg.Model.Divisor),
		Partitions: a.cfg.Model.Partitions,
		Workers:    a.cfg.Model.Workers,
		Logger:     a.logger,
	}
}

// fitPopulation loads the dataset, splits it and fits a predictor on the
// population part.
func (a *app) fitPopulation(ctx context.Context) (*models.KNN, *data.Dataset, *data.Dataset, error) {
	ds, err := a.loadDataset(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	population, holdout, err := a.split(ds)
	if err != nil {
		return nil, nil, nil, err
	}
	knn, err := models.CreateModel(a.modelConfig())
	if err != nil {
		return nil, nil, nil, err
	}
	if err := knn.Fit(ctx, population.Records, population.Targets, population.Names); err != nil {
		return nil, nil, nil, err
	}
	return knn, population, holdout, nil
}
