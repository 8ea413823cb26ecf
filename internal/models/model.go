package models

import (
	"context"
	"errors"
	"time"

	"github.com/opfromthestart/loan-mining/internal/value"
)

var (
	ErrInvalidK        = errors.New("k must be positive")
	ErrNotFitted       = errors.New("model must be fitted before predicting")
	ErrTargetLength    = errors.New("target count does not match population size")
	ErrWidthMismatch   = errors.New("query width does not match predictor columns")
	ErrUnknownDivisor  = errors.New("unknown divisor policy")
	ErrEmptyPopulation = errors.New("population is empty")
)

// Predictor scores query records.
type Predictor interface {
	Predict(ctx context.Context, query value.Record) (*Prediction, error)
	Width() int
}

// Neighbor is one selected population record.
type Neighbor struct {
	Row      int     `json:"row"`
	Distance float64 `json:"distance"`
	Target   float64 `json:"target"`
}

// Prediction is the outcome of scoring one query.
type Prediction struct {
	Score     float64       `json:"score"`
	Neighbors []Neighbor    `json:"neighbors"`
	Evaluated int           `json:"evaluated"`
	Pruned    int           `json:"pruned"`
	Duration  time.Duration `json:"duration"`
}

type BaseModel struct {
	Name   string
	Params map[string]any
}

func (bm *BaseModel) GetName() string {
	return bm.Name
}

func (bm *BaseModel) GetParams() map[string]any {
	return bm.Params
}
