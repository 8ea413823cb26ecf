package models

import (
	"fmt"
	"log/slog"
	"strings"
)

// DivisorPolicy selects what the neighbor target sum is divided by.
type DivisorPolicy string

const (
	// DivideByK always divides by the configured K, even when the population
	// held fewer than K records.
	DivideByK DivisorPolicy = "k"
	// DivideByNeighbors divides by the number of neighbors actually found.
	DivideByNeighbors DivisorPolicy = "neighbors"
)

func ParseDivisor(s string) (DivisorPolicy, error) {
	switch DivisorPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DivideByK:
		return DivideByK, nil
	case DivideByNeighbors:
		return DivideByNeighbors, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDivisor, s)
	}
}

type ModelConfig struct {
	K int
	// MaxCheck caps how many columns of the check order are inspected per
	// distance; 0 inspects every column.
	MaxCheck int
	Divisor  DivisorPolicy
	// Partitions splits each population scan into independently pruned
	// chunks scored concurrently.
	Partitions int
	// Workers bounds concurrent queries in PredictBatch and concurrent
	// columns while fitting.
	Workers int
	Logger  *slog.Logger
}

func CreateModel(config ModelConfig) (*KNN, error) {
	if config.K <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, config.K)
	}
	if config.MaxCheck < 0 {
		config.MaxCheck = 0
	}
	divisor, err := ParseDivisor(string(config.Divisor))
	if err != nil {
		return nil, err
	}
	config.Divisor = divisor
	if config.Partitions <= 0 {
		config.Partitions = 1
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return NewKNN(config), nil
}

func DefaultConfig() ModelConfig {
	return ModelConfig{
		K:          30,
		MaxCheck:   0,
		Divisor:    DivideByK,
		Partitions: 1,
		Workers:    4,
	}
}
