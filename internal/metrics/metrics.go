package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts scored queries by outcome ("ok" or "error").
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanmining_queries_total",
			Help: "Total number of query records scored",
		},
		[]string{"outcome"},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loanmining_query_duration_seconds",
			Help:    "Time spent scanning the population for one query",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
		},
	)

	// DistanceEvaluations counts distance computations; PrunedEvaluations the
	// subset that stopped early against the current K-th best distance.
	DistanceEvaluations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loanmining_distance_evaluations_total",
			Help: "Total number of record distance computations",
		},
	)

	PrunedEvaluations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loanmining_distance_pruned_total",
			Help: "Distance computations terminated early",
		},
	)

	PopulationSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loanmining_population_records",
			Help: "Number of records in the fitted population",
		},
	)

	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanmining_jobs_total",
			Help: "Scoring jobs by final status",
		},
		[]string{"status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loanmining_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "loanmining_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"method", "path"},
	)
)
