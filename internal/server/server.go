package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opfromthestart/loan-mining/internal/config"
	"github.com/opfromthestart/loan-mining/internal/data"
	"github.com/opfromthestart/loan-mining/internal/jobs"
	"github.com/opfromthestart/loan-mining/internal/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// Options configures the HTTP front end.
type Options struct {
	Addr string
	// RateLimit is the sustained /start rate per second; 0 disables limiting.
	RateLimit  float64
	Burst      int
	JobTimeout time.Duration
	// JobTTL is how long finished jobs stay queryable through /status.
	JobTTL time.Duration
	Fields []config.Field
}

// Server accepts scoring requests and runs each one as a background job
// against a fitted predictor.
type Server struct {
	predictor models.Predictor
	queries   *data.QueryBuilder
	aliases   map[string]string
	jobs      *jobs.Manager
	limiter   *rate.Limiter
	opts      Options
	logger    *slog.Logger

	baseCtx    context.Context
	cancelJobs context.CancelFunc
	httpServer *http.Server
}

// New wires a server around predictor. names are the predictor column names
// in record order.
func New(predictor models.Predictor, names []string, opts Options, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(names) != predictor.Width() {
		return nil, fmt.Errorf("%d column names for a predictor of width %d", len(names), predictor.Width())
	}

	s := &Server{
		predictor: predictor,
		queries:   data.NewQueryBuilder(names),
		aliases:   make(map[string]string),
		jobs:      jobs.NewManager(logger),
		opts:      opts,
		logger:    logger,
	}
	for _, f := range opts.Fields {
		if !s.queries.Has(f.Column) {
			return nil, fmt.Errorf("form field %q: %w: %q", f.Alias, data.ErrUnknownColumn, f.Column)
		}
		if f.Alias != "" {
			s.aliases[f.Alias] = f.Column
		}
	}
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(opts.Burst, 1))
	}
	s.baseCtx, s.cancelJobs = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Recovery must be outer-most to catch everything.
	var handler http.Handler = mux
	handler = s.LoggingMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /status", s.handleStatus)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx ends, then shuts down gracefully and cancels the
// running jobs.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server startup failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		s.cancelJobs()
		return err
	case <-ctx.Done():
	}
	s.Shutdown()
	return <-errCh
}

// Shutdown stops accepting requests and cancels outstanding jobs.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown of HTTP Server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	s.cancelJobs()
	s.jobs.Wait()
}
