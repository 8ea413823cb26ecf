package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"

	"github.com/opfromthestart/loan-mining/internal/jobs"
	"github.com/opfromthestart/loan-mining/internal/models"
	"github.com/opfromthestart/loan-mining/internal/value"
)

const maxBodyBytes = 64 << 10

type startResponse struct {
	ID string `json:"id"`
}

type statusRequest struct {
	ID string `json:"id"`
}

type statusResponse struct {
	ID         string   `json:"id"`
	Completed  bool     `json:"completed"`
	Status     string   `json:"status"`
	Progress   float64  `json:"progress"`
	Msg        string   `json:"msg,omitempty"`
	Prediction *float64 `json:"prediction,omitempty"`
	Neighbors  int      `json:"neighbors,omitempty"`
	Error      string   `json:"error,omitempty"`
}

func writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// buildQuery resolves form aliases to column names and parses the answers.
func (s *Server) buildQuery(fields map[string]string) (value.Record, error) {
	named := make(map[string]string, len(fields))
	for k, v := range fields {
		if col, ok := s.aliases[k]; ok {
			k = col
		}
		named[k] = v
	}
	return s.queries.Build(named)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeHTTPError(w, http.StatusTooManyRequests, "too many scoring requests, retry later")
		return
	}

	var fields map[string]string
	if err := decodeBody(w, r, &fields); err != nil {
		writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}
	query, err := s.buildQuery(fields)
	if err != nil {
		writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.opts.JobTTL > 0 {
		s.jobs.Prune(s.opts.JobTTL)
	}
	job := s.jobs.Start(s.baseCtx, "score", fmt.Sprintf("%d answered fields", len(query.Filled())), s.opts.JobTimeout,
		func(ctx context.Context, job *jobs.Job) (any, error) {
			return s.score(ctx, job, query)
		})
	writeHTTPResponse(w, http.StatusOK, startResponse{ID: job.ID})
}

func (s *Server) score(ctx context.Context, job *jobs.Job, query value.Record) (*models.Prediction, error) {
	job.AddLog(fmt.Sprintf("Received %d answered fields", len(query.Filled())))
	job.SetProgress(0.1)
	job.AddLog("Searching nearest borrowers")

	pred, err := s.predictor.Predict(ctx, query)
	if err != nil {
		job.AddLog("Scoring failed: " + err.Error())
		return nil, err
	}
	job.AddLog(fmt.Sprintf("Prediction for borrower default is %g", pred.Score))
	return pred, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, ok := s.jobs.GetJob(req.ID)
	if !ok {
		writeHTTPError(w, http.StatusNotFound, "unknown job id")
		return
	}

	snap := job.Snapshot()
	resp := statusResponse{
		ID:        snap.ID,
		Completed: snap.Status.Finished(),
		Status:    string(snap.Status),
		Progress:  snap.Progress,
		Msg:       snap.LastLog,
	}
	if pred, ok := snap.Result.(*models.Prediction); ok && pred != nil {
		score := pred.Score
		resp.Prediction = &score
		resp.Neighbors = len(pred.Neighbors)
	}
	if snap.Error != nil {
		resp.Error = snap.Error.Error()
		if errors.Is(snap.Error, context.DeadlineExceeded) {
			resp.Error = "scoring timed out"
		}
	}
	writeHTTPResponse(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeHTTPResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"columns": s.predictor.Width(),
	})
}

// Fields lists the accepted form aliases and the columns they map to.
func (s *Server) Fields() map[string]string {
	return maps.Clone(s.aliases)
}
