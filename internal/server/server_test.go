package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opfromthestart/loan-mining/internal/config"
	"github.com/opfromthestart/loan-mining/internal/models"
	"github.com/opfromthestart/loan-mining/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var names = []string{"CODE_GENDER", "FLAG_OWN_CAR", "AMT_INCOME"}

func fittedModel(t *testing.T) *models.KNN {
	t.Helper()
	rows := []value.Record{
		{value.Category("M"), value.Category("Y"), value.Number(100)},
		{value.Category("F"), value.Category("N"), value.Number(200)},
		{value.Category("M"), value.Category("N"), value.Number(150)},
		{value.Category("F"), value.Category("Y"), value.Number(120)},
	}
	targets := []value.Value{value.Number(0), value.Number(1), value.Number(1), value.Number(0)}
	cfg := models.DefaultConfig()
	cfg.K = 2
	knn, err := models.CreateModel(cfg)
	require.NoError(t, err)
	require.NoError(t, knn.Fit(context.Background(), rows, targets, names))
	return knn
}

func newServer(t *testing.T, predictor models.Predictor, opts Options) *Server {
	t.Helper()
	if opts.Fields == nil {
		opts.Fields = []config.Field{
			{Column: "CODE_GENDER", Alias: "gender"},
			{Column: "FLAG_OWN_CAR", Alias: "own_car"},
		}
	}
	s, err := New(predictor, names, opts, nil)
	require.NoError(t, err)
	t.Cleanup(s.cancelJobs)
	return s
}

func post(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw)))
	return rec
}

func pollStatus(t *testing.T, h http.Handler, id string) statusResponse {
	t.Helper()
	var resp statusResponse
	require.Eventually(t, func() bool {
		rec := post(t, h, "/status", statusRequest{ID: id})
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp.Completed
	}, 5*time.Second, 10*time.Millisecond)
	return resp
}

func TestStartAndStatus(t *testing.T) {
	s := newServer(t, fittedModel(t), Options{})
	h := s.Handler()

	rec := post(t, h, "/start", map[string]string{"gender": "F", "own_car": " N "})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var started startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.NotEmpty(t, started.ID)

	resp := pollStatus(t, h, started.ID)
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Prediction)
	assert.InDelta(t, 1.0, *resp.Prediction, 1e-12)
	assert.Equal(t, 2, resp.Neighbors)
	assert.Equal(t, "Prediction for borrower default is 1", resp.Msg)
	assert.Empty(t, resp.Error)
}

func TestStartAcceptsColumnNames(t *testing.T) {
	s := newServer(t, fittedModel(t), Options{})
	rec := post(t, s.Handler(), "/start", map[string]string{"AMT_INCOME": "100"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartRejectsBadInput(t *testing.T) {
	s := newServer(t, fittedModel(t), Options{})
	h := s.Handler()

	rec := post(t, h, "/start", map[string]string{"shoe_size": "42"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad := httptest.NewRecorder()
	h.ServeHTTP(bad, httptest.NewRequest(http.MethodPost, "/start", bytes.NewBufferString("{not json")))
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	get := httptest.NewRecorder()
	h.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/start", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, get.Code)
}

func TestScoringFailureIsReported(t *testing.T) {
	s := newServer(t, fittedModel(t), Options{})
	h := s.Handler()

	// A category in a numeric column cannot be compared.
	rec := post(t, h, "/start", map[string]string{"AMT_INCOME": "lots"})
	require.Equal(t, http.StatusOK, rec.Code)
	var started startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	resp := pollStatus(t, h, started.ID)
	assert.Equal(t, "failed", resp.Status)
	assert.Nil(t, resp.Prediction)
	assert.Contains(t, resp.Error, "AMT_INCOME")
}

type blockingPredictor struct{}

func (blockingPredictor) Width() int { return len(names) }

func (blockingPredictor) Predict(ctx context.Context, _ value.Record) (*models.Prediction, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestJobTimeout(t *testing.T) {
	s := newServer(t, blockingPredictor{}, Options{JobTimeout: 20 * time.Millisecond})
	h := s.Handler()

	rec := post(t, h, "/start", map[string]string{"gender": "M"})
	var started startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	resp := pollStatus(t, h, started.ID)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, "scoring timed out", resp.Error)
}

func TestRateLimit(t *testing.T) {
	s := newServer(t, fittedModel(t), Options{RateLimit: 0.001, Burst: 1})
	h := s.Handler()

	assert.Equal(t, http.StatusOK, post(t, h, "/start", map[string]string{}).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, h, "/start", map[string]string{}).Code)
}

func TestStatusUnknownJob(t *testing.T) {
	s := newServer(t, fittedModel(t), Options{})
	rec := post(t, s.Handler(), "/status", statusRequest{ID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newServer(t, fittedModel(t), Options{})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","columns":3}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "loanmining_http_requests_total")
}

func TestRecoveryMiddleware(t *testing.T) {
	s := newServer(t, fittedModel(t), Options{})
	h := s.RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
}

func TestNewRejectsUnknownFormColumn(t *testing.T) {
	_, err := New(fittedModel(t), names, Options{Fields: []config.Field{{Column: "NAME_HOUSING", Alias: "house"}}}, nil)
	assert.Error(t, err)

	_, err = New(fittedModel(t), names[:2], Options{}, nil)
	assert.Error(t, err)
}

func TestFieldsAndRun(t *testing.T) {
	s := newServer(t, fittedModel(t), Options{Addr: "127.0.0.1:0"})
	assert.Equal(t, map[string]string{"gender": "CODE_GENDER", "own_car": "FLAG_OWN_CAR"}, s.Fields())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
