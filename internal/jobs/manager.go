package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opfromthestart/loan-mining/internal/metrics"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotRunning = errors.New("job is not running")
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Finished reports whether status is terminal.
func (s JobStatus) Finished() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// RunFunc is the work of a job. It should honour ctx and may report
// progress and log lines through job.
type RunFunc func(ctx context.Context, job *Job) (any, error)

type Job struct {
	ID          string
	Type        string
	Status      JobStatus
	Progress    float64
	StartTime   time.Time
	EndTime     *time.Time
	Error       error
	Result      any
	Description string
	Logs        []string
	cancelFunc  context.CancelFunc
	done        chan struct{}
	mu          sync.RWMutex
}

// Snapshot is a consistent copy of a job's observable state.
type Snapshot struct {
	ID          string
	Type        string
	Status      JobStatus
	Progress    float64
	StartTime   time.Time
	EndTime     *time.Time
	Error       error
	Result      any
	Description string
	// LastLog is the most recent log line, without its timestamp.
	LastLog string
	Logs    []string
}

type Manager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	wg     sync.WaitGroup
	logger *slog.Logger
	now    func() time.Time
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		jobs:   make(map[string]*Job),
		logger: logger,
		now:    time.Now,
	}
}

func (m *Manager) CreateJob(jobType, description string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Status:      JobPending,
		StartTime:   m.now(),
		Description: description,
		Logs:        []string{},
		done:        make(chan struct{}),
	}
	m.jobs[job.ID] = job
	return job
}

// Start creates a job and runs fn on its own goroutine. The job context is
// derived from parent and bounded by timeout when timeout > 0, so cancelling
// parent stops every job it started.
func (m *Manager) Start(parent context.Context, jobType, description string, timeout time.Duration, fn RunFunc) *Job {
	job := m.CreateJob(jobType, description)

	ctx, cancel := context.WithCancel(parent)
	if timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, timeout)
		inner := cancel
		cancel = func() { tcancel(); inner() }
	}
	job.SetCancelFunc(cancel)
	job.SetStatus(JobRunning)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(job.done)
		defer cancel()
		m.run(ctx, job, fn)
	}()
	return job
}

func (m *Manager) run(ctx context.Context, job *Job, fn RunFunc) {
	logger := m.logger.With("job", job.ID, "type", job.Type)
	logger.Info("job started", "description", job.Description)

	result, err := m.call(ctx, job, fn)

	switch job.finish(result, err) {
	case JobCancelled:
	case JobFailed:
		logger.Warn("job failed", "error", err)
	default:
		logger.Info("job completed", "elapsed", m.now().Sub(job.StartTime).String())
	}
	metrics.JobsTotal.WithLabelValues(string(job.GetStatus())).Inc()
}

// finish records the outcome of the job function and returns the terminal
// status under a single lock. A job already cancelled through the manager
// stays cancelled.
func (j *Job) finish(result any, err error) JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == JobCancelled {
		return JobCancelled
	}
	now := time.Now()
	j.EndTime = &now
	if err != nil {
		j.Error = err
		j.Status = JobFailed
		return JobFailed
	}
	j.Result = result
	j.Progress = 1
	j.Status = JobCompleted
	return JobCompleted
}

// call runs fn, turning a panic into a job error.
func (m *Manager) call(ctx context.Context, job *Job, fn RunFunc) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, job)
}

func (m *Manager) GetJob(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	return job, exists
}

func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

func (m *Manager) CancelJob(jobID string) error {
	job, exists := m.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.Status != JobRunning {
		return fmt.Errorf("%w: %s", ErrJobNotRunning, jobID)
	}

	if job.cancelFunc != nil {
		job.cancelFunc()
	}
	job.Status = JobCancelled
	now := time.Now()
	job.EndTime = &now
	return nil
}

// Prune forgets finished jobs that ended more than retention ago and returns
// how many were removed.
func (m *Manager) Prune(retention time.Duration) int {
	cutoff := m.now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, job := range m.jobs {
		snap := job.Snapshot()
		if snap.Status.Finished() && snap.EndTime != nil && snap.EndTime.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// Wait blocks until every started job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	if status.Finished() {
		now := time.Now()
		j.EndTime = &now
	}
}

func (j *Job) SetProgress(progress float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress = progress
}

func (j *Job) AddLog(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	timestamp := time.Now().Format("15:04:05")
	j.Logs = append(j.Logs, fmt.Sprintf("[%s] %s", timestamp, message))
}

func (j *Job) SetError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Error = err
	j.Status = JobFailed
	now := time.Now()
	j.EndTime = &now
}

func (j *Job) SetResult(result any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Result = result
}

func (j *Job) SetCancelFunc(cancelFunc context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelFunc = cancelFunc
}

func (j *Job) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

func (j *Job) GetProgress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Progress
}

func (j *Job) GetLogs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.Logs))
	copy(logs, j.Logs)
	return logs
}

// Done is closed once the job function has returned. Jobs made with
// CreateJob alone never close it.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := Snapshot{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Progress:    j.Progress,
		StartTime:   j.StartTime,
		EndTime:     j.EndTime,
		Error:       j.Error,
		Result:      j.Result,
		Description: j.Description,
		Logs:        append([]string(nil), j.Logs...),
	}
	if n := len(j.Logs); n > 0 {
		s.LastLog = stripTimestamp(j.Logs[n-1])
	}
	return s
}

func stripTimestamp(line string) string {
	if len(line) >= 11 && line[0] == '[' && line[9] == ']' {
		return line[11:]
	}
	return line
}
