package jobs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"subtitle-indexer/internal/logging"
	"subtitle-indexer/internal/metrics"
)

// Status is the lifecycle state of a Job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// DefaultMaxHistory is the number of finished jobs kept.
const DefaultMaxHistory = 100

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobTerminal is returned when a finished job is modified.
	ErrJobTerminal = errors.New("job already finished")
)

// Job describes one asynchronous task.
type Job struct {
	ID           string         `json:"job_id"`
	Type         string         `json:"job_type"`
	Params       map[string]any `json:"params,omitempty"`
	Status       Status         `json:"status"`
	Progress     int            `json:"progress"`
	Total        int            `json:"total"`
	CurrentItem  string         `json:"current_item,omitempty"`
	SuccessCount int            `json:"success_count"`
	FailedCount  int            `json:"failed_count"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Result       any            `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`

	callback func(Job)
	cancel   context.CancelFunc
}

// ProgressPercent returns Progress as a percentage of Total.
func (j Job) ProgressPercent() float64 {
	if j.Total <= 0 {
		return 0
	}
	return float64(j.Progress) * 100 / float64(j.Total)
}

// Duration is the time from start to completion, or to now while running.
func (j Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(*j.StartedAt)
	}
	return time.Since(*j.StartedAt)
}

// Manager is an in-memory registry of jobs. Finished jobs are kept up to
// MaxHistory, oldest evicted first.
type Manager struct {
	mu         sync.Mutex
	active     map[string]*Job
	completed  map[string]*Job
	maxHistory int
}

// NewManager creates a Manager keeping maxHistory finished jobs
// (DefaultMaxHistory when maxHistory <= 0).
func NewManager(maxHistory int) *Manager {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Manager{
		active:     make(map[string]*Job),
		completed:  make(map[string]*Job),
		maxHistory: maxHistory,
	}
}

// Create registers a pending job and returns its ID. callback, if not nil,
// runs once when the job finishes.
func (m *Manager) Create(jobType string, params map[string]any, callback func(Job)) string {
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Params:    maps.Clone(params),
		Status:    StatusPending,
		CreatedAt: time.Now(),
		callback:  callback,
	}

	m.mu.Lock()
	m.active[job.ID] = job
	m.mu.Unlock()

	metrics.JobsActive.Inc()
	logging.Debug("Job created: %s (%s)", job.ID, jobType)
	return job.ID
}

// Go creates a job and runs fn in a new goroutine. The context passed to fn
// is cancelled by Cancel. fn's result completes the job; an error fails it.
func (m *Manager) Go(jobType string, params map[string]any, callback func(Job), fn func(ctx context.Context, id string) (any, error)) string {
	id := m.Create(jobType, params, callback)
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.active[id].cancel = cancel
	m.mu.Unlock()

	if err := m.Start(id); err != nil {
		cancel()
		return id
	}

	go func() {
		defer cancel()
		result, err := fn(ctx, id)
		switch {
		case ctx.Err() != nil:
			// Cancel already finished the job.
		case err != nil:
			_ = m.Fail(id, err.Error())
		default:
			_ = m.Complete(id, result)
		}
	}()
	return id
}

// Start moves a pending job to running.
func (m *Manager) Start(id string) error {
	return m.withActive(id, func(j *Job) error {
		if j.Status != StatusPending {
			return fmt.Errorf("job %s is %s, not pending", id, j.Status)
		}
		now := time.Now()
		j.Status = StatusRunning
		j.StartedAt = &now
		return nil
	})
}

// UpdateProgress sets the progress counters. An empty item keeps the
// previous CurrentItem.
func (m *Manager) UpdateProgress(id string, progress, total int, item string) error {
	return m.withActive(id, func(j *Job) error {
		j.Progress = progress
		j.Total = total
		if item != "" {
			j.CurrentItem = item
		}
		return nil
	})
}

// IncrementProgress advances Progress by one and counts the item as a
// success or a failure.
func (m *Manager) IncrementProgress(id string, success bool, item string) error {
	return m.withActive(id, func(j *Job) error {
		j.Progress++
		if success {
			j.SuccessCount++
		} else {
			j.FailedCount++
		}
		if item != "" {
			j.CurrentItem = item
		}
		return nil
	})
}

// Complete finishes a job successfully with result.
func (m *Manager) Complete(id string, result any) error {
	return m.finish(id, StatusCompleted, func(j *Job) {
		if j.Total > 0 {
			j.Progress = j.Total
		} else {
			j.Progress = 1
		}
		j.Result = result
	})
}

// Fail finishes a job with an error message.
func (m *Manager) Fail(id, message string) error {
	return m.finish(id, StatusFailed, func(j *Job) {
		j.Error = message
	})
}

// Cancel finishes a job as canceled and cancels the context of a job
// started with Go.
func (m *Manager) Cancel(id string) error {
	return m.finish(id, StatusCanceled, func(j *Job) {
		if j.cancel != nil {
			j.cancel()
		}
	})
}

func (m *Manager) finish(id string, status Status, apply func(*Job)) error {
	m.mu.Lock()
	j, ok := m.active[id]
	if !ok {
		_, done := m.completed[id]
		m.mu.Unlock()
		if done {
			return fmt.Errorf("%w: %s", ErrJobTerminal, id)
		}
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	now := time.Now()
	apply(j)
	j.Status = status
	j.CompletedAt = &now
	if j.StartedAt == nil {
		j.StartedAt = &now
	}

	delete(m.active, id)
	m.completed[id] = j
	m.evictLocked()

	snapshot := cloneJob(j)
	callback := j.callback
	m.mu.Unlock()

	metrics.JobsActive.Dec()
	metrics.JobsTotal.WithLabelValues(j.Type, string(status)).Inc()
	logging.Debug("Job %s %s", id, status)

	if callback != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("Job %s callback panicked: %v", id, r)
				}
			}()
			callback(snapshot)
		}()
	}
	return nil
}

// evictLocked drops the oldest finished jobs beyond maxHistory.
func (m *Manager) evictLocked() {
	excess := len(m.completed) - m.maxHistory
	if excess <= 0 {
		return
	}

	done := make([]*Job, 0, len(m.completed))
	for _, j := range m.completed {
		done = append(done, j)
	}
	sort.Slice(done, func(a, b int) bool {
		return done[a].CompletedAt.Before(*done[b].CompletedAt)
	})
	for _, j := range done[:excess] {
		delete(m.completed, j.ID)
	}
}

func (m *Manager) withActive(id string, fn func(*Job) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.active[id]
	if !ok {
		if _, done := m.completed[id]; done {
			return fmt.Errorf("%w: %s", ErrJobTerminal, id)
		}
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return fn(j)
}

// Get returns a copy of the job with id.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.active[id]; ok {
		return cloneJob(j), nil
	}
	if j, ok := m.completed[id]; ok {
		return cloneJob(j), nil
	}
	return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// Active returns pending and running jobs, oldest first.
func (m *Manager) Active() []Job {
	m.mu.Lock()
	out := make([]Job, 0, len(m.active))
	for _, j := range m.active {
		out = append(out, cloneJob(j))
	}
	m.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// Completed returns up to limit finished jobs, most recent first. A limit
// <= 0 returns all of them.
func (m *Manager) Completed(limit int) []Job {
	m.mu.Lock()
	out := make([]Job, 0, len(m.completed))
	for _, j := range m.completed {
		out = append(out, cloneJob(j))
	}
	m.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].CompletedAt.After(*out[b].CompletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Latest returns the most recently created job of jobType.
func (m *Manager) Latest(jobType string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *Job
	for _, set := range []map[string]*Job{m.active, m.completed} {
		for _, j := range set {
			if j.Type == jobType && (latest == nil || j.CreatedAt.After(latest.CreatedAt)) {
				latest = j
			}
		}
	}
	if latest == nil {
		return Job{}, false
	}
	return cloneJob(latest), true
}

// Remove deletes a finished job. Active jobs cannot be removed.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[id]; ok {
		return fmt.Errorf("job %s is still active", id)
	}
	if _, ok := m.completed[id]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(m.completed, id)
	return nil
}

func cloneJob(j *Job) Job {
	c := *j
	c.Params = maps.Clone(j.Params)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	c.callback = nil
	c.cancel = nil
	return c
}
