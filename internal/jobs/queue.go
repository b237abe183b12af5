package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/printsplit/splitengine/internal/broker"
	"github.com/printsplit/splitengine/internal/metrics"
)

var (
	ErrValidation = errors.New("jobs: validation error")
	ErrNotFound   = errors.New("jobs: job not found")
	ErrNotWaiting = errors.New("jobs: job is not waiting")
	ErrNotActive  = errors.New("jobs: job is not active")
)

// RetentionPolicy controls how long completed and failed jobs remain
// queryable before Purge removes them.
type RetentionPolicy struct {
	Completed time.Duration
	Failed    time.Duration
}

// DefaultRetention matches the Split queue's policy: 48h for completed
// jobs, 7 days for failed jobs.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{Completed: 48 * time.Hour, Failed: 7 * 24 * time.Hour}
}

// QueuePosition is the read-path response for a waiting job.
type QueuePosition struct {
	State             State
	Position          int
	TotalWaiting      int
	EstimatedWaitTime time.Duration
}

const defaultETASeconds = 120

// Queue coordinates one logical queue (Split or Repair): job metadata
// lives in an in-process registry; waiting order, progress, and
// cancellation flags live in the shared broker so multiple worker
// processes observe the same state.
type Queue struct {
	name      broker.QueueName
	br        broker.Broker
	retention RetentionPolicy
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Job

	metrics *metrics.Metrics
}

// SetMetrics attaches a metrics sink. Safe to call once at startup;
// nil is a valid (no-op) sink and is the default.
func (q *Queue) SetMetrics(m *metrics.Metrics) {
	q.metrics = m
}

// NewQueue constructs a Queue bound to the given broker and retention
// policy. now defaults to time.Now when nil; tests may override it to
// make retention boundaries deterministic.
func NewQueue(name broker.QueueName, br broker.Broker, retention RetentionPolicy, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{name: name, br: br, retention: retention, now: now, jobs: make(map[string]*Job)}
}

// Submit validates and enqueues a new job, returning its id.
func (q *Queue) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	job := NewJob(req, q.now())

	q.mu.Lock()
	q.jobs[job.JobID] = job
	q.mu.Unlock()

	if err := q.br.Enqueue(ctx, q.name, job.JobID, nil); err != nil {
		q.mu.Lock()
		delete(q.jobs, job.JobID)
		q.mu.Unlock()
		return "", fmt.Errorf("jobs: enqueueing %s: %w", job.JobID, err)
	}
	if q.metrics != nil {
		q.metrics.JobsQueued.Inc()
	}
	return job.JobID, nil
}

// Get returns a snapshot of the job's current state.
func (q *Queue) Get(ctx context.Context, jobID string) (*Job, error) {
	q.mu.RLock()
	job, ok := q.jobs[jobID]
	q.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	if job.State == StateActive {
		progress, err := q.br.GetProgress(ctx, jobID)
		if err == nil {
			job.Progress = progress.Percent
			job.Message = progress.Message
		}
	}

	snapshot := *job
	return &snapshot, nil
}

// Position computes the queue-position/ETA read path for a waiting job:
// rank in the waiting list, total waiting count, and an ETA derived
// from the rolling average of recently completed jobs' durations.
func (q *Queue) Position(ctx context.Context, jobID string) (*QueuePosition, error) {
	q.mu.RLock()
	job, ok := q.jobs[jobID]
	q.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if job.State != StateWaiting {
		return &QueuePosition{State: job.State}, nil
	}

	waitingIDs, err := q.br.WaitingJobIDs(ctx, q.name)
	if err != nil {
		return nil, fmt.Errorf("jobs: listing waiting jobs: %w", err)
	}

	position := -1
	for i, id := range waitingIDs {
		if id == jobID {
			position = i + 1
			break
		}
	}
	if position < 0 {
		return nil, ErrNotFound
	}

	activeCount, err := q.br.ActiveCount(ctx, q.name)
	if err != nil {
		return nil, fmt.Errorf("jobs: counting active jobs: %w", err)
	}
	if activeCount < 1 {
		activeCount = 1
	}

	avg, err := q.averageProcessingTime(ctx)
	if err != nil {
		return nil, err
	}

	jobsAhead := position - 1
	etaSeconds := float64(jobsAhead) / float64(activeCount) * avg

	return &QueuePosition{
		State:             StateWaiting,
		Position:          position,
		TotalWaiting:      len(waitingIDs),
		EstimatedWaitTime: time.Duration(etaSeconds * float64(time.Second)),
	}, nil
}

func (q *Queue) averageProcessingTime(ctx context.Context) (float64, error) {
	durations, err := q.br.RecentDurations(ctx, q.name, 20)
	if err != nil {
		return 0, fmt.Errorf("jobs: reading recent durations: %w", err)
	}
	if len(durations) == 0 {
		return defaultETASeconds, nil
	}
	var sum float64
	for _, d := range durations {
		sum += d
	}
	return sum / float64(len(durations)), nil
}

// Cancel sets the cooperative-cancellation flag for an active job, or
// removes a still-waiting one outright.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	q.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	switch job.State {
	case StateWaiting:
		if err := q.br.Remove(ctx, q.name, jobID); err != nil {
			return fmt.Errorf("jobs: removing waiting job %s: %w", jobID, err)
		}
		q.mu.Lock()
		delete(q.jobs, jobID)
		q.mu.Unlock()
		if q.metrics != nil {
			q.metrics.JobsQueued.Dec()
		}
		return nil
	case StateActive:
		return q.br.SetCancelled(ctx, jobID)
	default:
		return nil
	}
}

// ForceFail moves an active job to failed immediately, without waiting
// for the worker to observe cancellation at a checkpoint. It sets no
// cancellation flag: the worker goroutine still running the job keeps
// its kernel objects until the split engine returns, and then leaves the
// job failed (see the force-fail open question recorded in DESIGN.md).
func (q *Queue) ForceFail(ctx context.Context, jobID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.State != StateActive {
		return ErrNotActive
	}
	job.State = StateFailed
	job.Error = reason
	job.FinishedAt = q.now()
	if q.metrics != nil {
		q.metrics.JobsFailedTotal.Inc()
	}
	q.br.Remove(ctx, q.name, jobID)
	return nil
}

// Purge removes jobs past their retention boundary. Completed jobs live
// for Retention.Completed; failed jobs for Retention.Failed.
func (q *Queue) Purge(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	now := q.now()
	for id, job := range q.jobs {
		switch job.State {
		case StateCompleted:
			if now.Sub(job.FinishedAt) >= q.retention.Completed {
				delete(q.jobs, id)
				removed++
			}
		case StateFailed:
			if now.Sub(job.FinishedAt) >= q.retention.Failed {
				delete(q.jobs, id)
				removed++
			}
		}
	}
	return removed
}
