// Package broker abstracts the shared queue transport the Job Runtime
// depends on: durable enqueue/dequeue for two sibling queues (Split and
// Repair), per-job progress and cancellation cells, completion-duration
// history, active counts, and the transient worker-restart signal. It
// keeps no stall or lock bookkeeping, and force-fail is handled by
// jobs.Queue rather than by the broker.
package broker

import (
	"context"
	"time"
)

// QueueName identifies one of the two sibling queues sharing this
// broker's key namespace.
type QueueName string

const (
	SplitQueue  QueueName = "split"
	RepairQueue QueueName = "repair"
)

// RestartKey is the transient broker key that signals workers to exit
// for supervisor-driven restart.
const RestartKey = "worker:restart"

// RestartKeyTTL is the TTL applied to RestartKey.
const RestartKeyTTL = 60 * time.Second

// Progress is the mutable (percent, message) record published by a
// worker and polled by readers.
type Progress struct {
	Percent int
	Message string
}

// Broker is the transport contract the job queue and workers depend on.
// All operations must be safe to call concurrently and are expected to
// be backed by atomic/serializable primitives in the underlying store.
type Broker interface {
	Enqueue(ctx context.Context, queue QueueName, jobID string, payload []byte) error
	Dequeue(ctx context.Context, queue QueueName) (jobID string, payload []byte, ok bool, err error)
	Remove(ctx context.Context, queue QueueName, jobID string) error
	WaitingJobIDs(ctx context.Context, queue QueueName) ([]string, error)

	SetProgress(ctx context.Context, jobID string, p Progress) error
	GetProgress(ctx context.Context, jobID string) (Progress, error)

	SetCancelled(ctx context.Context, jobID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)

	RecordCompletion(ctx context.Context, queue QueueName, durationSeconds float64) error
	RecentDurations(ctx context.Context, queue QueueName, limit int) ([]float64, error)
	ActiveCount(ctx context.Context, queue QueueName) (int, error)

	SignalRestart(ctx context.Context) error
	RestartRequested(ctx context.Context) (bool, error)
}
