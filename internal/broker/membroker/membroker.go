// Package membroker is an in-memory broker.Broker fake for tests.
package membroker

import (
	"context"
	"sync"

	"github.com/printsplit/splitengine/internal/broker"
)

type job struct {
	id      string
	payload []byte
}

// Broker is a thread-safe in-memory implementation of broker.Broker.
type Broker struct {
	mu         sync.Mutex
	waiting    map[broker.QueueName][]job
	active     map[broker.QueueName]map[string]bool
	progress   map[string]broker.Progress
	cancelled  map[string]bool
	durations  map[broker.QueueName][]float64
	restart    bool
}

var _ broker.Broker = (*Broker)(nil)

// New returns an empty Broker.
func New() *Broker {
	return &Broker{
		waiting:   make(map[broker.QueueName][]job),
		active:    make(map[broker.QueueName]map[string]bool),
		progress:  make(map[string]broker.Progress),
		cancelled: make(map[string]bool),
		durations: make(map[broker.QueueName][]float64),
	}
}

func (b *Broker) Enqueue(_ context.Context, queue broker.QueueName, jobID string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waiting[queue] = append(b.waiting[queue], job{id: jobID, payload: payload})
	return nil
}

func (b *Broker) Dequeue(_ context.Context, queue broker.QueueName) (string, []byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.waiting[queue]
	if len(q) == 0 {
		return "", nil, false, nil
	}
	next := q[0]
	b.waiting[queue] = q[1:]
	if b.active[queue] == nil {
		b.active[queue] = make(map[string]bool)
	}
	b.active[queue][next.id] = true
	return next.id, next.payload, true, nil
}

func (b *Broker) Remove(_ context.Context, queue broker.QueueName, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	filtered := b.waiting[queue][:0]
	for _, j := range b.waiting[queue] {
		if j.id != jobID {
			filtered = append(filtered, j)
		}
	}
	b.waiting[queue] = filtered
	delete(b.active[queue], jobID)
	return nil
}

func (b *Broker) WaitingJobIDs(_ context.Context, queue broker.QueueName) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, len(b.waiting[queue]))
	for i, j := range b.waiting[queue] {
		ids[i] = j.id
	}
	return ids, nil
}

func (b *Broker) SetProgress(_ context.Context, jobID string, p broker.Progress) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progress[jobID] = p
	return nil
}

func (b *Broker) GetProgress(_ context.Context, jobID string) (broker.Progress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progress[jobID], nil
}

func (b *Broker) SetCancelled(_ context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled[jobID] = true
	return nil
}

func (b *Broker) IsCancelled(_ context.Context, jobID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled[jobID], nil
}

const maxTrackedDurations = 20

func (b *Broker) RecordCompletion(_ context.Context, queue broker.QueueName, durationSeconds float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	durations := append([]float64{durationSeconds}, b.durations[queue]...)
	if len(durations) > maxTrackedDurations {
		durations = durations[:maxTrackedDurations]
	}
	b.durations[queue] = durations
	return nil
}

func (b *Broker) RecentDurations(_ context.Context, queue broker.QueueName, limit int) ([]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	durations := b.durations[queue]
	if limit > 0 && limit < len(durations) {
		durations = durations[:limit]
	}
	out := make([]float64, len(durations))
	copy(out, durations)
	return out, nil
}

func (b *Broker) ActiveCount(_ context.Context, queue broker.QueueName) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active[queue]), nil
}

func (b *Broker) SignalRestart(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.restart = true
	return nil
}

func (b *Broker) RestartRequested(_ context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.restart, nil
}
