// Package jobs implements the Job Runtime: two sibling queues (Split
// and Repair) sharing a broker, a worker pool that drives the split
// engine to completion per job, cooperative cancellation at three
// defined checkpoints, a per-job hard timeout, and retention. There is
// no stall detection and no lock renewal.
package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/printsplit/splitengine/internal/holeplacer"
	"github.com/printsplit/splitengine/internal/splitengine"
)

// State is a job's lifecycle state.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// SubmitRequest is the validated, versioned payload a caller submits in
// place of the excluded HTTP surface's duck-typed JSON body.
type SubmitRequest struct {
	FileID          string
	FileName        string
	Dimensions      splitengine.Dimensions
	SmartBoundaries bool
	BalancedCutting bool
	AlignmentHoles  holeplacer.Spec
}

// Validate checks the fields the spec calls out explicitly: positive
// dimensions, a non-empty file id, and in-range hole parameters when
// holes are enabled.
func (r SubmitRequest) Validate() error {
	if r.FileID == "" {
		return fmt.Errorf("%w: file id is required", ErrValidation)
	}
	if r.Dimensions.X <= 0 || r.Dimensions.Y <= 0 || r.Dimensions.Z <= 0 {
		return fmt.Errorf("%w: dimensions must be positive", ErrValidation)
	}
	if r.AlignmentHoles.Enabled {
		if r.AlignmentHoles.DiameterMM < 1 || r.AlignmentHoles.DiameterMM > 5 {
			return fmt.Errorf("%w: hole diameter must be within [1, 5] mm", ErrValidation)
		}
		if r.AlignmentHoles.DepthMM < 1 || r.AlignmentHoles.DepthMM > 10 {
			return fmt.Errorf("%w: hole depth must be within [1, 10] mm", ErrValidation)
		}
	}
	return nil
}

// Job is one unit of work tracked by the runtime.
type Job struct {
	JobID    string
	Request  SubmitRequest
	State    State
	Progress int
	Message  string
	Result   *splitengine.Result
	Error    string

	CreatedAt   time.Time
	ProcessedAt time.Time
	FinishedAt  time.Time
}

// NewJob assigns a fresh UUID job id and the waiting state.
func NewJob(req SubmitRequest, now time.Time) *Job {
	return &Job{
		JobID:     uuid.NewString(),
		Request:   req,
		State:     StateWaiting,
		CreatedAt: now,
	}
}
