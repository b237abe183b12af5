package jobs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/printsplit/splitengine/internal/broker"
	"github.com/printsplit/splitengine/internal/broker/membroker"
	"github.com/printsplit/splitengine/internal/jobs"
	"github.com/printsplit/splitengine/internal/splitengine"
)

func TestSubmitRejectsNonPositiveDimensions(t *testing.T) {
	q := jobs.NewQueue(broker.SplitQueue, membroker.New(), jobs.DefaultRetention(), nil)
	_, err := q.Submit(context.Background(), jobs.SubmitRequest{
		FileID:     "abc/model.stl",
		Dimensions: splitengine.Dimensions{X: 0, Y: 100, Z: 100},
	})
	require.ErrorIs(t, err, jobs.ErrValidation)
}

func TestSubmitRejectsMissingFileID(t *testing.T) {
	q := jobs.NewQueue(broker.SplitQueue, membroker.New(), jobs.DefaultRetention(), nil)
	_, err := q.Submit(context.Background(), jobs.SubmitRequest{
		Dimensions: splitengine.Dimensions{X: 100, Y: 100, Z: 100},
	})
	require.ErrorIs(t, err, jobs.ErrValidation)
}

func TestSubmitAndGetRoundTrip(t *testing.T) {
	q := jobs.NewQueue(broker.SplitQueue, membroker.New(), jobs.DefaultRetention(), nil)
	id, err := q.Submit(context.Background(), jobs.SubmitRequest{
		FileID:     "abc/model.stl",
		Dimensions: splitengine.Dimensions{X: 100, Y: 100, Z: 100},
	})
	require.NoError(t, err)

	job, err := q.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, jobs.StateWaiting, job.State)
}

func TestCancelWaitingJobRemovesIt(t *testing.T) {
	q := jobs.NewQueue(broker.SplitQueue, membroker.New(), jobs.DefaultRetention(), nil)
	id, err := q.Submit(context.Background(), jobs.SubmitRequest{
		FileID:     "abc/model.stl",
		Dimensions: splitengine.Dimensions{X: 100, Y: 100, Z: 100},
	})
	require.NoError(t, err)

	require.NoError(t, q.Cancel(context.Background(), id))
	_, err = q.Get(context.Background(), id)
	require.ErrorIs(t, err, jobs.ErrNotFound)
}

// TestS6CancellationConvergence checks the broker side of cancellation:
// once a job's cancellation flag is set, IsCancelled reports it, and that
// flag is what the worker's checkpoints read. It runs no worker.
func TestS6CancellationConvergence(t *testing.T) {
	br := membroker.New()
	ctx := context.Background()

	require.NoError(t, br.SetCancelled(ctx, "job-1"))
	cancelled, err := br.IsCancelled(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, cancelled)
}

func TestPositionAndETAForWaitingJob(t *testing.T) {
	br := membroker.New()
	q := jobs.NewQueue(broker.SplitQueue, br, jobs.DefaultRetention(), nil)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Submit(ctx, jobs.SubmitRequest{
			FileID:     "abc/model.stl",
			Dimensions: splitengine.Dimensions{X: 100, Y: 100, Z: 100},
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	pos, err := q.Position(ctx, ids[2])
	require.NoError(t, err)
	require.Equal(t, 3, pos.Position)
	require.Equal(t, 3, pos.TotalWaiting)
	require.Equal(t, 240*time.Second, pos.EstimatedWaitTime, "2 jobs ahead over 1 active worker at the 120s default average")
}

func TestRetentionDoesNotPurgeWaitingJob(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	now := func() time.Time { return clock }

	q := jobs.NewQueue(broker.SplitQueue, membroker.New(), jobs.RetentionPolicy{Completed: time.Hour, Failed: 7 * time.Hour}, now)

	id, err := q.Submit(context.Background(), jobs.SubmitRequest{
		FileID:     "abc/model.stl",
		Dimensions: splitengine.Dimensions{X: 100, Y: 100, Z: 100},
	})
	require.NoError(t, err)

	job, _ := q.Get(context.Background(), id)
	_ = job

	clock = base.Add(2 * time.Hour)
	removed := q.Purge(context.Background())
	require.Equal(t, 0, removed, "job is still waiting, not completed, so it is not subject to retention")
}
