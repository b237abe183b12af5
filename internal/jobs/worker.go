package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/printsplit/splitengine/internal/broker"
	"github.com/printsplit/splitengine/internal/kernel"
	"github.com/printsplit/splitengine/internal/metrics"
	"github.com/printsplit/splitengine/internal/objectstore"
	"github.com/printsplit/splitengine/internal/splitengine"
)

var (
	ErrCancelled = errors.New("jobs: job was cancelled")
	ErrTimeout   = errors.New("jobs: job exceeded its hard timeout")
)

// WorkerConfig controls worker-loop behavior.
type WorkerConfig struct {
	Concurrency     int
	HardTimeout     time.Duration
	RestartPoll     time.Duration
	ScratchRoot     string
	ResultsBucket   objectstore.Bucket
	UploadsBucket   objectstore.Bucket
}

// DefaultWorkerConfig matches the Split queue's policy: concurrency 2,
// 15-minute hard timeout, restart signal polled every 10s.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:   2,
		HardTimeout:   15 * time.Minute,
		RestartPoll:   10 * time.Second,
		ScratchRoot:   os.TempDir(),
		ResultsBucket: objectstore.Results,
		UploadsBucket: objectstore.Uploads,
	}
}

// Worker drains a Queue, running each job through the split engine with
// a fresh kernel per job (the kernel is not shareable across concurrent
// jobs).
type Worker struct {
	queue     *Queue
	store     objectstore.Store
	br        broker.Broker
	newKernel func() kernel.Kernel
	cfg       WorkerConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// SetMetrics attaches a metrics sink. Safe to call once at startup;
// nil is a valid (no-op) sink and is the default.
func (w *Worker) SetMetrics(m *metrics.Metrics) {
	w.metrics = m
}

// NewWorker builds a Worker. newKernel is called once per job so that
// no kernel object is ever shared between concurrently running jobs.
func NewWorker(queue *Queue, store objectstore.Store, br broker.Broker, newKernel func() kernel.Kernel, cfg WorkerConfig, logger *zap.Logger) *Worker {
	return &Worker{queue: queue, store: store, br: br, newKernel: newKernel, cfg: cfg, logger: logger}
}

// Run drains the queue until ctx is cancelled or a restart is signaled.
// Up to cfg.Concurrency jobs run concurrently.
func (w *Worker) Run(ctx context.Context) error {
	sem := make(chan struct{}, w.cfg.Concurrency)
	restartPoll := time.NewTicker(w.cfg.RestartPoll)
	defer restartPoll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-restartPoll.C:
			restart, err := w.br.RestartRequested(ctx)
			if err == nil && restart {
				w.logger.Info("restart signal observed, exiting worker loop")
				if w.metrics != nil {
					w.metrics.WorkerRestarts.Inc()
				}
				return nil
			}
		default:
		}

		jobID, _, ok, err := w.br.Dequeue(ctx, w.queue.name)
		if err != nil {
			w.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		if !ok {
			time.Sleep(200 * time.Millisecond)
			continue
		}

		sem <- struct{}{}
		go func(id string) {
			defer func() { <-sem }()
			w.processJob(ctx, id)
		}(jobID)
	}
}

func (w *Worker) processJob(ctx context.Context, jobID string) {
	w.queue.mu.Lock()
	job, ok := w.queue.jobs[jobID]
	if ok {
		job.State = StateActive
		job.ProcessedAt = w.queue.now()
	}
	w.queue.mu.Unlock()
	if !ok {
		return
	}
	if w.metrics != nil {
		w.metrics.JobsQueued.Dec()
		w.metrics.JobsActive.Inc()
	}
	defer func() {
		if w.metrics != nil {
			w.metrics.JobsActive.Dec()
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.HardTimeout)
	defer cancel()

	workDir, err := os.MkdirTemp(w.cfg.ScratchRoot, "job-"+jobID+"-")
	if err != nil {
		w.fail(jobID, fmt.Sprintf("allocating working directory: %v", err))
		return
	}
	defer os.RemoveAll(workDir)

	if err := w.checkCheckpoint(jobCtx, jobID); err != nil {
		w.failWithErr(jobID, err)
		return
	}

	inputPath := filepath.Join(workDir, "input.stl")
	data, err := w.store.Get(jobCtx, w.cfg.UploadsBucket, job.Request.FileID)
	if err != nil {
		w.fail(jobID, fmt.Sprintf("downloading input: %v", err))
		return
	}
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		w.fail(jobID, fmt.Sprintf("writing scratch input: %v", err))
		return
	}
	w.setProgress(jobCtx, jobID, 20, "download complete")

	if err := w.checkCheckpoint(jobCtx, jobID); err != nil {
		w.failWithErr(jobID, err)
		return
	}

	k := w.newKernel()
	req := splitengine.Request{
		InputSTL:        data,
		Dimensions:      job.Request.Dimensions,
		BalancedCutting: job.Request.BalancedCutting,
		AlignmentHoles:  job.Request.AlignmentHoles,
		SmartBoundaries: job.Request.SmartBoundaries,
	}

	result, err := splitengine.Run(k, req, func(percent int, message string) {
		w.setProgress(jobCtx, jobID, percent, message)
	})
	if err != nil {
		w.fail(jobID, err.Error())
		return
	}

	if err := w.checkCheckpoint(jobCtx, jobID); err != nil {
		w.failWithErr(jobID, err)
		return
	}

	if err := w.uploadResult(jobCtx, jobID, result); err != nil {
		w.fail(jobID, err.Error())
		return
	}

	w.queue.mu.Lock()
	if job.State == StateFailed {
		// Force-failed while it ran: the job stays failed.
		w.queue.mu.Unlock()
		return
	}
	job.State = StateCompleted
	job.Result = result
	job.Progress = 100
	job.FinishedAt = w.queue.now()
	w.queue.mu.Unlock()

	duration := job.FinishedAt.Sub(job.ProcessedAt).Seconds()
	w.br.RecordCompletion(jobCtx, w.queue.name, duration)
	w.br.Remove(context.Background(), w.queue.name, jobID)
	if w.metrics != nil {
		w.metrics.JobsCompletedTotal.Inc()
		w.metrics.JobDuration.Observe(duration)
	}
}

func (w *Worker) uploadResult(ctx context.Context, jobID string, result *splitengine.Result) error {
	for i, p := range result.Parts {
		key := fmt.Sprintf("%s/%s", jobID, p.Name)
		if err := w.store.Put(ctx, w.cfg.ResultsBucket, key, bytesReader(p.Bytes), int64(len(p.Bytes)), objectstore.ContentTypeSTL); err != nil {
			return fmt.Errorf("uploading part %s: %w", p.Name, err)
		}
		if w.metrics != nil {
			w.metrics.PartsEmittedTotal.Inc()
		}
		w.setProgress(ctx, jobID, 75+15*(i+1)/max(1, len(result.Parts)), fmt.Sprintf("uploaded %s", p.Name))
	}
	zipKey := fmt.Sprintf("%s/all-parts.zip", jobID)
	if err := w.store.Put(ctx, w.cfg.ResultsBucket, zipKey, bytesReader(result.Bundle), int64(len(result.Bundle)), "application/zip"); err != nil {
		return fmt.Errorf("uploading bundle: %w", err)
	}
	w.setProgress(ctx, jobID, 95, "finalizing")
	return nil
}

// checkCheckpoint observes cooperative cancellation at one of the three
// defined checkpoints (pre-download, post-download, post-processing).
func (w *Worker) checkCheckpoint(ctx context.Context, jobID string) error {
	if ctx.Err() != nil {
		return ErrTimeout
	}
	cancelled, err := w.br.IsCancelled(ctx, jobID)
	if err != nil {
		return nil
	}
	if cancelled {
		return ErrCancelled
	}
	return nil
}

func (w *Worker) failWithErr(jobID string, err error) {
	reason := "job failed"
	switch {
	case errors.Is(err, ErrCancelled):
		reason = "Job was cancelled"
	case errors.Is(err, ErrTimeout):
		reason = "job exceeded its hard timeout"
	default:
		reason = err.Error()
	}
	w.fail(jobID, reason)
}

func (w *Worker) fail(jobID, reason string) {
	w.queue.mu.Lock()
	defer w.queue.mu.Unlock()
	job, ok := w.queue.jobs[jobID]
	if !ok || job.State == StateFailed {
		return
	}
	job.State = StateFailed
	job.Error = reason
	job.FinishedAt = w.queue.now()
	if w.metrics != nil {
		w.metrics.JobsFailedTotal.Inc()
	}
	w.br.Remove(context.Background(), w.queue.name, jobID)
}

func (w *Worker) setProgress(ctx context.Context, jobID string, percent int, message string) {
	w.br.SetProgress(ctx, jobID, broker.Progress{Percent: percent, Message: message})
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
