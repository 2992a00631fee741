// Package worker drains the job queue, handing each claimed job to the
// orchestrator entry matching its type.
package worker

import (
	"context"
	"errors"
	"time"

	"engram/internal/logging"
	"engram/internal/store"
	"engram/internal/types"
)

// Orchestrator is the subset of the pipeline runner the worker needs.
type Orchestrator interface {
	IngestBlob(ctx context.Context, payload map[string]any) (*IngestOutcome, error)
	IngestCapture(ctx context.Context, payload map[string]any) (*IngestOutcome, error)
}

// IngestOutcome summarizes one completed pipeline run.
type IngestOutcome struct {
	MemoryID string `json:"memory_id"`
	TraceID  string `json:"trace_id"`
	Pipeline string `json:"pipeline"`
	Status   string `json:"status"`
}

// Observer receives terminal job statuses, for metrics.
type Observer interface {
	ObserveJob(status string)
}

// Worker claims and runs jobs until stopped.
type Worker struct {
	store        *store.Store
	orchestrator Orchestrator
	pollInterval time.Duration
	observer     Observer
}

// New builds a worker.
func New(st *store.Store, orch Orchestrator, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{store: st, orchestrator: orch, pollInterval: pollInterval}
}

// SetObserver attaches a metrics observer.
func (w *Worker) SetObserver(obs Observer) {
	w.observer = obs
}

func (w *Worker) observe(status string) {
	if w.observer != nil {
		w.observer.ObserveJob(status)
	}
}

// Run loops until the context is cancelled. An empty queue sleeps one
// poll interval; a drained job immediately claims the next.
func (w *Worker) Run(ctx context.Context) error {
	logging.Worker("Worker started (poll %s)", w.pollInterval)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ran, err := w.RunOne(ctx)
		if err != nil {
			logging.WorkerError("Job failed: %v", err)
		}
		if ran {
			continue
		}
		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOne claims and executes at most one job. The first return value
// reports whether a job was claimed.
func (w *Worker) RunOne(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimJob()
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	logging.Worker("Claimed job %s (%s, attempt %d)", job.JobID, job.Type, job.Attempts)
	outcome, err := w.dispatch(ctx, job)
	if err != nil {
		if cerr := w.store.CompleteJob(job.JobID, types.JobError, err.Error()); cerr != nil {
			logging.WorkerError("Failed to mark job %s errored: %v", job.JobID, cerr)
		}
		w.observe(types.JobError)
		return true, err
	}

	if err := w.store.CompleteJob(job.JobID, types.JobDone, ""); err != nil {
		return true, err
	}
	w.observe(types.JobDone)
	if outcome != nil {
		logging.Worker("Job %s done: pipeline=%s status=%s memory=%s trace=%s",
			job.JobID, outcome.Pipeline, outcome.Status, outcome.MemoryID, outcome.TraceID)
	}
	return true, nil
}

// Drain runs jobs until the queue is empty, returning the outcomes.
// Used by one-shot ingestion.
func (w *Worker) Drain(ctx context.Context) ([]*IngestOutcome, error) {
	var outcomes []*IngestOutcome
	for {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		job, err := w.store.ClaimJob()
		if errors.Is(err, store.ErrNotFound) {
			return outcomes, nil
		}
		if err != nil {
			return outcomes, err
		}
		outcome, err := w.dispatch(ctx, job)
		if err != nil {
			if cerr := w.store.CompleteJob(job.JobID, types.JobError, err.Error()); cerr != nil {
				logging.WorkerError("Failed to mark job %s errored: %v", job.JobID, cerr)
			}
			w.observe(types.JobError)
			outcomes = append(outcomes, &IngestOutcome{Status: types.StatusError})
			continue
		}
		if err := w.store.CompleteJob(job.JobID, types.JobDone, ""); err != nil {
			return outcomes, err
		}
		w.observe(types.JobDone)
		outcomes = append(outcomes, outcome)
	}
}

func (w *Worker) dispatch(ctx context.Context, job *types.Job) (*IngestOutcome, error) {
	switch job.Type {
	case types.JobIngestBlob:
		return w.orchestrator.IngestBlob(ctx, job.Payload)
	case types.JobIngestCapture:
		return w.orchestrator.IngestCapture(ctx, job.Payload)
	default:
		return nil, &UnknownJobError{Type: job.Type}
	}
}

// UnknownJobError marks a job type no handler exists for.
type UnknownJobError struct {
	Type string
}

func (e *UnknownJobError) Error() string {
	return "unknown job type " + e.Type
}
