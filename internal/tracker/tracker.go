// Copyright 2025 James Ross
package tracker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/jobqueue"
	"github.com/lsst-uws/go-uws-engine/internal/jobstore"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Worker is the TrackerWorker of spec.md §4.5: it consumes the uws queue
// and reconciles backend-reported transitions into the JobStore. Both
// handlers are idempotent and swallow UnknownJobError (the job may have
// been deleted by the time the event arrives).
type Worker struct {
	store            jobstore.JobStore
	queue            *jobqueue.Queue
	log              *zap.Logger
	resultInterval   time.Duration
	resultTimeout    time.Duration
	processingList   string
	dequeueTimeout   time.Duration
}

// New builds a Worker bound to store and queue, using cfg.Queue's
// result-polling cadence and timeout.
func New(cfg *config.Config, store jobstore.JobStore, queue *jobqueue.Queue, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		store:          store,
		queue:          queue,
		log:            log,
		resultInterval: cfg.Queue.ResultPollInterval,
		resultTimeout:  cfg.Queue.ResultTimeout,
		processingList: "uws:tracker:processing",
		dequeueTimeout: 5 * time.Second,
	}
}

// Run blocks, dequeuing uws events and dispatching them to the
// appropriate handler until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ev, err := w.queue.DequeueUWSEvent(ctx, w.processingList, w.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.log.Debug("uws event dequeue error", obs.Err(err))
			continue
		}
		w.handle(ctx, ev)
	}
}

func (w *Worker) handle(ctx context.Context, ev *jobqueue.UWSEvent) {
	switch ev.Type {
	case "job_started":
		w.handleJobStarted(ctx, ev.JobID, ev.Timestamp)
	case "job_completed":
		w.handleJobCompleted(ctx, ev.JobID)
	default:
		w.log.Warn("unknown uws event type", obs.String("type", ev.Type), obs.JobID(ev.JobID))
	}
}

// handleJobStarted implements job_started: mark_executing, swallowing
// UnknownJob since the job may have been deleted already.
func (w *Worker) handleJobStarted(ctx context.Context, jobID string, startTime time.Time) {
	if err := w.store.MarkExecuting(ctx, jobID, startTime); err != nil {
		var unknown *uwsmodel.UnknownJobError
		if errors.As(err, &unknown) {
			obs.TrackerUnknownJob.Inc()
			w.log.Warn("job not found to mark as started", obs.JobID(jobID))
			return
		}
		w.log.Error("mark_executing failed", obs.JobID(jobID), obs.Err(err))
		return
	}
	w.log.Info("marked job as started", obs.JobID(jobID), obs.Phase(string(uwsmodel.Executing)))
}

// handleJobCompleted implements job_completed: load the job, poll
// queue.GetResult with the configured cadence up to the configured
// timeout, and write the terminal phase. A JobResultUnavailable answer
// (in-progress marker set, no result yet) is retried until the timeout,
// after which the job fails as transient.
func (w *Worker) handleJobCompleted(ctx context.Context, jobID string) {
	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		var unknown *uwsmodel.UnknownJobError
		if errors.As(err, &unknown) {
			obs.TrackerUnknownJob.Inc()
			w.log.Warn("job not found to mark as completed", obs.JobID(jobID))
			return
		}
		w.log.Error("get job failed", obs.JobID(jobID), obs.Err(err))
		return
	}
	if job.MessageID == "" {
		w.log.Error("job has no message id, cannot mark completed", obs.JobID(jobID))
		return
	}

	result, err := w.pollForResult(ctx, job.MessageID)
	if err != nil {
		jobErr := &uwsmodel.JobError{
			Type:    uwsmodel.ErrorTransient,
			Code:    uwsmodel.CodeServiceUnavailable,
			Message: "Cannot retrieve job result from job queue",
			Detail:  err.Error(),
		}
		if markErr := w.store.MarkFailed(ctx, jobID, jobErr); markErr != nil {
			var unknown *uwsmodel.UnknownJobError
			if !errors.As(markErr, &unknown) {
				w.log.Error("mark_failed failed", obs.JobID(jobID), obs.Err(markErr))
			}
		}
		return
	}

	if result.Success {
		if err := w.store.MarkCompleted(ctx, jobID, result.Results); err != nil {
			var unknown *uwsmodel.UnknownJobError
			if !errors.As(err, &unknown) {
				w.log.Error("mark_completed failed", obs.JobID(jobID), obs.Err(err))
			}
			return
		}
		w.log.Info("marked job as completed", obs.JobID(jobID), obs.Phase(string(uwsmodel.Completed)))
		return
	}

	jobErr := &uwsmodel.JobError{
		Type:    uwsmodel.ErrorType(result.Error.Type),
		Code:    uwsmodel.ErrorCode(result.Error.Code),
		Message: result.Error.Message,
		Detail:  result.Error.Detail,
	}
	if err := w.store.MarkFailed(ctx, jobID, jobErr); err != nil {
		var unknown *uwsmodel.UnknownJobError
		if !errors.As(err, &unknown) {
			w.log.Error("mark_failed failed", obs.JobID(jobID), obs.Err(err))
		}
		return
	}
	w.log.Info("marked job as failed", obs.JobID(jobID), obs.Phase(string(uwsmodel.Error)), obs.String("error_code", result.Error.Code))
}

// pollForResult polls queue.GetResult at the configured cadence until a
// result materializes or the configured timeout elapses.
func (w *Worker) pollForResult(ctx context.Context, messageID string) (*jobqueue.Result, error) {
	interval := w.resultInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	deadline := time.Now().Add(w.resultTimeout)
	var lastErr error
	for {
		result, err := w.queue.GetResult(ctx, messageID)
		if err == nil {
			return result, nil
		}
		lastErr = err
		var unavailable *uwsmodel.JobResultUnavailable
		if !errors.As(err, &unavailable) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
