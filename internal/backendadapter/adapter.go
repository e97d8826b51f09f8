// Copyright 2025 James Ross
package backendadapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/jobqueue"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Info carries per-invocation metadata the compute function may need
// beyond the raw parameters (job identity, the deadline it must respect).
type Info struct {
	JobID   string
	Timeout time.Duration
}

// ComputeFunc is the pure, application-supplied compute function
// BackendAdapter wraps: f(params, info, logger) -> ([]Result, error).
// Implementations run on a dedicated goroutine per invocation and must
// tolerate being abandoned once their timeout elapses.
type ComputeFunc func(params []uwsmodel.Parameter, info Info, logger *zap.Logger) ([]uwsmodel.Result, error)

// Adapter wraps a ComputeFunc with the uws-queue notifications the
// tracker needs: job_started before the call, job_completed after
// (always, even on error or timeout). Compute calls are serialized: at
// most one runs at a time per Adapter, however many Run calls are active.
type Adapter struct {
	compute ComputeFunc
	queue   *jobqueue.Queue
	log     *zap.Logger

	computeMu sync.Mutex
}

// New builds an Adapter around f, publishing job lifecycle events to queue.
func New(f ComputeFunc, queue *jobqueue.Queue, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{compute: f, queue: queue, log: log}
}

// Run executes one work message: enqueues job_started, runs the compute
// function on a dedicated goroutine bounded by the message's execution
// duration, then records the outcome in the queue's result store and
// enqueues job_completed. Mirrors the single-thread-executor isolation
// spec.md §5 requires for CPU-bound, non-thread-safe user code — exactly
// one goroutine ever runs this invocation's compute call.
func (a *Adapter) Run(ctx context.Context, msg *jobqueue.WorkMessage, params []uwsmodel.Parameter) {
	logger := a.log.With(obs.JobID(msg.JobID), obs.String("message_id", msg.MessageID))

	if err := a.queue.EnqueueStarted(ctx, msg.JobID, msg.MessageID, time.Now().UTC()); err != nil {
		logger.Error("enqueue job_started failed", obs.Err(err))
	}
	if err := a.queue.SetInProgress(ctx, msg.MessageID); err != nil {
		logger.Error("set in-progress marker failed", obs.Err(err))
	}

	result := a.execute(ctx, msg, params, logger)

	if err := a.queue.SetComplete(ctx, msg.MessageID, result); err != nil {
		logger.Error("record result failed", obs.Err(err))
	}
	if err := a.queue.EnqueueCompleted(ctx, msg.JobID, msg.MessageID); err != nil {
		logger.Error("enqueue job_completed failed", obs.Err(err))
	}
}

// execute runs the compute function on a dedicated goroutine and waits
// for it (or the configured timeout, whichever comes first), classifying
// the outcome into a jobqueue.Result.
func (a *Adapter) execute(ctx context.Context, msg *jobqueue.WorkMessage, params []uwsmodel.Parameter, logger *zap.Logger) jobqueue.Result {
	timeout := time.Duration(msg.ExecutionDuration) * time.Second
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	info := Info{JobID: msg.JobID, Timeout: timeout}

	type outcome struct {
		results []uwsmodel.Result
		err     error
	}
	done := make(chan outcome, 1)
	abandoned := make(chan struct{})
	go func() {
		a.computeMu.Lock()
		defer a.computeMu.Unlock()
		select {
		case <-abandoned:
			return
		default:
		}
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic in compute function: %v", r)}
			}
		}()
		results, err := a.compute(params, info, logger)
		done <- outcome{results: results, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return jobqueue.Result{Success: false, Error: classify(o.err)}
		}
		return jobqueue.Result{Success: true, Results: o.results}
	case <-time.After(timeout):
		close(abandoned)
		return jobqueue.Result{Success: false, Error: &jobqueue.ResultError{
			Type:    string(uwsmodel.ErrorTransient),
			Code:    string(uwsmodel.CodeServiceUnavailable),
			Message: "job exceeded execution_duration",
		}}
	case <-ctx.Done():
		close(abandoned)
		return jobqueue.Result{Success: false, Error: &jobqueue.ResultError{
			Type:    string(uwsmodel.ErrorTransient),
			Code:    string(uwsmodel.CodeServiceUnavailable),
			Message: "worker shutting down",
		}}
	}
}

// classify turns a user-supplied error into the queue's serializable
// result-error shape. A *uwsmodel.TaskError carries its own classification;
// anything else becomes Transient with the error's type name in detail, as
// spec.md §7 prescribes for unclassified backend exceptions.
func classify(err error) *jobqueue.ResultError {
	var task *uwsmodel.TaskError
	if errors.As(err, &task) {
		return &jobqueue.ResultError{
			Type:    string(task.Type),
			Code:    string(task.Code),
			Message: task.Message,
			Detail:  task.Detail,
		}
	}
	return &jobqueue.ResultError{
		Type:    string(uwsmodel.ErrorTransient),
		Code:    string(uwsmodel.CodeBackendError),
		Message: err.Error(),
		Detail:  fmt.Sprintf("%T: %s", err, err.Error()),
	}
}
