// Copyright 2025 James Ross
package cutout

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/jobqueue"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// taskName is the work-queue task name the backend pool dispatches on.
const taskName = "cutout"

// Dispatcher implements policy.Dispatcher for the image-cutout backend: it
// validates the job's parameters parse as a cutout Request before handing
// the raw args to the work queue, so malformed stencils fail at dispatch
// time rather than silently inside the worker.
type Dispatcher struct {
	queue *jobqueue.Queue
	log   *zap.Logger
}

// NewDispatcher builds a Dispatcher that enqueues onto queue.
func NewDispatcher(queue *jobqueue.Queue, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{queue: queue, log: log}
}

// Dispatch validates job's parameters as a cutout Request, then enqueues
// the job's raw (id, value) parameters as the work message's args — the
// backend worker reparses them via FromJobParameters, keeping Dispatch
// and the worker in agreement about what "valid" means.
func (d *Dispatcher) Dispatch(ctx context.Context, job *uwsmodel.Job) (string, error) {
	if _, err := FromJobParameters(job.Parameters); err != nil {
		return "", err
	}
	args := make(map[string]string, len(job.Parameters))
	for _, p := range job.Parameters {
		args[p.ID] = p.Value
	}
	messageID, err := d.queue.Enqueue(ctx, job.JobID, taskName, args, job.ExecutionDuration)
	if err != nil {
		return "", fmt.Errorf("dispatch cutout job %s: %w", job.JobID, err)
	}
	return messageID, nil
}
