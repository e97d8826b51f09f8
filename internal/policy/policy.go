// Copyright 2025 James Ross
package policy

import (
	"context"
	"time"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Policy is the pluggable hook the embedding application supplies.
// JobStore, JobQueue, and ResultSigner are capability interfaces the
// engine never names a concrete provider for; Policy is the fourth.
type Policy interface {
	// Dispatch maps a job's generic parameters to the backend's typed
	// work-queue payload and enqueues it, returning the queue's message id.
	Dispatch(ctx context.Context, job *uwsmodel.Job) (messageID string, err error)

	// ValidateParams checks a newly created job's parameters, returning
	// *uwsmodel.ParameterError on rejection.
	ValidateParams(params []uwsmodel.Parameter) error

	// ValidateDestruction clamps a requested destruction_time against the
	// job's policy limits.
	ValidateDestruction(requested time.Time, job *uwsmodel.Job) time.Time

	// ValidateExecutionDuration clamps a requested execution_duration
	// (seconds) against the job's policy limits.
	ValidateExecutionDuration(requested int, job *uwsmodel.Job) int
}

// Dispatcher is the narrow piece of Policy the cutout (or any other)
// backend must implement; DefaultPolicy embeds one to satisfy Policy in
// full once a concrete Dispatcher is supplied.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *uwsmodel.Job) (messageID string, err error)
}

// DefaultPolicy is the conservative default: with no limit configured
// (MaxDestructionDelay / MaxExecutionDuration zero) it rejects every
// modification request for that field by returning the job's current
// value unchanged, matching the original's default validators. With a
// limit configured, requests within it are accepted and the rest are
// rejected the same way. Dispatch is delegated to an embedded Dispatcher, since dispatch is
// inherently backend-specific and has no sensible default.
type DefaultPolicy struct {
	Dispatcher
	MaxExecutionDuration time.Duration
	MaxDestructionDelay  time.Duration
}

var _ Policy = (*DefaultPolicy)(nil)

// ValidateParams accepts any non-empty parameter id; embedding
// applications needing stricter validation should wrap DefaultPolicy.
func (p *DefaultPolicy) ValidateParams(params []uwsmodel.Parameter) error {
	for _, param := range params {
		if param.ID == "" {
			return &uwsmodel.ParameterError{Message: "parameter id must not be empty"}
		}
	}
	return nil
}

// ValidateDestruction rejects the change by returning the job's current
// destruction_time, unless MaxDestructionDelay is set and the request is
// no later than the job's creation_time plus that delay.
func (p *DefaultPolicy) ValidateDestruction(requested time.Time, job *uwsmodel.Job) time.Time {
	if p.MaxDestructionDelay <= 0 {
		return job.DestructionTime
	}
	latest := job.CreationTime.Add(p.MaxDestructionDelay)
	if requested.After(latest) {
		return job.DestructionTime
	}
	return requested
}

// ValidateExecutionDuration rejects the change by returning the job's
// current execution_duration, unless MaxExecutionDuration is set and the
// request is within it; a request of 0 (unlimited) is always rejected.
func (p *DefaultPolicy) ValidateExecutionDuration(requested int, job *uwsmodel.Job) int {
	if p.MaxExecutionDuration <= 0 {
		return job.ExecutionDuration
	}
	max := int(p.MaxExecutionDuration.Seconds())
	if requested == 0 || requested > max {
		return job.ExecutionDuration
	}
	return requested
}
