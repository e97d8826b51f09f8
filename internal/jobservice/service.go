// Copyright 2025 James Ross
package jobservice

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/jobstore"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
	"github.com/lsst-uws/go-uws-engine/internal/policy"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Service is the front-end facade JobService: validates via the Policy
// hook, creates jobs, dispatches them, implements long-polling get,
// modifies mutable fields, lists, deletes. Every method requires user; any
// access to a job with owner != user fails PermissionDeniedError.
type Service struct {
	store             jobstore.JobStore
	policy            policy.Policy
	log               *zap.Logger
	lifetime          time.Duration
	executionDuration int
	waitTimeout       time.Duration
}

// New builds a Service bound to store and policy, pulling job-creation
// defaults from cfg.UWS.
func New(cfg *config.Config, store jobstore.JobStore, pol policy.Policy, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:             store,
		policy:            pol,
		log:               log,
		lifetime:          cfg.UWS.Lifetime,
		executionDuration: int(cfg.UWS.ExecutionDuration.Seconds()),
		waitTimeout:       cfg.UWS.WaitTimeout,
	}
}

// Availability delegates to the job store.
func (s *Service) Availability(ctx context.Context) uwsmodel.Availability {
	return s.store.Availability(ctx)
}

// Create validates params via Policy, lowercases parameter ids, and
// inserts a new PENDING job with the configured execution_duration and
// lifetime.
func (s *Service) Create(ctx context.Context, user string, runID string, params []uwsmodel.Parameter) (*uwsmodel.Job, error) {
	lowered := make([]uwsmodel.Parameter, len(params))
	for i, p := range params {
		lowered[i] = uwsmodel.Parameter{ID: strings.ToLower(p.ID), Value: p.Value, FromPost: p.FromPost}
	}
	if err := s.policy.ValidateParams(lowered); err != nil {
		return nil, err
	}
	job, err := s.store.Add(ctx, user, runID, lowered, s.executionDuration, s.lifetime)
	if err != nil {
		return nil, err
	}
	s.log.Info("job created", obs.JobID(job.JobID), obs.String("owner", user))
	return job, nil
}

// Delete removes a job from the store. It does not attempt to abort any
// in-flight backend task — that is out of scope.
func (s *Service) Delete(ctx context.Context, user, jobID string) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Owner != user {
		return &uwsmodel.PermissionDeniedError{JobID: jobID, User: user}
	}
	return s.store.Delete(ctx, jobID)
}

// Get retrieves a job, optionally long-polling for a phase change. See
// the algorithm in spec.md §4.4: clamp wait to the configured maximum (or
// the maximum when wait < 0), poll with exponential backoff starting at
// 100ms and multiplier 1.5, capped so it never overshoots the deadline.
func (s *Service) Get(ctx context.Context, user, jobID string, wait int, waitPhase uwsmodel.Phase, waitForCompletion bool) (*uwsmodel.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Owner != user {
		return nil, &uwsmodel.PermissionDeniedError{JobID: jobID, User: user}
	}

	if wait != 0 && job.Phase.Active() {
		w := time.Duration(wait) * time.Second
		if wait < 0 || w > s.waitTimeout {
			w = s.waitTimeout
		}
		deadline := time.Now().Add(w)
		if waitPhase == "" {
			waitPhase = job.Phase
		}

		notDone := func(j *uwsmodel.Job) bool {
			if waitForCompletion {
				return j.Phase.Active()
			}
			return j.Phase == waitPhase
		}

		delay := 100 * time.Millisecond
		for notDone(job) {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			sleep := delay
			if sleep > remaining {
				sleep = remaining
			}
			select {
			case <-ctx.Done():
				return job, ctx.Err()
			case <-time.After(sleep):
			}
			job, err = s.store.Get(ctx, jobID)
			if err != nil {
				return nil, err
			}
			if time.Now().After(deadline) || time.Now().Equal(deadline) {
				break
			}
			delay = time.Duration(float64(delay) * 1.5)
		}
	}

	return job, nil
}

// List returns job descriptions owned by user.
func (s *Service) List(ctx context.Context, user string, phases []uwsmodel.Phase, after *time.Time, count int) ([]uwsmodel.Description, error) {
	return s.store.List(ctx, user, phases, after, count)
}

// Start dispatches a job: requires phase in {PENDING, HELD}, calls
// Policy.Dispatch to construct and enqueue the backend-specific payload,
// then marks the job QUEUED with the returned message id.
func (s *Service) Start(ctx context.Context, user, jobID string) (string, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.Owner != user {
		return "", &uwsmodel.PermissionDeniedError{JobID: jobID, User: user}
	}
	if job.Phase != uwsmodel.Pending && job.Phase != uwsmodel.Held {
		return "", &uwsmodel.InvalidPhaseError{JobID: jobID, Phase: job.Phase, Wanted: []uwsmodel.Phase{uwsmodel.Pending, uwsmodel.Held}}
	}
	messageID, err := s.policy.Dispatch(ctx, job)
	if err != nil {
		return "", err
	}
	if err := s.store.MarkQueued(ctx, jobID, messageID); err != nil {
		return "", err
	}
	return messageID, nil
}

// UpdateDestruction runs the requested destruction time through
// Policy.ValidateDestruction and persists it only if it actually changed.
func (s *Service) UpdateDestruction(ctx context.Context, user, jobID string, requested time.Time) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Owner != user {
		return &uwsmodel.PermissionDeniedError{JobID: jobID, User: user}
	}
	t := s.policy.ValidateDestruction(requested, job)
	if !t.Equal(job.DestructionTime) {
		return s.store.UpdateDestruction(ctx, jobID, t)
	}
	return nil
}

// UpdateExecutionDuration runs the requested duration through
// Policy.ValidateExecutionDuration and persists it only if it changed.
func (s *Service) UpdateExecutionDuration(ctx context.Context, user, jobID string, requested int) error {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Owner != user {
		return &uwsmodel.PermissionDeniedError{JobID: jobID, User: user}
	}
	d := s.policy.ValidateExecutionDuration(requested, job)
	if d != job.ExecutionDuration {
		return s.store.UpdateExecutionDuration(ctx, jobID, d)
	}
	return nil
}
