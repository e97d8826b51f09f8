// Copyright 2025 James Ross
package jobstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// MemStore is an in-memory JobStore fake used in tests that exercise
// JobService/TrackerWorker logic without a live Postgres instance. It
// enforces the same guarded-transition semantics as Store.
type MemStore struct {
	mu     sync.Mutex
	jobs   map[string]*uwsmodel.Job
	nextID int
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{jobs: make(map[string]*uwsmodel.Job)}
}

var _ JobStore = (*MemStore)(nil)

func cloneJob(j *uwsmodel.Job) *uwsmodel.Job {
	cp := *j
	cp.Parameters = append([]uwsmodel.Parameter(nil), j.Parameters...)
	cp.Results = append([]uwsmodel.Result(nil), j.Results...)
	if j.StartTime != nil {
		t := *j.StartTime
		cp.StartTime = &t
	}
	if j.EndTime != nil {
		t := *j.EndTime
		cp.EndTime = &t
	}
	if j.Err != nil {
		e := *j.Err
		cp.Err = &e
	}
	return &cp
}

func (m *MemStore) Add(ctx context.Context, owner, runID string, params []uwsmodel.Parameter, executionDuration int, lifetime time.Duration) (*uwsmodel.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now().UTC()
	job := &uwsmodel.Job{
		JobID:             strconv.Itoa(m.nextID),
		Owner:             owner,
		RunID:             runID,
		Phase:             uwsmodel.Pending,
		Parameters:        append([]uwsmodel.Parameter(nil), params...),
		CreationTime:      now,
		DestructionTime:   now.Add(lifetime),
		ExecutionDuration: executionDuration,
	}
	m.jobs[job.JobID] = job
	return cloneJob(job), nil
}

func (m *MemStore) Get(ctx context.Context, jobID string) (*uwsmodel.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, &uwsmodel.UnknownJobError{JobID: jobID}
	}
	return cloneJob(j), nil
}

func (m *MemStore) List(ctx context.Context, owner string, phases []uwsmodel.Phase, after *time.Time, count int) ([]uwsmodel.Description, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	phaseSet := map[uwsmodel.Phase]bool{}
	for _, p := range phases {
		phaseSet[p] = true
	}
	var out []uwsmodel.Description
	for _, j := range m.jobs {
		if j.Owner != owner {
			continue
		}
		if len(phaseSet) > 0 && !phaseSet[j.Phase] {
			continue
		}
		if after != nil && !j.CreationTime.After(*after) {
			continue
		}
		out = append(out, j.Describe())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreationTime.After(out[k].CreationTime) })
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (m *MemStore) Delete(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return &uwsmodel.UnknownJobError{JobID: jobID}
	}
	delete(m.jobs, jobID)
	return nil
}

func (m *MemStore) MarkQueued(ctx context.Context, jobID, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return &uwsmodel.UnknownJobError{JobID: jobID}
	}
	if j.Phase != uwsmodel.Pending && j.Phase != uwsmodel.Held {
		return nil
	}
	j.Phase = uwsmodel.Queued
	j.MessageID = messageID
	return nil
}

func (m *MemStore) MarkExecuting(ctx context.Context, jobID string, startTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return &uwsmodel.UnknownJobError{JobID: jobID}
	}
	t := startTime.UTC()
	j.StartTime = &t
	if j.Phase != uwsmodel.Pending && j.Phase != uwsmodel.Queued {
		return nil
	}
	j.Phase = uwsmodel.Executing
	return nil
}

func (m *MemStore) MarkCompleted(ctx context.Context, jobID string, results []uwsmodel.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return &uwsmodel.UnknownJobError{JobID: jobID}
	}
	now := time.Now().UTC()
	j.Phase = uwsmodel.Completed
	j.EndTime = &now
	j.Results = append([]uwsmodel.Result(nil), results...)
	j.Err = nil
	return nil
}

func (m *MemStore) MarkFailed(ctx context.Context, jobID string, jobErr *uwsmodel.JobError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return &uwsmodel.UnknownJobError{JobID: jobID}
	}
	now := time.Now().UTC()
	j.Phase = uwsmodel.Error
	j.EndTime = &now
	e := *jobErr
	j.Err = &e
	return nil
}

func (m *MemStore) UpdateDestruction(ctx context.Context, jobID string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return &uwsmodel.UnknownJobError{JobID: jobID}
	}
	j.DestructionTime = t.UTC()
	return nil
}

func (m *MemStore) UpdateExecutionDuration(ctx context.Context, jobID string, d int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return &uwsmodel.UnknownJobError{JobID: jobID}
	}
	j.ExecutionDuration = d
	return nil
}

func (m *MemStore) Availability(ctx context.Context) uwsmodel.Availability {
	return uwsmodel.Availability{Available: true}
}

func (m *MemStore) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, j := range m.jobs {
		if !j.DestructionTime.After(now) {
			delete(m.jobs, id)
			n++
		}
	}
	return n, nil
}
