// Copyright 2025 James Ross
package uwsmodel

import "fmt"

// UnknownJobError is raised by JobStore when a job_id has no matching row.
type UnknownJobError struct {
	JobID string
}

func (e *UnknownJobError) Error() string {
	return fmt.Sprintf("unknown job %q", e.JobID)
}

// PermissionDeniedError is raised when a caller other than a job's owner
// attempts to read or mutate it.
type PermissionDeniedError struct {
	JobID string
	User  string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("user %q may not access job %q", e.User, e.JobID)
}

// ParameterError is raised by Policy.ValidateParams on malformed input.
type ParameterError struct {
	Message string
}

func (e *ParameterError) Error() string { return e.Message }

// InvalidPhaseError is raised when an operation requires a phase the job
// is not currently in (e.g. start() on a job that already ran).
type InvalidPhaseError struct {
	JobID   string
	Phase   Phase
	Wanted  []Phase
}

func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("job %q is in phase %s, not one of %v", e.JobID, e.Phase, e.Wanted)
}

// TaskError is a backend-reported failure, classified fatal or transient.
// It carries everything a JobError needs and is the type BackendAdapter's
// classifier recognizes in a compute function's error, keeping its
// classification.
type TaskError struct {
	Type    ErrorType
	Code    ErrorCode
	Message string
	Detail  string
}

func (e *TaskError) Error() string { return e.Message }

// AsJobError converts a TaskError into the persisted JobError shape.
func (e *TaskError) AsJobError() *JobError {
	return &JobError{Type: e.Type, Code: e.Code, Message: e.Message, Detail: e.Detail}
}

// SigningError is raised by ResultSigner when a result URL's scheme is not
// in the configured object-store whitelist.
type SigningError struct {
	URL string
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("cannot sign result url %q: unsupported scheme", e.URL)
}

// JobResultUnavailable is returned by JobQueue.GetResult while the backend
// is still running.
type JobResultUnavailable struct {
	MessageID string
}

func (e *JobResultUnavailable) Error() string {
	return fmt.Sprintf("result for message %q not yet available", e.MessageID)
}

// JobNotFoundInQueue is returned by JobQueue.GetResult once a result has
// expired from the queue's result store, or when none was ever recorded.
type JobNotFoundInQueue struct {
	MessageID string
}

func (e *JobNotFoundInQueue) Error() string {
	return fmt.Sprintf("no result recorded for message %q", e.MessageID)
}
