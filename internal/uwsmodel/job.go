// Copyright 2025 James Ross
package uwsmodel

import "time"

// Phase is the execution state of a job.
type Phase string

const (
	Pending    Phase = "PENDING"
	Queued     Phase = "QUEUED"
	Executing  Phase = "EXECUTING"
	Completed  Phase = "COMPLETED"
	Error      Phase = "ERROR"
	Aborted    Phase = "ABORTED"
	Held       Phase = "HELD"
	Suspended  Phase = "SUSPENDED"
	Archived   Phase = "ARCHIVED"
	Unknown    Phase = "UNKNOWN"
)

// Active reports whether the phase is waitable and forbids parameter
// mutation: PENDING, QUEUED, EXECUTING.
func (p Phase) Active() bool {
	switch p {
	case Pending, Queued, Executing:
		return true
	default:
		return false
	}
}

// ErrorType classifies a JobError as retryable or not.
type ErrorType string

const (
	ErrorTransient ErrorType = "TRANSIENT"
	ErrorFatal     ErrorType = "FATAL"
)

// ErrorCode enumerates the protocol-defined error codes this engine raises.
// The embedding backend may extend this set with domain-specific codes.
type ErrorCode string

const (
	CodeUsageError          ErrorCode = "USAGE_ERROR"
	CodeInvalidParameter    ErrorCode = "INVALID_PARAMETER"
	CodeInvalidPhase        ErrorCode = "INVALID_PHASE"
	CodePermissionDenied    ErrorCode = "PERMISSION_DENIED"
	CodeServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	CodeBackendError        ErrorCode = "BACKEND_ERROR"
)

// Parameter is one (id, value) pair a client supplied when creating a job.
// Ids are lowercased (I5, P6). JobStore keeps parameters in the order it
// is given them; uwshttp builds that order from url.Values map iteration,
// so parameters with different ids do not keep the client's order.
type Parameter struct {
	ID       string
	Value    string
	FromPost bool
}

// Result is one output artifact of a completed job. URL must be an
// object-store URI; ResultSigner translates it for clients.
type Result struct {
	ResultID string
	URL      string
	Size     *int64
	MimeType string
}

// JobError is attached to a job whose phase is ERROR.
type JobError struct {
	Type    ErrorType
	Code    ErrorCode
	Message string
	Detail  string
}

// Job is the central entity of the engine: one row of durable state plus
// its ordered parameters and results.
type Job struct {
	JobID              string
	Owner              string
	RunID              string
	Phase              Phase
	MessageID          string
	Parameters         []Parameter
	Results            []Result
	Err                *JobError
	CreationTime       time.Time
	StartTime          *time.Time
	EndTime            *time.Time
	DestructionTime    time.Time
	ExecutionDuration  int
	Quote               *time.Time
}

// Description is the reduced projection returned by list(): no parameters,
// no results.
type Description struct {
	JobID        string
	Owner        string
	RunID        string
	Phase        Phase
	CreationTime time.Time
}

// Availability is the VOSI-availability response payload.
type Availability struct {
	Available bool
	Note      string
}

// ParamValue looks up the first parameter with the given (already
// lowercased) id, returning ok=false if absent.
func (j *Job) ParamValue(id string) (string, bool) {
	for _, p := range j.Parameters {
		if p.ID == id {
			return p.Value, true
		}
	}
	return "", false
}

// Describe projects a Job down to its list() shape.
func (j *Job) Describe() Description {
	return Description{
		JobID:        j.JobID,
		Owner:        j.Owner,
		RunID:        j.RunID,
		Phase:        j.Phase,
		CreationTime: j.CreationTime,
	}
}
