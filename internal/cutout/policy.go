// Copyright 2025 James Ross
package cutout

import (
	"time"

	"github.com/lsst-uws/go-uws-engine/internal/policy"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Policy is the cutout backend's Policy: an embedded policy.DefaultPolicy
// (Dispatch delegated to a Dispatcher; destruction/duration changes
// accepted within the limits given to NewPolicy and otherwise rejected by
// returning the current values) with ValidateParams overridden to
// test-parse the job's parameters as a cutout Request, mirroring
// ImageCutoutPolicy.validate_params in the original service.
type Policy struct {
	policy.DefaultPolicy
}

var _ policy.Policy = (*Policy)(nil)

// NewPolicy builds a cutout Policy dispatching through dispatcher, with
// the given destruction/execution-duration clamp limits.
func NewPolicy(dispatcher policy.Dispatcher, maxExecutionDuration, maxDestructionDelay time.Duration) *Policy {
	return &Policy{
		DefaultPolicy: policy.DefaultPolicy{
			Dispatcher:           dispatcher,
			MaxExecutionDuration: maxExecutionDuration,
			MaxDestructionDelay:  maxDestructionDelay,
		},
	}
}

// ValidateParams test-parses params as a cutout Request, surfacing any
// rejection as the *uwsmodel.ParameterError FromJobParameters already
// raises. A malformed stencil is therefore a create-time 422, not a
// failure discovered only once start() dispatches the job.
func (p *Policy) ValidateParams(params []uwsmodel.Parameter) error {
	_, err := FromJobParameters(params)
	return err
}
