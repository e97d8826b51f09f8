// Copyright 2025 James Ross
package uwshttp

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/obs"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// usageError is a locally raised 422: malformed parameters, bad form
// values, or a missing auth header. uwsmodel.ParameterError and
// uwsmodel.InvalidPhaseError carry the same classification from deeper
// in the stack.
type usageError struct{ message string }

func (e *usageError) Error() string { return e.message }

// writeError classifies err per spec.md §7's four-way error model and
// writes the plain-text body spec.md §6 requires: first token one of
// UsageError/AuthorizationError/Error, optionally a blank line then detail.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	var usage *usageError
	var paramErr *uwsmodel.ParameterError
	var phaseErr *uwsmodel.InvalidPhaseError
	var unknownErr *uwsmodel.UnknownJobError
	var permErr *uwsmodel.PermissionDeniedError
	var taskErr *uwsmodel.TaskError

	switch {
	case errors.As(err, &unknownErr):
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "UsageError\n\n%s", err.Error())
	case errors.As(err, &permErr):
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "AuthorizationError")
	case errors.As(err, &usage), errors.As(err, &paramErr), errors.As(err, &phaseErr):
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprintf(w, "UsageError\n\n%s", err.Error())
	case errors.As(err, &taskErr):
		// A Policy.Dispatch implementation may reject a job's parameters
		// synchronously (e.g. a backend-specific test parse failing); that
		// is caller error, not a store/queue failure, so it is still a 422
		// rather than falling into the default internal-error branch.
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprintf(w, "UsageError\n\n%s", taskErr.Error())
	default:
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Error\n\n%s", err.Error())
		log.Error("internal error serving request", obs.Err(err))
	}
}
