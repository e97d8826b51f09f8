// Copyright 2025 James Ross
package uwshttp

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
	"github.com/lsst-uws/go-uws-engine/internal/uwsxml"
)

var createReserved = map[string]bool{"phase": true, "runid": true}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	params, err := formParams(r, createReserved)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	runID := formValue(r, "runid")
	autorun := formValue(r, "phase") == "RUN"
	if p := formValue(r, "phase"); p != "" && p != "RUN" {
		writeError(w, h.log, &usageError{message: fmt.Sprintf("invalid phase %s", p)})
		return
	}

	job, err := h.service.Create(r.Context(), user, runID, params)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if autorun {
		if _, err := h.service.Start(r.Context(), user, job.JobID); err != nil {
			writeError(w, h.log, err)
			return
		}
	}
	redirect(w, r, h, "/jobs/"+job.JobID)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	query := r.URL.Query()

	var phases []uwsmodel.Phase
	for _, p := range query["phase"] {
		phases = append(phases, uwsmodel.Phase(p))
	}
	var after *time.Time
	if a := query.Get("after"); a != "" {
		t, err := parseTimestamp(a)
		if err != nil {
			writeError(w, h.log, &usageError{message: "invalid after: " + err.Error()})
			return
		}
		after = &t
	}
	count := 0
	if l := query.Get("last"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			writeError(w, h.log, &usageError{message: "invalid last: " + err.Error()})
			return
		}
		count = n
	}

	descriptions, err := h.service.List(r.Context(), user, phases, after, count)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	body, err := uwsxml.JobList(descriptions, baseURL(r, h.pathPrefix)+"/jobs")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeXML(w, body)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	jobID := mux.Vars(r)["id"]
	query := r.URL.Query()
	wait := 0
	if wv := query.Get("wait"); wv != "" {
		wait, _ = strconv.Atoi(wv)
	}
	waitPhase := uwsmodel.Phase(query.Get("phase"))

	job, err := h.service.Get(r.Context(), user, jobID, wait, waitPhase, false)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	body, err := uwsxml.Job(job, h.sign)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeXML(w, body)
}

func (h *Handler) deleteJob(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	jobID := mux.Vars(r)["id"]
	if err := h.service.Delete(r.Context(), user, jobID); err != nil {
		writeError(w, h.log, err)
		return
	}
	redirect(w, r, h, "/jobs")
}

// deleteJobViaPost is the alternate deletion mechanism for clients that
// cannot issue DELETE; the mandatory action=DELETE form parameter is
// matched case-insensitively along with every other parameter.
func (h *Handler) deleteJobViaPost(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, h.log, &usageError{message: "invalid form body: " + err.Error()})
		return
	}
	params := collectParams(r.PostForm, nil, true)
	sawDelete := false
	for _, p := range params {
		if p.ID != "action" || p.Value != "DELETE" {
			writeError(w, h.log, &usageError{message: fmt.Sprintf("unknown parameter %s=%s", p.ID, p.Value)})
			return
		}
		sawDelete = true
	}
	if !sawDelete {
		writeError(w, h.log, &usageError{message: "no action given"})
		return
	}

	jobID := mux.Vars(r)["id"]
	if err := h.service.Delete(r.Context(), user, jobID); err != nil {
		writeError(w, h.log, err)
		return
	}
	redirect(w, r, h, "/jobs")
}

func (h *Handler) getDestruction(w http.ResponseWriter, r *http.Request) {
	job, ok := h.getOwnedJob(w, r)
	if !ok {
		return
	}
	writeText(w, isoTimestamp(job.DestructionTime))
}

func (h *Handler) postDestruction(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, h.log, &usageError{message: "invalid form body: " + err.Error()})
		return
	}
	var destruction time.Time
	seen := false
	for key, vals := range r.PostForm {
		if len(vals) == 0 {
			continue
		}
		if strings.ToLower(key) != "destruction" {
			writeError(w, h.log, &usageError{message: fmt.Sprintf("unknown parameter %s=%s", key, vals[0])})
			return
		}
		t, err := parseTimestamp(vals[0])
		if err != nil {
			writeError(w, h.log, &usageError{message: "invalid date " + vals[0]})
			return
		}
		destruction = t
		seen = true
	}
	if !seen {
		writeError(w, h.log, &usageError{message: "no new destruction time given"})
		return
	}

	jobID := mux.Vars(r)["id"]
	if err := h.service.UpdateDestruction(r.Context(), user, jobID, destruction); err != nil {
		writeError(w, h.log, err)
		return
	}
	redirect(w, r, h, "/jobs/"+jobID)
}

func (h *Handler) getExecutionDuration(w http.ResponseWriter, r *http.Request) {
	job, ok := h.getOwnedJob(w, r)
	if !ok {
		return
	}
	writeText(w, strconv.Itoa(job.ExecutionDuration))
}

func (h *Handler) postExecutionDuration(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, h.log, &usageError{message: "invalid form body: " + err.Error()})
		return
	}
	duration := 0
	seen := false
	for key, vals := range r.PostForm {
		if len(vals) == 0 {
			continue
		}
		if strings.ToLower(key) != "executionduration" {
			writeError(w, h.log, &usageError{message: fmt.Sprintf("unknown parameter %s=%s", key, vals[0])})
			return
		}
		d, err := strconv.Atoi(vals[0])
		if err != nil || d <= 0 {
			writeError(w, h.log, &usageError{message: "invalid duration " + vals[0]})
			return
		}
		duration = d
		seen = true
	}
	if !seen {
		writeError(w, h.log, &usageError{message: "no new execution duration given"})
		return
	}

	jobID := mux.Vars(r)["id"]
	if err := h.service.UpdateExecutionDuration(r.Context(), user, jobID, duration); err != nil {
		writeError(w, h.log, err)
		return
	}
	redirect(w, r, h, "/jobs/"+jobID)
}

func (h *Handler) getOwner(w http.ResponseWriter, r *http.Request) {
	job, ok := h.getOwnedJob(w, r)
	if !ok {
		return
	}
	writeText(w, job.Owner)
}

func (h *Handler) getParameters(w http.ResponseWriter, r *http.Request) {
	job, ok := h.getOwnedJob(w, r)
	if !ok {
		return
	}
	body, err := uwsxml.Parameters(job)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeXML(w, body)
}

func (h *Handler) getPhase(w http.ResponseWriter, r *http.Request) {
	job, ok := h.getOwnedJob(w, r)
	if !ok {
		return
	}
	writeText(w, string(job.Phase))
}

func (h *Handler) postPhase(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, h.log, &usageError{message: "invalid form body: " + err.Error()})
		return
	}
	phase := ""
	for key, vals := range r.PostForm {
		if len(vals) == 0 {
			continue
		}
		if strings.ToLower(key) != "phase" {
			writeError(w, h.log, &usageError{message: fmt.Sprintf("unknown parameter %s=%s", key, vals[0])})
			return
		}
		if vals[0] != "RUN" && vals[0] != "ABORT" {
			writeError(w, h.log, &usageError{message: "invalid phase " + vals[0]})
			return
		}
		phase = vals[0]
	}
	if phase == "" {
		writeError(w, h.log, &usageError{message: "no new phase given"})
		return
	}

	jobID := mux.Vars(r)["id"]
	if phase == "ABORT" {
		writeError(w, h.log, &uwsmodel.PermissionDeniedError{JobID: jobID, User: user})
		return
	}
	if _, err := h.service.Start(r.Context(), user, jobID); err != nil {
		writeError(w, h.log, err)
		return
	}
	redirect(w, r, h, "/jobs/"+jobID)
}

func (h *Handler) getQuote(w http.ResponseWriter, r *http.Request) {
	job, ok := h.getOwnedJob(w, r)
	if !ok {
		return
	}
	if job.Quote == nil {
		writeText(w, "")
		return
	}
	writeText(w, isoTimestamp(*job.Quote))
}

func (h *Handler) getResults(w http.ResponseWriter, r *http.Request) {
	job, ok := h.getOwnedJob(w, r)
	if !ok {
		return
	}
	body, err := uwsxml.Results(job, h.sign)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeXML(w, body)
}

func (h *Handler) getError(w http.ResponseWriter, r *http.Request) {
	job, ok := h.getOwnedJob(w, r)
	if !ok {
		return
	}
	if job.Err == nil {
		writeError(w, h.log, &usageError{message: fmt.Sprintf("job %s did not fail", job.JobID)})
		return
	}
	body, err := uwsxml.Error(job.Err)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeXML(w, body)
}

// getOwnedJob is the common GET /jobs/{id}/<sub-resource> prologue: auth,
// job lookup, ownership check. Writes the error response itself on failure.
func (h *Handler) getOwnedJob(w http.ResponseWriter, r *http.Request) (*uwsmodel.Job, bool) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return nil, false
	}
	jobID := mux.Vars(r)["id"]
	job, err := h.service.Get(r.Context(), user, jobID, 0, "", false)
	if err != nil {
		writeError(w, h.log, err)
		return nil, false
	}
	return job, true
}

func redirect(w http.ResponseWriter, r *http.Request, h *Handler, path string) {
	http.Redirect(w, r, baseURL(r, h.pathPrefix)+path, http.StatusSeeOther)
}

func writeXML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeText(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(text))
}

func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05Z", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
