// Copyright 2025 James Ross
package uwshttp

import (
	"fmt"
	"net/http"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
	"github.com/lsst-uws/go-uws-engine/internal/uwsxml"
)

func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	a := h.service.Availability(r.Context())
	body, err := uwsxml.Availability(a)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeXML(w, body)
}

const capabilitiesTemplate = `<?xml version="1.0"?>
<capabilities
    xmlns:vosi="http://www.ivoa.net/xml/VOSICapabilities/v1.0"
    xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    xmlns:vod="http://www.ivoa.net/xml/VODataService/v1.1">
  <capability standardID="ivo://ivoa.net/std/VOSI#capabilities">
    <interface xsi:type="vod:ParamHTTP" version="1.0">
      <accessURL use="full">%s/capabilities</accessURL>
    </interface>
  </capability>
  <capability standardID="ivo://ivoa.net/std/VOSI#availability">
    <interface xsi:type="vod:ParamHTTP" version="1.0">
      <accessURL use="full">%s/availability</accessURL>
    </interface>
  </capability>
  <capability standardID="ivo://ivoa.net/std/SODA#sync-1.0">
    <interface xsi:type="vod:ParamHTTP" role="std" version="1.0">
      <accessURL use="full">%s/sync</accessURL>
    </interface>
  </capability>
  <capability standardID="ivo://ivoa.net/std/SODA#async-1.0">
    <interface xsi:type="vod:ParamHTTP" role="std" version="1.0">
      <accessURL use="full">%s/jobs</accessURL>
    </interface>
  </capability>
</capabilities>
`

func (h *Handler) getCapabilities(w http.ResponseWriter, r *http.Request) {
	base := baseURL(r, h.pathPrefix)
	body := fmt.Sprintf(capabilitiesTemplate, base, base, base, base)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

var syncReserved = map[string]bool{"runid": true}

// syncRequest implements the shared GET/POST /sync logic: create, start,
// wait for completion, then 303-redirect to the first signed result URL,
// or a 400 plain-text failure.
func (h *Handler) syncRequest(w http.ResponseWriter, r *http.Request) {
	user, err := requireUser(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var params []uwsmodel.Parameter
	var runID string
	if r.Method == http.MethodGet {
		params = queryParams(r, syncReserved)
		runID = r.URL.Query().Get("runid")
	} else {
		p, err := formParams(r, syncReserved)
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		params = p
		runID = formValue(r, "runid")
	}

	job, err := h.service.Create(r.Context(), user, runID, params)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if _, err := h.service.Start(r.Context(), user, job.JobID); err != nil {
		writeError(w, h.log, err)
		return
	}
	job, err = h.service.Get(r.Context(), user, job.JobID, int(h.syncTimeout.Seconds()), "", true)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if job.Phase != uwsmodel.Completed && job.Phase != uwsmodel.Error {
		writeSyncFailure(w, fmt.Sprintf("job did not complete in %ds", int(h.syncTimeout.Seconds())))
		return
	}
	if job.Err != nil {
		if job.Err.Detail != "" {
			writeSyncFailure(w, fmt.Sprintf("%s\n\n%s", job.Err.Message, job.Err.Detail))
		} else {
			writeSyncFailure(w, job.Err.Message)
		}
		return
	}
	if len(job.Results) == 0 {
		writeSyncFailure(w, "job did not return any results")
		return
	}

	resultURL := job.Results[0].URL
	if h.sign != nil {
		if signed, err := h.sign.Sign(job.Results[0]); err == nil {
			resultURL = signed
		}
	}
	http.Redirect(w, r, resultURL, http.StatusSeeOther)
}

func writeSyncFailure(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, "Error\n\n%s", detail)
}
