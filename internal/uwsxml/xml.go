// Copyright 2025 James Ross

// Package uwsxml renders uwsmodel types as UWS 1.1 / VOSI XML. Every
// function here is a pure marshal over already-validated data; there is
// no I/O and no templating engine, matching spec.md §6's "XML templating
// of responses, treated as pure functions over job state".
package uwsxml

import (
	"encoding/xml"
	"time"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

const (
	nsUWS  = "http://www.ivoa.net/xml/UWS/v1.0"
	nsVOSI = "http://www.ivoa.net/xml/VOSIAvailability/v1.0"
	nsXSI  = "http://www.w3.org/2001/XMLSchema-instance"
)

// isoTimestamp formats t as spec.md §6's YYYY-MM-DDTHH:MM:SSZ, always UTC.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

type xmlJob struct {
	XMLName           xml.Name      `xml:"uws:job"`
	XMLNSUWS          string        `xml:"xmlns:uws,attr"`
	XMLNSXSI          string        `xml:"xmlns:xsi,attr"`
	Version           string        `xml:"version,attr"`
	JobID             string        `xml:"uws:jobId"`
	RunID             string        `xml:"uws:runId,omitempty"`
	OwnerID           string        `xml:"uws:ownerId"`
	Phase             string        `xml:"uws:phase"`
	Quote             string        `xml:"uws:quote,omitempty"`
	CreationTime      string        `xml:"uws:creationTime"`
	StartTime         string        `xml:"uws:startTime,omitempty"`
	EndTime           string        `xml:"uws:endTime,omitempty"`
	ExecutionDuration int           `xml:"uws:executionDuration"`
	Destruction       string        `xml:"uws:destruction"`
	Parameters        xmlParameters `xml:"uws:parameters"`
	Results           xmlResults    `xml:"uws:results"`
	ErrorSummary      *xmlError     `xml:"uws:errorSummary,omitempty"`
}

type xmlParameters struct {
	Parameters []xmlParameter `xml:"uws:parameter"`
}

type xmlParameter struct {
	ID       string `xml:"id,attr"`
	ByRef    bool   `xml:"byReference,attr,omitempty"`
	IsPost   bool   `xml:"isPost,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type xmlResults struct {
	Results []xmlResult `xml:"uws:result"`
}

type xmlResult struct {
	ID       string `xml:"id,attr"`
	HRef     string `xml:"xlink:href,attr"`
	XMLNSXL  string `xml:"xmlns:xlink,attr"`
	MimeType string `xml:"mime-type,attr,omitempty"`
	Size     *int64 `xml:"size,attr,omitempty"`
}

type xmlError struct {
	Type    string `xml:"type,attr"`
	HasDetail bool `xml:"hasDetail,attr"`
	Message string `xml:"uws:message"`
}

// signer is the narrow capability Job rendering needs from ResultSigner:
// translate an opaque backend result URL into a client-facing one.
type signer interface {
	Sign(result uwsmodel.Result) (string, error)
}

// Job renders a full job document (the /jobs/{id} body), signing each
// result URL through sign. If sign is nil, raw backend URLs are emitted
// unsigned — used by tests that don't exercise the signer.
func Job(job *uwsmodel.Job, sign signer) ([]byte, error) {
	doc := xmlJob{
		XMLNSUWS:          nsUWS,
		XMLNSXSI:          nsXSI,
		Version:           "1.1",
		JobID:             job.JobID,
		RunID:             job.RunID,
		OwnerID:           job.Owner,
		Phase:             string(job.Phase),
		CreationTime:      isoTimestamp(job.CreationTime),
		ExecutionDuration: job.ExecutionDuration,
		Destruction:       isoTimestamp(job.DestructionTime),
		Parameters:        renderParameters(job.Parameters),
	}
	if job.Quote != nil {
		doc.Quote = isoTimestamp(*job.Quote)
	}
	if job.StartTime != nil {
		doc.StartTime = isoTimestamp(*job.StartTime)
	}
	if job.EndTime != nil {
		doc.EndTime = isoTimestamp(*job.EndTime)
	}
	doc.Results = renderResults(job.Results, sign)
	if job.Err != nil {
		doc.ErrorSummary = &xmlError{
			Type:      string(job.Err.Type),
			HasDetail: job.Err.Detail != "",
			Message:   job.Err.Message,
		}
	}
	return marshal(doc)
}

func renderParameters(params []uwsmodel.Parameter) xmlParameters {
	out := make([]xmlParameter, len(params))
	for i, p := range params {
		out[i] = xmlParameter{ID: p.ID, IsPost: p.FromPost, Value: p.Value}
	}
	return xmlParameters{Parameters: out}
}

func renderResults(results []uwsmodel.Result, sign signer) xmlResults {
	out := make([]xmlResult, len(results))
	for i, r := range results {
		href := r.URL
		if sign != nil {
			if signed, err := sign.Sign(r); err == nil {
				href = signed
			}
		}
		out[i] = xmlResult{
			ID:       r.ResultID,
			HRef:     href,
			XMLNSXL:  "http://www.w3.org/1999/xlink",
			MimeType: r.MimeType,
			Size:     r.Size,
		}
	}
	return xmlResults{Results: out}
}

type xmlParametersDoc struct {
	XMLName    xml.Name      `xml:"uws:parameters"`
	XMLNSUWS   string        `xml:"xmlns:uws,attr"`
	Parameters []xmlParameter `xml:"uws:parameter"`
}

// Parameters renders the /jobs/{id}/parameters body.
func Parameters(job *uwsmodel.Job) ([]byte, error) {
	doc := xmlParametersDoc{XMLNSUWS: nsUWS, Parameters: renderParameters(job.Parameters).Parameters}
	return marshal(doc)
}

type xmlResultsDoc struct {
	XMLName  xml.Name    `xml:"uws:results"`
	XMLNSUWS string      `xml:"xmlns:uws,attr"`
	Results  []xmlResult `xml:"uws:result"`
}

// Results renders the /jobs/{id}/results body.
func Results(job *uwsmodel.Job, sign signer) ([]byte, error) {
	doc := xmlResultsDoc{XMLNSUWS: nsUWS, Results: renderResults(job.Results, sign).Results}
	return marshal(doc)
}

type xmlErrorDoc struct {
	XMLName   xml.Name `xml:"uws:errorSummary"`
	XMLNSUWS  string   `xml:"xmlns:uws,attr"`
	Type      string   `xml:"type,attr"`
	HasDetail bool     `xml:"hasDetail,attr"`
	Message   string   `xml:"uws:message"`
	Detail    string   `xml:"uws:detail,omitempty"`
}

// Error renders the /jobs/{id}/error body that uwshttp serves. Message and
// detail are separate XML elements; no plain-text variant of this
// endpoint exists.
func Error(err *uwsmodel.JobError) ([]byte, error) {
	doc := xmlErrorDoc{
		XMLNSUWS:  nsUWS,
		Type:      string(err.Type),
		HasDetail: err.Detail != "",
		Message:   err.Message,
		Detail:    err.Detail,
	}
	return marshal(doc)
}

type xmlJobSummary struct {
	XMLName      xml.Name `xml:"uws:jobref"`
	ID           string   `xml:"id,attr"`
	HRef         string   `xml:"xlink:href,attr"`
	XMLNSXL      string   `xml:"xmlns:xlink,attr"`
	Phase        string   `xml:"uws:phase"`
	RunID        string   `xml:"uws:runId,omitempty"`
	CreationTime string   `xml:"uws:creationTime"`
}

type xmlJobList struct {
	XMLName  xml.Name        `xml:"uws:jobs"`
	XMLNSUWS string          `xml:"xmlns:uws,attr"`
	XMLNSXSI string          `xml:"xmlns:xsi,attr"`
	Jobs     []xmlJobSummary `xml:"uws:jobref"`
}

// JobList renders the /jobs body: descending creation_time, parameters
// and results omitted (JobDescription carries neither).
func JobList(descriptions []uwsmodel.Description, baseURL string) ([]byte, error) {
	jobs := make([]xmlJobSummary, len(descriptions))
	for i, d := range descriptions {
		jobs[i] = xmlJobSummary{
			ID:           d.JobID,
			HRef:         baseURL + "/" + d.JobID,
			XMLNSXL:      "http://www.w3.org/1999/xlink",
			Phase:        string(d.Phase),
			RunID:        d.RunID,
			CreationTime: isoTimestamp(d.CreationTime),
		}
	}
	doc := xmlJobList{XMLNSUWS: nsUWS, XMLNSXSI: nsXSI, Jobs: jobs}
	return marshal(doc)
}

type xmlAvailability struct {
	XMLName   xml.Name `xml:"vosi:availability"`
	XMLNSVOSI string   `xml:"xmlns:vosi,attr"`
	Available bool     `xml:"vosi:available"`
	Note      string   `xml:"vosi:note,omitempty"`
}

// Availability renders the /availability body.
func Availability(a uwsmodel.Availability) ([]byte, error) {
	doc := xmlAvailability{XMLNSVOSI: nsVOSI, Available: a.Available, Note: a.Note}
	return marshal(doc)
}

func marshal(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	header := []byte(xml.Header)
	return append(header, body...), nil
}
