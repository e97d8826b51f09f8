// Copyright 2025 James Ross
package uwsmodel

import "testing"

func TestPhaseActive(t *testing.T) {
	for _, p := range []Phase{Pending, Queued, Executing} {
		if !p.Active() {
			t.Fatalf("expected %s to be active", p)
		}
	}
	for _, p := range []Phase{Completed, Error, Aborted, Held, Suspended, Archived, Unknown} {
		if p.Active() {
			t.Fatalf("expected %s to be inactive", p)
		}
	}
}

func TestJobParamValue(t *testing.T) {
	j := &Job{Parameters: []Parameter{{ID: "pos", Value: "RANGE 0 360 -2 2"}}}
	v, ok := j.ParamValue("pos")
	if !ok || v != "RANGE 0 360 -2 2" {
		t.Fatalf("expected param lookup to succeed, got %q ok=%v", v, ok)
	}
	if _, ok := j.ParamValue("missing"); ok {
		t.Fatalf("expected lookup of missing param to fail")
	}
}

func TestJobDescribeOmitsParamsAndResults(t *testing.T) {
	j := &Job{
		JobID:      "1",
		Owner:      "someone",
		Phase:      Pending,
		Parameters: []Parameter{{ID: "pos", Value: "x"}},
		Results:    []Result{{ResultID: "cutout", URL: "s3://bucket/key"}},
	}
	d := j.Describe()
	if d.JobID != j.JobID || d.Owner != j.Owner || d.Phase != j.Phase {
		t.Fatalf("description fields mismatch: %+v", d)
	}
}
