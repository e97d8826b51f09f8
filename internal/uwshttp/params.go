// Copyright 2025 James Ross
package uwshttp

import (
	"net/http"
	"strings"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// queryParams reads every query-string key except reserved, lowercased,
// as job parameters — spec.md §6's "case-insensitively ... normalize to
// lowercase before dispatch". Repeated keys produce one Parameter per value.
func queryParams(r *http.Request, reserved map[string]bool) []uwsmodel.Parameter {
	return collectParams(r.URL.Query(), reserved, false)
}

// formParams parses the request body as a form and returns every key
// except reserved as job parameters, marked FromPost.
func formParams(r *http.Request, reserved map[string]bool) ([]uwsmodel.Parameter, error) {
	if err := r.ParseForm(); err != nil {
		return nil, &usageError{message: "invalid form body: " + err.Error()}
	}
	return collectParams(r.PostForm, reserved, true), nil
}

func collectParams(values map[string][]string, reserved map[string]bool, fromPost bool) []uwsmodel.Parameter {
	var params []uwsmodel.Parameter
	for key, vals := range values {
		id := strings.ToLower(key)
		if reserved[id] {
			continue
		}
		for _, v := range vals {
			params = append(params, uwsmodel.Parameter{ID: id, Value: v, FromPost: fromPost})
		}
	}
	return params
}

// formValue returns the lowercase-matched value of name from the parsed
// post form, tolerating the client sending it in any case.
func formValue(r *http.Request, name string) string {
	name = strings.ToLower(name)
	for key, vals := range r.PostForm {
		if strings.ToLower(key) == name && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}
