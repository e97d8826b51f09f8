// Copyright 2025 James Ross

// Package cutout implements the image-cutout example backend: it parses
// CIRCLE/POLYGON/RANGE stencil parameters into typed shapes and computes
// a placeholder cutout result, exercising the full job-service/adapter
// pipeline end to end.
package cutout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// StencilType names one of the three shapes a cutout job may request.
type StencilType string

const (
	Circle  StencilType = "CIRCLE"
	Polygon StencilType = "POLYGON"
	Range   StencilType = "RANGE"
)

// CircleStencil is a cone search: center ra/dec in degrees, radius in degrees.
type CircleStencil struct {
	RA, Dec, Radius float64
}

// PolygonStencil is a closed region on sky defined by >= 3 vertices,
// wound counter-clockwise as seen from the origin looking at the sky.
type PolygonStencil struct {
	RA, Dec []float64
}

// RangeStencil is an axis-aligned ra/dec bounding box.
type RangeStencil struct {
	RAMin, RAMax, DecMin, DecMax float64
}

// Stencil is the parsed shape a cutout request narrows to.
type Stencil struct {
	Type    StencilType
	Circle  *CircleStencil
	Polygon *PolygonStencil
	Range   *RangeStencil
}

// ParseStencil parses a stencil parameter's value given its declared type.
// A POS-style type ("POS", "CIRCLE 1 2 3") first splits off the true type
// from the leading token, mirroring the embedded-type POS convention.
func ParseStencil(stencilType, params string) (*Stencil, error) {
	stencilType = strings.ToUpper(stencilType)
	if stencilType == "POS" {
		fields := strings.Fields(params)
		if len(fields) < 2 {
			return nil, fmt.Errorf("POS parameter missing stencil type: %q", params)
		}
		stencilType = strings.ToUpper(fields[0])
		params = strings.Join(fields[1:], " ")
	}
	switch StencilType(stencilType) {
	case Circle:
		c, err := parseCircle(params)
		if err != nil {
			return nil, err
		}
		return &Stencil{Type: Circle, Circle: c}, nil
	case Polygon:
		p, err := parsePolygon(params)
		if err != nil {
			return nil, err
		}
		return &Stencil{Type: Polygon, Polygon: p}, nil
	case Range:
		r, err := parseRange(params)
		if err != nil {
			return nil, err
		}
		return &Stencil{Type: Range, Range: r}, nil
	default:
		return nil, fmt.Errorf("unknown stencil type %q", stencilType)
	}
}

func parseFloats(params string) ([]float64, error) {
	fields := strings.Fields(params)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseCircle(params string) (*CircleStencil, error) {
	values, err := parseFloats(params)
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("circle requires exactly 3 values (ra dec radius), got %d", len(values))
	}
	return &CircleStencil{RA: values[0], Dec: values[1], Radius: values[2]}, nil
}

func parsePolygon(params string) (*PolygonStencil, error) {
	values, err := parseFloats(params)
	if err != nil {
		return nil, err
	}
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("odd number of coordinates in vertex list %q", params)
	}
	if len(values) < 6 {
		return nil, fmt.Errorf("polygons require at least three vertices")
	}
	ras := make([]float64, 0, len(values)/2)
	decs := make([]float64, 0, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		ras = append(ras, values[i])
		decs = append(decs, values[i+1])
	}
	return &PolygonStencil{RA: ras, Dec: decs}, nil
}

func parseRange(params string) (*RangeStencil, error) {
	values, err := parseFloats(params)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("range requires exactly 4 values (ra_min ra_max dec_min dec_max), got %d", len(values))
	}
	return &RangeStencil{RAMin: values[0], RAMax: values[1], DecMin: values[2], DecMax: values[3]}, nil
}

// Request is the fully parsed cutout job: one dataset id, one stencil.
// SODA permits only a single value for each even though the wire
// parameter could in principle repeat (I.uws).
type Request struct {
	DatasetID string
	Stencil   *Stencil
}

// FromJobParameters converts a job's generic parameters into a Request,
// raising *uwsmodel.ParameterError on anything the cutout backend cannot
// accept: a stencil value that fails to parse, an unknown stencil
// parameter id, more than one dataset id, or more than one stencil. This
// is the one place the cutout backend test-parses parameters, reused by
// Policy.ValidateParams at job creation and by Dispatcher.Dispatch.
func FromJobParameters(params []uwsmodel.Parameter) (*Request, error) {
	var ids []string
	var stencils []*Stencil
	for _, p := range params {
		if p.ID == "id" {
			ids = append(ids, p.Value)
			continue
		}
		stencil, err := ParseStencil(p.ID, p.Value)
		if err != nil {
			return nil, &uwsmodel.ParameterError{
				Message: fmt.Sprintf("invalid cutout stencil parameter %s=%s: %s", p.ID, p.Value, err),
			}
		}
		stencils = append(stencils, stencil)
	}
	if len(ids) == 0 {
		return nil, &uwsmodel.ParameterError{Message: "cutout request requires an id parameter"}
	}
	if len(ids) > 1 {
		return nil, &uwsmodel.ParameterError{Message: "only one id parameter is supported"}
	}
	if len(stencils) == 0 {
		return nil, &uwsmodel.ParameterError{Message: "cutout request requires a stencil parameter (circle, polygon, range, or pos)"}
	}
	if len(stencils) > 1 {
		return nil, &uwsmodel.ParameterError{Message: "only one stencil parameter is supported"}
	}
	return &Request{DatasetID: ids[0], Stencil: stencils[0]}, nil
}
