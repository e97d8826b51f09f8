// Copyright 2025 James Ross
package cutout

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

func TestParseStencilCircle(t *testing.T) {
	s, err := ParseStencil("CIRCLE", "10.5 -20.25 0.5")
	require.NoError(t, err)
	require.Equal(t, Circle, s.Type)
	require.Equal(t, 10.5, s.Circle.RA)
	require.Equal(t, -20.25, s.Circle.Dec)
	require.Equal(t, 0.5, s.Circle.Radius)
}

func TestParseStencilPOSCircle(t *testing.T) {
	s, err := ParseStencil("POS", "CIRCLE 10.5 -20.25 0.5")
	require.NoError(t, err)
	require.Equal(t, Circle, s.Type)
}

func TestParseStencilPolygonRequiresThreeVertices(t *testing.T) {
	_, err := ParseStencil("POLYGON", "1 2 3 4")
	require.Error(t, err)
}

func TestParseStencilPolygonOddCoordinates(t *testing.T) {
	_, err := ParseStencil("POLYGON", "1 2 3 4 5")
	require.Error(t, err)
}

func TestParseStencilPolygonValid(t *testing.T) {
	s, err := ParseStencil("POLYGON", "1 2 3 4 5 6")
	require.NoError(t, err)
	require.Equal(t, Polygon, s.Type)
	require.Len(t, s.Polygon.RA, 3)
	require.Len(t, s.Polygon.Dec, 3)
}

func TestParseStencilRange(t *testing.T) {
	s, err := ParseStencil("RANGE", "10 20 -5 5")
	require.NoError(t, err)
	require.Equal(t, Range, s.Type)
	require.Equal(t, 10.0, s.Range.RAMin)
	require.Equal(t, 5.0, s.Range.DecMax)
}

func TestParseStencilUnknownType(t *testing.T) {
	_, err := ParseStencil("TRIANGLE", "1 2 3")
	require.Error(t, err)
}

func TestFromJobParametersValid(t *testing.T) {
	params := []uwsmodel.Parameter{
		{ID: "id", Value: "dataset-1"},
		{ID: "circle", Value: "10 20 0.1"},
	}
	req, err := FromJobParameters(params)
	require.NoError(t, err)
	require.Equal(t, "dataset-1", req.DatasetID)
	require.Equal(t, Circle, req.Stencil.Type)
}

func TestFromJobParametersRejectsMultipleIDs(t *testing.T) {
	params := []uwsmodel.Parameter{
		{ID: "id", Value: "a"},
		{ID: "id", Value: "b"},
		{ID: "circle", Value: "10 20 0.1"},
	}
	_, err := FromJobParameters(params)
	require.Error(t, err)
	var paramErr *uwsmodel.ParameterError
	require.True(t, errors.As(err, &paramErr))
}

func TestFromJobParametersRejectsMultipleStencils(t *testing.T) {
	params := []uwsmodel.Parameter{
		{ID: "id", Value: "a"},
		{ID: "circle", Value: "10 20 0.1"},
		{ID: "range", Value: "1 2 3 4"},
	}
	_, err := FromJobParameters(params)
	require.Error(t, err)
}

func TestFromJobParametersInvalidStencilIsParameterError(t *testing.T) {
	params := []uwsmodel.Parameter{
		{ID: "id", Value: "a"},
		{ID: "circle", Value: "not-a-number"},
	}
	_, err := FromJobParameters(params)
	require.Error(t, err)
	var paramErr *uwsmodel.ParameterError
	require.True(t, errors.As(err, &paramErr))
}

func TestFromJobParametersRequiresID(t *testing.T) {
	params := []uwsmodel.Parameter{
		{ID: "circle", Value: "10 20 0.1"},
	}
	_, err := FromJobParameters(params)
	require.Error(t, err)
}

func TestFromJobParametersRequiresStencil(t *testing.T) {
	params := []uwsmodel.Parameter{
		{ID: "id", Value: "a"},
	}
	_, err := FromJobParameters(params)
	require.Error(t, err)
}
