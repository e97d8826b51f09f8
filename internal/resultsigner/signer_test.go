// Copyright 2025 James Ross
package resultsigner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

func TestSignRejectsUnsupportedScheme(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = s.Sign(uwsmodel.Result{ResultID: "cutout", URL: "https://example.com/not-object-store"})
	require.Error(t, err)
	var signingErr *uwsmodel.SigningError
	require.ErrorAs(t, err, &signingErr)
}

func TestSignAcceptsS3Scheme(t *testing.T) {
	cfg := testConfig()
	s, err := New(cfg, nil)
	require.NoError(t, err)

	signed, err := s.Sign(uwsmodel.Result{ResultID: "cutout", URL: "s3://my-bucket/jobs/1/cutout.fits", MimeType: "application/fits"})
	require.NoError(t, err)
	require.Contains(t, signed, "my-bucket")
}
