// Copyright 2025 James Ross
package cutout

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/backendadapter"
	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Compute builds a backendadapter.ComputeFunc bound to the configured
// result bucket. It reparses the job's raw parameters (Dispatcher already
// validated them once at dispatch time) and produces a single FITS
// result object whose key is derived from the dataset id and stencil
// shape, the way the original backend derives a cache key from the same
// inputs.
func Compute(cfg *config.Config) backendadapter.ComputeFunc {
	storageURL := cfg.UWS.StorageURL
	if storageURL == "" {
		storageURL = "s3://cutouts"
	}
	storageURL = strings.TrimSuffix(storageURL, "/")
	return func(params []uwsmodel.Parameter, info backendadapter.Info, logger *zap.Logger) ([]uwsmodel.Result, error) {
		req, err := FromJobParameters(params)
		if err != nil {
			return nil, err
		}
		key := resultKey(req)
		logger.Debug("computing cutout",
			zap.String("dataset_id", req.DatasetID),
			zap.String("stencil_type", string(req.Stencil.Type)),
			zap.String("result_key", key))
		return []uwsmodel.Result{{
			ResultID: "cutout",
			URL:      fmt.Sprintf("%s/%s", storageURL, key),
			MimeType: "application/fits",
		}}, nil
	}
}

func resultKey(req *Request) string {
	switch req.Stencil.Type {
	case Circle:
		c := req.Stencil.Circle
		return fmt.Sprintf("%s/circle-%.6f-%.6f-%.6f.fits", req.DatasetID, c.RA, c.Dec, c.Radius)
	case Polygon:
		return fmt.Sprintf("%s/polygon-%d-vertices.fits", req.DatasetID, len(req.Stencil.Polygon.RA))
	case Range:
		r := req.Stencil.Range
		return fmt.Sprintf("%s/range-%.6f-%.6f-%.6f-%.6f.fits", req.DatasetID, r.RAMin, r.RAMax, r.DecMin, r.DecMax)
	default:
		return req.DatasetID + "/cutout.fits"
	}
}
