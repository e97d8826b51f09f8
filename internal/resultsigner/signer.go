// Copyright 2025 James Ross
package resultsigner

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
	"github.com/lsst-uws/go-uws-engine/internal/uwsmodel"
)

// Signer translates a JobResult's opaque object-store URI into a
// time-limited, client-facing HTTPS URL. Stateless: callers invoke it per
// response render, no caching.
type Signer struct {
	client   *s3.S3
	lifetime time.Duration
	logger   *zap.Logger
}

// New builds a Signer against cfg.UWS's signing identity and region,
// mirroring the teacher's S3Exporter session/credentials wiring.
func New(cfg *config.Config, logger *zap.Logger) (*Signer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	awsConfig := &aws.Config{Region: aws.String(cfg.UWS.SigningRegion)}
	if cfg.UWS.SigningServiceAccount != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.UWS.SigningServiceAccount, "", "")
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	lifetime := cfg.UWS.URLLifetime
	if lifetime <= 0 {
		lifetime = 15 * time.Minute
	}
	logger.Info("result signer initialized",
		obs.String("region", cfg.UWS.SigningRegion),
		zap.Duration("lifetime", lifetime))
	return &Signer{client: s3.New(sess), lifetime: lifetime, logger: logger}, nil
}

// objectStoreSchemes is the whitelist P7 requires: a signed URL is only
// ever issued for a URL whose scheme names an object store this signer
// knows how to presign.
var objectStoreSchemes = map[string]bool{
	"s3": true,
}

// Sign returns a presigned HTTPS URL for result.URL, valid for the
// configured lifetime. Fails SigningError if the scheme is not whitelisted.
func (s *Signer) Sign(result uwsmodel.Result) (string, error) {
	u, err := url.Parse(result.URL)
	if err != nil || !objectStoreSchemes[strings.ToLower(u.Scheme)] {
		return "", &uwsmodel.SigningError{URL: result.URL}
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		ResponseContentType: contentTypePtr(result.MimeType),
	})
	signed, err := req.Presign(s.lifetime)
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", result.URL, err)
	}
	obs.ResultURLsSigned.Inc()
	return signed, nil
}

func contentTypePtr(mime string) *string {
	if mime == "" {
		return nil
	}
	return aws.String(mime)
}
