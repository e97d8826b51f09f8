// Copyright 2025 James Ross
package resultsigner

import (
	"time"

	"github.com/lsst-uws/go-uws-engine/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.UWS.SigningRegion = "us-east-1"
	cfg.UWS.SigningServiceAccount = "test-account"
	cfg.UWS.URLLifetime = 15 * time.Minute
	return cfg
}
