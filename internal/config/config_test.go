// Copyright 2025 James Ross
package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Queue.WorkQueueName == cfg.Queue.UWSQueueName {
		t.Fatalf("expected distinct work/uws queue names")
	}
	if cfg.Redis.Addr == "" {
		t.Fatalf("expected default redis addr")
	}
	if cfg.UWS.WaitTimeout != 60*time.Second {
		t.Fatalf("expected default wait_timeout of 60s, got %s", cfg.UWS.WaitTimeout)
	}
}

func TestValidateFails(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.URL = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for empty database.url")
	}

	cfg = defaultConfig()
	cfg.Queue.UWSQueueName = cfg.Queue.WorkQueueName
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for identical queue names")
	}

	cfg = defaultConfig()
	cfg.UWS.WaitTimeout = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for wait_timeout <= 0")
	}

	cfg = defaultConfig()
	cfg.Policy.MaxExecutionDuration = time.Second
	cfg.UWS.ExecutionDuration = time.Minute
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for execution_duration exceeding policy max")
	}
}
