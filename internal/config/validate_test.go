package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.DownloadDirectory = "/games"
	cfg.StateDir = "/var/lib/gacq"
	cfg.Workers.Dir = "/opt/gacq/workers"
	cfg.LocalIndex.Path = "/var/lib/gacq/localindex"
	return cfg
}

func TestValidateAcceptsDefaultsWithDownloadDirectory(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateAggregatesProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Version = 2
	cfg.DownloadDirectory = ""
	cfg.GameSource = "steam"
	cfg.Termination.DeleteRetries = 0
	cfg.LocalIndex.PerPage = 0
	cfg.API.BaseURL = "ftp://example.test"

	err := Validate(cfg)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}

	joined := strings.Join(vErr.Problems, "\n")
	for _, want := range []string{
		"version must be 1",
		"download_directory must be set",
		`game_source "steam" is unsupported`,
		"termination.delete_retries must be > 0",
		"local_index.per_page must be > 0",
		"api.base_url is invalid",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected problem %q in %q", want, joined)
		}
	}
}

func TestValidateRejectsRelativeAndDuplicateRoots(t *testing.T) {
	cfg := validConfig()
	cfg.AdditionalDirectories = []string{"relative/games", "/mnt/extra", "/mnt/extra"}

	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !strings.Contains(err.Error(), "additional_directories[0] must resolve to an absolute path") {
		t.Fatalf("expected relative path problem, got %v", err)
	}
	if !strings.Contains(err.Error(), "additional_directories[2] duplicates") {
		t.Fatalf("expected duplicate problem, got %v", err)
	}
}

func TestValidateRejectsNegativeSettleDelay(t *testing.T) {
	cfg := validConfig()
	cfg.Termination.SettleDelay = Duration{-time.Second}
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "settle_delay") {
		t.Fatalf("expected settle_delay problem, got %v", err)
	}
}

func TestValidateRequiresLocalIndexPathWhenSharing(t *testing.T) {
	cfg := validConfig()
	cfg.LocalIndex.Share = true
	cfg.LocalIndex.Path = ""
	if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), "local_index.path") {
		t.Fatalf("expected local_index.path problem, got %v", err)
	}
}
