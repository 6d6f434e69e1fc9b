package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 0 {
		return "invalid config"
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Problems, "; "))
}

func Validate(cfg Config) error {
	problems := []string{}

	if cfg.Version != 1 {
		problems = append(problems, "version must be 1")
	}

	if strings.TrimSpace(cfg.DownloadDirectory) == "" {
		problems = append(problems, "download_directory must be set")
	} else if dir, err := ExpandPath(cfg.DownloadDirectory); err != nil {
		problems = append(problems, "download_directory must be a valid path")
	} else if !filepath.IsAbs(dir) {
		problems = append(problems, "download_directory must resolve to an absolute path")
	}

	seen := map[string]struct{}{}
	for i, raw := range cfg.AdditionalDirectories {
		dir, err := ExpandPath(raw)
		if err != nil || dir == "" {
			problems = append(problems, fmt.Sprintf("additional_directories[%d] must be a valid path", i))
			continue
		}
		if !filepath.IsAbs(dir) {
			problems = append(problems, fmt.Sprintf("additional_directories[%d] must resolve to an absolute path", i))
		}
		if _, dup := seen[dir]; dup {
			problems = append(problems, fmt.Sprintf("additional_directories[%d] duplicates %s", i, dir))
		}
		seen[dir] = struct{}{}
	}

	stateDir, err := ExpandPath(cfg.StateDir)
	if err != nil || strings.TrimSpace(stateDir) == "" {
		problems = append(problems, "state_dir must be a valid path")
	} else if !filepath.IsAbs(stateDir) {
		problems = append(problems, "state_dir must resolve to an absolute path")
	}

	switch cfg.GameSource {
	case GameSourceAscendara, GameSourceFitGirl:
	default:
		problems = append(problems, fmt.Sprintf("game_source %q is unsupported (expected ascendara or fitgirl)", cfg.GameSource))
	}

	if strings.TrimSpace(cfg.Workers.Dir) == "" {
		problems = append(problems, "workers.dir must be set")
	}
	if cfg.Workers.TimeoutSeconds <= 0 {
		problems = append(problems, "workers.timeout_seconds must be > 0")
	}

	if cfg.Termination.SettleDelay.Duration < 0 {
		problems = append(problems, "termination.settle_delay must be >= 0")
	}
	if cfg.Termination.Timeout.Duration <= 0 {
		problems = append(problems, "termination.timeout must be > 0")
	}
	if cfg.Termination.DeleteRetries <= 0 {
		problems = append(problems, "termination.delete_retries must be > 0")
	}
	if cfg.Termination.DeleteBackoff.Duration < 0 {
		problems = append(problems, "termination.delete_backoff must be >= 0")
	}

	if cfg.LocalIndex.PerPage <= 0 {
		problems = append(problems, "local_index.per_page must be > 0")
	}
	if cfg.LocalIndex.Workers <= 0 {
		problems = append(problems, "local_index.workers must be > 0")
	}
	if cfg.LocalIndex.PollInterval.Duration <= 0 {
		problems = append(problems, "local_index.poll_interval must be > 0")
	}
	if (cfg.LocalIndex.Enabled || cfg.LocalIndex.Share) && strings.TrimSpace(cfg.LocalIndex.Path) == "" {
		problems = append(problems, "local_index.path must be set when the local index is enabled or shared")
	}

	if strings.TrimSpace(cfg.API.BaseURL) == "" {
		problems = append(problems, "api.base_url must be set")
	} else if err := validateURL(cfg.API.BaseURL); err != nil {
		problems = append(problems, fmt.Sprintf("api.base_url is invalid: %v", err))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
