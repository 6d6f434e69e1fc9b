package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type LoadOptions struct {
	ExplicitPath string
	WorkingDir   string
	Env          map[string]string
}

type fileConfig struct {
	Version               *int            `yaml:"version"`
	DownloadDirectory     *string         `yaml:"download_directory"`
	AdditionalDirectories *[]string       `yaml:"additional_directories"`
	StateDir              *string         `yaml:"state_dir"`
	GameSource            *GameSource     `yaml:"game_source"`
	Notifications         *bool           `yaml:"notifications"`
	Theme                 *string         `yaml:"theme"`
	LogFile               *string         `yaml:"log_file"`
	Workers               fileWorkers     `yaml:"workers"`
	Termination           fileTermination `yaml:"termination"`
	LocalIndex            fileLocalIndex  `yaml:"local_index"`
	API                   fileAPI         `yaml:"api"`
}

type fileWorkers struct {
	Dir            *string `yaml:"dir"`
	Python         *string `yaml:"python"`
	TimeoutSeconds *int    `yaml:"timeout_seconds"`
}

type fileTermination struct {
	SettleDelay   *Duration `yaml:"settle_delay"`
	Timeout       *Duration `yaml:"timeout"`
	DeleteRetries *int      `yaml:"delete_retries"`
	DeleteBackoff *Duration `yaml:"delete_backoff"`
}

type fileLocalIndex struct {
	Path         *string   `yaml:"path"`
	Enabled      *bool     `yaml:"enabled"`
	Share        *bool     `yaml:"share"`
	PerPage      *int      `yaml:"per_page"`
	Workers      *int      `yaml:"workers"`
	UserAgent    *string   `yaml:"user_agent"`
	PollInterval *Duration `yaml:"poll_interval"`
}

type fileAPI struct {
	BaseURL     *string `yaml:"base_url"`
	KeyEnv      *string `yaml:"key_env"`
	SeedEnv     *string `yaml:"seed_env"`
	ImageKeyEnv *string `yaml:"image_key_env"`
}

func Load(opts LoadOptions) (Config, error) {
	cfg := DefaultConfig()

	cwd := opts.WorkingDir
	if strings.TrimSpace(cwd) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("resolve working directory: %w", err)
		}
		cwd = wd
	}

	env := opts.Env
	if env == nil {
		env = osEnvMap()
	}

	if explicit := strings.TrimSpace(opts.ExplicitPath); explicit != "" {
		if err := mergeFile(&cfg, explicit, true); err != nil {
			return Config{}, err
		}
	} else {
		userPath, err := UserConfigPath()
		if err != nil {
			return Config{}, err
		}
		if err := mergeFile(&cfg, userPath, false); err != nil {
			return Config{}, err
		}

		if err := mergeFile(&cfg, ProjectConfigPath(cwd), false); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg, env); err != nil {
		return Config{}, err
	}

	normalize(&cfg)
	return cfg, nil
}

func mergeFile(cfg *Config, path string, required bool) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file does not exist: %s", path)
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(payload))), &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Version != nil {
		cfg.Version = *fc.Version
	}
	setString(&cfg.DownloadDirectory, fc.DownloadDirectory)
	if fc.AdditionalDirectories != nil {
		cfg.AdditionalDirectories = make([]string, 0, len(*fc.AdditionalDirectories))
		for _, dir := range *fc.AdditionalDirectories {
			if trimmed := strings.TrimSpace(dir); trimmed != "" {
				cfg.AdditionalDirectories = append(cfg.AdditionalDirectories, trimmed)
			}
		}
	}
	setString(&cfg.StateDir, fc.StateDir)
	if fc.GameSource != nil {
		cfg.GameSource = GameSource(strings.ToLower(strings.TrimSpace(string(*fc.GameSource))))
	}
	if fc.Notifications != nil {
		cfg.Notifications = *fc.Notifications
	}
	setString(&cfg.Theme, fc.Theme)
	setString(&cfg.LogFile, fc.LogFile)

	setString(&cfg.Workers.Dir, fc.Workers.Dir)
	setString(&cfg.Workers.Python, fc.Workers.Python)
	if fc.Workers.TimeoutSeconds != nil {
		cfg.Workers.TimeoutSeconds = *fc.Workers.TimeoutSeconds
	}

	setDuration(&cfg.Termination.SettleDelay, fc.Termination.SettleDelay)
	setDuration(&cfg.Termination.Timeout, fc.Termination.Timeout)
	if fc.Termination.DeleteRetries != nil {
		cfg.Termination.DeleteRetries = *fc.Termination.DeleteRetries
	}
	setDuration(&cfg.Termination.DeleteBackoff, fc.Termination.DeleteBackoff)

	setString(&cfg.LocalIndex.Path, fc.LocalIndex.Path)
	if fc.LocalIndex.Enabled != nil {
		cfg.LocalIndex.Enabled = *fc.LocalIndex.Enabled
	}
	if fc.LocalIndex.Share != nil {
		cfg.LocalIndex.Share = *fc.LocalIndex.Share
	}
	if fc.LocalIndex.PerPage != nil {
		cfg.LocalIndex.PerPage = *fc.LocalIndex.PerPage
	}
	if fc.LocalIndex.Workers != nil {
		cfg.LocalIndex.Workers = *fc.LocalIndex.Workers
	}
	setString(&cfg.LocalIndex.UserAgent, fc.LocalIndex.UserAgent)
	setDuration(&cfg.LocalIndex.PollInterval, fc.LocalIndex.PollInterval)

	setString(&cfg.API.BaseURL, fc.API.BaseURL)
	setString(&cfg.API.KeyEnv, fc.API.KeyEnv)
	setString(&cfg.API.SeedEnv, fc.API.SeedEnv)
	setString(&cfg.API.ImageKeyEnv, fc.API.ImageKeyEnv)

	return nil
}

func applyEnvOverrides(cfg *Config, env map[string]string) error {
	if value := strings.TrimSpace(env["GACQ_DOWNLOAD_DIRECTORY"]); value != "" {
		cfg.DownloadDirectory = value
	}
	if value := strings.TrimSpace(env["GACQ_ADDITIONAL_DIRECTORIES"]); value != "" {
		cfg.AdditionalDirectories = filepath.SplitList(value)
	}
	if value := strings.TrimSpace(env["GACQ_STATE_DIR"]); value != "" {
		cfg.StateDir = value
	}
	if value := strings.TrimSpace(env["GACQ_WORKERS_DIR"]); value != "" {
		cfg.Workers.Dir = value
	}
	if value := strings.TrimSpace(env["GACQ_GAME_SOURCE"]); value != "" {
		cfg.GameSource = GameSource(strings.ToLower(value))
	}
	if value := strings.TrimSpace(env["GACQ_NOTIFICATIONS"]); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid GACQ_NOTIFICATIONS value %q: %w", value, err)
		}
		cfg.Notifications = parsed
	}
	if value := strings.TrimSpace(env["GACQ_SHARE_LOCAL_INDEX"]); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid GACQ_SHARE_LOCAL_INDEX value %q: %w", value, err)
		}
		cfg.LocalIndex.Share = parsed
	}
	if value := strings.TrimSpace(env["GACQ_SETTLE_DELAY"]); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid GACQ_SETTLE_DELAY value %q: %w", value, err)
		}
		cfg.Termination.SettleDelay = Duration{parsed}
	}
	if value := strings.TrimSpace(env["GACQ_API_BASE_URL"]); value != "" {
		cfg.API.BaseURL = value
	}
	return nil
}

func normalize(cfg *Config) {
	if cfg.GameSource == "" {
		cfg.GameSource = GameSourceAscendara
	}
	if strings.TrimSpace(cfg.Theme) == "" {
		cfg.Theme = "purple"
	}
	if strings.TrimSpace(cfg.Workers.Python) == "" {
		cfg.Workers.Python = "python3"
	}
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setDuration(dst *Duration, src *Duration) {
	if src != nil {
		*dst = *src
	}
}

func osEnvMap() map[string]string {
	result := map[string]string{}
	for _, pair := range os.Environ() {
		pieces := strings.SplitN(pair, "=", 2)
		if len(pieces) == 2 {
			result[pieces[0]] = pieces[1]
		}
	}
	return result
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	return nil
}
