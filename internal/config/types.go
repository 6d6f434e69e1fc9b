package config

import (
	"fmt"
	"time"
)

type GameSource string

const (
	GameSourceAscendara GameSource = "ascendara"
	GameSourceFitGirl   GameSource = "fitgirl"
)

type Config struct {
	Version               int         `yaml:"version"`
	DownloadDirectory     string      `yaml:"download_directory"`
	AdditionalDirectories []string    `yaml:"additional_directories,omitempty"`
	StateDir              string      `yaml:"state_dir"`
	GameSource            GameSource  `yaml:"game_source"`
	Notifications         bool        `yaml:"notifications"`
	Theme                 string      `yaml:"theme"`
	LogFile               string      `yaml:"log_file,omitempty"`
	Workers               Workers     `yaml:"workers"`
	Termination           Termination `yaml:"termination"`
	LocalIndex            LocalIndex  `yaml:"local_index"`
	API                   API         `yaml:"api"`
}

type Workers struct {
	Dir            string `yaml:"dir"`
	Python         string `yaml:"python"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Termination struct {
	SettleDelay   Duration `yaml:"settle_delay"`
	Timeout       Duration `yaml:"timeout"`
	DeleteRetries int      `yaml:"delete_retries"`
	DeleteBackoff Duration `yaml:"delete_backoff"`
}

type LocalIndex struct {
	Path         string   `yaml:"path"`
	Enabled      bool     `yaml:"enabled"`
	Share        bool     `yaml:"share"`
	PerPage      int      `yaml:"per_page"`
	Workers      int      `yaml:"workers"`
	UserAgent    string   `yaml:"user_agent,omitempty"`
	PollInterval Duration `yaml:"poll_interval"`
}

type API struct {
	BaseURL     string `yaml:"base_url"`
	KeyEnv      string `yaml:"key_env"`
	SeedEnv     string `yaml:"seed_env"`
	ImageKeyEnv string `yaml:"image_key_env"`
}

// Duration wraps time.Duration so YAML can carry values like "5s" or "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// Roots returns the primary download directory followed by the additional
// ones, in the order the resolver scans them.
func (c Config) Roots() []string {
	roots := make([]string, 0, 1+len(c.AdditionalDirectories))
	roots = append(roots, c.DownloadDirectory)
	roots = append(roots, c.AdditionalDirectories...)
	return roots
}

func DefaultConfig() Config {
	return Config{
		Version:               1,
		DownloadDirectory:     "",
		AdditionalDirectories: []string{},
		StateDir:              defaultStateDir(),
		GameSource:            GameSourceAscendara,
		Notifications:         false,
		Theme:                 "purple",
		Workers: Workers{
			Dir:            defaultWorkersDir(),
			Python:         "python3",
			TimeoutSeconds: 3600,
		},
		Termination: Termination{
			SettleDelay:   Duration{5 * time.Second},
			Timeout:       Duration{10 * time.Second},
			DeleteRetries: 5,
			DeleteBackoff: Duration{3 * time.Second},
		},
		LocalIndex: LocalIndex{
			Path:         defaultLocalIndexDir(),
			Enabled:      false,
			Share:        false,
			PerPage:      50,
			Workers:      8,
			PollInterval: Duration{500 * time.Millisecond},
		},
		API: API{
			BaseURL:     "https://api.ascendara.app",
			KeyEnv:      "GACQ_API_KEY",
			SeedEnv:     "GACQ_API_SEED",
			ImageKeyEnv: "GACQ_IMAGE_KEY",
		},
	}
}
