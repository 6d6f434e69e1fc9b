package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func UserConfigPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); strings.TrimSpace(xdg) != "" {
		return filepath.Join(xdg, "gacq", "config.yaml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "gacq", "config.yaml"), nil
}

func ProjectConfigPath(cwd string) string {
	return filepath.Join(cwd, "gacq.yaml")
}

func defaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); strings.TrimSpace(xdg) != "" {
		return filepath.Join(xdg, "gacq")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./.gacq-state"
	}
	return filepath.Join(home, ".local", "state", "gacq")
}

func defaultWorkersDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "./workers"
	}
	return filepath.Join(filepath.Dir(exe), "workers")
}

func defaultLocalIndexDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./localindex"
	}
	return filepath.Join(dir, "gacq", "localindex")
}

func ExpandPath(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(strings.TrimSpace(raw))
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(expanded, "~"), "/"))
	}

	return filepath.Clean(expanded), nil
}

// HistoryPath is where launch history is persisted inside the state dir.
func HistoryPath(stateDir string) (string, error) {
	dir, err := ExpandPath(stateDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// LatestIndexStampPath records when the shared index was last downloaded.
func LatestIndexStampPath(stateDir string) (string, error) {
	dir, err := ExpandPath(stateDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "latest_index.stamp"), nil
}

// RefreshCookiePath is where the saved refresh cookie is kept.
func RefreshCookiePath(stateDir string) (string, error) {
	dir, err := ExpandPath(stateDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "refresh_cookie"), nil
}
