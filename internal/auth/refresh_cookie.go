package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jaa/game-acquire/internal/fileops"
)

const (
	refreshKeychainService = "gacq.refresh"
	refreshKeychainAccount = "cookie"

	// RefreshCookieFileName lives in the state dir.
	RefreshCookieFileName = "refresh_cookie"
)

var ErrRefreshCookieNotFound = errors.New("refresh cookie not found")

type commandRunner func(name string, args ...string) ([]byte, error)

// RefreshCookieResolver finds the Cloudflare clearance cookie the local
// index refresh worker scrapes with: GACQ_REFRESH_COOKIE first, then the
// saved cookie file, then on macOS the login keychain.
type RefreshCookieResolver struct {
	Path    string
	GOOS    string
	Getenv  func(string) string
	Command commandRunner
}

func ResolveRefreshCookie(path string) (string, error) {
	return RefreshCookieResolver{
		Path:    path,
		Getenv:  os.Getenv,
		Command: runCommandOutput,
	}.Resolve()
}

func (r RefreshCookieResolver) Resolve() (string, error) {
	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if value := strings.TrimSpace(getenv("GACQ_REFRESH_COOKIE")); value != "" {
		return value, nil
	}

	if r.Path != "" {
		raw, err := os.ReadFile(r.Path)
		switch {
		case err == nil:
			if value := strings.TrimSpace(string(raw)); value != "" {
				return value, nil
			}
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("read refresh cookie: %w", err)
		}
	}

	if !keychainAvailable(r.GOOS) {
		return "", ErrRefreshCookieNotFound
	}
	command := r.Command
	if command == nil {
		command = runCommandOutput
	}
	if value := keychainCredential(command, refreshKeychainService, refreshKeychainAccount); value != "" {
		return value, nil
	}
	return "", ErrRefreshCookieNotFound
}

// SaveRefreshCookie writes the cookie to path, readable only by the owner.
func SaveRefreshCookie(path string, cookie string) error {
	trimmed := strings.TrimSpace(cookie)
	if trimmed == "" {
		return fmt.Errorf("refresh cookie must not be empty")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("refresh cookie path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create refresh cookie directory: %w", err)
	}
	if err := fileops.WriteFileAtomic(path, []byte(trimmed+"\n"), 0o600); err != nil {
		return fmt.Errorf("save refresh cookie: %w", err)
	}
	return nil
}

// keychainAvailable reports whether the macOS security tool can be used.
func keychainAvailable(goos string) bool {
	if goos == "" {
		goos = runtime.GOOS
	}
	return goos == "darwin"
}

func keychainCredential(command commandRunner, service string, account string) string {
	raw, err := command(
		"security",
		"find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func runCommandOutput(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}
