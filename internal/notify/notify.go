// Package notify raises desktop notifications for events that need the
// user while gacq runs unattended.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// HelperName is the notification worker shipped next to the download
// workers on Windows.
const HelperName = "AscendaraNotificationHelper"

type commandStarter func(ctx context.Context, name string, args ...string) error

// Desktop picks the platform notifier: the bundled helper on Windows,
// osascript on macOS and notify-send elsewhere.
type Desktop struct {
	GOOS       string
	WorkersDir string
	Theme      string
	Start      commandStarter
}

func NewDesktop(workersDir string, theme string) *Desktop {
	return &Desktop{GOOS: runtime.GOOS, WorkersDir: workersDir, Theme: theme, Start: startDetached}
}

func (d *Desktop) Notify(ctx context.Context, title string, message string) error {
	name, args := d.command(title, message)
	start := d.Start
	if start == nil {
		start = startDetached
	}
	if err := start(ctx, name, args...); err != nil {
		return fmt.Errorf("show notification with %s: %w", filepath.Base(name), err)
	}
	return nil
}

func (d *Desktop) command(title string, message string) (string, []string) {
	switch d.GOOS {
	case "windows":
		theme := d.Theme
		if theme == "" {
			theme = "purple"
		}
		return filepath.Join(d.WorkersDir, HelperName+".exe"), []string{
			"--theme", theme,
			"--title", title,
			"--message", message,
		}
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(message), appleScriptString(title))
		return "osascript", []string{"-e", script}
	default:
		return "notify-send", []string{"--urgency=critical", title, message}
	}
}

func appleScriptString(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
	return `"` + escaped + `"`
}

// startDetached launches the notifier without waiting for it.
func startDetached(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
