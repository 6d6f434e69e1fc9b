package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaa/game-acquire/internal/config"
)

func doctorConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DownloadDirectory = t.TempDir()
	cfg.StateDir = t.TempDir()
	cfg.Workers.Dir = t.TempDir()
	return cfg
}

func installWorkers(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name+".py"), []byte("#"), 0o755); err != nil {
			t.Fatalf("write worker: %v", err)
		}
	}
}

func healthyChecker(env map[string]string) *Checker {
	return &Checker{
		GOOS:          "linux",
		LookPath:      func(name string) (string, error) { return "/usr/bin/" + name, nil },
		ReadVersion:   func(ctx context.Context, binary string) (string, error) { return "Python 3.11.4", nil },
		Getenv:        func(key string) string { return env[key] },
		CheckWritable: checkDirWritable,
		Stat:          os.Stat,
	}
}

func hasCheck(report Report, severity Severity, fragment string) bool {
	for _, check := range report.Checks {
		if check.Severity == severity && strings.Contains(check.Message, fragment) {
			return true
		}
	}
	return false
}

func TestDoctorHealthyAscendaraSetup(t *testing.T) {
	cfg := doctorConfig(t)
	installWorkers(t, cfg.Workers.Dir, "AscendaraDownloader", "AscendaraGofileHelper")

	report := healthyChecker(map[string]string{"GACQ_API_KEY": "k", "GACQ_API_SEED": "s", "GACQ_IMAGE_KEY": "i"}).Check(context.Background(), cfg)
	if report.HasErrors() {
		t.Fatalf("expected no errors, got %+v", report.Checks)
	}
	if !hasCheck(report, SeverityWarn, "AscendaraTorrentHandler.py is missing") {
		t.Fatalf("expected unused torrent worker to be a warning, got %+v", report.Checks)
	}
}

func TestDoctorMissingRequiredWorker(t *testing.T) {
	cfg := doctorConfig(t)
	cfg.GameSource = config.GameSourceFitGirl

	report := healthyChecker(nil).Check(context.Background(), cfg)
	if !hasCheck(report, SeverityError, "AscendaraTorrentHandler.py is missing") {
		t.Fatalf("expected torrent worker error for fitgirl source, got %+v", report.Checks)
	}
}

func TestDoctorMissingPython(t *testing.T) {
	cfg := doctorConfig(t)
	checker := healthyChecker(nil)
	checker.LookPath = func(name string) (string, error) { return "", fmt.Errorf("not found") }

	report := checker.Check(context.Background(), cfg)
	if !hasCheck(report, SeverityError, "python3 not found in PATH") {
		t.Fatalf("expected python error, got %+v", report.Checks)
	}
}

func TestDoctorOldPython(t *testing.T) {
	cfg := doctorConfig(t)
	checker := healthyChecker(nil)
	checker.ReadVersion = func(ctx context.Context, binary string) (string, error) { return "Python 3.6.9", nil }

	report := checker.Check(context.Background(), cfg)
	if !hasCheck(report, SeverityError, "below minimum 3.8.0") {
		t.Fatalf("expected python version error, got %+v", report.Checks)
	}
}

func TestDoctorWindowsSkipsPython(t *testing.T) {
	cfg := doctorConfig(t)
	checker := healthyChecker(nil)
	checker.GOOS = "windows"
	checker.LookPath = func(name string) (string, error) {
		t.Fatalf("unexpected PATH lookup for %s", name)
		return "", nil
	}

	report := checker.Check(context.Background(), cfg)
	if !hasCheck(report, SeverityError, "AscendaraDownloader.exe is missing") {
		t.Fatalf("expected windows worker names, got %+v", report.Checks)
	}
}

func TestDoctorUnwritableRoot(t *testing.T) {
	cfg := doctorConfig(t)
	cfg.AdditionalDirectories = []string{filepath.Join(t.TempDir(), "missing")}

	report := healthyChecker(nil).Check(context.Background(), cfg)
	if !hasCheck(report, SeverityError, "additional_directories[0]") {
		t.Fatalf("expected missing additional root error, got %+v", report.Checks)
	}
}

func TestDoctorMissingStateDirIsWarning(t *testing.T) {
	cfg := doctorConfig(t)
	cfg.StateDir = filepath.Join(t.TempDir(), "later")

	report := healthyChecker(nil).Check(context.Background(), cfg)
	if !hasCheck(report, SeverityWarn, "will be created") {
		t.Fatalf("expected state dir warning, got %+v", report.Checks)
	}
}

func TestDoctorShareRequiresCredentials(t *testing.T) {
	cfg := doctorConfig(t)
	cfg.LocalIndex.Share = true

	report := healthyChecker(nil).Check(context.Background(), cfg)
	if !hasCheck(report, SeverityError, "required for local_index.share") {
		t.Fatalf("expected credential error, got %+v", report.Checks)
	}
}

func TestExtractAndCompareVersions(t *testing.T) {
	version, err := extractVersion("Python 3.12.1\n")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if version != "3.12.1" {
		t.Fatalf("unexpected version %q", version)
	}
	if compareVersions("3.10.0", "3.8.0") <= 0 {
		t.Fatalf("expected 3.10.0 > 3.8.0")
	}
	if _, err := extractVersion("no digits"); err == nil {
		t.Fatalf("expected error for unrecognized output")
	}
}
