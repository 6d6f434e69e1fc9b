package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/engine"
)

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

const minPythonVersion = "3.8.0"

type Check struct {
	Severity Severity `json:"severity"`
	Name     string   `json:"name"`
	Message  string   `json:"message"`
}

type Report struct {
	Checks []Check `json:"checks"`
}

func (r Report) HasErrors() bool {
	return r.ErrorCount() > 0
}

func (r Report) ErrorCount() int {
	count := 0
	for _, check := range r.Checks {
		if check.Severity == SeverityError {
			count++
		}
	}
	return count
}

func (r *Report) add(severity Severity, name string, format string, args ...any) {
	r.Checks = append(r.Checks, Check{Severity: severity, Name: name, Message: fmt.Sprintf(format, args...)})
}

type Checker struct {
	GOOS          string
	LookPath      func(string) (string, error)
	ReadVersion   func(context.Context, string) (string, error)
	Getenv        func(string) string
	CheckWritable func(string) error
	Stat          func(string) (os.FileInfo, error)
}

func NewChecker() *Checker {
	return &Checker{
		GOOS:          runtime.GOOS,
		LookPath:      exec.LookPath,
		ReadVersion:   defaultReadVersion,
		Getenv:        os.Getenv,
		CheckWritable: checkDirWritable,
		Stat:          os.Stat,
	}
}

func (c *Checker) Check(ctx context.Context, cfg config.Config) Report {
	report := Report{Checks: []Check{}}

	if c.GOOS != "windows" {
		c.checkPython(ctx, cfg.Workers.Python, &report)
	}
	c.checkWorkers(cfg, &report)
	c.checkRoots(cfg, &report)
	c.checkAuth(cfg, &report)

	if cfg.Notifications && c.GOOS == "linux" {
		if _, err := c.LookPath("notify-send"); err != nil {
			report.add(SeverityWarn, "notifications", "notify-send not found in PATH; desktop notifications will fail")
		} else {
			report.add(SeverityInfo, "notifications", "notify-send is available")
		}
	}

	return report
}

func (c *Checker) checkPython(ctx context.Context, python string, report *Report) {
	location, err := c.LookPath(python)
	if err != nil {
		report.add(SeverityError, "dependency", "%s not found in PATH", python)
		return
	}
	report.add(SeverityInfo, "dependency", "%s found at %s", python, location)

	output, err := c.ReadVersion(ctx, python)
	if err != nil {
		report.add(SeverityWarn, "dependency", "%s version could not be read: %v", python, err)
		return
	}
	version, err := extractVersion(output)
	if err != nil {
		report.add(SeverityWarn, "dependency", "%s version output is unrecognized: %q", python, strings.TrimSpace(output))
		return
	}
	if compareVersions(version, minPythonVersion) < 0 {
		report.add(SeverityError, "dependency", "%s version %s is below minimum %s", python, version, minPythonVersion)
		return
	}
	report.add(SeverityInfo, "dependency", "%s version %s is compatible", python, version)
}

// checkWorkers reports missing worker files. A worker is only an error
// when the configuration will actually launch it.
func (c *Checker) checkWorkers(cfg config.Config, report *Report) {
	dir, err := config.ExpandPath(cfg.Workers.Dir)
	if err != nil || dir == "" {
		report.add(SeverityError, "workers", "workers.dir is invalid: %v", err)
		return
	}

	required := map[string]bool{
		engine.WorkerDirect:  cfg.GameSource != config.GameSourceFitGirl,
		engine.WorkerGofile:  cfg.GameSource != config.GameSourceFitGirl,
		engine.WorkerTorrent: cfg.GameSource == config.GameSourceFitGirl,
		engine.WorkerRefresh: cfg.LocalIndex.Enabled,
	}
	ext := ".py"
	if c.GOOS == "windows" {
		ext = ".exe"
	}

	for _, name := range []string{engine.WorkerDirect, engine.WorkerGofile, engine.WorkerTorrent, engine.WorkerRefresh} {
		path := filepath.Join(dir, name+ext)
		info, err := c.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			report.add(SeverityInfo, "workers", "%s found", path)
		case required[name]:
			report.add(SeverityError, "workers", "%s is missing", path)
		default:
			report.add(SeverityWarn, "workers", "%s is missing", path)
		}
	}
}

func (c *Checker) checkRoots(cfg config.Config, report *Report) {
	for i, raw := range cfg.Roots() {
		label := "download_directory"
		if i > 0 {
			label = fmt.Sprintf("additional_directories[%d]", i-1)
		}
		dir, err := config.ExpandPath(raw)
		if err != nil || dir == "" {
			report.add(SeverityError, "filesystem", "%s is invalid: %v", label, err)
			continue
		}
		if err := c.CheckWritable(dir); err != nil {
			report.add(SeverityError, "filesystem", "%s %s is not writable: %v", label, dir, err)
			continue
		}
		report.add(SeverityInfo, "filesystem", "%s %s is writable", label, dir)
	}

	stateDir, err := config.ExpandPath(cfg.StateDir)
	if err != nil || stateDir == "" {
		report.add(SeverityError, "filesystem", "state_dir is invalid: %v", err)
		return
	}
	if err := c.CheckWritable(stateDir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			report.add(SeverityWarn, "filesystem", "state_dir %s does not exist yet and will be created", stateDir)
			return
		}
		report.add(SeverityError, "filesystem", "state_dir %s is not writable: %v", stateDir, err)
		return
	}
	report.add(SeverityInfo, "filesystem", "state_dir %s is writable", stateDir)
}

func (c *Checker) checkAuth(cfg config.Config, report *Report) {
	missing := []string{}
	for _, name := range []string{cfg.API.KeyEnv, cfg.API.SeedEnv} {
		if strings.TrimSpace(c.Getenv(name)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		report.add(SeverityInfo, "auth", "%s and %s are present", cfg.API.KeyEnv, cfg.API.SeedEnv)
	} else if cfg.LocalIndex.Share {
		report.add(SeverityError, "auth", "%s required for local_index.share", strings.Join(missing, " and "))
	} else {
		report.add(SeverityWarn, "auth", "%s not set; index sharing and latest index fetch are unavailable", strings.Join(missing, " and "))
	}

	if strings.TrimSpace(c.Getenv(cfg.API.ImageKeyEnv)) == "" {
		report.add(SeverityWarn, "auth", "%s not set; header images will not be downloaded", cfg.API.ImageKeyEnv)
	}
}

func defaultReadVersion(ctx context.Context, binary string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", err
	}
	return string(output), nil
}

func checkDirWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	file, err := os.CreateTemp(path, ".gacq-write-check-*")
	if err != nil {
		return err
	}
	name := file.Name()
	_ = file.Close()
	_ = os.Remove(name)
	return nil
}

var versionPattern = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

func extractVersion(raw string) (string, error) {
	matches := versionPattern.FindStringSubmatch(raw)
	if len(matches) != 4 {
		return "", fmt.Errorf("no semantic version found")
	}
	return fmt.Sprintf("%s.%s.%s", matches[1], matches[2], matches[3]), nil
}

func compareVersions(lhs string, rhs string) int {
	leftParts := strings.Split(lhs, ".")
	rightParts := strings.Split(rhs, ".")
	for i := 0; i < 3; i++ {
		leftValue := 0
		rightValue := 0
		if i < len(leftParts) {
			leftValue, _ = strconv.Atoi(leftParts[i])
		}
		if i < len(rightParts) {
			rightValue, _ = strconv.Atoi(rightParts[i])
		}
		if leftValue > rightValue {
			return 1
		}
		if leftValue < rightValue {
			return -1
		}
	}
	return 0
}
