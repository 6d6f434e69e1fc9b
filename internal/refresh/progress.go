package refresh

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jaa/game-acquire/internal/fileops"
)

const ProgressFileName = "progress.json"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Progress is the worker's progress.json as written. Keys other than
// status, phase and errors are passed through untouched.
type Progress map[string]any

func (p Progress) Status() string {
	status, _ := p["status"].(string)
	return status
}

func (p Progress) Finished() bool {
	status := p.Status()
	return status == StatusCompleted || status == StatusFailed
}

// markUnexpectedExit records that the worker vanished while the file
// still claimed it was running.
func (p Progress) markUnexpectedExit(now time.Time) {
	p["status"] = StatusFailed
	p["phase"] = "done"
	errs, _ := p["errors"].([]any)
	p["errors"] = append(errs, map[string]any{
		"message":   "Process terminated unexpectedly",
		"timestamp": float64(now.UnixMilli()) / 1000,
	})
}

func progressPath(outputPath string) string {
	return filepath.Join(outputPath, ProgressFileName)
}

// readProgress returns nil without error when the file does not exist.
func readProgress(outputPath string) (Progress, error) {
	payload, err := os.ReadFile(progressPath(outputPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read refresh progress: %w", err)
	}
	progress := Progress{}
	if err := json.Unmarshal(payload, &progress); err != nil {
		return nil, fmt.Errorf("parse refresh progress: %w", err)
	}
	return progress, nil
}

func writeProgress(outputPath string, progress Progress) error {
	payload, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return fmt.Errorf("encode refresh progress: %w", err)
	}
	return fileops.WriteFileAtomic(progressPath(outputPath), payload, 0o644)
}
