// Package service is the operation surface the UI layer drives. Every
// method returns a Result envelope; errors and panics are logged and
// converted at this boundary.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/adapters/direct"
	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/engine"
	"github.com/jaa/game-acquire/internal/library"
	"github.com/jaa/game-acquire/internal/output"
	"github.com/jaa/game-acquire/internal/refresh"
	"github.com/jaa/game-acquire/internal/sidecar"
	"github.com/jaa/game-acquire/internal/verify"
)

var (
	ErrShareUnavailable = errors.New("index sharing is not configured")
	ErrShareDisabled    = errors.New("local index sharing is disabled")
	ErrNoSelection      = errors.New("no archive or folder selected")
)

// Result is the envelope returned by every operation. Err carries the
// original error for in-process callers and is never serialized.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Err     error  `json:"-"`
}

type Downloads interface {
	Launch(ctx context.Context, req engine.LaunchRequest) (*engine.Process, error)
	Retry(ctx context.Context, req engine.RetryRequest) (*engine.Process, error)
	Registry() *engine.Registry
}

type Stopper interface {
	Stop(ctx context.Context, itemName string, deleteContents bool) error
}

type Refresher interface {
	Start(ctx context.Context, opts refresh.Options) (bool, error)
	Stop(ctx context.Context, outputPath string) error
	Status(ctx context.Context, outputPath string) (refresh.Status, error)
	Progress(outputPath string) (refresh.Progress, error)
	SendCredential(value string) error
}

type Sharer interface {
	Upload(ctx context.Context, dir string) error
	FetchLatest(ctx context.Context, dest string) error
}

type Options struct {
	Config     config.Config
	Downloads  Downloads
	Terminator Stopper
	Verifier   *verify.Verifier
	Resolver   *library.Resolver
	Store      *sidecar.Store
	Refresh    Refresher
	// Share is nil when API credentials are unavailable.
	Share   Sharer
	History *engine.History
	Runner  engine.ExecRunner
	Env     engine.WorkerEnv
	Logger  *zap.Logger
	Emitter output.EventEmitter
}

type Service struct {
	cfg        config.Config
	indexDir   string
	downloads  Downloads
	terminator Stopper
	verifier   *verify.Verifier
	resolver   *library.Resolver
	store      *sidecar.Store
	refresh    Refresher
	share      Sharer
	history    *engine.History
	runner     engine.ExecRunner
	env        engine.WorkerEnv
	direct     *direct.Adapter
	logger     *zap.Logger
	emitter    output.EventEmitter
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = output.Discard{}
	}
	store := opts.Store
	if store == nil {
		store = sidecar.NewStore()
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = verify.New(store, verify.DefaultOptions())
	}
	indexDir, err := config.ExpandPath(opts.Config.LocalIndex.Path)
	if err != nil {
		indexDir = opts.Config.LocalIndex.Path
	}
	return &Service{
		cfg:        opts.Config,
		indexDir:   indexDir,
		downloads:  opts.Downloads,
		terminator: opts.Terminator,
		verifier:   verifier,
		resolver:   opts.Resolver,
		store:      store,
		refresh:    opts.Refresh,
		share:      opts.Share,
		history:    opts.History,
		runner:     opts.Runner,
		env:        opts.Env,
		direct:     direct.New(),
		logger:     logger,
		emitter:    emitter,
	}
}

func (s *Service) guard(op string, fn func() Result) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s: unexpected panic: %v", op, r)
			s.logger.Error("operation panicked",
				zap.String("op", op),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = Result{Error: err.Error(), Err: err}
		}
	}()
	return fn()
}

func (s *Service) fail(op string, err error, fields ...zap.Field) Result {
	fields = append([]zap.Field{zap.String("op", op), zap.Error(err)}, fields...)
	s.logger.Error("operation failed", fields...)
	return Result{Error: err.Error(), Err: err}
}

func ok(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

func (s *Service) StartDownload(ctx context.Context, req engine.LaunchRequest) Result {
	return s.guard("start-download", func() Result {
		proc, err := s.downloads.Launch(ctx, req)
		if err != nil {
			return s.fail("start-download", err, zap.String("item", req.Item))
		}
		return ok("download started", map[string]any{
			"item":    proc.Item,
			"pid":     proc.PID,
			"backend": string(proc.Backend),
		})
	})
}

func (s *Service) StopDownload(ctx context.Context, item string, deleteContents bool) Result {
	return s.guard("stop-download", func() Result {
		if err := s.terminator.Stop(ctx, item, deleteContents); err != nil {
			return s.fail("stop-download", err, zap.String("item", item), zap.Bool("delete", deleteContents))
		}
		name := library.SanitizeName(item)
		_ = s.emitter.Emit(output.NewEvent(output.LevelInfo, output.EventDownloadStopped, name, "download stopped", map[string]any{
			"deleted": deleteContents,
		}))
		return ok("download stopped", map[string]any{"item": name, "deleted": deleteContents})
	})
}

// VerifyDownload reports a failed verification as an unsuccessful Result
// whose Data carries the missing members; only I/O problems set Error.
func (s *Service) VerifyDownload(ctx context.Context, item string) Result {
	return s.guard("verify-download", func() Result {
		loc, err := s.resolver.Locate(item)
		if err != nil {
			return s.fail("verify-download", err, zap.String("item", item))
		}
		result, err := s.verifier.Verify(loc.ItemDir, loc.Item)
		if err != nil {
			return s.fail("verify-download", err, zap.String("item", loc.Item))
		}

		level := output.LevelInfo
		if !result.Success {
			level = output.LevelWarn
			s.logger.Warn("verification failed",
				zap.String("item", loc.Item),
				zap.Int("missing", len(result.Errors)))
		}
		_ = s.emitter.Emit(output.NewEvent(level, output.EventVerifyFinished, loc.Item, result.Message(), map[string]any{
			"success": result.Success,
			"errors":  result.Errors,
		}))
		return Result{Success: result.Success, Message: result.Message(), Data: result}
	})
}

func (s *Service) RetryDownload(ctx context.Context, req engine.RetryRequest) Result {
	return s.guard("retry-download", func() Result {
		proc, err := s.downloads.Retry(ctx, req)
		if err != nil {
			return s.fail("retry-download", err, zap.String("item", req.Item))
		}
		return ok("download retried", map[string]any{
			"item":    proc.Item,
			"pid":     proc.PID,
			"backend": string(proc.Backend),
		})
	})
}

type RetryExtractRequest struct {
	Item    string `json:"item"`
	Online  bool   `json:"online"`
	DLC     bool   `json:"dlc"`
	Version string `json:"version"`
	// Selected is the archive or folder chosen by the user; only its base
	// name is handed to the worker.
	Selected string `json:"selected"`
}

// RetryExtract runs the direct worker in the foreground to re-extract a
// selected archive into the item folder.
func (s *Service) RetryExtract(ctx context.Context, req RetryExtractRequest) Result {
	return s.guard("retry-extract", func() Result {
		selected := strings.TrimSpace(req.Selected)
		if selected == "" {
			return s.fail("retry-extract", ErrNoSelection, zap.String("item", req.Item))
		}
		loc, err := s.resolver.Locate(req.Item)
		if err != nil {
			return s.fail("retry-extract", err, zap.String("item", req.Item))
		}

		spec := s.direct.RetryFolderSpec(loc.Item, req.Online, req.DLC, req.Version, loc.ItemDir, filepath.Base(selected), s.env)
		s.logger.Info("retrying extract",
			zap.String("item", loc.Item),
			zap.String("command", spec.DisplayCommand))

		res := s.runner.Run(ctx, spec)
		if res.StdoutTail != "" {
			s.logger.Debug("retry extract stdout", zap.String("item", loc.Item), zap.String("tail", res.StdoutTail))
		}
		if res.Err != nil || res.ExitCode != 0 {
			err := res.Err
			if err == nil {
				err = fmt.Errorf("extract worker exited with code %d", res.ExitCode)
			}
			return s.fail("retry-extract", err,
				zap.String("item", loc.Item),
				zap.Int("exit_code", res.ExitCode),
				zap.String("stderr_tail", res.StderrTail))
		}
		return ok("extract finished", map[string]any{
			"item":        loc.Item,
			"duration_ms": res.Duration.Milliseconds(),
		})
	})
}

// CheckRetryExtract reports whether the item folder holds anything besides
// its sidecar, i.e. whether there is material to extract again.
func (s *Service) CheckRetryExtract(ctx context.Context, item string) Result {
	return s.guard("check-retry-extract", func() Result {
		loc, err := s.resolver.Locate(item)
		if err != nil {
			return s.fail("check-retry-extract", err, zap.String("item", item))
		}
		entries, err := os.ReadDir(loc.ItemDir)
		if err != nil {
			return s.fail("check-retry-extract", err, zap.String("item", loc.Item))
		}
		keep := library.SidecarName(loc.Item)
		for _, entry := range entries {
			if entry.Name() != keep {
				return ok("", true)
			}
		}
		return ok("", false)
	})
}

func (s *Service) DownloadHistory(ctx context.Context) Result {
	return s.guard("download-history", func() Result {
		if s.history == nil {
			return ok("", []engine.HistoryEntry{})
		}
		entries, err := s.history.List()
		if err != nil {
			return s.fail("download-history", err)
		}
		if entries == nil {
			entries = []engine.HistoryEntry{}
		}
		return ok("", entries)
	})
}

// IsDownloaderRunning is true while this process holds a worker handle or
// any sidecar under the roots is mid-transfer.
func (s *Service) IsDownloaderRunning(ctx context.Context) Result {
	return s.guard("is-downloader-running", func() Result {
		if s.downloads != nil && len(s.downloads.Registry().Items()) > 0 {
			return ok("", true)
		}
		for _, root := range s.resolver.Roots() {
			if root == "" {
				continue
			}
			entries, err := os.ReadDir(root)
			if err != nil {
				s.logger.Debug("skip unreadable root", zap.String("root", root), zap.Error(err))
				continue
			}
			for _, entry := range entries {
				if !entry.IsDir() {
					continue
				}
				record, err := s.store.Read(filepath.Join(root, entry.Name()), entry.Name())
				if err != nil {
					continue
				}
				if active(record.Downloading) {
					return ok("", true)
				}
			}
		}
		return ok("", false)
	})
}

func active(state *sidecar.State) bool {
	if state == nil {
		return false
	}
	switch state.Phase {
	case sidecar.PhaseDownloading, sidecar.PhaseExtracting, sidecar.PhaseUpdating, sidecar.PhaseVerifying:
		return true
	}
	return false
}

func (s *Service) StartRefresh(ctx context.Context, credential string) Result {
	return s.guard("start-refresh", func() Result {
		already, err := s.refresh.Start(ctx, refresh.Options{
			OutputPath: s.indexDir,
			Credential: credential,
			PerPage:    s.cfg.LocalIndex.PerPage,
			Workers:    s.cfg.LocalIndex.Workers,
			UserAgent:  s.cfg.LocalIndex.UserAgent,
		})
		if err != nil {
			return s.fail("start-refresh", err, zap.String("output", s.indexDir))
		}
		if already {
			return ok("already running", nil)
		}
		return ok("refresh started", map[string]any{"output": s.indexDir})
	})
}

func (s *Service) StopRefresh(ctx context.Context) Result {
	return s.guard("stop-refresh", func() Result {
		if err := s.refresh.Stop(ctx, s.indexDir); err != nil {
			return s.fail("stop-refresh", err, zap.String("output", s.indexDir))
		}
		return ok("refresh stopped", nil)
	})
}

func (s *Service) RefreshStatus(ctx context.Context) Result {
	return s.guard("refresh-status", func() Result {
		status, err := s.refresh.Status(ctx, s.indexDir)
		if err != nil {
			return s.fail("refresh-status", err, zap.String("output", s.indexDir))
		}
		return ok("", status)
	})
}

func (s *Service) RefreshProgress(ctx context.Context) Result {
	return s.guard("refresh-progress", func() Result {
		progress, err := s.refresh.Progress(s.indexDir)
		if err != nil {
			return s.fail("refresh-progress", err, zap.String("output", s.indexDir))
		}
		if progress == nil {
			return ok("no refresh progress", nil)
		}
		return ok("", progress)
	})
}

func (s *Service) SendRefreshCredential(ctx context.Context, value string) Result {
	return s.guard("send-refresh-credential", func() Result {
		if err := s.refresh.SendCredential(value); err != nil {
			return s.fail("send-refresh-credential", err)
		}
		return ok("credential sent", nil)
	})
}

// TriggerShare uploads the local index when sharing is enabled.
func (s *Service) TriggerShare(ctx context.Context) Result {
	return s.guard("trigger-share", func() Result {
		if !s.cfg.LocalIndex.Share {
			return s.fail("trigger-share", ErrShareDisabled)
		}
		return s.upload(ctx, "trigger-share")
	})
}

// DebugTriggerShare uploads regardless of the share setting and reports
// how long the upload took.
func (s *Service) DebugTriggerShare(ctx context.Context) Result {
	return s.guard("debug-trigger-share", func() Result {
		s.logger.Debug("debug share triggered",
			zap.String("dir", s.indexDir),
			zap.Bool("share_enabled", s.cfg.LocalIndex.Share))
		return s.upload(ctx, "debug-trigger-share")
	})
}

func (s *Service) upload(ctx context.Context, op string) Result {
	if s.share == nil {
		return s.fail(op, ErrShareUnavailable)
	}
	started := time.Now()
	if err := s.share.Upload(ctx, s.indexDir); err != nil {
		return s.fail(op, err, zap.String("dir", s.indexDir))
	}
	elapsed := time.Since(started)
	_ = s.emitter.Emit(output.NewEvent(output.LevelInfo, output.EventShareComplete, "", "local index uploaded", map[string]any{
		"duration_ms": elapsed.Milliseconds(),
	}))
	return ok("local index uploaded", map[string]any{
		"dir":         s.indexDir,
		"duration_ms": elapsed.Milliseconds(),
	})
}

// FetchLatestIndex downloads the most recent shared index into the local
// index directory.
func (s *Service) FetchLatestIndex(ctx context.Context) Result {
	return s.guard("fetch-latest-index", func() Result {
		if s.share == nil {
			return s.fail("fetch-latest-index", ErrShareUnavailable)
		}
		if err := s.share.FetchLatest(ctx, s.indexDir); err != nil {
			return s.fail("fetch-latest-index", err, zap.String("dest", s.indexDir))
		}
		return ok("latest index downloaded", map[string]any{"dest": s.indexDir})
	})
}
