// Package refresh runs the local index refresh worker, relays its progress
// and credential prompts, and shares the finished index when enabled.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/engine"
	"github.com/jaa/game-acquire/internal/fileops"
	"github.com/jaa/game-acquire/internal/output"
)

var (
	ErrNotRunning     = errors.New("process not running")
	ErrUnexpectedExit = errors.New("refresh worker terminated unexpectedly")
	ErrStartCanceled  = errors.New("refresh stopped while starting")
)

// CredentialMarker is printed by the worker when its cookie has expired.
const CredentialMarker = "COOKIE_REFRESH_NEEDED"

const (
	credentialTitle   = "Cookie Expired"
	credentialMessage = "The Cloudflare cookie has expired. Please provide a new cookie to continue the refresh."

	processItem = "local-refresh"
)

type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

type Options struct {
	OutputPath string
	Credential string
	PerPage    int
	Workers    int
	UserAgent  string
}

type Uploader interface {
	Upload(ctx context.Context, dir string) error
}

type Notifier interface {
	Notify(ctx context.Context, title string, message string) error
}

type ManagerOptions struct {
	Env        engine.WorkerEnv
	Enumerator engine.ProcessEnumerator
	Emitter    output.EventEmitter
	Logger     *zap.Logger
	// Notifier is nil when desktop notifications are disabled.
	Notifier Notifier
	Uploader Uploader
	// Share uploads the index after a successful refresh.
	Share bool

	PollInterval    time.Duration
	PollDelay       time.Duration
	MonitorInterval time.Duration
	KillSettle      time.Duration
	KillTimeout     time.Duration
}

type Status struct {
	Running  bool     `json:"isRunning"`
	Progress Progress `json:"progress"`
}

// Manager owns the single refresh worker.
type Manager struct {
	env        engine.WorkerEnv
	enumerator engine.ProcessEnumerator
	emitter    output.EventEmitter
	logger     *zap.Logger
	notifier   Notifier
	uploader   Uploader
	share      bool

	pollInterval    time.Duration
	pollDelay       time.Duration
	monitorInterval time.Duration
	killSettle      time.Duration
	killTimeout     time.Duration
	sleep           func(ctx context.Context, d time.Duration) error
	now             func() time.Time

	mu         sync.Mutex
	state      State
	proc       *engine.Process
	outputPath string
	stopPoll   context.CancelFunc
	done       chan struct{}
	// generation changes on every Start and Stop, so a Start can tell
	// whether a Stop arrived while it was launching.
	generation uint64
}

func NewManager(opts ManagerOptions) *Manager {
	emitter := opts.Emitter
	if emitter == nil {
		emitter = output.Discard{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		env:             opts.Env,
		enumerator:      opts.Enumerator,
		emitter:         emitter,
		logger:          logger,
		notifier:        opts.Notifier,
		uploader:        opts.Uploader,
		share:           opts.Share,
		pollInterval:    orDefault(opts.PollInterval, 500*time.Millisecond),
		pollDelay:       orDefault(opts.PollDelay, time.Second),
		monitorInterval: orDefault(opts.MonitorInterval, time.Second),
		killSettle:      orDefault(opts.KillSettle, 500*time.Millisecond),
		killTimeout:     orDefault(opts.KillTimeout, 10*time.Second),
		sleep:           sleepContext,
		now:             time.Now,
		state:           StateIdle,
	}
}

func orDefault(value time.Duration, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start spawns the refresh worker. It reports alreadyRunning without doing
// anything when a refresh is starting or running.
func (m *Manager) Start(ctx context.Context, opts Options) (alreadyRunning bool, err error) {
	if strings.TrimSpace(opts.OutputPath) == "" {
		return false, fmt.Errorf("refresh output path must be set")
	}

	m.mu.Lock()
	if m.state == StateStarting || m.state == StateRunning {
		m.mu.Unlock()
		return true, nil
	}
	m.state = StateStarting
	m.generation++
	gen := m.generation
	m.cancelPollLocked()
	previous := m.proc
	m.proc = nil
	m.mu.Unlock()

	proc, flush, err := m.launch(ctx, previous, opts)
	if err != nil {
		m.mu.Lock()
		if m.generation == gen {
			m.state = StateFailed
		}
		m.mu.Unlock()
		m.logger.Error("refresh start failed", zap.Error(err))
		_ = m.emitter.Emit(output.NewEvent(output.LevelError, output.EventRefreshError, "", err.Error(), nil))
		return false, err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		cancel()
		m.discard(ctx, proc, flush)
		return false, ErrStartCanceled
	}
	m.state = StateRunning
	m.proc = proc
	m.outputPath = opts.OutputPath
	m.stopPoll = cancel
	m.done = done
	m.mu.Unlock()

	go m.poll(pollCtx, opts.OutputPath, m.pollDelay, m.pollInterval, false)
	go m.wait(proc, flush, opts.OutputPath, done)

	m.logger.Info("refresh worker started", zap.Int("pid", proc.PID), zap.String("output", opts.OutputPath))
	_ = m.emitter.Emit(output.NewEvent(output.LevelInfo, output.EventRefreshStarted, "", "local index refresh started", map[string]any{
		"pid":    proc.PID,
		"output": opts.OutputPath,
	}))
	return false, nil
}

// discard ends a worker whose start was overtaken by Stop.
func (m *Manager) discard(ctx context.Context, proc *engine.Process, flush func()) {
	proc.Kill()
	if err := proc.WaitExit(ctx, m.killTimeout); err != nil {
		m.logger.Warn("canceled refresh worker did not exit", zap.Int("pid", proc.PID), zap.Error(err))
		return
	}
	flush()
	m.logger.Info("refresh worker stopped during start", zap.Int("pid", proc.PID))
}

// launch returns the new worker and a func that delivers any trailing
// unterminated output once it has exited.
func (m *Manager) launch(ctx context.Context, previous *engine.Process, opts Options) (*engine.Process, func(), error) {
	m.killAll(ctx, previous)
	if err := m.sleep(ctx, m.killSettle); err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(opts.OutputPath, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create refresh output %s: %w", opts.OutputPath, err)
	}
	if err := os.Remove(progressPath(opts.OutputPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("remove stale progress file: %w", err)
	}

	spec := engine.WorkerCommand(m.env, engine.WorkerRefresh, m.args(opts))
	stdout := output.NewLineWriter(m.onStdout)
	stderr := output.NewLineWriter(m.onStderr)
	proc, err := engine.Start(spec, processItem, "", engine.StartOptions{
		PipeStdin: true,
		Stdout:    stdout,
		Stderr:    stderr,
	})
	if err != nil {
		return nil, nil, err
	}
	return proc, func() {
		stdout.Flush()
		stderr.Flush()
	}, nil
}

func (m *Manager) args(opts Options) []string {
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	viewWorkers := "32"
	if m.env.GOOS == "windows" {
		viewWorkers = "4"
	}

	args := []string{
		"--output", opts.OutputPath,
		"--cookie", opts.Credential,
		"--per-page", strconv.Itoa(perPage),
		"--workers", strconv.Itoa(workers),
		"--view-workers", viewWorkers,
	}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		args = append(args, "--user-agent", ua)
	}
	return args
}

// killAll ends a held worker and any stray refresh worker left by an
// earlier session.
func (m *Manager) killAll(ctx context.Context, held *engine.Process) {
	if held != nil {
		held.Kill()
		if err := held.WaitExit(ctx, m.killTimeout); err != nil {
			m.logger.Warn("held refresh worker did not exit", zap.Int("pid", held.PID), zap.Error(err))
		}
	}
	if m.enumerator == nil {
		return
	}
	pids, err := m.enumerator.Find(ctx, []string{engine.WorkerRefresh}, "")
	if err != nil {
		m.logger.Warn("refresh worker enumeration failed", zap.Error(err))
	}
	for _, pid := range pids {
		if err := m.enumerator.KillTree(ctx, pid); err != nil {
			m.logger.Warn("kill stray refresh worker failed", zap.Int32("pid", pid), zap.Error(err))
		}
	}
}

func (m *Manager) onStdout(line string) {
	m.logger.Debug("refresh worker output", zap.String("line", line))
	if !strings.Contains(line, CredentialMarker) {
		return
	}

	m.logger.Warn("refresh worker needs a new credential")
	_ = m.emitter.Emit(output.NewEvent(output.LevelWarn, output.EventRefreshCredentialNeeded, "", credentialMessage, nil))
	if m.notifier != nil {
		if err := m.notifier.Notify(context.Background(), credentialTitle, credentialMessage); err != nil {
			m.logger.Warn("credential notification failed", zap.Error(err))
		}
	}
}

func (m *Manager) onStderr(line string) {
	if output.LooksLikeWarningOrError(line) {
		m.logger.Warn("refresh worker stderr", zap.String("line", line))
		return
	}
	m.logger.Debug("refresh worker stderr", zap.String("line", line))
}

func (m *Manager) wait(proc *engine.Process, flush func(), outputPath string, done chan struct{}) {
	defer close(done)
	<-proc.Done()
	flush()
	code := proc.ExitCode()

	m.mu.Lock()
	current := m.proc == proc
	if current {
		m.proc = nil
		m.cancelPollLocked()
		if code == 0 {
			m.state = StateCompleted
		} else {
			m.state = StateFailed
		}
	}
	m.mu.Unlock()

	m.logger.Info("refresh worker exited", zap.Int("exit_code", code))
	level := output.LevelInfo
	if code != 0 {
		level = output.LevelWarn
	}
	_ = m.emitter.Emit(output.NewEvent(level, output.EventRefreshComplete, "", fmt.Sprintf("refresh exited with code %d", code), map[string]any{
		"code": code,
	}))

	if current && code == 0 && m.share && m.uploader != nil {
		m.shareIndex(context.Background(), outputPath)
	}
}

func (m *Manager) shareIndex(ctx context.Context, outputPath string) {
	if err := m.uploader.Upload(ctx, outputPath); err != nil {
		m.logger.Error("local index share failed", zap.String("dir", outputPath), zap.Error(err))
		_ = m.emitter.Emit(output.NewEvent(output.LevelError, output.EventShareFailed, "", err.Error(), nil))
		return
	}
	m.logger.Info("local index shared", zap.String("dir", outputPath))
	_ = m.emitter.Emit(output.NewEvent(output.LevelInfo, output.EventShareComplete, "", "local index shared", nil))
}

// poll forwards progress.json until the worker reports a final status or
// ctx ends. A monitor started by Status has no exit waiter, so it reports
// completion itself.
func (m *Manager) poll(ctx context.Context, outputPath string, delay time.Duration, interval time.Duration, reportCompletion bool) {
	if err := m.sleep(ctx, delay); err != nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		progress, err := readProgress(outputPath)
		if err != nil {
			m.logger.Debug("refresh progress unreadable", zap.Error(err))
		}
		if progress != nil {
			_ = m.emitter.Emit(output.NewEvent(output.LevelInfo, output.EventRefreshProgress, "", progress.Status(), map[string]any(progress)))
			if progress.Finished() {
				if reportCompletion {
					m.finishMonitor(progress)
				}
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) finishMonitor(progress Progress) {
	code := 1
	state := StateFailed
	if progress.Status() == StatusCompleted {
		code = 0
		state = StateCompleted
	}
	m.mu.Lock()
	m.cancelPollLocked()
	if m.proc == nil {
		m.state = state
	}
	m.mu.Unlock()
	_ = m.emitter.Emit(output.NewEvent(output.LevelInfo, output.EventRefreshComplete, "", fmt.Sprintf("refresh finished with status %s", progress.Status()), map[string]any{
		"code": code,
	}))
}

func (m *Manager) cancelPollLocked() {
	if m.stopPoll != nil {
		m.stopPoll()
		m.stopPoll = nil
	}
}

// Wait blocks until the worker from the last Start has exited and any
// share it triggered has finished.
func (m *Manager) Wait(ctx context.Context) (State, error) {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return m.State(), ErrNotRunning
	}
	select {
	case <-ctx.Done():
		return m.State(), ctx.Err()
	case <-done:
		return m.State(), nil
	}
}

// SendCredential writes a replacement cookie to the worker's stdin.
func (m *Manager) SendCredential(value string) error {
	m.mu.Lock()
	proc := m.proc
	m.mu.Unlock()
	if proc == nil || proc.Exited() {
		return ErrNotRunning
	}
	if err := proc.WriteLine(value); err != nil {
		return fmt.Errorf("send credential: %w", err)
	}
	return nil
}

// Stop kills the worker and strays, then restores the index backups the
// worker keeps while rebuilding. An empty outputPath falls back to the
// path of the last start.
func (m *Manager) Stop(ctx context.Context, outputPath string) error {
	m.mu.Lock()
	m.cancelPollLocked()
	m.generation++
	proc := m.proc
	m.proc = nil
	m.state = StateIdle
	if outputPath == "" {
		outputPath = m.outputPath
	}
	m.mu.Unlock()

	m.killAll(ctx, proc)
	if outputPath == "" {
		return nil
	}

	var errs []error
	if _, err := fileops.RestoreBackup(filepath.Join(outputPath, "imgs_backup"), filepath.Join(outputPath, "imgs")); err != nil {
		errs = append(errs, err)
	}
	if _, err := fileops.RestoreBackup(filepath.Join(outputPath, "ascendara_games_backup.json"), filepath.Join(outputPath, "ascendara_games.json")); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("restore refresh backups failed", zap.Error(err))
		return err
	}
	m.logger.Info("refresh stopped", zap.String("output", outputPath))
	return nil
}

// Status reconciles memory, progress.json and the process table. When the
// file claims a run this manager does not hold, a live stray is monitored
// and a missing one is recorded as an unexpected exit.
func (m *Manager) Status(ctx context.Context, outputPath string) (Status, error) {
	m.mu.Lock()
	running := m.proc != nil && m.stopPoll != nil
	monitoring := m.stopPoll != nil
	m.mu.Unlock()

	var progress Progress
	if outputPath != "" {
		p, err := readProgress(outputPath)
		if err != nil {
			return Status{}, err
		}
		progress = p
	}

	if running || progress == nil || progress.Status() != StatusRunning {
		return Status{Running: running, Progress: progress}, nil
	}

	var pids []int32
	if m.enumerator != nil {
		found, err := m.enumerator.Find(ctx, []string{engine.WorkerRefresh}, "")
		if err != nil {
			return Status{}, fmt.Errorf("check refresh worker: %w", err)
		}
		pids = found
	}

	if len(pids) > 0 {
		if !monitoring {
			pollCtx, cancel := context.WithCancel(context.Background())
			m.mu.Lock()
			m.stopPoll = cancel
			m.state = StateRunning
			m.outputPath = outputPath
			m.mu.Unlock()
			go m.poll(pollCtx, outputPath, 0, m.monitorInterval, true)
		}
		return Status{Running: true, Progress: progress}, nil
	}

	progress.markUnexpectedExit(m.now())
	if err := writeProgress(outputPath, progress); err != nil {
		return Status{}, err
	}
	m.mu.Lock()
	if m.state == StateRunning || m.state == StateStarting {
		m.state = StateFailed
	}
	m.mu.Unlock()
	m.logger.Warn("refresh worker gone while progress claimed running", zap.Error(ErrUnexpectedExit))
	_ = m.emitter.Emit(output.NewEvent(output.LevelError, output.EventRefreshError, "", ErrUnexpectedExit.Error(), nil))
	return Status{Running: false, Progress: progress}, nil
}

// Progress returns the current progress.json, or nil when there is none.
func (m *Manager) Progress(outputPath string) (Progress, error) {
	return readProgress(outputPath)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
