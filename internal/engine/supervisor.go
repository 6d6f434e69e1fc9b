package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/library"
	"github.com/jaa/game-acquire/internal/output"
)

// HeaderImages stores an item's header image into its folder before the
// worker starts.
type HeaderImages interface {
	Fetch(ctx context.Context, imageID string, itemDir string) error
}

type SupervisorOptions struct {
	GameSource config.GameSource
	Env        WorkerEnv
	Adapters   []Adapter
	Registry   *Registry
	Resolver   *library.Resolver
	Emitter    output.EventEmitter
	Logger     *zap.Logger
	Images     HeaderImages
	History    *History
}

// Supervisor launches detached download workers and tracks their handles.
type Supervisor struct {
	source   config.GameSource
	env      WorkerEnv
	adapters map[Backend]Adapter
	registry *Registry
	resolver *library.Resolver
	emitter  output.EventEmitter
	logger   *zap.Logger
	images   HeaderImages
	history  *History
}

func NewSupervisor(opts SupervisorOptions) *Supervisor {
	adapters := make(map[Backend]Adapter, len(opts.Adapters))
	for _, adapter := range opts.Adapters {
		adapters[adapter.Kind()] = adapter
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = output.Discard{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry(0)
	}
	return &Supervisor{
		source:   opts.GameSource,
		env:      opts.Env,
		adapters: adapters,
		registry: registry,
		resolver: opts.Resolver,
		emitter:  emitter,
		logger:   logger,
		images:   opts.Images,
		history:  opts.History,
	}
}

func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Launch stops any worker still registered for the item, resolves the
// item folder, spawns the selected worker detached and registers its
// handle. For updates, resolving already cleared the previous content.
func (s *Supervisor) Launch(ctx context.Context, req LaunchRequest) (*Process, error) {
	item := library.SanitizeName(req.Item)
	req.Item = item

	if err := s.evict(ctx, item); err != nil {
		return nil, err
	}
	loc, err := s.resolver.Resolve(item, req.Update, req.RootIndex)
	if err != nil {
		s.emitError(item, err)
		return nil, err
	}

	backend := SelectBackend(s.source, req.Link)
	adapter, ok := s.adapters[backend]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownBackend, backend)
		s.emitError(item, err)
		return nil, err
	}

	if s.images != nil && req.ImageID != "" {
		if err := s.images.Fetch(ctx, req.ImageID, loc.ItemDir); err != nil {
			s.logger.Warn("header image fetch failed",
				zap.String("item", item),
				zap.String("image_id", req.ImageID),
				zap.Error(err))
		}
	}

	spec, err := adapter.BuildExecSpec(req, Placement{
		Root:        loc.Root,
		ItemDir:     loc.ItemDir,
		PrimaryRoot: s.resolver.Primary(),
	}, s.env)
	if err != nil {
		s.emitError(item, err)
		return nil, err
	}

	return s.spawn(ctx, item, backend, spec)
}

// Retry relaunches a worker into the item's existing root with the short
// argument form.
func (s *Supervisor) Retry(ctx context.Context, req RetryRequest) (*Process, error) {
	item := library.SanitizeName(req.Item)
	req.Item = item

	if err := s.evict(ctx, item); err != nil {
		return nil, err
	}
	loc, err := s.resolver.Locate(item)
	if err != nil {
		s.emitError(item, err)
		return nil, err
	}

	backend := SelectBackend("", req.Link)
	adapter, ok := s.adapters[backend].(RetryAdapter)
	if !ok {
		err := fmt.Errorf("%w: %s does not support retry", ErrUnknownBackend, backend)
		s.emitError(item, err)
		return nil, err
	}

	spec, err := adapter.BuildRetrySpec(req, loc.Root, s.env)
	if err != nil {
		s.emitError(item, err)
		return nil, err
	}
	return s.spawn(ctx, item, backend, spec)
}

// evict ends the previous worker for item before a replacement touches the
// item folder. Insert still guards against a handle registered meanwhile.
func (s *Supervisor) evict(ctx context.Context, item string) error {
	evicted, err := s.registry.Evict(ctx, item)
	if err != nil {
		err = fmt.Errorf("stop previous worker for %s: %w", item, err)
		s.emitError(item, err)
		return err
	}
	if evicted {
		s.logger.Info("previous worker stopped before relaunch", zap.String("item", item))
	}
	return nil
}

func (s *Supervisor) spawn(ctx context.Context, item string, backend Backend, spec ExecSpec) (*Process, error) {
	s.logger.Info("spawning worker",
		zap.String("item", item),
		zap.String("backend", string(backend)),
		zap.String("command", spec.DisplayCommand))

	proc, err := Start(spec, item, backend, StartOptions{Detached: true})
	if err != nil {
		s.emitError(item, err)
		return nil, err
	}

	if err := s.registry.Insert(ctx, proc); err != nil {
		proc.Kill()
		s.emitError(item, err)
		return nil, err
	}

	if s.history != nil {
		if err := s.history.Append(item); err != nil {
			s.logger.Warn("append download history failed", zap.String("item", item), zap.Error(err))
		}
	}

	_ = s.emitter.Emit(output.NewEvent(output.LevelInfo, output.EventDownloadStarted, item, "download started", map[string]any{
		"pid":     proc.PID,
		"backend": string(backend),
	}))

	go s.watch(proc)
	return proc, nil
}

func (s *Supervisor) watch(proc *Process) {
	<-proc.Done()
	s.registry.Remove(proc.Item, proc)

	code := proc.ExitCode()
	level := output.LevelInfo
	if code != 0 {
		level = output.LevelWarn
	}
	s.logger.Info("worker exited", zap.String("item", proc.Item), zap.Int("exit_code", code))
	_ = s.emitter.Emit(output.NewEvent(level, output.EventDownloadExited, proc.Item, fmt.Sprintf("worker exited with code %d", code), map[string]any{
		"code": code,
	}))
}

func (s *Supervisor) emitError(item string, err error) {
	s.logger.Error("download launch failed", zap.String("item", item), zap.Error(err))
	_ = s.emitter.Emit(output.NewEvent(output.LevelError, output.EventDownloadError, item, err.Error(), nil))
}
