package cli

import (
	"fmt"
	"io"
	"os"
	goruntime "runtime"
	"time"

	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/adapters/direct"
	"github.com/jaa/game-acquire/internal/adapters/gofile"
	"github.com/jaa/game-acquire/internal/adapters/torrent"
	"github.com/jaa/game-acquire/internal/auth"
	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/engine"
	"github.com/jaa/game-acquire/internal/exitcode"
	"github.com/jaa/game-acquire/internal/library"
	"github.com/jaa/game-acquire/internal/logging"
	"github.com/jaa/game-acquire/internal/notify"
	"github.com/jaa/game-acquire/internal/output"
	"github.com/jaa/game-acquire/internal/refresh"
	"github.com/jaa/game-acquire/internal/service"
	"github.com/jaa/game-acquire/internal/share"
	"github.com/jaa/game-acquire/internal/sidecar"
	"github.com/jaa/game-acquire/internal/verify"
)

type appRuntime struct {
	cfg        config.Config
	cookiePath string
	logger     *zap.Logger
	emitter    output.EventEmitter
	refresh    *refresh.Manager
	svc        *service.Service
}

// newRuntime loads and validates config and wires every component behind
// the service. events receives emitted events; nil selects the default
// emitter for the output mode.
func newRuntime(app *AppContext, events io.Writer) (*appRuntime, func(), error) {
	cfg, err := loadConfig(app)
	if err != nil {
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}

	logPath, err := config.ExpandPath(cfg.LogFile)
	if err != nil {
		return nil, nil, withExitCode(exitcode.InvalidConfig, fmt.Errorf("resolve log_file: %w", err))
	}
	logger, closeLog, err := logging.New(logging.Options{
		Path:    logPath,
		Writer:  app.IO.ErrOut,
		Verbose: app.Opts.Verbose,
	})
	if err != nil {
		return nil, nil, withExitCode(exitcode.RuntimeFailure, err)
	}

	var emitter output.EventEmitter
	switch {
	case events != nil:
		emitter = output.NewJSONEmitter(events)
	case app.Opts.JSON:
		emitter = output.NewJSONEmitter(app.IO.Out)
	default:
		emitter = output.NewHumanEmitter(app.IO.Out, app.IO.ErrOut, app.Opts.Quiet, app.Opts.Verbose)
	}

	roots := make([]string, 0, 1+len(cfg.AdditionalDirectories))
	for _, raw := range cfg.Roots() {
		root, err := config.ExpandPath(raw)
		if err != nil {
			closeLog()
			return nil, nil, withExitCode(exitcode.InvalidConfig, err)
		}
		roots = append(roots, root)
	}
	stateDir, err := config.ExpandPath(cfg.StateDir)
	if err != nil {
		closeLog()
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		closeLog()
		return nil, nil, withExitCode(exitcode.RuntimeFailure, fmt.Errorf("create state directory %s: %w", stateDir, err))
	}
	historyPath, err := config.HistoryPath(cfg.StateDir)
	if err != nil {
		closeLog()
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}
	cookiePath, err := config.RefreshCookiePath(cfg.StateDir)
	if err != nil {
		closeLog()
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}
	stampPath, err := config.LatestIndexStampPath(cfg.StateDir)
	if err != nil {
		closeLog()
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}
	workersDir, err := config.ExpandPath(cfg.Workers.Dir)
	if err != nil {
		closeLog()
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}
	indexDir, err := config.ExpandPath(cfg.LocalIndex.Path)
	if err != nil {
		closeLog()
		return nil, nil, withExitCode(exitcode.InvalidConfig, err)
	}

	env := engine.WorkerEnv{
		Dir:           workersDir,
		Python:        cfg.Workers.Python,
		GOOS:          goruntime.GOOS,
		Notifications: cfg.Notifications,
		Theme:         cfg.Theme,
		Timeout:       time.Duration(cfg.Workers.TimeoutSeconds) * time.Second,
	}

	creds, credErr := auth.ResolveAPICredentials(cfg.API.KeyEnv, cfg.API.SeedEnv, cfg.API.ImageKeyEnv)
	if credErr != nil {
		logger.Debug("api credentials unavailable", zap.Error(credErr))
	}

	var sharer service.Sharer
	var uploader refresh.Uploader
	if credErr == nil {
		client := share.NewClient(share.Options{
			BaseURL:         cfg.API.BaseURL,
			Credentials:     creds,
			LatestStampPath: stampPath,
			Logger:          logging.Component(logger, "share"),
		})
		sharer = client
		uploader = client
	}

	var notifier refresh.Notifier
	if cfg.Notifications {
		notifier = notify.NewDesktop(workersDir, cfg.Theme)
	}

	localIndex := ""
	if cfg.LocalIndex.Enabled {
		localIndex = indexDir
	}
	images := &share.ImageFetcher{
		BaseURL:       cfg.API.BaseURL,
		ImageKey:      creds.ImageKey,
		GameSource:    cfg.GameSource,
		LocalIndexDir: localIndex,
	}

	store := sidecar.NewStore()
	resolver := library.NewResolver(roots)
	registry := engine.NewRegistry(cfg.Termination.Timeout.Duration)
	enumerator := engine.NewSystemEnumerator()
	history := engine.NewHistory(historyPath)

	supervisor := engine.NewSupervisor(engine.SupervisorOptions{
		GameSource: cfg.GameSource,
		Env:        env,
		Adapters:   []engine.Adapter{direct.New(), gofile.New(), torrent.New()},
		Registry:   registry,
		Resolver:   resolver,
		Emitter:    emitter,
		Logger:     logging.Component(logger, "supervisor"),
		Images:     images,
		History:    history,
	})
	terminator := engine.NewTerminator(engine.TerminatorOptions{
		Enumerator: enumerator,
		Registry:   registry,
		Store:      store,
		Resolver:   resolver,
		Stop: engine.StopOptions{
			SettleDelay:   cfg.Termination.SettleDelay.Duration,
			Timeout:       cfg.Termination.Timeout.Duration,
			DeleteRetries: cfg.Termination.DeleteRetries,
			DeleteBackoff: cfg.Termination.DeleteBackoff.Duration,
		},
		Logger: logging.Component(logger, "terminator"),
	})
	manager := refresh.NewManager(refresh.ManagerOptions{
		Env:          env,
		Enumerator:   enumerator,
		Emitter:      emitter,
		Logger:       logging.Component(logger, "refresh"),
		Notifier:     notifier,
		Uploader:     uploader,
		Share:        cfg.LocalIndex.Share && uploader != nil,
		PollInterval: cfg.LocalIndex.PollInterval.Duration,
	})

	runner := engine.NewSubprocessRunner(nil, nil, nil)
	runner.Logger = logging.Component(logger, "runner")

	svc := service.New(service.Options{
		Config:     cfg,
		Downloads:  supervisor,
		Terminator: terminator,
		Verifier:   verify.New(store, verify.DefaultOptions()),
		Resolver:   resolver,
		Store:      store,
		Refresh:    manager,
		Share:      sharer,
		History:    history,
		Runner:     runner,
		Env:        env,
		Logger:     logging.Component(logger, "service"),
		Emitter:    emitter,
	})

	return &appRuntime{
		cfg:        cfg,
		cookiePath: cookiePath,
		logger:     logger,
		emitter:    emitter,
		refresh:    manager,
		svc:        svc,
	}, closeLog, nil
}
