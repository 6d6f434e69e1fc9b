package engine

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrSpawnFailure           = errors.New("failed to spawn worker")
	ErrTerminationTimeout     = errors.New("timed out waiting for worker to exit")
	ErrDeleteRetriesExhausted = errors.New("could not delete item directory")
	ErrUnknownBackend         = errors.New("no adapter registered for backend")
)

type ExecSpec struct {
	Bin            string
	Args           []string
	Dir            string
	Timeout        time.Duration
	DisplayCommand string
}

type ExecResult struct {
	ExitCode    int
	Duration    time.Duration
	Interrupted bool
	TimedOut    bool
	StdoutTail  string
	StderrTail  string
	Err         error
}

// Backend names a worker kind.
type Backend string

const (
	BackendDirect  Backend = "direct"
	BackendTorrent Backend = "torrent"
	BackendGofile  Backend = "gofile"
)

type LaunchRequest struct {
	Link       string
	Item       string
	Online     bool
	DLC        bool
	VR         bool
	Update     bool
	Version    string
	Size       string
	RootIndex  int
	ExternalID string
	ImageID    string
}

// RetryRequest relaunches a transfer with the short argument form workers
// accept for resuming into an existing folder.
type RetryRequest struct {
	Link    string
	Item    string
	Online  bool
	DLC     bool
	Version string
}

// Placement is where a launch writes: the resolved item folder, its root
// and the primary download root.
type Placement struct {
	Root        string
	ItemDir     string
	PrimaryRoot string
}

// WorkerEnv describes how worker executables are laid out and invoked on
// this host.
type WorkerEnv struct {
	Dir           string
	Python        string
	GOOS          string
	Notifications bool
	Theme         string
	Timeout       time.Duration
}

type Adapter interface {
	Kind() Backend
	// Executable is the worker's base name without extension.
	Executable() string
	BuildExecSpec(req LaunchRequest, place Placement, env WorkerEnv) (ExecSpec, error)
}

// RetryAdapter is implemented by backends that support RetryRequest.
type RetryAdapter interface {
	Adapter
	BuildRetrySpec(req RetryRequest, root string, env WorkerEnv) (ExecSpec, error)
}

// WorkerCommand builds the invocation for a worker: the frozen executable
// on Windows, the Python script through the interpreter elsewhere.
func WorkerCommand(env WorkerEnv, name string, args []string) ExecSpec {
	if env.GOOS == "windows" {
		bin := filepath.Join(env.Dir, name+".exe")
		return ExecSpec{
			Bin:            bin,
			Args:           args,
			Timeout:        env.Timeout,
			DisplayCommand: formatCommand(bin, args),
		}
	}

	python := env.Python
	if python == "" {
		python = "python3"
	}
	full := append([]string{filepath.Join(env.Dir, name+".py")}, args...)
	return ExecSpec{
		Bin:            python,
		Args:           full,
		Timeout:        env.Timeout,
		DisplayCommand: formatCommand(python, full),
	}
}

// NotificationArgs is the optional trailing flag pair every worker accepts.
func NotificationArgs(env WorkerEnv) []string {
	if !env.Notifications {
		return nil
	}
	return []string{"--withNotification", env.Theme}
}

func formatCommand(bin string, args []string) string {
	parts := []string{bin}
	parts = append(parts, args...)
	return strings.Join(parts, " ")
}
