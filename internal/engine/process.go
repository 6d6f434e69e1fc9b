package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Process is a handle on a spawned worker. Only the Registry (or the
// refresh manager for its single worker) holds one.
type Process struct {
	Item    string
	Backend Backend
	PID     int
	Started time.Time

	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	mu       sync.Mutex
	exitCode int
	waitErr  error
}

type StartOptions struct {
	// Detached puts the worker in its own session so it outlives gacq.
	Detached bool
	// PipeStdin keeps a writable stdin on the handle.
	PipeStdin bool
	Stdout    io.Writer
	Stderr    io.Writer
}

var startCommand = func(cmd *exec.Cmd) error { return cmd.Start() }

// Start spawns spec and begins waiting for it in the background. Stdio not
// requested in opts is connected to the null device.
func Start(spec ExecSpec, item string, backend Backend, opts StartOptions) (*Process, error) {
	if spec.Bin == "" {
		return nil, fmt.Errorf("%w: missing binary", ErrSpawnFailure)
	}

	cmd := exec.Command(spec.Bin, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	if opts.Detached {
		configureDetached(cmd)
	} else {
		configureCommandForTermination(cmd)
	}

	var stdin io.WriteCloser
	if opts.PipeStdin {
		pipe, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("%w: stdin pipe: %v", ErrSpawnFailure, err)
		}
		stdin = pipe
	}

	if err := startCommand(cmd); err != nil {
		if stdin != nil {
			_ = stdin.Close()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawnFailure, spec.Bin, err)
	}

	p := &Process{
		Item:    item,
		Backend: backend,
		PID:     cmd.Process.Pid,
		Started: time.Now().UTC(),
		cmd:     cmd,
		stdin:   stdin,
		done:    make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()

	code := 0
	if err != nil {
		code = 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	p.mu.Lock()
	p.exitCode = code
	p.waitErr = err
	p.mu.Unlock()
	close(p.done)
}

// Done is closed once the worker has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitCode is valid after Done is closed. A worker killed by a signal
// reports -1.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitErr
}

// Kill forcefully ends the worker and its descendants.
func (p *Process) Kill() {
	if p.Exited() {
		return
	}
	terminateCommand(p.cmd)
}

// WaitExit blocks until the worker is gone, ctx ends, or timeout passes.
func (p *Process) WaitExit(ctx context.Context, timeout time.Duration) error {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer:
		return fmt.Errorf("%w: pid %d", ErrTerminationTimeout, p.PID)
	}
}

// WriteLine sends line plus a newline to the worker's stdin.
func (p *Process) WriteLine(line string) error {
	if p.stdin == nil {
		return errors.New("worker stdin is not piped")
	}
	if p.Exited() {
		return errors.New("process not running")
	}
	_, err := io.WriteString(p.stdin, line+"\n")
	return err
}
