package engine

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/output"
)

const defaultTailBytes = 64 * 1024

// ExecRunner runs a worker in the foreground and waits for it.
type ExecRunner interface {
	Run(ctx context.Context, spec ExecSpec) ExecResult
}

// SubprocessRunner runs foreground workers such as the re-extract pass.
// Output always lands in the result tails; when Logger is set each line
// is also logged, and Stdout/Stderr receive a raw copy when non-nil.
type SubprocessRunner struct {
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	Logger    *zap.Logger
	TailBytes int
}

func NewSubprocessRunner(stdin io.Reader, stdout, stderr io.Writer) *SubprocessRunner {
	return &SubprocessRunner{Stdin: stdin, Stdout: stdout, Stderr: stderr}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = defaultTailBytes
	}
	return &tailBuffer{buf: make([]byte, 0, max), max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.max {
		t.buf = append(t.buf[:0], p[n-t.max:]...)
		return n, nil
	}
	if drop := len(t.buf) + n - t.max; drop > 0 {
		t.buf = append(t.buf[:0], t.buf[drop:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

func (r *SubprocessRunner) Run(ctx context.Context, spec ExecSpec) ExecResult {
	start := time.Now()
	if spec.Bin == "" {
		return ExecResult{ExitCode: 1, Err: errors.New("missing binary")}
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Bin, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdin = r.Stdin
	configureCommandForTermination(cmd)
	cmd.Cancel = func() error {
		terminateCommand(cmd)
		return nil
	}

	stdoutTail := newTailBuffer(r.TailBytes)
	stderrTail := newTailBuffer(r.TailBytes)
	stdoutLines, stderrLines := r.lineLoggers(spec)
	cmd.Stdout = fanOut(stdoutTail, r.Stdout, stdoutLines)
	cmd.Stderr = fanOut(stderrTail, r.Stderr, stderrLines)

	err := cmd.Run()
	if stdoutLines != nil {
		stdoutLines.Flush()
		stderrLines.Flush()
	}

	result := ExecResult{
		Duration:   time.Since(start),
		StdoutTail: stdoutTail.String(),
		StderrTail: stderrTail.String(),
		Err:        err,
	}
	classifyExit(&result, runCtx.Err(), err)
	return result
}

func (r *SubprocessRunner) lineLoggers(spec ExecSpec) (*output.LineWriter, *output.LineWriter) {
	if r.Logger == nil {
		return nil, nil
	}
	logger := r.Logger.With(zap.String("bin", spec.Bin))
	stdout := output.NewLineWriter(func(line string) {
		logger.Debug("worker output", zap.String("line", line))
	})
	stderr := output.NewLineWriter(func(line string) {
		if output.LooksLikeWarningOrError(line) {
			logger.Warn("worker stderr", zap.String("line", line))
			return
		}
		logger.Debug("worker stderr", zap.String("line", line))
	})
	return stdout, stderr
}

func fanOut(tail *tailBuffer, raw io.Writer, lines *output.LineWriter) io.Writer {
	writers := []io.Writer{tail}
	if raw != nil {
		writers = append(writers, raw)
	}
	if lines != nil {
		writers = append(writers, lines)
	}
	if len(writers) == 1 {
		return tail
	}
	return io.MultiWriter(writers...)
}

// classifyExit fills the exit code: 130 for cancellation, the worker's own
// code when it ran, 127 when the binary is missing and 1 otherwise.
func classifyExit(result *ExecResult, ctxErr error, err error) {
	if err == nil {
		return
	}
	result.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
	if errors.Is(ctxErr, context.Canceled) {
		result.Interrupted = true
		result.ExitCode = 130
		return
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrNotFound):
		result.ExitCode = 127
	default:
		result.ExitCode = 1
	}
}
