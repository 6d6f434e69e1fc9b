package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/exitcode"
	"github.com/jaa/game-acquire/internal/service"
)

const maxRequestLine = 1 << 20

// lockedWriter serializes whole writes from events and responses sharing
// one stream.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newServeCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Answer newline-delimited JSON requests on stdin",
		Long:  "serve reads one JSON request per line ({\"id\",\"op\",\"args\"}) and writes one JSON response per line. Events are interleaved on the same stream. Workers started here keep running after serve exits.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &lockedWriter{w: app.IO.Out}
			rt, closeLog, err := newRuntime(app, out)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), interruptSignals()...)
			defer stop()

			if err := serveRequests(ctx, rt.svc, app.IO.In, out, rt.logger); err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			return nil
		},
	}
}

type dispatcher interface {
	Dispatch(ctx context.Context, req service.Request) service.Response
}

// serveRequests handles requests one at a time until in is exhausted or
// ctx ends.
func serveRequests(ctx context.Context, svc dispatcher, in io.Reader, out io.Writer, logger *zap.Logger) error {
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRequestLine)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var req service.Request
			var resp service.Response
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				logger.Warn("malformed request", zap.Error(err))
				resp = service.Response{Result: service.Result{Error: "malformed request: " + err.Error()}}
			} else {
				resp = svc.Dispatch(ctx, req)
			}
			if err := encoder.Encode(resp); err != nil {
				return err
			}
		}
	}
}
