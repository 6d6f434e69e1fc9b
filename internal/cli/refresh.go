package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/auth"
	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/exitcode"
	"github.com/jaa/game-acquire/internal/refresh"
	"github.com/jaa/game-acquire/internal/service"
)

func newRefreshCommand(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the local index with the refresh worker",
	}
	cmd.AddCommand(newRefreshStartCommand(app))
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the refresh worker and restore index backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.StopRefresh(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Reconcile and print the refresh status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.RefreshStatus(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "progress",
		Short: "Print the raw refresh progress record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.RefreshProgress(ctx)
			})
		},
	})
	cmd.AddCommand(newRefreshSaveCredentialCommand(app))
	return cmd
}

// newRefreshStartCommand runs the refresh in the foreground. Lines typed
// on an interactive stdin are forwarded to the worker as replacement
// credentials.
func newRefreshStartCommand(app *AppContext) *cobra.Command {
	cookie := ""

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run a local index refresh until it finishes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, closeLog, err := newRuntime(app, nil)
			if err != nil {
				return err
			}
			defer closeLog()

			if strings.TrimSpace(cookie) == "" {
				resolved, err := auth.ResolveRefreshCookie(rt.cookiePath)
				if err != nil && !errors.Is(err, auth.ErrRefreshCookieNotFound) {
					return withExitCode(exitcode.RuntimeFailure, err)
				}
				cookie = resolved
			}

			ctx, stop := signal.NotifyContext(context.Background(), interruptSignals()...)
			defer stop()

			started := rt.svc.StartRefresh(ctx, cookie)
			if err := printResult(app, started); err != nil {
				return err
			}
			if started.Message == "already running" {
				return nil
			}

			if canPrompt(app) {
				go forwardCredentials(app, rt)
			}

			state, waitErr := rt.refresh.Wait(ctx)
			if waitErr != nil {
				stopped := rt.svc.StopRefresh(context.Background())
				if stopped.Err != nil {
					rt.logger.Warn("stop refresh after interrupt failed", zap.Error(stopped.Err))
				}
				if errors.Is(waitErr, context.Canceled) {
					return withExitCode(exitcode.Interrupted, waitErr)
				}
				return withExitCode(exitcode.RuntimeFailure, waitErr)
			}
			if state != refresh.StateCompleted {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("refresh finished in state %s", state))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cookie, "cookie", "", "Cloudflare clearance cookie (defaults to the saved credential)")
	return cmd
}

func forwardCredentials(app *AppContext, rt *appRuntime) {
	scanner := bufio.NewScanner(app.IO.In)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result := rt.svc.SendRefreshCredential(context.Background(), line)
		if !result.Success {
			return
		}
		if err := auth.SaveRefreshCookie(rt.cookiePath, line); err != nil {
			rt.logger.Warn("save refresh cookie failed", zap.String("path", rt.cookiePath), zap.Error(err))
			fmt.Fprintln(app.IO.ErrOut, "WARN: cookie sent but not saved:", err)
		}
	}
}

func newRefreshSaveCredentialCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save-credential [cookie]",
		Short: "Save the refresh cookie in the state directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 1 {
				value = args[0]
			} else if canPrompt(app) {
				prompted, err := promptLine(app, "Cloudflare clearance cookie")
				if err != nil {
					return withExitCode(exitcode.RuntimeFailure, err)
				}
				value = prompted
			}
			if strings.TrimSpace(value) == "" {
				return withExitCode(exitcode.InvalidUsage, fmt.Errorf("a cookie value is required"))
			}
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			path, err := config.RefreshCookiePath(cfg.StateDir)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			if err := auth.SaveRefreshCookie(path, value); err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			fmt.Fprintf(app.IO.Out, "Saved refresh cookie to %s\n", path)
			return nil
		},
	}
}
