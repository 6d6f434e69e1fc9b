package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaa/game-acquire/internal/engine"
	"github.com/jaa/game-acquire/internal/exitcode"
	"github.com/jaa/game-acquire/internal/service"
)

// runOperation wires the runtime, runs op under an interrupt-aware context
// and prints its Result.
func runOperation(app *AppContext, op func(ctx context.Context, svc *service.Service) service.Result) error {
	rt, closeLog, err := newRuntime(app, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), interruptSignals()...)
	defer stop()

	return printResult(app, op(ctx, rt.svc))
}

func newDownloadCommand(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Start, stop, verify and retry item downloads",
	}
	cmd.AddCommand(newDownloadStartCommand(app))
	cmd.AddCommand(newDownloadStopCommand(app))
	cmd.AddCommand(newDownloadVerifyCommand(app))
	cmd.AddCommand(newDownloadRetryCommand(app))
	cmd.AddCommand(newDownloadRetryExtractCommand(app))
	cmd.AddCommand(newDownloadCheckExtractCommand(app))
	cmd.AddCommand(newDownloadHistoryCommand(app))
	cmd.AddCommand(newDownloadRunningCommand(app))
	return cmd
}

func newDownloadStartCommand(app *AppContext) *cobra.Command {
	var req engine.LaunchRequest

	cmd := &cobra.Command{
		Use:   "start <item>",
		Short: "Launch a detached download worker for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Item = args[0]
			if strings.TrimSpace(req.Link) == "" {
				return withExitCode(exitcode.InvalidUsage, fmt.Errorf("--link is required"))
			}
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.StartDownload(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&req.Link, "link", "", "Download link, magnet URI or gofile share")
	cmd.Flags().BoolVar(&req.Online, "online", false, "Item supports online play")
	cmd.Flags().BoolVar(&req.DLC, "dlc", false, "Item includes DLC")
	cmd.Flags().BoolVar(&req.VR, "vr", false, "Item is a VR title")
	cmd.Flags().BoolVar(&req.Update, "update", false, "Replace the content of an existing item")
	cmd.Flags().StringVar(&req.Version, "item-version", "", "Item version label")
	cmd.Flags().StringVar(&req.Size, "size", "", "Expected download size label")
	cmd.Flags().IntVar(&req.RootIndex, "dir-index", 0, "Download root index (0 is the primary directory)")
	cmd.Flags().StringVar(&req.ExternalID, "game-id", "", "Catalog identifier passed to the worker")
	cmd.Flags().StringVar(&req.ImageID, "image-id", "", "Header image identifier")
	return cmd
}

func newDownloadStopCommand(app *AppContext) *cobra.Command {
	deleteContents := false

	cmd := &cobra.Command{
		Use:   "stop <item>",
		Short: "Stop an item's workers and mark it stopped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.StopDownload(ctx, args[0], deleteContents)
			})
		},
	}

	cmd.Flags().BoolVar(&deleteContents, "delete", false, "Remove the item folder after the workers exit")
	return cmd
}

func newDownloadVerifyCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <item>",
		Short: "Check an item folder against its file manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.VerifyDownload(ctx, args[0])
			})
		},
	}
}

func newDownloadRetryCommand(app *AppContext) *cobra.Command {
	var req engine.RetryRequest

	cmd := &cobra.Command{
		Use:   "retry <item>",
		Short: "Relaunch a transfer into the item's existing folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Item = args[0]
			if strings.TrimSpace(req.Link) == "" {
				return withExitCode(exitcode.InvalidUsage, fmt.Errorf("--link is required"))
			}
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.RetryDownload(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&req.Link, "link", "", "Download link or gofile share")
	cmd.Flags().BoolVar(&req.Online, "online", false, "Item supports online play")
	cmd.Flags().BoolVar(&req.DLC, "dlc", false, "Item includes DLC")
	cmd.Flags().StringVar(&req.Version, "item-version", "", "Item version label")
	return cmd
}

func newDownloadRetryExtractCommand(app *AppContext) *cobra.Command {
	var req service.RetryExtractRequest

	cmd := &cobra.Command{
		Use:   "retry-extract <item>",
		Short: "Extract a selected archive or folder into the item folder again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Item = args[0]
			if strings.TrimSpace(req.Selected) == "" && canPrompt(app) {
				selected, err := promptLine(app, "Archive or folder to extract")
				if err != nil {
					return withExitCode(exitcode.RuntimeFailure, err)
				}
				req.Selected = selected
			}
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.RetryExtract(ctx, req)
			})
		},
	}

	cmd.Flags().StringVar(&req.Selected, "selected", "", "Archive or folder to extract")
	cmd.Flags().BoolVar(&req.Online, "online", false, "Item supports online play")
	cmd.Flags().BoolVar(&req.DLC, "dlc", false, "Item includes DLC")
	cmd.Flags().StringVar(&req.Version, "item-version", "", "Item version label")
	return cmd
}

func newDownloadCheckExtractCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check-extract <item>",
		Short: "Report whether an item folder has content to extract again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.CheckRetryExtract(ctx, args[0])
			})
		},
	}
}

func newDownloadHistoryCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List launched downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.DownloadHistory(ctx)
			})
		},
	}
}

func newDownloadRunningCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "Report whether any item is mid-transfer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.IsDownloaderRunning(ctx)
			})
		},
	}
}
