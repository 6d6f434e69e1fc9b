package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jaa/game-acquire/internal/service"
)

func newShareCommand(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Upload the local index to the remote API",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "trigger",
		Short: "Upload the local index when sharing is enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.TriggerShare(ctx)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "debug",
		Short: "Upload the local index regardless of the share setting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.DebugTriggerShare(ctx)
			})
		},
	})
	return cmd
}

func newIndexCommand(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Work with the shared index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "latest",
		Short: "Download the latest shared index into the local index directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(app, func(ctx context.Context, svc *service.Service) service.Result {
				return svc.FetchLatestIndex(ctx)
			})
		},
	})
	return cmd
}
