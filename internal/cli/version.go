package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// resolved fills placeholders for builds without linker metadata.
func (b BuildInfo) resolved() BuildInfo {
	if b.Version == "" {
		b.Version = "dev"
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
}

func newVersionCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Opts.JSON {
				build := app.Build.resolved()
				return printData(app, map[string]string{
					"version": build.Version,
					"commit":  build.Commit,
					"date":    build.Date,
					"go":      runtime.Version(),
				})
			}
			printVersion(app)
			return nil
		},
	}
}

func printVersion(app *AppContext) {
	build := app.Build.resolved()
	fmt.Fprintf(app.IO.Out, "gacq version %s\ncommit: %s\nbuild_date: %s\ngo: %s\n", build.Version, build.Commit, build.Date, runtime.Version())
}
