package cli

import (
	"fmt"
	"os"

	"github.com/jaa/game-acquire/internal/exitcode"
	"github.com/spf13/cobra"
)

// Execute runs the command line and returns the process exit code. Dotenv
// files in the working directory are loaded before flags are parsed so
// GACQ_CONFIG and credential variables can come from them.
func Execute(build BuildInfo, streams IOStreams) int {
	if wd, err := os.Getwd(); err == nil {
		if envErr := loadDotEnvFiles(wd, os.Environ(), os.Setenv); envErr != nil {
			fmt.Fprintln(streams.ErrOut, "WARN:", envErr)
		}
	}

	app := &AppContext{Build: build, IO: streams}
	root := newRootCommand(app)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(streams.ErrOut, "ERROR:", err)
		return mapExitCode(err)
	}
	return exitcode.Success
}

func newRootCommand(app *AppContext) *cobra.Command {
	showVersion := false

	root := &cobra.Command{
		Use:   "gacq",
		Short: "Acquire, verify and manage game downloads",
		Long:  "gacq supervises download workers, keeps per-item sidecar state, refreshes the local index and shares it with the remote API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(app)
				return nil
			}
			return cmd.Help()
		},
		SilenceErrors:     true,
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	defaultConfigPath := os.Getenv("GACQ_CONFIG")
	root.PersistentFlags().StringVarP(&app.Opts.ConfigPath, "config", "c", defaultConfigPath, "Path to config file")
	root.PersistentFlags().BoolVar(&app.Opts.JSON, "json", false, "Emit newline-delimited JSON events and results")
	root.PersistentFlags().BoolVarP(&app.Opts.Quiet, "quiet", "q", false, "Reduce output to errors and results")
	root.PersistentFlags().BoolVarP(&app.Opts.Verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&app.Opts.NoInput, "no-input", false, "Disable interactive prompts")
	root.Flags().BoolVar(&showVersion, "version", false, "Print version info")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(exitcode.InvalidUsage, err)
	})

	root.AddCommand(
		newInitCommand(app),
		newValidateCommand(app),
		newDoctorCommand(app),
		newDownloadCommand(app),
		newRefreshCommand(app),
		newShareCommand(app),
		newIndexCommand(app),
		newServeCommand(app),
		newVersionCommand(app),
	)

	return root
}
