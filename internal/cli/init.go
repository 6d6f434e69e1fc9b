package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/exitcode"
)

var errInitDeclined = errors.New("initialization canceled")

func newInitCommand(app *AppContext) *cobra.Command {
	var (
		force       bool
		downloadDir string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config and create the state and local index directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := initConfigPath(app)
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			if err := confirmOverwrite(app, path, force); err != nil {
				if errors.Is(err, errInitDeclined) {
					fmt.Fprintln(app.IO.Out, "Initialization canceled.")
					return nil
				}
				return withExitCode(exitcode.RuntimeFailure, err)
			}

			if err := config.EnsureConfigDir(path); err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			if err := os.WriteFile(path, []byte(config.Template(strings.TrimSpace(downloadDir))), 0o644); err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("write config file: %w", err))
			}
			fmt.Fprintf(app.IO.Out, "Wrote config: %s\n", path)

			defaults := config.DefaultConfig()
			dirs := [][2]string{
				{"state dir", defaults.StateDir},
				{"local index dir", defaults.LocalIndex.Path},
			}
			for _, dir := range dirs {
				label, raw := dir[0], dir[1]
				expanded, err := config.ExpandPath(raw)
				if err != nil {
					return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("resolve %s: %w", label, err))
				}
				if err := os.MkdirAll(expanded, 0o755); err != nil {
					return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("create %s %s: %w", label, expanded, err))
				}
				fmt.Fprintf(app.IO.Out, "Ensured %s: %s\n", label, expanded)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "", "Primary download directory to write into the config")
	return cmd
}

func initConfigPath(app *AppContext) (string, error) {
	if path := strings.TrimSpace(app.Opts.ConfigPath); path != "" {
		return path, nil
	}
	return config.UserConfigPath()
}

// confirmOverwrite returns errInitDeclined when the user answers no.
func confirmOverwrite(app *AppContext, path string, force bool) error {
	if _, err := os.Stat(path); err != nil || force {
		return nil
	}
	if !canPrompt(app) {
		return fmt.Errorf("config already exists at %s (rerun with --force)", path)
	}
	confirmed, err := promptYesNo(app, fmt.Sprintf("Config already exists at %s. Overwrite?", path))
	if err != nil {
		return err
	}
	if !confirmed {
		return errInitDeclined
	}
	return nil
}
