package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/exitcode"
)

type rootStatus struct {
	Index  int    `json:"index"`
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

type validateReport struct {
	Valid      bool         `json:"valid"`
	Roots      []rootStatus `json:"roots"`
	StateDir   string       `json:"stateDir"`
	LocalIndex string       `json:"localIndex"`
}

func newValidateCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate config values and list the resolved download roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			if err := config.Validate(cfg); err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}

			report, err := buildValidateReport(cfg)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			if app.Opts.JSON {
				return printData(app, report)
			}

			fmt.Fprintln(app.IO.Out, "Config is valid.")
			for _, root := range report.Roots {
				marker := ""
				if !root.Exists {
					marker = " (missing, created on first download)"
				}
				fmt.Fprintf(app.IO.Out, "  root %d: %s%s\n", root.Index, root.Path, marker)
			}
			fmt.Fprintf(app.IO.Out, "  state: %s\n  local index: %s\n", report.StateDir, report.LocalIndex)
			return nil
		},
	}
}

func buildValidateReport(cfg config.Config) (validateReport, error) {
	report := validateReport{Valid: true}
	for i, raw := range cfg.Roots() {
		path, err := config.ExpandPath(raw)
		if err != nil {
			return validateReport{}, err
		}
		_, statErr := os.Stat(path)
		report.Roots = append(report.Roots, rootStatus{Index: i, Path: path, Exists: statErr == nil})
	}

	var err error
	if report.StateDir, err = config.ExpandPath(cfg.StateDir); err != nil {
		return validateReport{}, err
	}
	if report.LocalIndex, err = config.ExpandPath(cfg.LocalIndex.Path); err != nil {
		return validateReport{}, err
	}
	return report, nil
}
