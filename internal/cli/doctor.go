package cli

import (
	"context"
	"fmt"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/doctor"
	"github.com/jaa/game-acquire/internal/exitcode"
)

func newDoctorCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check workers, interpreter, credentials and download roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(app)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			// A fresh install has no download directory yet; the checks
			// still report on the interpreter and workers.
			if strings.TrimSpace(cfg.DownloadDirectory) != "" {
				if err := config.Validate(cfg); err != nil {
					return withExitCode(exitcode.InvalidConfig, err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), interruptSignals()...)
			defer stop()
			report := doctor.NewChecker().Check(ctx, cfg)

			if app.Opts.JSON {
				if err := printData(app, report); err != nil {
					return withExitCode(exitcode.RuntimeFailure, err)
				}
			} else {
				printDoctorReport(app, report)
			}

			if report.HasErrors() {
				return withExitCode(exitcode.MissingDependency, fmt.Errorf("doctor found %d error(s)", report.ErrorCount()))
			}
			return nil
		},
	}
}

// printDoctorReport lists errors first, then warnings, then passing checks,
// keeping the checker's order inside each group.
func printDoctorReport(app *AppContext, report doctor.Report) {
	for _, severity := range []doctor.Severity{doctor.SeverityError, doctor.SeverityWarn, doctor.SeverityInfo} {
		if severity == doctor.SeverityInfo && app.Opts.Quiet {
			continue
		}
		for _, check := range report.Checks {
			if check.Severity == severity {
				fmt.Fprintf(app.IO.Out, "%-5s %-13s %s\n", strings.ToUpper(string(check.Severity)), check.Name, check.Message)
			}
		}
	}
}
