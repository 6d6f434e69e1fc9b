package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/engine"
	"github.com/jaa/game-acquire/internal/exitcode"
	"github.com/jaa/game-acquire/internal/library"
	"github.com/jaa/game-acquire/internal/service"
	"github.com/jaa/game-acquire/internal/share"
)

type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: code, Err: err}
}

func mapExitCode(err error) int {
	if err == nil {
		return exitcode.Success
	}
	var coded *ExitError
	if errors.As(err, &coded) {
		return coded.Code
	}
	message := err.Error()
	if strings.Contains(message, "unknown command") || strings.Contains(message, "unknown flag") {
		return exitcode.InvalidUsage
	}
	return exitcode.RuntimeFailure
}

var errVerificationFailed = errors.New("verification failed")

// resultError turns a failed Result into an ExitError. A failure without
// an underlying error is a verification failure.
func resultError(result service.Result) error {
	if result.Success {
		return nil
	}
	if result.Err == nil {
		if result.Message != "" {
			return withExitCode(exitcode.VerificationFailed, errors.New(result.Message))
		}
		return withExitCode(exitcode.VerificationFailed, errVerificationFailed)
	}
	return withExitCode(codeFor(result.Err), result.Err)
}

func codeFor(err error) int {
	var validation *config.ValidationError
	switch {
	case errors.Is(err, context.Canceled):
		return exitcode.Interrupted
	case errors.As(err, &validation),
		errors.Is(err, library.ErrNoDownloadDirectory),
		errors.Is(err, service.ErrShareUnavailable),
		errors.Is(err, service.ErrShareDisabled),
		errors.Is(err, share.ErrAuthFailure):
		return exitcode.InvalidConfig
	case errors.Is(err, library.ErrInvalidDirectoryIndex),
		errors.Is(err, service.ErrNoSelection),
		errors.Is(err, service.ErrUnknownOperation):
		return exitcode.InvalidUsage
	case errors.Is(err, engine.ErrSpawnFailure),
		errors.Is(err, engine.ErrUnknownBackend):
		return exitcode.MissingDependency
	case errors.Is(err, share.ErrRateLimited):
		return exitcode.RateLimited
	default:
		return exitcode.RuntimeFailure
	}
}
