package cli

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jaa/game-acquire/internal/engine"
	"github.com/jaa/game-acquire/internal/exitcode"
	"github.com/jaa/game-acquire/internal/library"
	"github.com/jaa/game-acquire/internal/service"
	"github.com/jaa/game-acquire/internal/share"
)

func TestMapExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: exitcode.Success},
		{name: "coded", err: &ExitError{Code: exitcode.InvalidConfig, Err: errors.New("bad")}, want: exitcode.InvalidConfig},
		{name: "unknown command", err: errors.New("unknown command \"x\" for \"gacq\""), want: exitcode.InvalidUsage},
		{name: "generic", err: errors.New("boom"), want: exitcode.RuntimeFailure},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapExitCode(tc.err); got != tc.want {
				t.Fatalf("mapExitCode() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestResultError(t *testing.T) {
	tests := []struct {
		name   string
		result service.Result
		want   int
	}{
		{name: "success", result: service.Result{Success: true}, want: exitcode.Success},
		{name: "verification", result: service.Result{Message: "2 files failed verification"}, want: exitcode.VerificationFailed},
		{name: "rate limited", result: service.Result{Err: fmt.Errorf("fetch: %w", share.ErrRateLimited)}, want: exitcode.RateLimited},
		{name: "spawn", result: service.Result{Err: fmt.Errorf("%w: python3", engine.ErrSpawnFailure)}, want: exitcode.MissingDependency},
		{name: "bad index", result: service.Result{Err: fmt.Errorf("%w: 4", library.ErrInvalidDirectoryIndex)}, want: exitcode.InvalidUsage},
		{name: "interrupted", result: service.Result{Err: context.Canceled}, want: exitcode.Interrupted},
		{name: "not found", result: service.Result{Err: library.ErrItemNotFound}, want: exitcode.RuntimeFailure},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapExitCode(resultError(tc.result)); got != tc.want {
				t.Fatalf("exit code = %d, want %d", got, tc.want)
			}
		})
	}
}
