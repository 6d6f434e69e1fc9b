// Package gofile drives the single-host helper for gofile.io links.
package gofile

import (
	"fmt"
	"strings"

	"github.com/jaa/game-acquire/internal/adapters/direct"
	"github.com/jaa/game-acquire/internal/engine"
)

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Kind() engine.Backend {
	return engine.BackendGofile
}

func (a *Adapter) Executable() string {
	return engine.WorkerGofile
}

func (a *Adapter) BuildExecSpec(req engine.LaunchRequest, place engine.Placement, env engine.WorkerEnv) (engine.ExecSpec, error) {
	if !strings.Contains(req.Link, "gofile.io") {
		return engine.ExecSpec{}, fmt.Errorf("gofile helper only accepts gofile.io links, got %q", req.Link)
	}
	args := direct.LaunchArgs(req, withScheme(req.Link), place.Root)
	args = append(args, req.ExternalID)
	args = append(args, engine.NotificationArgs(env)...)
	return engine.WorkerCommand(env, a.Executable(), args), nil
}

func (a *Adapter) BuildRetrySpec(req engine.RetryRequest, root string, env engine.WorkerEnv) (engine.ExecSpec, error) {
	return engine.WorkerCommand(env, a.Executable(), direct.RetryArgs(req, withScheme(req.Link), root)), nil
}

// Catalog links for gofile arrive without a scheme.
func withScheme(link string) string {
	trimmed := strings.TrimSpace(link)
	if strings.HasPrefix(trimmed, "https://") || strings.HasPrefix(trimmed, "http://") {
		return trimmed
	}
	return "https://" + strings.TrimPrefix(trimmed, "//")
}
