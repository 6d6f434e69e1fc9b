// Package direct drives the generic HTTP downloader worker.
package direct

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jaa/game-acquire/internal/engine"
)

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Kind() engine.Backend {
	return engine.BackendDirect
}

func (a *Adapter) Executable() string {
	return engine.WorkerDirect
}

func (a *Adapter) BuildExecSpec(req engine.LaunchRequest, place engine.Placement, env engine.WorkerEnv) (engine.ExecSpec, error) {
	if strings.TrimSpace(req.Link) == "" {
		return engine.ExecSpec{}, fmt.Errorf("direct download requires a link")
	}
	args := LaunchArgs(req, req.Link, place.Root)
	args = append(args, req.ExternalID)
	args = append(args, engine.NotificationArgs(env)...)
	return engine.WorkerCommand(env, a.Executable(), args), nil
}

func (a *Adapter) BuildRetrySpec(req engine.RetryRequest, root string, env engine.WorkerEnv) (engine.ExecSpec, error) {
	return engine.WorkerCommand(env, a.Executable(), RetryArgs(req, req.Link, root)), nil
}

// RetryFolderSpec asks the worker to re-extract a user-chosen archive or
// folder into the item directory.
func (a *Adapter) RetryFolderSpec(item string, online, dlc bool, version string, itemDir string, selected string, env engine.WorkerEnv) engine.ExecSpec {
	args := []string{
		"retryfolder",
		item,
		strconv.FormatBool(online),
		strconv.FormatBool(dlc),
		version,
		itemDir,
		selected,
	}
	return engine.WorkerCommand(env, a.Executable(), args)
}

// LaunchArgs is the positional prefix shared by every download worker:
// link, item, online, dlc, vr, update, version, size, destination.
func LaunchArgs(req engine.LaunchRequest, link string, destination string) []string {
	version := req.Version
	if strings.TrimSpace(version) == "" {
		version = "-1"
	}
	return []string{
		link,
		req.Item,
		strconv.FormatBool(req.Online),
		strconv.FormatBool(req.DLC),
		strconv.FormatBool(req.VR),
		strconv.FormatBool(req.Update),
		version,
		req.Size,
		destination,
	}
}

// RetryArgs is the short form: link, item, online, dlc, version, 0, root.
func RetryArgs(req engine.RetryRequest, link string, root string) []string {
	return []string{
		link,
		req.Item,
		strconv.FormatBool(req.Online),
		strconv.FormatBool(req.DLC),
		req.Version,
		"0",
		root,
	}
}
