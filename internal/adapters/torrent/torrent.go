// Package torrent drives the torrent worker used for the fitgirl source.
package torrent

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
	return engine.BackendTorrent
}

func (a *Adapter) Executable() string {
	return engine.WorkerTorrent
}

// BuildExecSpec always targets the primary download root and passes no
// external id; the torrent worker lays items out itself.
func (a *Adapter) BuildExecSpec(req engine.LaunchRequest, place engine.Placement, env engine.WorkerEnv) (engine.ExecSpec, error) {
	if strings.TrimSpace(req.Link) == "" {
		return engine.ExecSpec{}, fmt.Errorf("torrent download requires a magnet or torrent link")
	}
	if place.PrimaryRoot == "" {
		return engine.ExecSpec{}, fmt.Errorf("torrent download requires a primary download directory")
	}
	args := direct.LaunchArgs(req, req.Link, place.PrimaryRoot)
	args = append(args, engine.NotificationArgs(env)...)
	return engine.WorkerCommand(env, a.Executable(), args), nil
}
