package engine

import (
	"strings"

	"github.com/jaa/game-acquire/internal/config"
)

// Worker executable base names, also used to find strays by process name.
const (
	WorkerDirect  = "AscendaraDownloader"
	WorkerGofile  = "AscendaraGofileHelper"
	WorkerTorrent = "AscendaraTorrentHandler"
	WorkerRefresh = "AscendaraLocalRefresh"
)

// DownloadWorkers lists every worker a download may be running under.
func DownloadWorkers() []string {
	return []string{WorkerDirect, WorkerGofile, WorkerTorrent}
}

// SelectBackend chooses the worker for a link. The configured source
// preference overrides link inspection.
func SelectBackend(source config.GameSource, link string) Backend {
	if source == config.GameSourceFitGirl {
		return BackendTorrent
	}
	if strings.Contains(link, "gofile.io") {
		return BackendGofile
	}
	return BackendDirect
}
