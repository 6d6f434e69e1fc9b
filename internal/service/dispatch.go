package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/engine"
)

var ErrUnknownOperation = errors.New("unknown operation")

// Request is one line of the serve protocol.
type Request struct {
	ID   string          `json:"id,omitempty"`
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

type Response struct {
	ID string `json:"id,omitempty"`
	Result
}

type downloadArgs struct {
	Link       string `json:"link"`
	Game       string `json:"game"`
	Online     bool   `json:"online"`
	DLC        bool   `json:"dlc"`
	IsVR       bool   `json:"isVr"`
	Update     bool   `json:"updateFlow"`
	Version    string `json:"version"`
	ImageID    string `json:"imgID"`
	Size       string `json:"size"`
	DirIndex   int    `json:"additionalDirIndex"`
	ExternalID string `json:"gameID"`
}

type itemArgs struct {
	Game   string `json:"game"`
	Delete bool   `json:"deleteContents"`
}

type retryArgs struct {
	Link    string `json:"link"`
	Game    string `json:"game"`
	Online  bool   `json:"online"`
	DLC     bool   `json:"dlc"`
	Version string `json:"version"`
}

type credentialArgs struct {
	Cookie string `json:"cookie"`
}

// Dispatch routes a named operation to its method. Unknown operations and
// malformed arguments come back as failed Results like any other error.
func (s *Service) Dispatch(ctx context.Context, req Request) Response {
	result := s.guard(req.Op, func() Result {
		return s.dispatch(ctx, req)
	})
	return Response{ID: req.ID, Result: result}
}

func (s *Service) dispatch(ctx context.Context, req Request) Result {
	switch req.Op {
	case "download":
		var args downloadArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return s.fail(req.Op, err)
		}
		return s.StartDownload(ctx, engine.LaunchRequest{
			Link:       args.Link,
			Item:       args.Game,
			Online:     args.Online,
			DLC:        args.DLC,
			VR:         args.IsVR,
			Update:     args.Update,
			Version:    args.Version,
			Size:       args.Size,
			RootIndex:  args.DirIndex,
			ExternalID: args.ExternalID,
			ImageID:    args.ImageID,
		})
	case "stop-download":
		var args itemArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return s.fail(req.Op, err)
		}
		return s.StopDownload(ctx, args.Game, args.Delete)
	case "verify":
		var args itemArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return s.fail(req.Op, err)
		}
		return s.VerifyDownload(ctx, args.Game)
	case "retry-download":
		var args retryArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return s.fail(req.Op, err)
		}
		return s.RetryDownload(ctx, engine.RetryRequest{
			Link:    args.Link,
			Item:    args.Game,
			Online:  args.Online,
			DLC:     args.DLC,
			Version: args.Version,
		})
	case "retry-extract":
		var args RetryExtractRequest
		if err := decodeArgs(req.Args, &args); err != nil {
			return s.fail(req.Op, err)
		}
		return s.RetryExtract(ctx, args)
	case "check-retry-extract":
		var args itemArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return s.fail(req.Op, err)
		}
		return s.CheckRetryExtract(ctx, args.Game)
	case "get-download-history":
		return s.DownloadHistory(ctx)
	case "is-downloader-running":
		return s.IsDownloaderRunning(ctx)
	case "start-local-refresh":
		var args credentialArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return s.fail(req.Op, err)
		}
		return s.StartRefresh(ctx, args.Cookie)
	case "stop-local-refresh":
		return s.StopRefresh(ctx)
	case "get-local-refresh-status":
		return s.RefreshStatus(ctx)
	case "get-local-refresh-progress":
		return s.RefreshProgress(ctx)
	case "send-local-refresh-cookie":
		var args credentialArgs
		if err := decodeArgs(req.Args, &args); err != nil {
			return s.fail(req.Op, err)
		}
		return s.SendRefreshCredential(ctx, args.Cookie)
	case "trigger-share":
		return s.TriggerShare(ctx)
	case "debug-trigger-share":
		return s.DebugTriggerShare(ctx)
	case "fetch-latest-index":
		return s.FetchLatestIndex(ctx)
	}
	return s.fail("dispatch", fmt.Errorf("%w: %q", ErrUnknownOperation, req.Op), zap.String("id", req.ID))
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
