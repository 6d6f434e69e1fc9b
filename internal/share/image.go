package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/fileops"
)

const headerImageBase = "header.sidecar"

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ImageFetcher stores an item's header image. A copy from the local index
// is preferred over the API when one is configured.
type ImageFetcher struct {
	BaseURL       string
	ImageKey      string
	GameSource    config.GameSource
	LocalIndexDir string
	HTTPClient    *http.Client
	Now           func() time.Time
}

func (f *ImageFetcher) Fetch(ctx context.Context, imageID string, itemDir string) error {
	if strings.TrimSpace(imageID) == "" {
		return nil
	}

	if f.LocalIndexDir != "" {
		local := filepath.Join(f.LocalIndexDir, ImagesDirName, imageID+".jpg")
		payload, err := os.ReadFile(local)
		if err == nil {
			return fileops.WriteFileAtomic(filepath.Join(itemDir, headerImageBase+".jpg"), payload, 0o644)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read local header image: %w", err)
		}
	}

	endpoint := "/v2/image/"
	if f.GameSource == config.GameSourceFitGirl {
		endpoint = "/v2/fitgirl/image/"
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	ts := strconv.FormatInt(now().Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(f.BaseURL, "/")+endpoint+imageID, nil)
	if err != nil {
		return fmt.Errorf("create image request: %w", err)
	}
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", signature(f.ImageKey, ts))
	req.Header.Set("Cache-Control", "no-store")

	httpClient := f.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch header image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("header image", resp)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read header image: %w", err)
	}
	target := filepath.Join(itemDir, headerImageBase+extensionFor(resp.Header.Get("Content-Type")))
	return fileops.WriteFileAtomic(target, payload, 0o644)
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".jpg"
	}
	if ext, ok := imageExtensions[strings.ToLower(mediaType)]; ok {
		return ext
	}
	return ".jpg"
}
