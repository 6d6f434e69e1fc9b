package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/fileops"
)

var errTooManyRedirects = errors.New("more than one redirect")

// FetchLatest downloads the most recent shared index and extracts it into
// dest. Only a 2xx answer from the latest index endpoint counts against the
// once-per-hour limit; calls beyond it fail with ErrRateLimited before any
// request is made.
func (c *Client) FetchLatest(ctx context.Context, dest string) error {
	c.latestMu.Lock()
	defer c.latestMu.Unlock()

	if c.limiter.TokensAt(c.now()) < 1 {
		return fmt.Errorf("%w: latest index may be fetched once per hour", ErrRateLimited)
	}

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/index/latest", nil)
	if err != nil {
		return fmt.Errorf("create latest index request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	httpClient := *c.http
	httpClient.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) > 1 {
			return errTooManyRedirects
		}
		return nil
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch latest index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrRateLimited, statusError("latest index", resp))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("latest index", resp)
	}
	c.markLatestFetched(c.now())

	tmp, err := os.CreateTemp(c.tempDir, "gacq-latest-*.zip")
	if err != nil {
		return fmt.Errorf("create latest index temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return fmt.Errorf("download latest index: %w", err)
	}

	if err := extractArchive(tmp, size, dest); err != nil {
		return err
	}
	c.logger.Info("latest index extracted", zap.String("dest", dest), zap.Int64("bytes", size))
	return nil
}

func (c *Client) markLatestFetched(at time.Time) {
	c.limiter.AllowN(at, 1)
	if c.stampPath == "" {
		return
	}
	err := os.MkdirAll(filepath.Dir(c.stampPath), 0o755)
	if err == nil {
		err = fileops.WriteFileAtomic(c.stampPath, []byte(at.UTC().Format(time.RFC3339Nano)+"\n"), 0o644)
	}
	if err != nil {
		c.logger.Warn("record latest index fetch failed", zap.String("path", c.stampPath), zap.Error(err))
	}
}

// readLatestStamp returns the recorded fetch time. A missing or unreadable
// stamp means no fetch is known.
func readLatestStamp(path string, logger *zap.Logger) (time.Time, bool) {
	if path == "" {
		return time.Time{}, false
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("read latest index stamp failed", zap.String("path", path), zap.Error(err))
		}
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(payload)))
	if err != nil {
		logger.Warn("ignoring malformed latest index stamp", zap.String("path", path), zap.Error(err))
		return time.Time{}, false
	}
	return at, true
}

func extractArchive(r io.ReaderAt, size int64, dest string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("open latest index archive: %w", err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	root := filepath.Clean(dest) + string(os.PathSeparator)
	for _, file := range zr.File {
		target := filepath.Join(dest, filepath.FromSlash(file.Name))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("archive entry %q escapes destination", file.Name)
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			continue
		}
		if err := extractFile(file, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	in, err := file.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %s: %w", file.Name, err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("extract %s: %w", file.Name, err)
	}
	return out.Close()
}
