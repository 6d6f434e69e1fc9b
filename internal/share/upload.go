package share

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// chunkRange is one slice of the archive, by byte offset.
type chunkRange struct {
	Index  int
	Offset int64
	Length int64
}

// planChunks splits size bytes into ceil(size/chunkSize) ranges. A zip is
// never empty, but a zero size still yields a single empty chunk so the
// remote side sees a session.
func planChunks(size int64, chunkSize int64) []chunkRange {
	if size <= 0 {
		return []chunkRange{{Index: 0}}
	}
	total := int((size + chunkSize - 1) / chunkSize)
	chunks := make([]chunkRange, 0, total)
	for i := 0; i < total; i++ {
		offset := int64(i) * chunkSize
		length := chunkSize
		if remaining := size - offset; remaining < length {
			length = remaining
		}
		chunks = append(chunks, chunkRange{Index: i, Offset: offset, Length: length})
	}
	return chunks
}

func (c *Client) sessionID() string {
	return fmt.Sprintf("%s-%d", uuid.NewString(), c.now().UnixMilli())
}

type chunkResponse struct {
	Assembled bool `json:"assembled"`
}

// Upload packages dir and sends it to the index endpoint in chunks of at
// most three concurrent requests. Any failed chunk aborts the upload. The
// temporary archive is removed on every path.
func (c *Client) Upload(ctx context.Context, dir string) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	archivePath, err := packageIndex(dir, c.tempDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("remove upload archive failed", zap.String("path", archivePath), zap.Error(err))
		}
	}()

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open archive: %v", ErrPackagingFailure, err)
	}
	defer archive.Close()

	info, err := archive.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat archive: %v", ErrPackagingFailure, err)
	}

	chunks := planChunks(info.Size(), c.chunkSize)
	session := c.sessionID()
	log := c.logger.With(zap.String("session", session), zap.Int("chunks", len(chunks)))
	log.Info("uploading local index", zap.Int64("bytes", info.Size()))

	var assembled atomic.Bool
	for start := 0; start < len(chunks); start += uploadConcurrency {
		end := start + uploadConcurrency
		if end > len(chunks) {
			end = len(chunks)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(uploadConcurrency)
		for _, chunk := range chunks[start:end] {
			chunk := chunk
			group.Go(func() error {
				done, err := c.uploadChunk(groupCtx, token, session, len(chunks), chunk, archive)
				if err != nil {
					return err
				}
				if done {
					assembled.Store(true)
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
		if assembled.Load() {
			log.Info("remote reported archive assembled", zap.Int("after_chunk", end-1))
			return nil
		}
	}

	log.Warn("all chunks sent without an assembled acknowledgement")
	return nil
}

func (c *Client) uploadChunk(ctx context.Context, token string, session string, total int, chunk chunkRange, archive io.ReaderAt) (bool, error) {
	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		part, err := form.CreateFormFile("chunk", "chunk_"+strconv.Itoa(chunk.Index))
		if err == nil {
			_, err = io.Copy(part, io.NewSectionReader(archive, chunk.Offset, chunk.Length))
		}
		if err == nil {
			err = form.Close()
		}
		writer.CloseWithError(err)
	}()

	query := url.Values{}
	query.Set("sessionId", session)
	query.Set("chunkIndex", strconv.Itoa(chunk.Index))
	query.Set("totalChunks", strconv.Itoa(total))
	target := c.baseURL + "/index/upload-chunk?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		_ = body.Close()
		return false, fmt.Errorf("%w: chunk %d: %v", ErrChunkUploadFailure, chunk.Index, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		_ = body.Close()
		return false, fmt.Errorf("%w: chunk %d: %v", ErrChunkUploadFailure, chunk.Index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("%w: chunk %d: %w", ErrChunkUploadFailure, chunk.Index, statusError("upload chunk", resp))
	}

	var payload chunkResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		c.logger.Debug("chunk response was not json", zap.Int("chunk", chunk.Index), zap.Error(err))
	}
	return payload.Assembled, nil
}
