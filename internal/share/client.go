// Package share talks to the remote index API: it uploads a locally
// refreshed index in chunks, downloads the latest shared index and fetches
// header images.
package share

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jaa/game-acquire/internal/auth"
)

var (
	ErrAuthFailure        = errors.New("authentication failed")
	ErrPackagingFailure   = errors.New("failed to package local index")
	ErrChunkUploadFailure = errors.New("chunk upload failed")
	ErrRateLimited        = errors.New("rate limited")
)

const (
	// DataFileName is the primary index file inside a local index dir.
	DataFileName  = "ascendara_games.json"
	ImagesDirName = "imgs"

	// DefaultChunkSize stays below the 100 MB request cap of the proxy in
	// front of the API.
	DefaultChunkSize int64 = 50 << 20

	uploadConcurrency = 3
)

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Code, e.Body)
}

type Options struct {
	BaseURL     string
	Credentials auth.APICredentials
	HTTPClient  *http.Client
	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int64
	// TempDir holds the upload archive. Empty means os.TempDir.
	TempDir string
	// LatestLimiter gates FetchLatest. Defaults to one call per hour.
	LatestLimiter *rate.Limiter
	// LatestStampPath records the last successful FetchLatest so the limit
	// holds across processes. Empty keeps it in memory only.
	LatestStampPath string
	Logger          *zap.Logger
	Now             func() time.Time
}

type Client struct {
	baseURL   string
	creds     auth.APICredentials
	http      *http.Client
	chunkSize int64
	tempDir   string
	limiter   *rate.Limiter
	stampPath string
	logger    *zap.Logger
	now       func() time.Time

	latestMu sync.Mutex
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	limiter := opts.LatestLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if last, ok := readLatestStamp(opts.LatestStampPath, logger); ok {
		limiter.AllowN(last, 1)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		creds:     opts.Credentials,
		http:      httpClient,
		chunkSize: chunkSize,
		tempDir:   opts.TempDir,
		limiter:   limiter,
		stampPath: opts.LatestStampPath,
		logger:    logger,
		now:       now,
	}
}
