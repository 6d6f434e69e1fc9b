package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jaa/game-acquire/internal/config"
	"github.com/jaa/game-acquire/internal/engine"
	"github.com/jaa/game-acquire/internal/library"
	"github.com/jaa/game-acquire/internal/output"
	"github.com/jaa/game-acquire/internal/refresh"
)

type fakeDownloads struct {
	registry *engine.Registry
	err      error
	panicMsg string
	launched []engine.LaunchRequest
	retried  []engine.RetryRequest
}

func (f *fakeDownloads) Launch(_ context.Context, req engine.LaunchRequest) (*engine.Process, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.launched = append(f.launched, req)
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Process{Item: library.SanitizeName(req.Item), PID: 4242, Backend: engine.BackendDirect}, nil
}

func (f *fakeDownloads) Retry(_ context.Context, req engine.RetryRequest) (*engine.Process, error) {
	f.retried = append(f.retried, req)
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Process{Item: req.Item, PID: 4343, Backend: engine.BackendGofile}, nil
}

func (f *fakeDownloads) Registry() *engine.Registry {
	if f.registry == nil {
		f.registry = engine.NewRegistry(0)
	}
	return f.registry
}

type fakeStopper struct {
	item   string
	delete bool
	err    error
}

func (f *fakeStopper) Stop(_ context.Context, item string, deleteContents bool) error {
	f.item = item
	f.delete = deleteContents
	return f.err
}

type fakeRefresher struct {
	already    bool
	started    refresh.Options
	credential string
	sendErr    error
}

func (f *fakeRefresher) Start(_ context.Context, opts refresh.Options) (bool, error) {
	f.started = opts
	return f.already, nil
}

func (f *fakeRefresher) Stop(context.Context, string) error { return nil }

func (f *fakeRefresher) Status(context.Context, string) (refresh.Status, error) {
	return refresh.Status{Running: true}, nil
}

func (f *fakeRefresher) Progress(string) (refresh.Progress, error) { return nil, nil }

func (f *fakeRefresher) SendCredential(value string) error {
	f.credential = value
	return f.sendErr
}

type fakeSharer struct {
	uploaded string
	fetched  string
	err      error
}

func (f *fakeSharer) Upload(_ context.Context, dir string) error {
	f.uploaded = dir
	return f.err
}

func (f *fakeSharer) FetchLatest(_ context.Context, dest string) error {
	f.fetched = dest
	return f.err
}

type fakeRunner struct {
	spec   engine.ExecSpec
	result engine.ExecResult
}

func (f *fakeRunner) Run(_ context.Context, spec engine.ExecSpec) engine.ExecResult {
	f.spec = spec
	return f.result
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []output.Event
}

func (r *recordingEmitter) Emit(event output.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) names() []output.EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]output.EventName, 0, len(r.events))
	for _, event := range r.events {
		names = append(names, event.Event)
	}
	return names
}

type fixture struct {
	root      string
	indexDir  string
	downloads *fakeDownloads
	stopper   *fakeStopper
	refresher *fakeRefresher
	sharer    *fakeSharer
	runner    *fakeRunner
	emitter   *recordingEmitter
	svc       *Service
}

func newFixture(t *testing.T, share bool) *fixture {
	t.Helper()
	f := &fixture{
		root:      t.TempDir(),
		indexDir:  t.TempDir(),
		downloads: &fakeDownloads{},
		stopper:   &fakeStopper{},
		refresher: &fakeRefresher{},
		sharer:    &fakeSharer{},
		runner:    &fakeRunner{},
		emitter:   &recordingEmitter{},
	}
	cfg := config.DefaultConfig()
	cfg.DownloadDirectory = f.root
	cfg.LocalIndex.Path = f.indexDir
	cfg.LocalIndex.Share = share
	cfg.LocalIndex.UserAgent = "gacq-test"

	f.svc = New(Options{
		Config:     cfg,
		Downloads:  f.downloads,
		Terminator: f.stopper,
		Resolver:   library.NewResolver(cfg.Roots()),
		Refresh:    f.refresher,
		Share:      f.sharer,
		History:    engine.NewHistory(filepath.Join(t.TempDir(), "history.json")),
		Runner:     f.runner,
		Env:        engine.WorkerEnv{Dir: "/opt/workers", Python: "python3", GOOS: "linux"},
		Logger:     zap.NewNop(),
		Emitter:    f.emitter,
	})
	return f
}

func writeItem(t *testing.T, root string, item string, sidecarJSON string) string {
	t.Helper()
	dir := filepath.Join(root, item)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir item: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, library.SidecarName(item)), []byte(sidecarJSON), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	return dir
}

func TestStartDownloadReturnsHandleData(t *testing.T) {
	f := newFixture(t, false)

	result := f.svc.StartDownload(context.Background(), engine.LaunchRequest{Item: "Game: One", Link: "https://example.com/a.zip"})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	data := result.Data.(map[string]any)
	if data["item"] != "Game- One" || data["pid"] != 4242 {
		t.Fatalf("unexpected data: %+v", data)
	}
}

func TestStartDownloadFailureKeepsError(t *testing.T) {
	f := newFixture(t, false)
	f.downloads.err = library.ErrItemNotFound

	result := f.svc.StartDownload(context.Background(), engine.LaunchRequest{Item: "Missing", Update: true})
	if result.Success {
		t.Fatalf("expected failure")
	}
	if !errors.Is(result.Err, library.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", result.Err)
	}
	if result.Error != library.ErrItemNotFound.Error() {
		t.Fatalf("unexpected error string %q", result.Error)
	}
}

func TestPanicIsConvertedToResult(t *testing.T) {
	f := newFixture(t, false)
	f.downloads.panicMsg = "boom"

	result := f.svc.StartDownload(context.Background(), engine.LaunchRequest{Item: "Game"})
	if result.Success {
		t.Fatalf("expected failure after panic")
	}
	if !strings.Contains(result.Error, "boom") {
		t.Fatalf("expected panic message in error, got %q", result.Error)
	}
}

func TestStopDownloadEmitsStopped(t *testing.T) {
	f := newFixture(t, false)

	result := f.svc.StopDownload(context.Background(), "Game: One", true)
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if f.stopper.item != "Game: One" || !f.stopper.delete {
		t.Fatalf("unexpected stop call: %+v", f.stopper)
	}
	names := f.emitter.names()
	if len(names) != 1 || names[0] != output.EventDownloadStopped {
		t.Fatalf("expected download_stopped event, got %v", names)
	}
	if f.emitter.events[0].Item != "Game- One" {
		t.Fatalf("expected sanitized item on event, got %q", f.emitter.events[0].Item)
	}
}

func TestStopDownloadFailureSkipsEvent(t *testing.T) {
	f := newFixture(t, false)
	f.stopper.err = engine.ErrTerminationTimeout

	result := f.svc.StopDownload(context.Background(), "Game", false)
	if result.Success || !errors.Is(result.Err, engine.ErrTerminationTimeout) {
		t.Fatalf("expected termination timeout, got %+v", result)
	}
	if len(f.emitter.names()) != 0 {
		t.Fatalf("expected no events, got %v", f.emitter.names())
	}
}

func TestVerifyDownloadFailureIsPayload(t *testing.T) {
	f := newFixture(t, false)
	dir := writeItem(t, f.root, "Game", `{"game":"Game","downloadingData":{"verifying":true}}`)
	if err := os.WriteFile(filepath.Join(dir, "filemap.sidecar.json"), []byte(`{"bin/game.exe":{"size":10}}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	result := f.svc.VerifyDownload(context.Background(), "Game")
	if result.Success {
		t.Fatalf("expected verification failure")
	}
	if result.Error != "" || result.Err != nil {
		t.Fatalf("verification failure must not be an error, got %q", result.Error)
	}
	if !strings.Contains(result.Message, "1 files failed") {
		t.Fatalf("unexpected message %q", result.Message)
	}
	names := f.emitter.names()
	if len(names) != 1 || names[0] != output.EventVerifyFinished {
		t.Fatalf("expected verify_finished, got %v", names)
	}
}

func TestVerifyDownloadMissingItem(t *testing.T) {
	f := newFixture(t, false)

	result := f.svc.VerifyDownload(context.Background(), "Nope")
	if result.Success || !errors.Is(result.Err, library.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %+v", result)
	}
}

func TestRetryExtractRunsWorkerWithBaseName(t *testing.T) {
	f := newFixture(t, false)
	dir := writeItem(t, f.root, "Game", `{"game":"Game"}`)
	f.runner.result = engine.ExecResult{ExitCode: 0, Duration: 20 * time.Millisecond}

	result := f.svc.RetryExtract(context.Background(), RetryExtractRequest{
		Item:     "Game",
		Online:   true,
		Version:  "1.2",
		Selected: "/home/user/Downloads/game-archive.rar",
	})
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	want := []string{"/opt/workers/" + engine.WorkerDirect + ".py", "retryfolder", "Game", "true", "false", "1.2", dir, "game-archive.rar"}
	if strings.Join(f.runner.spec.Args, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected args:\n got %v\nwant %v", f.runner.spec.Args, want)
	}
}

func TestRetryExtractNonZeroExitFails(t *testing.T) {
	f := newFixture(t, false)
	writeItem(t, f.root, "Game", `{"game":"Game"}`)
	f.runner.result = engine.ExecResult{ExitCode: 2, StderrTail: "bad archive"}

	result := f.svc.RetryExtract(context.Background(), RetryExtractRequest{Item: "Game", Selected: "x.zip"})
	if result.Success || !strings.Contains(result.Error, "code 2") {
		t.Fatalf("expected exit code failure, got %+v", result)
	}
}

func TestRetryExtractRequiresSelection(t *testing.T) {
	f := newFixture(t, false)

	result := f.svc.RetryExtract(context.Background(), RetryExtractRequest{Item: "Game"})
	if !errors.Is(result.Err, ErrNoSelection) {
		t.Fatalf("expected ErrNoSelection, got %v", result.Err)
	}
}

func TestCheckRetryExtract(t *testing.T) {
	f := newFixture(t, false)
	dir := writeItem(t, f.root, "Game", `{"game":"Game"}`)

	result := f.svc.CheckRetryExtract(context.Background(), "Game")
	if !result.Success || result.Data != false {
		t.Fatalf("expected false with only the sidecar, got %+v", result)
	}

	if err := os.WriteFile(filepath.Join(dir, "game.rar"), []byte("rar"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	result = f.svc.CheckRetryExtract(context.Background(), "Game")
	if !result.Success || result.Data != true {
		t.Fatalf("expected true with an archive present, got %+v", result)
	}
}

func TestIsDownloaderRunningReadsSidecars(t *testing.T) {
	f := newFixture(t, false)
	writeItem(t, f.root, "Done", `{"game":"Done"}`)
	writeItem(t, f.root, "Paused", `{"game":"Paused","downloadingData":{"stopped":true}}`)

	result := f.svc.IsDownloaderRunning(context.Background())
	if !result.Success || result.Data != false {
		t.Fatalf("expected not running, got %+v", result)
	}

	writeItem(t, f.root, "Active", `{"game":"Active","downloadingData":{"extracting":true}}`)
	result = f.svc.IsDownloaderRunning(context.Background())
	if result.Data != true {
		t.Fatalf("expected running with an extracting item, got %+v", result)
	}
}

func TestDownloadHistoryEmpty(t *testing.T) {
	f := newFixture(t, false)

	result := f.svc.DownloadHistory(context.Background())
	entries, ok := result.Data.([]engine.HistoryEntry)
	if !result.Success || !ok || len(entries) != 0 {
		t.Fatalf("expected empty history, got %+v", result)
	}
}

func TestStartRefreshUsesConfig(t *testing.T) {
	f := newFixture(t, false)

	result := f.svc.StartRefresh(context.Background(), "cf=abc")
	if !result.Success || result.Message != "refresh started" {
		t.Fatalf("unexpected result %+v", result)
	}
	got := f.refresher.started
	if got.OutputPath != f.indexDir || got.Credential != "cf=abc" || got.PerPage != 50 || got.Workers != 8 || got.UserAgent != "gacq-test" {
		t.Fatalf("unexpected refresh options: %+v", got)
	}

	f.refresher.already = true
	result = f.svc.StartRefresh(context.Background(), "")
	if !result.Success || result.Message != "already running" {
		t.Fatalf("expected already running, got %+v", result)
	}
}

func TestSendRefreshCredentialNotRunning(t *testing.T) {
	f := newFixture(t, false)
	f.refresher.sendErr = refresh.ErrNotRunning

	result := f.svc.SendRefreshCredential(context.Background(), "cookie")
	if result.Success || result.Error != "process not running" {
		t.Fatalf("expected not running error, got %+v", result)
	}
}

func TestTriggerShareHonorsSetting(t *testing.T) {
	f := newFixture(t, false)

	result := f.svc.TriggerShare(context.Background())
	if !errors.Is(result.Err, ErrShareDisabled) {
		t.Fatalf("expected ErrShareDisabled, got %v", result.Err)
	}
	if f.sharer.uploaded != "" {
		t.Fatalf("upload must not run when sharing is disabled")
	}

	result = f.svc.DebugTriggerShare(context.Background())
	if !result.Success || f.sharer.uploaded != f.indexDir {
		t.Fatalf("expected debug trigger to upload %s, got %+v (uploaded %q)", f.indexDir, result, f.sharer.uploaded)
	}
}

func TestTriggerShareUploadsWhenEnabled(t *testing.T) {
	f := newFixture(t, true)

	result := f.svc.TriggerShare(context.Background())
	if !result.Success || f.sharer.uploaded != f.indexDir {
		t.Fatalf("expected upload of %s, got %+v", f.indexDir, result)
	}
	names := f.emitter.names()
	if len(names) != 1 || names[0] != output.EventShareComplete {
		t.Fatalf("expected share_complete, got %v", names)
	}
}

func TestShareUnavailableWithoutClient(t *testing.T) {
	f := newFixture(t, true)
	f.svc.share = nil

	if result := f.svc.TriggerShare(context.Background()); !errors.Is(result.Err, ErrShareUnavailable) {
		t.Fatalf("expected ErrShareUnavailable, got %v", result.Err)
	}
	if result := f.svc.FetchLatestIndex(context.Background()); !errors.Is(result.Err, ErrShareUnavailable) {
		t.Fatalf("expected ErrShareUnavailable, got %v", result.Err)
	}
}

func TestDispatchRoutesOperations(t *testing.T) {
	f := newFixture(t, false)

	resp := f.svc.Dispatch(context.Background(), Request{
		ID:   "7",
		Op:   "retry-download",
		Args: json.RawMessage(`{"link":"gofile.io/d/abc","game":"Game","online":true,"version":"2"}`),
	})
	if resp.ID != "7" || !resp.Success {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(f.downloads.retried) != 1 || f.downloads.retried[0].Link != "gofile.io/d/abc" || !f.downloads.retried[0].Online {
		t.Fatalf("unexpected retry request: %+v", f.downloads.retried)
	}

	resp = f.svc.Dispatch(context.Background(), Request{Op: "warp-drive"})
	if resp.Success || !errors.Is(resp.Err, ErrUnknownOperation) {
		t.Fatalf("expected unknown operation, got %+v", resp)
	}

	resp = f.svc.Dispatch(context.Background(), Request{Op: "verify", Args: json.RawMessage(`{"game":`)})
	if resp.Success || !strings.Contains(resp.Error, "decode arguments") {
		t.Fatalf("expected decode failure, got %+v", resp)
	}
}

func TestResponseJSONOmitsErr(t *testing.T) {
	resp := Response{ID: "1", Result: Result{Error: "nope", Err: errors.New("nope")}}
	payload, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"id":"1","success":false,"error":"nope"}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}
