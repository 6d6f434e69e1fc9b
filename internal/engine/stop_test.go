package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/jaa/game-acquire/internal/library"
	"github.com/jaa/game-acquire/internal/sidecar"
)

type fakeEnumerator struct {
	mu       sync.Mutex
	pids     []int32
	alive    map[int32]bool
	killed   []int32
	findErr  error
	lastItem string
}

func newFakeEnumerator(pids ...int32) *fakeEnumerator {
	alive := map[int32]bool{}
	for _, pid := range pids {
		alive[pid] = true
	}
	return &fakeEnumerator{pids: pids, alive: alive}
}

func (f *fakeEnumerator) Find(_ context.Context, _ []string, item string) ([]int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastItem = item
	return append([]int32(nil), f.pids...), f.findErr
}

func (f *fakeEnumerator) KillTree(_ context.Context, pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, pid)
	f.alive[pid] = false
	return nil
}

func (f *fakeEnumerator) Alive(_ context.Context, pid int32) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[pid]
}

func seedItem(t *testing.T, root string, item string) string {
	t.Helper()
	dir := filepath.Join(root, item)
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		t.Fatalf("mkdir item: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data", "part1.bin"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	sidecarJSON := `{"game":"` + item + `","version":"1.0","downloadingData":{"downloading":true,"progressCompleted":"42.00"}}`
	if err := os.WriteFile(filepath.Join(dir, library.SidecarName(item)), []byte(sidecarJSON), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	return dir
}

func newTestTerminator(enum ProcessEnumerator, registry *Registry, root string) *Terminator {
	term := NewTerminator(TerminatorOptions{
		Enumerator: enum,
		Registry:   registry,
		Resolver:   library.NewResolver([]string{root}),
		Stop: StopOptions{
			SettleDelay:   5 * time.Second,
			Timeout:       2 * time.Second,
			DeleteRetries: 3,
			DeleteBackoff: time.Millisecond,
		},
	})
	return term
}

func TestStopWithoutDeleteMarksStoppedAndKeepsContent(t *testing.T) {
	root := t.TempDir()
	dir := seedItem(t, root, "Game1")

	enum := newFakeEnumerator(101, 102)
	term := newTestTerminator(enum, nil, root)
	var slept []time.Duration
	term.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if err := term.Stop(context.Background(), "Game1", false); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if len(enum.killed) != 2 {
		t.Fatalf("expected both enumerated workers killed, got %v", enum.killed)
	}
	if enum.lastItem != "Game1" {
		t.Fatalf("expected enumeration by sanitized item, got %q", enum.lastItem)
	}
	if len(slept) != 1 || slept[0] != 5*time.Second {
		t.Fatalf("expected one settle delay without a handle, got %v", slept)
	}

	if _, err := os.Stat(filepath.Join(dir, "data", "part1.bin")); err != nil {
		t.Fatalf("expected content kept: %v", err)
	}
	record, err := sidecar.NewStore().Read(dir, "Game1")
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if record.Downloading == nil || record.Downloading.Phase != sidecar.PhaseStopped {
		t.Fatalf("expected stopped phase, got %+v", record.Downloading)
	}
	if record.Version != "1.0" {
		t.Fatalf("expected other fields preserved, got version %q", record.Version)
	}
}

func TestStopWithDeleteRemovesItemDirectory(t *testing.T) {
	root := t.TempDir()
	dir := seedItem(t, root, "Game1")

	term := newTestTerminator(newFakeEnumerator(7), nil, root)
	term.sleep = func(context.Context, time.Duration) error { return nil }

	if err := term.Stop(context.Background(), "Game1", true); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected item directory removed, stat err=%v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("expected root kept: %v", err)
	}
}

func TestStopWithDeleteIgnoresCorruptSidecar(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Game1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, library.SidecarName("Game1")), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	term := newTestTerminator(newFakeEnumerator(), nil, root)
	if err := term.Stop(context.Background(), "Game1", true); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected item directory removed, stat err=%v", err)
	}
}

func TestStopCorruptSidecarWithoutDeleteFails(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Game1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, library.SidecarName("Game1")), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	term := newTestTerminator(newFakeEnumerator(), nil, root)
	err := term.Stop(context.Background(), "Game1", false)
	var parseErr *sidecar.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected sidecar parse error, got %v", err)
	}
}

func TestStopMissingItemIsNoop(t *testing.T) {
	term := newTestTerminator(newFakeEnumerator(), nil, t.TempDir())
	if err := term.Stop(context.Background(), "Nothing Here", true); err != nil {
		t.Fatalf("expected missing item to be a no-op, got %v", err)
	}
}

func TestStopTimesOutWhenWorkerSurvives(t *testing.T) {
	root := t.TempDir()
	seedItem(t, root, "Game1")

	enum := &stubbornEnumerator{}
	term := NewTerminator(TerminatorOptions{
		Enumerator: enum,
		Resolver:   library.NewResolver([]string{root}),
		Stop:       StopOptions{Timeout: 150 * time.Millisecond, DeleteRetries: 1},
	})

	err := term.Stop(context.Background(), "Game1", true)
	if !errors.Is(err, ErrTerminationTimeout) {
		t.Fatalf("expected termination timeout, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "Game1", "data", "part1.bin")); statErr != nil {
		t.Fatalf("expected content untouched while worker alive: %v", statErr)
	}
}

type stubbornEnumerator struct{}

func (stubbornEnumerator) Find(context.Context, []string, string) ([]int32, error) {
	return []int32{55}, nil
}
func (stubbornEnumerator) KillTree(context.Context, int32) error { return nil }
func (stubbornEnumerator) Alive(context.Context, int32) bool     { return true }

func TestStopKillsRegisteredHandleWithoutSettleDelay(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	root := t.TempDir()
	dir := seedItem(t, root, "Game1")

	registry := NewRegistry(5 * time.Second)
	proc := startSleeper(t, "Game1")
	if err := registry.Insert(context.Background(), proc); err != nil {
		t.Fatalf("insert: %v", err)
	}

	term := newTestTerminator(newFakeEnumerator(), registry, root)
	term.sleep = func(context.Context, time.Duration) error {
		t.Fatalf("settle delay should not run when a handle was awaited")
		return nil
	}

	if err := term.Stop(context.Background(), "Game1", true); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !proc.Exited() {
		t.Fatalf("expected registered worker to be terminated")
	}
	if _, ok := registry.Lookup("Game1"); ok {
		t.Fatalf("expected handle removed from registry")
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected item directory removed, stat err=%v", err)
	}
}
