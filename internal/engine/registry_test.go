package engine

import (
	"context"
	"runtime"
	"testing"
	"time"
)

func startSleeper(t *testing.T, item string) *Process {
	t.Helper()
	proc, err := Start(ExecSpec{Bin: "sh", Args: []string{"-c", "sleep 30"}}, item, BackendDirect, StartOptions{Detached: true})
	if err != nil {
		t.Fatalf("start sleeper: %v", err)
	}
	t.Cleanup(func() {
		proc.Kill()
		_ = proc.WaitExit(context.Background(), 5*time.Second)
	})
	return proc
}

func TestRegistryInsertOverLiveKeyTerminatesPrevious(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	registry := NewRegistry(5 * time.Second)
	first := startSleeper(t, "Game1")
	if err := registry.Insert(context.Background(), first); err != nil {
		t.Fatalf("insert first: %v", err)
	}

	second := startSleeper(t, "Game1")
	if err := registry.Insert(context.Background(), second); err != nil {
		t.Fatalf("insert second: %v", err)
	}

	if !first.Exited() {
		t.Fatalf("expected previous handle to be terminated before replacement")
	}
	got, ok := registry.Lookup("Game1")
	if !ok || got != second {
		t.Fatalf("expected second handle registered")
	}
	if second.Exited() {
		t.Fatalf("expected new handle to stay alive")
	}
}

func TestRegistryRemoveOnlyMatchingHandle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	registry := NewRegistry(5 * time.Second)
	first := startSleeper(t, "Game1")
	second := startSleeper(t, "Game1")
	if err := registry.Insert(context.Background(), second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if registry.Remove("Game1", first) {
		t.Fatalf("expected stale handle removal to be refused")
	}
	if !registry.Remove("Game1", second) {
		t.Fatalf("expected current handle removal to succeed")
	}
	if len(registry.Items()) != 0 {
		t.Fatalf("expected registry empty, got %v", registry.Items())
	}
}

func TestProcessWriteLineAndExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	proc, err := Start(ExecSpec{Bin: "sh", Args: []string{"-c", `read v; [ "$v" = "fresh-cookie" ] && exit 7; exit 1`}}, "refresh", "", StartOptions{PipeStdin: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := proc.WriteLine("fresh-cookie"); err != nil {
		t.Fatalf("write line: %v", err)
	}
	if err := proc.WaitExit(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if proc.ExitCode() != 7 {
		t.Fatalf("expected exit code 7, got %d", proc.ExitCode())
	}
	if err := proc.WriteLine("late"); err == nil {
		t.Fatalf("expected write after exit to fail")
	}
}

func TestStartMissingBinaryIsSpawnFailure(t *testing.T) {
	_, err := Start(ExecSpec{Bin: "gacq-no-such-worker"}, "Game1", BackendDirect, StartOptions{Detached: true})
	if err == nil {
		t.Fatalf("expected spawn failure")
	}
}

func TestRegistryEvictKillsAndDropsHandle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell test is POSIX-specific")
	}

	registry := NewRegistry(5 * time.Second)
	proc := startSleeper(t, "Game1")
	if err := registry.Insert(context.Background(), proc); err != nil {
		t.Fatalf("insert: %v", err)
	}

	evicted, err := registry.Evict(context.Background(), "Game1")
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if !evicted || !proc.Exited() {
		t.Fatalf("expected live handle killed, evicted=%v exited=%v", evicted, proc.Exited())
	}
	if _, ok := registry.Lookup("Game1"); ok {
		t.Fatalf("expected handle removed from registry")
	}

	evicted, err = registry.Evict(context.Background(), "Game1")
	if err != nil || evicted {
		t.Fatalf("expected no-op evict on empty key, got %v %v", evicted, err)
	}
}
