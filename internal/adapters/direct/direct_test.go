package direct

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jaa/game-acquire/internal/engine"
)

func TestBuildExecSpecPosixArgvOrder(t *testing.T) {
	adapter := New()
	spec, err := adapter.BuildExecSpec(engine.LaunchRequest{
		Link:       "https://files.example/game1.zip",
		Item:       "Game1",
		Online:     true,
		Size:       "12.4 GB",
		ExternalID: "g-77",
	}, engine.Placement{Root: "/games/extra", ItemDir: "/games/extra/Game1", PrimaryRoot: "/games"}, engine.WorkerEnv{
		Dir:    "/opt/gacq/workers",
		Python: "python3",
		GOOS:   "linux",
	})
	if err != nil {
		t.Fatalf("build exec spec: %v", err)
	}

	if spec.Bin != "python3" {
		t.Fatalf("expected python3 interpreter, got %q", spec.Bin)
	}
	expected := []string{
		filepath.Join("/opt/gacq/workers", "AscendaraDownloader.py"),
		"https://files.example/game1.zip",
		"Game1",
		"true",
		"false",
		"false",
		"false",
		"-1",
		"12.4 GB",
		"/games/extra",
		"g-77",
	}
	if !reflect.DeepEqual(spec.Args, expected) {
		t.Fatalf("unexpected args:\n got %v\nwant %v", spec.Args, expected)
	}
}

func TestBuildExecSpecWindowsWithNotification(t *testing.T) {
	adapter := New()
	spec, err := adapter.BuildExecSpec(engine.LaunchRequest{
		Link:    "https://files.example/game1.zip",
		Item:    "Game1",
		Version: "1.2",
	}, engine.Placement{Root: `C:\Games`}, engine.WorkerEnv{
		Dir:           `C:\gacq\workers`,
		GOOS:          "windows",
		Notifications: true,
		Theme:         "purple",
	})
	if err != nil {
		t.Fatalf("build exec spec: %v", err)
	}

	if spec.Bin != filepath.Join(`C:\gacq\workers`, "AscendaraDownloader.exe") {
		t.Fatalf("expected frozen worker binary, got %q", spec.Bin)
	}
	if spec.Args[0] != "https://files.example/game1.zip" {
		t.Fatalf("expected link first on windows, got %v", spec.Args)
	}
	n := len(spec.Args)
	if spec.Args[n-2] != "--withNotification" || spec.Args[n-1] != "purple" {
		t.Fatalf("expected trailing notification flag, got %v", spec.Args)
	}
	if spec.Args[6] != "1.2" {
		t.Fatalf("expected version passed through, got %v", spec.Args)
	}
}

func TestBuildRetrySpecShortForm(t *testing.T) {
	spec, err := New().BuildRetrySpec(engine.RetryRequest{
		Link:    "https://files.example/game1.zip",
		Item:    "Game1",
		DLC:     true,
		Version: "2",
	}, "/games", engine.WorkerEnv{Dir: "/w", GOOS: "linux"})
	if err != nil {
		t.Fatalf("build retry spec: %v", err)
	}
	expected := []string{filepath.Join("/w", "AscendaraDownloader.py"), "https://files.example/game1.zip", "Game1", "false", "true", "2", "0", "/games"}
	if !reflect.DeepEqual(spec.Args, expected) {
		t.Fatalf("unexpected retry args: %v", spec.Args)
	}
}

func TestRetryFolderSpec(t *testing.T) {
	spec := New().RetryFolderSpec("Game1", false, false, "1.0", "/games/Game1", "Game1.rar", engine.WorkerEnv{Dir: "/w", GOOS: "linux"})
	if spec.Args[1] != "retryfolder" || spec.Args[len(spec.Args)-1] != "Game1.rar" {
		t.Fatalf("unexpected retryfolder args: %v", spec.Args)
	}
}

func TestBuildExecSpecRequiresLink(t *testing.T) {
	if _, err := New().BuildExecSpec(engine.LaunchRequest{Item: "Game1"}, engine.Placement{}, engine.WorkerEnv{}); err == nil {
		t.Fatalf("expected missing link to fail")
	}
}
