package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessEnumerator finds worker processes on the host by name and
// arguments, without needing a handle from this gacq instance.
type ProcessEnumerator interface {
	// Find returns pids of processes running one of executables whose
	// argument list names item. An empty item matches any instance.
	Find(ctx context.Context, executables []string, item string) ([]int32, error)
	KillTree(ctx context.Context, pid int32) error
	Alive(ctx context.Context, pid int32) bool
}

// SystemEnumerator reads the OS process table through gopsutil.
type SystemEnumerator struct {
	goos string
	self int32
}

func NewSystemEnumerator() *SystemEnumerator {
	return &SystemEnumerator{goos: runtime.GOOS, self: int32(os.Getpid())}
}

func (e *SystemEnumerator) Find(ctx context.Context, executables []string, item string) ([]int32, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	pids := []int32{}
	for _, proc := range procs {
		if proc.Pid == e.self {
			continue
		}
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		argv, _ := proc.CmdlineSliceWithContext(ctx)
		cmdline, _ := proc.CmdlineWithContext(ctx)

		candidate := procInfo{Name: name, Argv: argv, Cmdline: cmdline}
		for _, exe := range executables {
			if matchesWorker(e.goos, candidate, exe) && matchesItem(candidate, item) {
				pids = append(pids, proc.Pid)
				break
			}
		}
	}
	return pids, nil
}

func (e *SystemEnumerator) KillTree(ctx context.Context, pid int32) error {
	killGroup(int(pid))
	return killTreeWithContext(ctx, pid)
}

func (e *SystemEnumerator) Alive(ctx context.Context, pid int32) bool {
	exists, err := process.PidExistsWithContext(ctx, pid)
	if err != nil || !exists {
		return false
	}
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return false
	}
	statuses, err := proc.StatusWithContext(ctx)
	if err != nil {
		return true
	}
	for _, status := range statuses {
		if status == process.Zombie {
			return false
		}
	}
	return true
}

// killTreeWithContext kills descendants before the parent so none are
// reparented and missed.
func killTreeWithContext(ctx context.Context, pid int32) error {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil
		}
		return fmt.Errorf("open pid %d: %w", pid, err)
	}

	children, _ := proc.ChildrenWithContext(ctx)
	for _, child := range children {
		_ = killTreeWithContext(ctx, child.Pid)
	}

	if err := proc.KillWithContext(ctx); err != nil {
		if running, _ := proc.IsRunningWithContext(ctx); !running {
			return nil
		}
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

// waitGone polls until every pid has left the process table.
func waitGone(ctx context.Context, enum ProcessEnumerator, pids []int32, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		remaining := []int32{}
		for _, pid := range pids {
			if enum.Alive(ctx, pid) {
				remaining = append(remaining, pid)
			}
		}
		if len(remaining) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: pids %v", ErrTerminationTimeout, remaining)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

type procInfo struct {
	Name    string
	Argv    []string
	Cmdline string
}

// matchesWorker reports whether p is an instance of the worker exe. Frozen
// workers on Windows run as exe.exe; elsewhere they run as a script under
// the interpreter, or under their own name.
func matchesWorker(goos string, p procInfo, exe string) bool {
	if goos == "windows" {
		return strings.EqualFold(p.Name, exe+".exe")
	}
	if p.Name == exe {
		return true
	}
	for _, arg := range p.Argv {
		base := baseName(arg)
		if base == exe+".py" || base == exe {
			return true
		}
	}
	return false
}

// matchesItem requires the item as a whole argument. Substring matches
// would catch unrelated items whose names contain this one.
func matchesItem(p procInfo, item string) bool {
	if item == "" {
		return true
	}
	for _, arg := range p.Argv {
		if arg == item {
			return true
		}
	}
	if len(p.Argv) > 1 {
		return false
	}
	// argv could not be split (some Windows processes); look for the item
	// as a quoted or space-delimited token.
	if strings.Contains(p.Cmdline, `"`+item+`"`) {
		return true
	}
	padded := " " + p.Cmdline + " "
	return strings.Contains(padded, " "+item+" ")
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
