//go:build windows

package engine

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

func configureCommandForTermination(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
	}
}

func terminateCommand(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = killTreeWithContext(context.Background(), int32(cmd.Process.Pid))
	_ = cmd.Process.Kill()
}

// Windows has no process groups to signal; killTreeWithContext walks
// children instead.
func killGroup(int) {}
