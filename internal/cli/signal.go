package cli

import (
	"os"
	"syscall"
)

// SIGTERM is never delivered on Windows but is harmless to register.
func interruptSignals() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
