//go:build !windows

package dispatch

import (
	"os/exec"
	"syscall"
)

// signalNumber extracts the terminating signal from a wait status.
func signalNumber(err *exec.ExitError) int {
	if ws, ok := err.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return int(ws.Signal())
	}
	return 0
}
