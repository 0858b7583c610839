//go:build windows

package dispatch

import "os/exec"

// signalNumber is always 0 on Windows, which has no POSIX signals.
func signalNumber(err *exec.ExitError) int {
	return 0
}
