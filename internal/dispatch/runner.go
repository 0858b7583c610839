// Package dispatch hands a finished replay file to an external consumer
// process, such as a tracker, and reports its exit status.
package dispatch

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
)

// Runner runs a command line and returns its exit code. err is non-nil only
// when the command could not be started or waited on; a command that ran and
// exited non-zero returns its code with a nil error.
type Runner interface {
	Run(ctx context.Context, cmdline string) (int, error)
}

// ShellRunner runs command lines through the platform shell with stdio
// forwarded to the configured writers.
type ShellRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// NoWait starts the command and returns 0 without waiting for it.
	NoWait bool
}

// NewShellRunner returns a runner attached to the current process's stdio.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run implements Runner. When ctx is cancelled a waited child is killed and
// its resulting exit status is reported. A NoWait child is detached from ctx
// and outlives both the cancellation and this process.
func (r *ShellRunner) Run(ctx context.Context, cmdline string) (int, error) {
	if r.NoWait {
		ctx = context.WithoutCancel(ctx)
	}
	cmd := shellCommand(ctx, cmdline)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Start(); err != nil {
		return -1, err
	}
	if r.NoWait {
		go cmd.Wait() //nolint:errcheck // detached child; status is abandoned by request
		return 0, nil
	}

	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Terminated by a signal.
			code = 128 + signalNumber(exitErr)
		}
		return code, nil
	}
	return -1, err
}

func shellCommand(ctx context.Context, cmdline string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", cmdline)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
}
