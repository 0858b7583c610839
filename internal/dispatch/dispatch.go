package dispatch

import (
	"context"
	"fmt"
	"strings"
)

// Placeholders substituted with the output path. {input} is the historical
// name: the impaired file is the consumer's input.
var Placeholders = []string{"{input}", "{output}"}

// ExitLaunchFailure is the process exit status when the consumer cannot start.
const ExitLaunchFailure = 3

// LaunchError reports that the consumer command could not be started.
type LaunchError struct {
	Cmdline string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to start tracker command %q: %v", e.Cmdline, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ExitCode implements the pipeline's exit-code contract.
func (e *LaunchError) ExitCode() int { return ExitLaunchFailure }

// NonZeroExitError reports that the consumer ran and exited non-zero.
type NonZeroExitError struct {
	Cmdline string
	Code    int
}

func (e *NonZeroExitError) Error() string {
	return fmt.Sprintf("tracker exited with non-zero code: %d", e.Code)
}

// ExitCode mirrors the consumer's status.
func (e *NonZeroExitError) ExitCode() int { return e.Code }

// Expand substitutes every placeholder in template with outputPath.
func Expand(template, outputPath string) string {
	out := template
	for _, p := range Placeholders {
		out = strings.ReplaceAll(out, p, outputPath)
	}
	return out
}

// Dispatcher runs a consumer command template after a successful write.
type Dispatcher struct {
	Template string
	Runner   Runner
}

// Dispatch expands the template for outputPath and runs it. It returns the
// expanded command line and a *LaunchError or *NonZeroExitError on failure.
func (d *Dispatcher) Dispatch(ctx context.Context, outputPath string) (string, error) {
	cmdline := Expand(d.Template, outputPath)
	code, err := d.Runner.Run(ctx, cmdline)
	if err != nil {
		return cmdline, &LaunchError{Cmdline: cmdline, Err: err}
	}
	if code != 0 {
		return cmdline, &NonZeroExitError{Cmdline: cmdline, Code: code}
	}
	return cmdline, nil
}
