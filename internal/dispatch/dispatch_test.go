package dispatch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	code  int
	err   error
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, cmdline string) (int, error) {
	f.calls = append(f.calls, cmdline)
	return f.code, f.err
}

func TestExpand(t *testing.T) {
	tests := []struct {
		template string
		want     string
	}{
		{"tracker --in {input}", "tracker --in /tmp/out.jsonl"},
		{"tracker --in {output} --log {output}.log", "tracker --in /tmp/out.jsonl --log /tmp/out.jsonl.log"},
		{"tracker --static", "tracker --static"},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.template, "/tmp/out.jsonl"))
		})
	}
}

func TestDispatcher_Success(t *testing.T) {
	fr := &fakeRunner{}
	d := &Dispatcher{Template: "track {input}", Runner: fr}

	cmdline, err := d.Dispatch(context.Background(), "out.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "track out.jsonl", cmdline)
	assert.Equal(t, []string{"track out.jsonl"}, fr.calls)
}

func TestDispatcher_NonZero(t *testing.T) {
	d := &Dispatcher{Template: "track {input}", Runner: &fakeRunner{code: 5}}

	_, err := d.Dispatch(context.Background(), "out.jsonl")
	var nz *NonZeroExitError
	require.True(t, errors.As(err, &nz))
	assert.Equal(t, 5, nz.ExitCode())
}

func TestDispatcher_LaunchFailure(t *testing.T) {
	cause := errors.New("exec format error")
	d := &Dispatcher{Template: "track {input}", Runner: &fakeRunner{code: -1, err: cause}}

	_, err := d.Dispatch(context.Background(), "out.jsonl")
	var le *LaunchError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ExitLaunchFailure, le.ExitCode())
	assert.ErrorIs(t, err, cause)
}

func TestShellRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}

	var stdout bytes.Buffer
	r := &ShellRunner{Stdout: &stdout, Stderr: &bytes.Buffer{}}

	code, err := r.Run(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello\n", stdout.String())

	code, err = r.Run(context.Background(), "exit 4")
	require.NoError(t, err)
	assert.Equal(t, 4, code)
}

func TestShellRunner_NoWait(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}

	r := &ShellRunner{NoWait: true, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
	code, err := r.Run(context.Background(), "exit 9")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestShellRunner_NoWaitSurvivesCancel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}

	marker := filepath.Join(t.TempDir(), "done")
	ctx, cancel := context.WithCancel(context.Background())
	r := &ShellRunner{NoWait: true}

	code, err := r.Run(ctx, "sleep 0.2; touch '"+marker+"'")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	cancel()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "detached tracker did not finish after cancellation")
}

func TestShellRunner_CancelKillsWaitedChild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	code, err := (&ShellRunner{}).Run(ctx, "exec sleep 5")
	require.NoError(t, err)
	assert.NotEqual(t, 0, code)
	assert.Less(t, time.Since(start), 4*time.Second)
}
