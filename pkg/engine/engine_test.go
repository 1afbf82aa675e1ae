package engine

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

// fakeEngine writes an executable shell script standing in for the engine.
func fakeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script fake engines require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-engine")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestProber_Defaults(t *testing.T) {
	p := NewProber(ProbeConfig{}, nil)
	assert.Equal(t, DefaultExecutable, p.Path())
	assert.Equal(t, DefaultProbeTimeout, p.Timeout())
}

func TestProber_NotFound(t *testing.T) {
	p := NewProber(ProbeConfig{Path: "loratune-no-such-engine-3f9a"}, nil)

	assert.False(t, p.Probe(context.Background()))
	err := p.Check(context.Background())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestProber_Available(t *testing.T) {
	path := fakeEngine(t, `[ "$1" = "--help" ] || exit 2
echo "usage: fake-engine"`)
	p := NewProber(ProbeConfig{Path: path}, nil)

	assert.True(t, p.Probe(context.Background()))
	assert.NoError(t, p.Check(context.Background()))
}

func TestProber_NonZeroExit(t *testing.T) {
	path := fakeEngine(t, "exit 1")
	p := NewProber(ProbeConfig{Path: path}, nil)

	assert.False(t, p.Probe(context.Background()))

	var exitErr *ExitError
	require.True(t, errors.As(p.Check(context.Background()), &exitErr))
	assert.Equal(t, 1, exitErr.Code)
}

func TestProber_TimeoutDoesNotHang(t *testing.T) {
	path := fakeEngine(t, "exec sleep 30")
	p := NewProber(ProbeConfig{Path: path, Timeout: 200 * time.Millisecond}, nil)

	start := time.Now()
	err := p.Check(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Less(t, elapsed, 5*time.Second)
	assert.False(t, p.Probe(context.Background()))
}

func TestProber_ParentContextCancelled(t *testing.T) {
	path := fakeEngine(t, "exit 0")
	p := NewProber(ProbeConfig{Path: path}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Check(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInvocation_Argv(t *testing.T) {
	inv := Invocation{Path: "llama-cli", Args: []string{"finetune", "--use-ckpt"}}
	assert.Equal(t, []string{"llama-cli", "finetune", "--use-ckpt"}, inv.Argv())
	assert.Equal(t, "llama-cli finetune --use-ckpt", inv.String())
}

func TestProcessRunner_ExitCodes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "success", body: "exit 0", want: 0},
		{name: "failure", body: "exit 1", want: 1},
		{name: "custom code", body: "exit 42", want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := fakeEngine(t, tt.body)
			r := NewProcessRunner(RunnerConfig{}, nil)

			code, err := r.Run(context.Background(), Invocation{Path: path})
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestProcessRunner_ForwardsOutput(t *testing.T) {
	path := fakeEngine(t, `echo "args: $*"
echo "progress 50%" >&2`)
	var stdout, stderr bytes.Buffer
	r := NewProcessRunner(RunnerConfig{Stdout: &stdout, Stderr: &stderr}, nil)

	code, err := r.Run(context.Background(), Invocation{Path: path, Args: []string{"finetune", "--epochs", "3"}})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "args: finetune --epochs 3\n", stdout.String())
	assert.Equal(t, "progress 50%\n", stderr.String())
}

func TestProcessRunner_LaunchFailure(t *testing.T) {
	r := NewProcessRunner(RunnerConfig{}, nil)

	code, err := r.Run(context.Background(), Invocation{Path: filepath.Join(t.TempDir(), "vanished-engine")})
	require.Error(t, err)
	assert.Equal(t, -1, code)

	var launchErr *LaunchError
	assert.True(t, errors.As(err, &launchErr))
}

func TestProcessRunner_InterruptStopsEngine(t *testing.T) {
	path := fakeEngine(t, "exec sleep 30")
	r := NewProcessRunner(RunnerConfig{Grace: 5 * time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	code, err := r.Run(ctx, Invocation{Path: path})
	require.NoError(t, err)
	assert.Equal(t, -1, code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcessRunner_InterruptAllowsCheckpoint(t *testing.T) {
	path := fakeEngine(t, `trap 'echo checkpoint saved; exit 0' INT
while :; do sleep 0.05; done`)
	var stdout bytes.Buffer
	r := NewProcessRunner(RunnerConfig{Stdout: &stdout, Grace: 5 * time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	code, err := r.Run(ctx, Invocation{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "checkpoint saved")
}

func TestProcessRunner_KillsAfterGrace(t *testing.T) {
	path := fakeEngine(t, `trap '' INT
exec sleep 30`)
	r := NewProcessRunner(RunnerConfig{Grace: 200 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	code, _ := r.Run(ctx, Invocation{Path: path})
	assert.Equal(t, -1, code)
	assert.Less(t, time.Since(start), 5*time.Second)
}
