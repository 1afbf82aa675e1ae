// Package engine wraps the external fine-tuning executable.
//
// The engine is an opaque collaborator: this package only knows how to check
// that it answers, and how to run a prepared command line while forwarding
// its console output and observing its exit status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultExecutable is the llama.cpp CLI used when no engine path is configured.
const DefaultExecutable = "llama-cli"

// DefaultProbeTimeout bounds the availability probe.
const DefaultProbeTimeout = 5 * time.Second

// probeWaitDelay bounds how long Wait blocks on I/O after the probe is killed.
const probeWaitDelay = 500 * time.Millisecond

// ProbeConfig configures a Prober.
type ProbeConfig struct {
	// Path is the engine executable name or path. Empty uses DefaultExecutable.
	Path string

	// Args are passed to the engine for the probe. Empty uses "--help".
	Args []string

	// Timeout bounds the probe. Zero uses DefaultProbeTimeout.
	Timeout time.Duration
}

// Prober checks whether the engine executable is present and callable.
//
// A positive result is a liveness signal only. It does not prove that the
// engine understands the flags a training run will pass.
type Prober struct {
	path    string
	args    []string
	timeout time.Duration
	logger  *zap.Logger
}

// NewProber creates a prober. A nil logger disables logging.
func NewProber(cfg ProbeConfig, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultExecutable
	}
	args := cfg.Args
	if len(args) == 0 {
		args = []string{"--help"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{path: path, args: args, timeout: timeout, logger: logger}
}

// Path returns the configured engine executable.
func (p *Prober) Path() string {
	return p.path
}

// Timeout returns the probe timeout.
func (p *Prober) Timeout() time.Duration {
	return p.timeout
}

// Probe reports whether the engine answered its help entry point successfully
// within the timeout.
func (p *Prober) Probe(ctx context.Context) bool {
	err := p.Check(ctx)
	if err != nil {
		p.logger.Debug("Engine probe failed", zap.String("engine", p.path), zap.Error(err))
		return false
	}
	return true
}

// Check runs the probe and returns why the engine is unavailable, or nil.
//
// Errors match ErrEngineNotFound, ErrProbeTimeout, *ExitError or
// *LaunchError. If ctx itself is cancelled, ctx.Err() is returned.
func (p *Prober) Check(ctx context.Context) error {
	exe, err := exec.LookPath(p.path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrEngineNotFound, p.path)
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Output goes to the null device: the probe only cares about the status.
	cmd := exec.CommandContext(probeCtx, exe, p.args...)
	cmd.WaitDelay = probeWaitDelay

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		return err
	}
	if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %s", ErrProbeTimeout, p.timeout, p.path)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return &ExitError{Path: exe, Code: exitErr.ExitCode()}
		}
		return &LaunchError{Path: exe, Err: runErr}
	}

	p.logger.Debug("Engine probe succeeded",
		zap.String("engine", exe),
		zap.Duration("elapsed", elapsed))
	return nil
}
