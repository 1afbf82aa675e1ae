package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/loratune/internal/config"
)

// isolateCLI points config discovery and job history at temp dirs and resets
// flag and context state that cobra keeps between Execute calls.
func isolateCLI(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("LORATUNE_JOBS_DIR", filepath.Join(home, "jobs"))
	t.Setenv("LORATUNE_ENGINE_PATH", "")

	reset := func() {
		resetCommands(rootCmd)
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		config.SetConfigFile("")
		appConfig = nil
	}
	reset()
	t.Cleanup(reset)
	return home
}

// resetCommands clears flag values and the context cobra stores on each
// command. A subcommand keeps the context of its first run, so a context
// cancelled by Execute would otherwise leak into later runs.
func resetCommands(c *cobra.Command) {
	resetFlag := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(resetFlag)
	c.PersistentFlags().VisitAll(resetFlag)
	c.SetContext(context.Background())
	for _, sub := range c.Commands() {
		resetCommands(sub)
	}
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireExitCode(t *testing.T, err error, code int) *ExitError {
	t.Helper()
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, code, exitErr.Code)
	return exitErr
}

func TestSetVersionInfo(t *testing.T) {
	// Save original values
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2024-01-15",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
		{
			name:      "set empty values",
			version:   "",
			commit:    "",
			buildDate: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestGetAppIdentity(t *testing.T) {
	t.Run("returns nil before init", func(t *testing.T) {
		orig := appIdentity
		appIdentity = nil
		defer func() { appIdentity = orig }()

		assert.Nil(t, GetAppIdentity())
	})

	t.Run("set by command startup", func(t *testing.T) {
		isolateCLI(t)
		orig := appIdentity
		appIdentity = nil
		defer func() { appIdentity = orig }()

		_, err := runCLI(t, "version")
		require.NoError(t, err)

		id := GetAppIdentity()
		require.NotNil(t, id)
		assert.Equal(t, "loratune", id.BinaryName)
	})
}

func TestInitConfig_LoadsDefaults(t *testing.T) {
	home := isolateCLI(t)

	_, err := runCLI(t, "version")
	require.NoError(t, err)

	require.NotNil(t, appConfig)
	assert.Equal(t, "llama-cli", appConfig.Engine.Path)
	assert.Equal(t, 3, appConfig.Train.Epochs)
	assert.Equal(t, filepath.Join(home, "jobs"), appConfig.Jobs.Dir)
}

func TestInitConfig_MissingConfigFile(t *testing.T) {
	isolateCLI(t)

	_, err := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "version")
	e := requireExitCode(t, err, exitFailure)
	assert.Equal(t, "Failed to load configuration", e.Message)
}

func TestVersionCommand(t *testing.T) {
	isolateCLI(t)
	orig := versionInfo
	defer func() { versionInfo = orig }()
	SetVersionInfo("1.2.3", "abc123", "2026-01-01")

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "loratune 1.2.3")
	assert.Contains(t, out, "abc123")
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  *ExitError
		want string
	}{
		{"message and cause", &ExitError{Code: 1, Message: "Failed", Err: cause}, "Failed: boom (exit code 1)"},
		{"message only", &ExitError{Code: 2, Message: "Failed"}, "Failed (exit code 2)"},
		{"cause only", &ExitError{Code: 1, Err: cause}, "boom (exit code 1)"},
		{"bare", &ExitError{Code: 1}, "exit code 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}

	err := exitError(7, "wrapped", cause)
	assert.ErrorIs(t, err, cause)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 7, exitErr.Code)
}

func TestExecute_ReturnsExitCode(t *testing.T) {
	isolateCLI(t)

	rootCmd.SetArgs([]string{"merge", "--lora", "a.bin", "--model", "m.gguf", "--output", "o.gguf"})
	assert.Equal(t, exitFailure, Execute())

	isolateCLI(t)
	rootCmd.SetArgs([]string{"train", "--no-such-flag"})
	assert.Equal(t, exitFailure, Execute())

	isolateCLI(t)
	rootCmd.SetArgs([]string{"version"})
	rootCmd.SetOut(&bytes.Buffer{})
	assert.Equal(t, 0, Execute())
}

func TestExecute_DoesNotLeakCancelledContext(t *testing.T) {
	isolateCLI(t)
	enginePath, _ := fakeEngine(t, 0)
	in := writeTrainInputs(t, validCorpus)
	trainArgs := []string{"train", "--engine", enginePath, "--validate-only",
		"--model", in.model, "--data", in.data, "--output", in.output}

	rootCmd.SetArgs(trainArgs)
	assert.Equal(t, 0, Execute())

	// Execute cancels its signal context on return.
	isolateCLI(t)
	_, err := runCLI(t, trainArgs...)
	require.NoError(t, err)
	require.NotNil(t, trainCmd.Context())
	assert.NoError(t, trainCmd.Context().Err())
}
