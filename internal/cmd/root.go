// Package cmd implements the loratune command line.
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/loratune/internal/config"
	"github.com/3leaps/loratune/internal/observability"
)

// exitFailure is the generic failure status. Training reports every
// unsuccessful outcome with it.
const exitFailure = 1

var (
	cfgFile  string
	verbose  bool
	logLevel string

	appIdentity *config.AppIdentity
	appConfig   *config.Config
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var rootCmd = &cobra.Command{
	Use:   "loratune",
	Short: "Run LoRA fine-tuning jobs on a local training engine",
	Long: `loratune validates a prompt/completion training corpus and drives a local
llama.cpp-compatible engine to produce LoRA adapter weights.

Examples:
  loratune train --model base.gguf --data train.jsonl --output out/lora.bin
  loratune train --job job.yaml --validate-only
  loratune validate 'data/**/*.jsonl'
  loratune prepare raw.jsonl -o train.jsonl
  loratune doctor`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: <user config dir>/loratune/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// SetVersionInfo records build metadata injected by main.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity loaded at startup, or nil before the
// first command runs.
func GetAppIdentity() *config.AppIdentity {
	return appIdentity
}

// currentConfig returns the loaded config, loading it on first use.
func currentConfig(ctx context.Context) (*config.Config, error) {
	if appConfig != nil {
		return appConfig, nil
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	appConfig = cfg
	return cfg, nil
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if appIdentity == nil {
		appIdentity = config.DefaultIdentity()
	}
	observability.InitCLILogger(appIdentity.BinaryName, verbose)

	config.SetConfigFile(cfgFile)
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return exitError(exitFailure, "Failed to load configuration", err)
	}
	appConfig = cfg

	level := cfg.Logging.Level
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}
	if !verbose && level != "" && !observability.SetLevel(level) {
		observability.CLILogger.Warn("Ignoring unknown log level", zap.String("level", level))
	}
	return nil
}

// Execute runs the root command and returns the process exit status.
//
// SIGINT and SIGTERM cancel the command context; commands decide what an
// interrupt means for them.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Flag parsing fails before initConfig runs; make sure it is reported.
	observability.InitCLILogger(config.DefaultIdentity().BinaryName, false)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" {
			fields := []zap.Field{zap.Int("exit_code", exitErr.Code)}
			if exitErr.Err != nil {
				fields = append(fields, zap.Error(exitErr.Err))
			}
			observability.CLILogger.Error(exitErr.Message, fields...)
		}
		return exitErr.Code
	}

	// Cobra usage errors and anything a command returned unwrapped.
	observability.CLILogger.Error("Command failed", zap.Error(err))
	return exitFailure
}
