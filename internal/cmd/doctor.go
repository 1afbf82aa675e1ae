package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/klauspost/cpuid/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/loratune/internal/config"
	"github.com/3leaps/loratune/internal/observability"
	"github.com/3leaps/loratune/pkg/engine"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Checks that the training engine is installed and callable, reports CPU
features relevant to training throughput, and verifies the config and job
history directories.

Examples:
  loratune doctor
  loratune doctor --engine /opt/llama.cpp/build/bin/llama-cli`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorEngine string

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorEngine, "engine", "", "Training engine executable to check")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := currentConfig(cmd.Context())
	if err != nil {
		return exitError(exitFailure, "Failed to load configuration", err)
	}

	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	observability.CLILogger.Info("=== " + bannerName + " ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 6

	// Check 1: training engine
	enginePath := cfg.Engine.Path
	if cmd.Flags().Changed("engine") {
		enginePath = doctorEngine
	}
	if !checkEngine(cmd.Context(), enginePath, cfg.Engine, checkNum, totalChecks) {
		allChecks = false
	}
	checkNum++

	// Check 2: CPU
	if !checkCPU(cfg.Train.Threads, checkNum, totalChecks) {
		allChecks = false
	}
	checkNum++

	// Check 3: Crucible and Gofulmen
	version := crucible.GetVersion()
	if version.Crucible != "" && version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Crucible access... ✅ crucible v%s, gofulmen v%s", checkNum, totalChecks, version.Crucible, version.Gofulmen),
			zap.String("crucible_version", version.Crucible),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Crucible access... ❌ Cannot access Crucible", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 4: Config directory
	configDir, err := os.UserConfigDir()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
			zap.String("config_dir", configDir))
	}
	checkNum++

	// Check 5: Job history directory
	if !checkJobsDir(cfg.Jobs, checkNum, totalChecks) {
		allChecks = false
	}
	checkNum++

	// Check 6: Environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s (%s)", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH, runtime.Version()),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH),
		zap.String("go_version", runtime.Version()))

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
	return nil
}

func checkEngine(ctx context.Context, path string, ec config.EngineConfig, checkNum, totalChecks int) bool {
	prober := engine.NewProber(engine.ProbeConfig{Path: path, Timeout: ec.ProbeTimeout}, observability.CLILogger)
	err := prober.Check(ctx)
	if err == nil {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking training engine... ✅ %s", checkNum, totalChecks, prober.Path()),
			zap.String("engine", prober.Path()))
		return true
	}

	reason := "not callable"
	switch {
	case engine.IsNotFound(err):
		reason = "not found"
	case engine.IsTimeout(err):
		reason = fmt.Sprintf("no response within %s", prober.Timeout())
	}
	observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking training engine... ❌ %s %s", checkNum, totalChecks, prober.Path(), reason),
		zap.Error(err))
	printEngineInstallHelp()
	return false
}

// checkCPU reports SIMD support and compares the configured thread count
// with the available cores.
func checkCPU(threads, checkNum, totalChecks int) bool {
	cpu := cpuid.CPU
	features := simdFeatures()
	featureText := "no SIMD acceleration detected"
	if len(features) > 0 {
		featureText = strings.Join(features, ", ")
	}

	fields := []zap.Field{
		zap.String("brand", cpu.BrandName),
		zap.Int("physical_cores", cpu.PhysicalCores),
		zap.Int("logical_cores", cpu.LogicalCores),
		zap.Strings("features", features),
		zap.Int("threads", threads),
	}

	recommended := recommendedThreads(cpu.PhysicalCores, cpu.LogicalCores)
	if recommended > 0 && threads > cpu.LogicalCores && cpu.LogicalCores > 0 {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking CPU... ⚠️  %d threads configured but only %d logical cores (recommended: --threads %d)",
			checkNum, totalChecks, threads, cpu.LogicalCores, recommended), fields...)
		return false
	}

	msg := fmt.Sprintf("[%d/%d] Checking CPU... ✅ %s (%s)", checkNum, totalChecks, strings.TrimSpace(cpu.BrandName), featureText)
	if recommended > 0 {
		msg += fmt.Sprintf(", recommended --threads %d", recommended)
	}
	observability.CLILogger.Info(msg, fields...)
	return true
}

func simdFeatures() []string {
	var out []string
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.AVX, "AVX"},
		{cpuid.AVX2, "AVX2"},
		{cpuid.FMA3, "FMA"},
		{cpuid.F16C, "F16C"},
		{cpuid.AVX512F, "AVX512F"},
		{cpuid.ASIMD, "NEON"},
	} {
		if cpuid.CPU.Supports(f.id) {
			out = append(out, f.name)
		}
	}
	return out
}

// recommendedThreads prefers one thread per physical core. Zero means the
// core count is unknown.
func recommendedThreads(physical, logical int) int {
	if physical > 0 {
		return physical
	}
	return logical
}

func checkJobsDir(jc config.JobsConfig, checkNum, totalChecks int) bool {
	if !jc.Enabled {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking job history... ✅ disabled", checkNum, totalChecks))
		return true
	}
	if err := os.MkdirAll(jc.Dir, 0o755); err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking job history... ❌ Cannot create %s", checkNum, totalChecks, jc.Dir),
			zap.Error(err))
		return false
	}
	probe, err := os.CreateTemp(jc.Dir, ".doctor-*")
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking job history... ❌ %s is not writable", checkNum, totalChecks, jc.Dir),
			zap.Error(err))
		return false
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())

	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking job history... ✅ %s", checkNum, totalChecks, jc.Dir),
		zap.String("jobs_dir", jc.Dir))
	return true
}

// printEngineInstallHelp prints help for installing the training engine.
func printEngineInstallHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To install the training engine:")
	observability.CLILogger.Info("  1. git clone https://github.com/ggerganov/llama.cpp")
	observability.CLILogger.Info("  2. cmake -B build && cmake --build build --config Release")
	observability.CLILogger.Info("  3. Put build/bin on PATH, or point --engine / LORATUNE_ENGINE_PATH at llama-cli")
	observability.CLILogger.Info("")
}
