// Package observability holds the process-wide CLI logger.
//
// Commands log operator-facing progress and diagnostics through CLILogger.
// Library packages never reach for it directly; they accept a *zap.Logger in
// their constructors so tests can inject an observer.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by command implementations.
//
// It starts as a no-op logger so code paths exercised from tests never see a
// nil logger. InitCLILogger replaces it.
var CLILogger = zap.NewNop()

var cliLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// InitCLILogger builds the console logger for the named binary.
//
// Output goes to stderr so the engine's own stdout stays clean for the
// operator. Timestamps are omitted; verbose enables debug output and caller
// annotations.
func InitCLILogger(name string, verbose bool) {
	encCfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		NameKey:          "logger",
		EncodeLevel:      zapcore.LowercaseLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: "  ",
	}

	cliLevel.SetLevel(zapcore.InfoLevel)
	if verbose {
		cliLevel.SetLevel(zapcore.DebugLevel)
		encCfg.CallerKey = "caller"
		encCfg.EncodeCaller = zapcore.ShortCallerEncoder
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		cliLevel,
	)

	opts := []zap.Option{}
	if verbose {
		opts = append(opts, zap.AddCaller())
	}

	CLILogger = zap.New(core, opts...).Named(name)
}

// SetLevel changes the CLI log level at runtime.
//
// Accepts zap level names (debug, info, warn, error). Unknown names leave the
// level unchanged and return false.
func SetLevel(level string) bool {
	level = strings.TrimSpace(strings.ToLower(level))
	if level == "" {
		return false
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return false
	}
	cliLevel.SetLevel(lvl)
	return true
}

// Level returns the current CLI log level.
func Level() zapcore.Level {
	return cliLevel.Level()
}
