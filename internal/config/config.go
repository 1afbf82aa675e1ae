// Package config loads loratune configuration.
//
// Values are layered, highest precedence first: runtime overrides, LORATUNE_*
// environment variables, the config file, then built-in defaults.
package config

import "time"

// Config is the effective loratune configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Train   TrainConfig   `mapstructure:"train"`
	Logging LoggingConfig `mapstructure:"logging"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
}

// EngineConfig locates and supervises the training engine.
type EngineConfig struct {
	// Path is the engine executable, looked up on PATH when bare.
	Path string `mapstructure:"path"`

	// ProbeTimeout bounds the availability probe.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`

	// InterruptGrace is how long an interrupted engine may take to
	// checkpoint before it is killed.
	InterruptGrace time.Duration `mapstructure:"interrupt_grace"`
}

// TrainConfig holds default hyperparameters.
type TrainConfig struct {
	Epochs       int     `mapstructure:"epochs"`
	BatchSize    int     `mapstructure:"batch_size"`
	LearningRate float64 `mapstructure:"learning_rate"`
	Threads      int     `mapstructure:"threads"`
	CtxSize      int     `mapstructure:"ctx_size"`
}

// LoggingConfig configures CLI logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// JobsConfig configures the job history registry.
type JobsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// AppIdentity names the application for config and data directories.
type AppIdentity struct {
	BinaryName string
	ConfigName string
	EnvPrefix  string
}

// DefaultIdentity is the loratune identity.
func DefaultIdentity() *AppIdentity {
	return &AppIdentity{
		BinaryName: "loratune",
		ConfigName: "loratune",
		EnvPrefix:  "LORATUNE_",
	}
}
