package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	configMu    sync.RWMutex
	appIdentity *AppIdentity

	// configFile is an explicit config file path, set from --config.
	configFile string
)

// EnvSpec maps an environment variable onto a config key.
type EnvSpec struct {
	Name string
	Path string
}

// SetConfigFile selects an explicit config file for subsequent loads. An
// empty path restores discovery of the user config file.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// Load builds the effective configuration. Callers keep the result; nothing
// is cached here.
//
// Override maps may be nested or use dotted keys; later maps win.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	defer configMu.Unlock()

	if appIdentity == nil {
		appIdentity = DefaultIdentity()
	}

	v := viper.New()
	setDefaults(v, appIdentity)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	// viper.Set sits above env and file layers.
	for _, o := range overrides {
		for key, value := range flatten("", o) {
			v.Set(key, value)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values no job could run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Engine.Path) == "" {
		errs = append(errs, errors.New("engine.path must not be empty"))
	}
	if c.Engine.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.probe_timeout must be positive (got %s)", c.Engine.ProbeTimeout))
	}
	if c.Engine.InterruptGrace < 0 {
		errs = append(errs, fmt.Errorf("engine.interrupt_grace must not be negative (got %s)", c.Engine.InterruptGrace))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper, id *AppIdentity) {
	v.SetDefault("engine.path", "llama-cli")
	v.SetDefault("engine.probe_timeout", "5s")
	v.SetDefault("engine.interrupt_grace", "30s")

	v.SetDefault("train.epochs", 3)
	v.SetDefault("train.batch_size", 2)
	v.SetDefault("train.learning_rate", 0.0002)
	v.SetDefault("train.threads", 4)
	v.SetDefault("train.ctx_size", 4096)

	v.SetDefault("logging.level", "info")

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.dir", filepath.Join(gfconfig.GetAppDataDir(id.ConfigName), "jobs"))
}

// readConfigFile reads the explicit config file, or the first user config
// file found. A missing user config file is not an error.
func readConfigFile(v *viper.Viper) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", configFile, err)
		}
		return nil
	}

	for _, path := range getUserConfigPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// getUserConfigPaths lists candidate config files in search order.
func getUserConfigPaths() []string {
	if appIdentity == nil {
		return []string{}
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return []string{}
	}
	base := filepath.Join(dir, appIdentity.ConfigName)
	return []string{
		filepath.Join(base, "config.yaml"),
		filepath.Join(base, "config.yml"),
		filepath.Join(base, "config.json"),
	}
}

// getEnvSpecs lists the supported environment variables.
func getEnvSpecs() []EnvSpec {
	if appIdentity == nil {
		return []EnvSpec{}
	}
	p := appIdentity.EnvPrefix
	return []EnvSpec{
		{Name: p + "ENGINE_PATH", Path: "engine.path"},
		{Name: p + "ENGINE_PROBE_TIMEOUT", Path: "engine.probe_timeout"},
		{Name: p + "ENGINE_INTERRUPT_GRACE", Path: "engine.interrupt_grace"},
		{Name: p + "EPOCHS", Path: "train.epochs"},
		{Name: p + "BATCH_SIZE", Path: "train.batch_size"},
		{Name: p + "LEARNING_RATE", Path: "train.learning_rate"},
		{Name: p + "THREADS", Path: "train.threads"},
		{Name: p + "CTX_SIZE", Path: "train.ctx_size"},
		{Name: p + "LOG_LEVEL", Path: "logging.level"},
		{Name: p + "JOBS_ENABLED", Path: "jobs.enabled"},
		{Name: p + "JOBS_DIR", Path: "jobs.dir"},
	}
}

// flatten turns nested maps into dotted keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
