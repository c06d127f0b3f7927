// Package config loads slotflow settings from YAML, .env files and
// SLOTFLOW_* environment variables.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	sferrors "github.com/vnykmshr/slotflow/pkg/common/errors"
	"github.com/vnykmshr/slotflow/pkg/scheduling/executor"
	"github.com/vnykmshr/slotflow/pkg/scheduling/recurring"
	"github.com/vnykmshr/slotflow/pkg/telemetry"
	"github.com/vnykmshr/slotflow/pkg/workload"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SLOTFLOW_"

// Redis mirrors the redis section of the config file.
type Redis struct {
	Addr       string            `yaml:"addr"`
	Key        string            `yaml:"key"`
	MaxEntries int               `yaml:"max_entries"`
	TTL        workload.Duration `yaml:"ttl"`
}

// Config mirrors slotflow.yaml.
type Config struct {
	Capacity    int               `yaml:"capacity"`     // 2 by default
	Unit        workload.Duration `yaml:"unit"`         // 1s by default
	Mode        string            `yaml:"mode"`         // goroutine or workerpool
	TaskTimeout workload.Duration `yaml:"task_timeout"` // 0 = none
	LogLevel    string            `yaml:"log_level"`
	Trace       bool              `yaml:"trace"`
	MetricsAddr string            `yaml:"metrics_addr"`
	Cron        string            `yaml:"cron"`
	MaxRuns     int               `yaml:"max_runs"`
	Redis       Redis             `yaml:"redis"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Capacity: 2,
		Unit:     workload.Duration(time.Second),
		Mode:     executor.ModeGoroutine.String(),
		LogLevel: "info",
		Redis: Redis{
			Key:        "slotflow:reports",
			MaxEntries: 100,
			TTL:        workload.Duration(24 * time.Hour),
		},
	}
}

// Load reads YAML at path over the defaults. An empty path or a missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, sferrors.NewOperationError("config", "Load", err).WithContext(path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, sferrors.NewOperationError("config", "Load", err).WithContext(path)
	}
	cfg.clamp()
	return cfg, nil
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return sferrors.NewOperationError("config", "LoadEnvFiles", err).WithContext(f)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with SLOTFLOW_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	get := func(name string) (string, bool) {
		v := strings.TrimSpace(getenv(EnvPrefix + name))
		return v, v != ""
	}

	if v, ok := get("CAPACITY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("CAPACITY", v, err)
		}
		c.Capacity = n
	}
	if v, ok := get("UNIT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("UNIT", v, err)
		}
		c.Unit = workload.Duration(d)
	}
	if v, ok := get("MODE"); ok {
		c.Mode = v
	}
	if v, ok := get("TASK_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("TASK_TIMEOUT", v, err)
		}
		c.TaskTimeout = workload.Duration(d)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("TRACE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("TRACE", v, err)
		}
		c.Trace = b
	}
	if v, ok := get("METRICS_ADDR"); ok {
		c.MetricsAddr = v
	}
	if v, ok := get("CRON"); ok {
		c.Cron = v
	}
	if v, ok := get("MAX_RUNS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("MAX_RUNS", v, err)
		}
		c.MaxRuns = n
	}
	if v, ok := get("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := get("REDIS_KEY"); ok {
		c.Redis.Key = v
	}
	c.clamp()
	return nil
}

// Validate checks settings that clamping cannot repair.
func (c Config) Validate() error {
	if _, err := executor.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := telemetry.ParseLevel(c.LogLevel); err != nil {
		return sferrors.NewValidationError("config", "log_level", c.LogLevel, "unknown level").
			WithHint("use debug, info, warn or error")
	}
	if c.Cron != "" {
		if err := recurring.Validate(c.Cron); err != nil {
			return err
		}
	}
	return nil
}

// clamp replaces out-of-range values with defaults.
func (c *Config) clamp() {
	def := Default()
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.Unit <= 0 {
		c.Unit = def.Unit
	}
	if c.TaskTimeout < 0 {
		c.TaskTimeout = 0
	}
	if c.MaxRuns < 0 {
		c.MaxRuns = 0
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Redis.Key == "" {
		c.Redis.Key = def.Redis.Key
	}
	if c.Redis.MaxEntries <= 0 {
		c.Redis.MaxEntries = def.Redis.MaxEntries
	}
	if c.Redis.TTL < 0 {
		c.Redis.TTL = 0
	}
}

func envError(name, value string, err error) error {
	return sferrors.NewValidationError("config", EnvPrefix+name, value, err.Error())
}
