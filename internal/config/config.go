// Package config loads run configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config captures the settings of a run of simulated native operations.
type Config struct {
	Steps   int           `mapstructure:"steps"`
	Workers int           `mapstructure:"workers"`
	Delay   time.Duration `mapstructure:"delay"`
	// CancelAt cancels an operation once it reports at least this fraction.
	// Negative values never cancel.
	CancelAt float64 `mapstructure:"cancel_at"`
	Message  string  `mapstructure:"message"`
	Journal  string  `mapstructure:"journal"`
	// Feather is a directory receiving one Feather file of journaled events
	// per operation.
	Feather     string `mapstructure:"feather"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	Verbose     bool   `mapstructure:"verbose"`
	LogLevel    string `mapstructure:"log_level"`
}

// flag name => config key
var flagKeys = map[string]string{
	"steps":        "steps",
	"workers":      "workers",
	"delay":        "delay",
	"cancel-at":    "cancel_at",
	"message":      "message",
	"journal":      "journal",
	"feather":      "feather",
	"metrics-addr": "metrics_addr",
	"verbose":      "verbose",
	"log-level":    "log_level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("steps", 100)
	v.SetDefault("workers", 1)
	v.SetDefault("delay", 20*time.Millisecond)
	v.SetDefault("cancel_at", -1.0)
	v.SetDefault("message", "")
	v.SetDefault("journal", "")
	v.SetDefault("feather", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("verbose", false)
	v.SetDefault("log_level", "")
}

// Load reads configuration from defaults, an optional config file,
// GDALPROGRESS_* environment variables and flags, in increasing order of
// precedence. Only flags that were set override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GDALPROGRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %q: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration describes a runnable operation.
func (c *Config) Validate() error {
	if c.Steps < 1 {
		return errors.New("steps must be at least 1")
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	if c.Delay < 0 {
		return errors.New("delay must be >= 0")
	}
	if c.CancelAt > 1 {
		return errors.New("cancel_at must be no greater than 1")
	}
	if c.Journal != "" && !strings.HasSuffix(c.Journal, ".db") {
		return errors.New("journal filename must end in '.db'")
	}
	if c.Feather != "" && c.Journal == "" {
		return errors.New("feather export requires a journal")
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	return nil
}
