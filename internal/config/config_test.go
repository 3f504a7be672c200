package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("steps", 100, "")
	flags.Int("workers", 1, "")
	flags.Float64("cancel-at", -1, "")
	flags.String("log-level", "", "")
	return flags
}

func Test_LoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Steps)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 20*time.Millisecond, cfg.Delay)
	assert.Equal(t, -1.0, cfg.CancelAt)
	assert.Empty(t, cfg.LogLevel)
}

func Test_LoadFileEnvFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: 10\nworkers: 3\ndelay: 5ms\ncancel_at: 0.5\n"), 0o600))

	t.Setenv("GDALPROGRESS_WORKERS", "2")

	flags := newFlags()
	require.NoError(t, flags.Parse([]string{"--cancel-at=0.75", "--log-level=debug"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Steps)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 5*time.Millisecond, cfg.Delay)
	assert.Equal(t, 0.75, cfg.CancelAt)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func Test_LoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func Test_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{name: "valid", cfg: Config{Steps: 1, Workers: 1, CancelAt: -1}, ok: true},
		{name: "journal", cfg: Config{Steps: 1, Workers: 1, Journal: "out.db"}, ok: true},
		{name: "no steps", cfg: Config{Steps: 0, Workers: 1}},
		{name: "no workers", cfg: Config{Steps: 1, Workers: 0}},
		{name: "negative delay", cfg: Config{Steps: 1, Workers: 1, Delay: -time.Second}},
		{name: "cancel above 1", cfg: Config{Steps: 1, Workers: 1, CancelAt: 1.5}},
		{name: "journal extension", cfg: Config{Steps: 1, Workers: 1, Journal: "out.sqlite"}},
		{name: "feather", cfg: Config{Steps: 1, Workers: 1, Journal: "out.db", Feather: "events"}, ok: true},
		{name: "feather without journal", cfg: Config{Steps: 1, Workers: 1, Feather: "events"}},
		{name: "log level", cfg: Config{Steps: 1, Workers: 1, LogLevel: "warn"}, ok: true},
		{name: "unknown log level", cfg: Config{Steps: 1, Workers: 1, LogLevel: "loud"}},
	}

	for _, tc := range tests {
		err := tc.cfg.Validate()
		if tc.ok {
			assert.NoError(t, err, tc.name)
		} else {
			assert.Error(t, err, tc.name)
		}
	}
}
