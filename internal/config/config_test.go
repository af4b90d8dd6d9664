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

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ".", cfg.Dir())
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "logkv.yaml")
	content := "log_file: " + filepath.Join(dir, "from-file.txt") + "\n" +
		"prefix: filed\n" +
		"rollback_order: reverse\n" +
		"tail_retry_timeout: 2s\n" +
		"metrics_file: " + filepath.Join(dir, "metrics.prom") + "\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	t.Setenv("LOGKV_PREFIX", "fromenv")
	t.Setenv("LOGKV_WATCH", "false")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("log-file", "data.txt", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "debug"}))

	cfg, err := Load(file, flags)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "from-file.txt"), cfg.LogFile, "unchanged flag must not override the file")
	assert.Equal(t, "fromenv", cfg.Prefix)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Watch)
	assert.Equal(t, RollbackReverse, cfg.RollbackOrder)
	assert.Equal(t, 2*time.Second, cfg.TailRetryTimeout)
	assert.Equal(t, filepath.Join(dir, "metrics.prom"), cfg.MetricsFile)
	assert.Equal(t, dir, cfg.Dir())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(c *Config) {}, true},
		{"empty log file", func(c *Config) { c.LogFile = " " }, false},
		{"prefix with separator", func(c *Config) { c.Prefix = "a/b" }, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"bad order", func(c *Config) { c.RollbackOrder = "sideways" }, false},
		{"negative retry", func(c *Config) { c.TailRetryTimeout = -time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
