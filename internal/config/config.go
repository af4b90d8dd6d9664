package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. LOGKV_LOG_FILE.
const EnvPrefix = "LOGKV"

// Rollback orders for undo replay.
const (
	RollbackForward = "forward"
	RollbackReverse = "reverse"
)

// Config contains the engine and shell settings
type Config struct {
	LogFile          string        `mapstructure:"log_file"`           // main append-only log
	Prefix           string        `mapstructure:"prefix"`             // namespaces ledger and transaction files
	LogLevel         string        `mapstructure:"log_level"`          // debug, info, warn, error
	Watch            bool          `mapstructure:"watch"`              // ingest lines appended by other processes
	Sync             bool          `mapstructure:"sync"`               // fsync every append
	RollbackOrder    string        `mapstructure:"rollback_order"`     // forward or reverse
	TailRetryTimeout time.Duration `mapstructure:"tail_retry_timeout"` // bound on incomplete-line retries
	TraceFile        string        `mapstructure:"trace_file"`         // empty disables span export
	MetricsFile      string        `mapstructure:"metrics_file"`       // prometheus text format, written on close
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		LogFile:          "data.txt",
		LogLevel:         "info",
		Watch:            true,
		Sync:             true,
		RollbackOrder:    RollbackForward,
		TailRetryTimeout: 500 * time.Millisecond,
	}
}

// Dir is the directory holding the log and its companion files
func (c Config) Dir() string {
	return filepath.Dir(c.LogFile)
}

// Validate checks the configuration for unusable values
func (c Config) Validate() error {
	if strings.TrimSpace(c.LogFile) == "" {
		return fmt.Errorf("log_file must not be empty")
	}
	if strings.ContainsAny(c.Prefix, `/\`) {
		return fmt.Errorf("prefix %q must not contain a path separator", c.Prefix)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	switch c.RollbackOrder {
	case RollbackForward, RollbackReverse:
	default:
		return fmt.Errorf("unknown rollback_order %q", c.RollbackOrder)
	}
	if c.TailRetryTimeout < 0 {
		return fmt.Errorf("tail_retry_timeout must not be negative")
	}
	return nil
}

// Load resolves the configuration from defaults, an optional config file,
// LOGKV_* environment variables and flags, in increasing precedence.
func Load(configFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("log_file", def.LogFile)
	v.SetDefault("prefix", def.Prefix)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("watch", def.Watch)
	v.SetDefault("sync", def.Sync)
	v.SetDefault("rollback_order", def.RollbackOrder)
	v.SetDefault("tail_retry_timeout", def.TailRetryTimeout)
	v.SetDefault("trace_file", def.TraceFile)
	v.SetDefault("metrics_file", def.MetricsFile)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
