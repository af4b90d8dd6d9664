package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/sajjad-MoBe/logkv/internal/config"
	"github.com/sajjad-MoBe/logkv/internal/shared"
	"github.com/sajjad-MoBe/logkv/internal/store"
)

var (
	configFile string
	cfg        config.Config
	logger     = shared.DefaultLogger
)

var rootCmd = &cobra.Command{
	Use:   "logkv",
	Short: "An embedded key-value store backed by an append-only log",
	Long: `An embedded key-value store whose state lives in a plain-text
append-only log. Several processes may share one log file; each replays
it on start and follows lines the others append.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runShell,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "couldn't execute app,", err)
		os.Exit(1)
	}
}

func init() {
	def := config.Default()

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (yaml, json or toml)")
	flags.StringP("log-file", "f", def.LogFile, "Main append-only log file")
	flags.StringP("prefix", "p", def.Prefix, "Namespace for the ledger and transaction files")
	flags.String("log-level", def.LogLevel, "Log level: debug, info, warn or error")
	flags.Bool("watch", def.Watch, "Apply lines other processes append to the log")
	flags.Bool("sync", def.Sync, "Fsync the log after every append")
	flags.String("rollback-order", def.RollbackOrder, "Undo replay order on ROLLBACK: forward or reverse")
	flags.Duration("tail-retry-timeout", def.TailRetryTimeout, "How long to wait for an unterminated last line")
	flags.String("trace-file", def.TraceFile, "Write spans as JSON to this file")
	flags.String("metrics-file", def.MetricsFile, "Write metrics in Prometheus text format to this file on exit")

	rootCmd.AddCommand(shellCmd, execCmd, dumpCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	level, err := shared.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}

// openStore opens the store described by c along with the span exporter
// and metrics registry, if configured. The returned function closes the
// store, then flushes both.
func openStore(ctx context.Context, c config.Config) (*store.Store, func() error, error) {
	opts := []store.Option{store.WithLogger(logger)}
	var cleanup []func() error

	if c.MetricsFile != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, store.WithMetrics(shared.NewMetrics(reg)))
		cleanup = append(cleanup, func() error {
			if err := prometheus.WriteToTextfile(c.MetricsFile, reg); err != nil {
				return fmt.Errorf("failed to write metrics file: %w", err)
			}
			return nil
		})
	}

	if c.TraceFile != "" {
		file, err := os.OpenFile(c.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		tp, err := shared.NewFileTracerProvider("logkv", file)
		if err != nil {
			file.Close()
			return nil, nil, fmt.Errorf("failed to create tracer provider: %w", err)
		}
		opts = append(opts, store.WithTracer(shared.NewTracer("logkv", tp)))
		cleanup = append(cleanup,
			func() error { return tp.Shutdown(context.Background()) },
			file.Close,
		)
	}

	s, err := store.Open(ctx, c, opts...)
	if err != nil {
		for _, fn := range cleanup {
			fn()
		}
		return nil, nil, err
	}

	closeAll := func() error {
		err := s.Close()
		for _, fn := range cleanup {
			err = multierr.Append(err, fn())
		}
		logger.Sync()
		return err
	}
	return s, closeAll, nil
}
