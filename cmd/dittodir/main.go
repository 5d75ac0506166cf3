// Command dittodir manages an LDIF-backed directory partition: it creates the
// configuration, checks and recovers the backing store, and moves entries in
// and out of it as LDIF.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/marmos91/dittodir/pkg/config"
	"github.com/marmos91/dittodir/pkg/partition"
	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string

	// logToStderr moves stdout logging out of the way of command output
	logToStderr bool
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "dittodir",
		Short:         "LDIF-backed directory partition tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default $XDG_CONFIG_HOME/dittodir/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"log level override (DEBUG, INFO, WARN, ERROR)")

	root.AddCommand(
		newInitCommand(opts),
		newCheckCommand(opts),
		newImportCommand(opts),
		newExportCommand(opts),
		newBackupCommand(opts),
		newVersionCommand(),
	)
	return root
}

// loadConfig loads the configuration and configures logging from it.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	output := cfg.Logging.Output
	if o.logToStderr && output == "stdout" {
		output = "stderr"
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, output); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is an opened partition plus its metrics.
type session struct {
	cfg       *config.Config
	partition *partition.Engine
	metrics   *config.MetricsResult
	stop      context.CancelFunc
}

// openPartition loads the configuration, creates the partition, starts the
// metrics server when enabled and initializes the partition (which runs store
// recovery).
func (o *globalOptions) openPartition(ctx context.Context) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	m := config.InitializeMetrics(cfg)
	p, err := config.CreatePartition(&cfg.Partition, m.Partition)
	if err != nil {
		return nil, err
	}

	metricsCtx, stop := context.WithCancel(ctx)
	if m.Server != nil {
		// /healthz answers 503 until Initialize has finished recovery
		m.Server.SetStatusSource(p)
		go func() {
			if err := m.Server.Start(metricsCtx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	if err := p.Initialize(ctx); err != nil {
		stop()
		return nil, fmt.Errorf("failed to open partition %s: %w", cfg.Partition.ID, err)
	}

	return &session{cfg: cfg, partition: p, metrics: m, stop: stop}, nil
}

// Close closes the partition and stops the metrics server.
func (s *session) Close(ctx context.Context) error {
	defer s.stop()
	return s.partition.Close(context.WithoutCancel(ctx))
}
