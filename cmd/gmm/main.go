package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"

	"github.com/danielpatrickdp/gmm-classifier/internal/config"
	"github.com/danielpatrickdp/gmm-classifier/internal/gmm"
	"github.com/danielpatrickdp/gmm-classifier/internal/logging"
	"github.com/danielpatrickdp/gmm-classifier/internal/metrics"
	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region main

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		st := xerrors.Status(err)
		fmt.Fprintf(stderr, "error [%s]: %v\n", st.Code(), err)
		if st.Code() == codes.InvalidArgument {
			return 2
		}
		return 1
	}
	return 0
}

// #endregion main

// #region root

func newRootCmd(a *app) *cobra.Command {
	d := config.Default()
	cmd := &cobra.Command{
		Use:   "gmm",
		Short: "Regularized Gaussian discriminant classifier",
		Long: `Train, tune, apply and version regularized Gaussian mixture classifiers.
Models are stored in a SQLite file; every training run is logged with its decision.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "configuration file (yaml, json or toml)")
	pf.String("store", d.Store.Path, "model store path")
	pf.String("name", d.Store.Name, "model name inside the store")
	pf.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	pf.String("log-format", d.Log.Format, "log format: json or text")
	pf.String("log-file", d.Log.File, "rotating log file, stderr when empty")
	pf.Bool("metrics", d.Metrics.Enabled, "collect Prometheus metrics")
	pf.String("metrics-file", d.Metrics.File, "write metrics in text exposition format to this file on exit")

	cmd.AddCommand(trainCmd(a), predictCmd(a), inspectCmd(a), rollbackCmd(a))
	return cmd
}

// #endregion root

// #region app

// app carries the per-invocation runtime shared by subcommands.
type app struct {
	configPath string
	cfg        config.Config
	logger     *slog.Logger
	logCloser  io.Closer
	metrics    *metrics.Metrics
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return xerrors.Wrap(xerrors.KindInvalidArgument, "gmm.config", err, "load configuration")
	}
	a.cfg = cfg
	a.logger, a.logCloser = logging.New(logging.Config{
		Service:    "gmm",
		Module:     cmd.Name(),
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace, true)
	}
	a.logger.Debug("configuration loaded", "store", cfg.Store.Path, "name", cfg.Store.Name, "config", a.configPath)
	return nil
}

// close dumps metrics and releases the log file. Safe to call when setup never ran.
func (a *app) close() error {
	var err error
	if a.metrics != nil && a.cfg.Metrics.File != "" {
		err = a.dumpMetrics(a.cfg.Metrics.File)
	}
	if a.logCloser != nil {
		if cerr := a.logCloser.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (a *app) dumpMetrics(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := a.metrics.WriteText(f); err != nil {
		f.Close()
		return fmt.Errorf("write metrics: %w", err)
	}
	return f.Close()
}

// modelOptions returns the options every model built by the CLI shares.
func (a *app) modelOptions() []gmm.Option {
	opts := []gmm.Option{gmm.WithLogger(a.logger)}
	if a.metrics != nil {
		opts = append(opts, gmm.WithObserver(a.metrics))
	}
	return opts
}

// #endregion app
