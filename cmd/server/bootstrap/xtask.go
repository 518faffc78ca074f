// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	rawLog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/xcherryio/xtask/common/clock"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/common/metrics"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/engine"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/notifier"
	"github.com/xcherryio/xtask/persistence"
	"github.com/xcherryio/xtask/persistence/sql"
)

const (
	SupervisorServiceName = "supervisor"
	WorkerServiceName     = "worker"
	ApiServiceName        = "api"
	CliServiceName        = "cli"
)

const FlagConfig = "config"
const FlagEnvFile = "env-file"
const FlagWorkerId = "worker-id"

const shutdownTimeout = 10 * time.Second

type GracefulShutdown func(ctx context.Context) error

// Options are the job types and static providers compiled into the binary
type Options struct {
	Registry        *job.Registry
	StaticProviders []engine.StaticProvider
}

// Runtime is everything a command needs, built from the config
type Runtime struct {
	Config   *config.Config
	Logger   log.Logger
	Store    persistence.Store
	Metrics  *metrics.Client
	Tokens   engine.TokenManager
	Queue    engine.TaskQueue
	Notifier notifier.Notifier
	Registry *job.Registry
	Runner   *engine.Runner
	Enqueuer *engine.Enqueuer

	TimeSource clock.TimeSource
	shutdown   GracefulShutdown
}

// NewRootContext is cancelled on SIGINT and SIGTERM for graceful shutdown
func NewRootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// LoadConfig loads the env files and the config, and builds the logger of the service
func LoadConfig(c *cli.Context, service string) (*config.Config, log.Logger) {
	var envFiles []string
	if f := c.String(FlagEnvFile); f != "" {
		envFiles = append(envFiles, f)
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		rawLog.Fatalf("Unable to load env files %v because of error %v", envFiles, err)
	}

	configPath := c.String(FlagConfig)
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		rawLog.Fatalf("Unable to load config for path %v because of error %v", configPath, err)
	}

	zapLogger, err := cfg.Log.NewZapLogger()
	if err != nil {
		rawLog.Fatalf("Unable to create a new zap logger %v", err)
	}
	logger := log.NewProcessLogger(zapLogger, service)
	err = cfg.ValidateAndSetDefaults()
	if err != nil {
		logger.Fatal("config is invalid", tag.Error(err))
	}
	logger.Info("config is loaded", tag.Value(cfg.String()))
	return cfg, logger
}

// NewRuntime wires the store, the queue and the runner of one process
func NewRuntime(cfg *config.Config, opts Options, logger log.Logger) (*Runtime, error) {
	registry := opts.Registry
	if registry == nil {
		registry = job.NewRegistry()
	}

	metricsClient, shutdownMetrics, err := metrics.NewClient(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	store, err := sql.NewSQLStore(*cfg.Database.SQL, logger)
	if err != nil {
		return nil, multierr.Append(err, shutdownMetrics(context.Background()))
	}
	n, err := notifier.NewNotifier(*cfg, logger)
	if err != nil {
		logger.Warn("task notifications are disabled", tag.Error(err))
		n = notifier.NewLocalNotifier()
	}

	timeSource := clock.NewRealTimeSource()
	tokens := engine.NewTokenManager(store, timeSource, metricsClient, logger)
	queue := engine.NewTaskQueue(store, tokens, *cfg, timeSource, metricsClient, logger)

	return &Runtime{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Metrics:    metricsClient,
		Tokens:     tokens,
		Queue:      queue,
		Notifier:   n,
		Registry:   registry,
		Runner:     engine.NewRunner(registry, queue, tokens, *cfg, timeSource, metricsClient, logger),
		Enqueuer:   engine.NewEnqueuer(registry, queue, n, logger),
		TimeSource: timeSource,
		shutdown: func(ctx context.Context) error {
			var errs error
			errs = multierr.Append(errs, n.Close())
			errs = multierr.Append(errs, store.Close())
			errs = multierr.Append(errs, shutdownMetrics(ctx))
			return errs
		},
	}, nil
}

func (r *Runtime) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return r.shutdown(ctx)
}

func mustRuntime(c *cli.Context, opts Options, service string) *Runtime {
	cfg, logger := LoadConfig(c, service)
	rt, err := NewRuntime(cfg, opts, logger)
	if err != nil {
		logger.Fatal("error on runtime setup", tag.Error(err))
	}
	return rt
}

func closeRuntime(rt *Runtime) {
	if err := rt.Close(); err != nil {
		rt.Logger.Error("shutdown error", tag.Error(err))
	}
	// stderr cannot be synced on some platforms
	_ = rt.Logger.Sync()
}
