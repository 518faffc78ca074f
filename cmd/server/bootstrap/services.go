// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/common/uuid"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/engine"
	"github.com/xcherryio/xtask/service/api"
)

// StartSupervisorCli runs the supervisor of this node until interrupted
func StartSupervisorCli(c *cli.Context, opts Options) error {
	rootCtx, stop := NewRootContext()
	defer stop()
	rt := mustRuntime(c, opts, SupervisorServiceName)
	defer closeRuntime(rt)
	logger := rt.Logger

	configPath := c.String(FlagConfig)
	launcher, err := engine.NewProcessLauncher(rt.Config.Worker.Executable, configPath, logger)
	if err != nil {
		return err
	}
	registrar := engine.NewRegistrar(rt.Registry, rt.Queue, logger, opts.StaticProviders...)
	supervisor := engine.NewSupervisor(*rt.Config, rt.Store, rt.Queue, rt.Tokens, registrar, launcher,
		rt.TimeSource, rt.Metrics, logger)

	watcher := config.NewWatcher(configPath, func(cfg *config.Config) {
		supervisor.SetMaxWorkers(cfg.Worker.MaxWorkers)
	}, func(err error) {
		logger.Warn("config reload failed", tag.Path(configPath), tag.Error(err))
	})
	if err := watcher.Start(rootCtx); err != nil {
		logger.Warn("config file is not watched", tag.Path(configPath), tag.Error(err))
	} else {
		defer watcher.Close()
	}

	return supervisor.Run(rootCtx)
}

// StartWorkerCli runs one worker process, usually spawned by the supervisor
func StartWorkerCli(c *cli.Context, opts Options) error {
	rootCtx, stop := NewRootContext()
	defer stop()
	rt := mustRuntime(c, opts, WorkerServiceName)
	defer closeRuntime(rt)

	id := uuid.NewWorkerId()
	if c.IsSet(FlagWorkerId) {
		parsed, err := uuid.ParseUUID(c.String(FlagWorkerId))
		if err != nil {
			return err
		}
		id = parsed
	}
	worker := engine.NewWorker(id, *rt.Config, rt.Store, rt.Queue, rt.Runner, rt.Notifier.Subscribe(),
		rt.TimeSource, rt.Logger)
	return worker.Run(rootCtx)
}

// StartApiCli serves the HTTP API until interrupted
func StartApiCli(c *cli.Context, opts Options) error {
	rootCtx, stop := NewRootContext()
	defer stop()
	rt := mustRuntime(c, opts, ApiServiceName)
	defer closeRuntime(rt)
	logger := rt.Logger

	svc := api.NewServiceImpl(rt.Enqueuer, rt.Queue, logger)
	server := api.NewDefaultAPIServerWithGin(rootCtx, *rt.Config, svc, logger)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start api server", tag.Error(err))
	}
	// wait for os signals
	<-rootCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Stop(ctx)
}
