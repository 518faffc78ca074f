// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xcherryio/xtask/cmd/server/bootstrap"
	"github.com/xcherryio/xtask/job"

	_ "github.com/xcherryio/xtask/extensions/postgres" // import postgres extension
	_ "github.com/xcherryio/xtask/extensions/sqlite"   // import sqlite extension
)

func main() {
	registry := job.NewRegistry()
	if err := job.RegisterBuiltins(registry); err != nil {
		log.Fatal(err)
	}
	opts := bootstrap.Options{Registry: registry}

	app := &cli.App{
		Name:  "xtask",
		Usage: "persistent background task scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  bootstrap.FlagConfig,
				Value: "./config/development-postgres.yaml",
				Usage: "the config to start xTask",
			},
			&cli.StringFlag{
				Name:  bootstrap.FlagEnvFile,
				Usage: "a .env file loaded before the config, ./.env by default",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  bootstrap.SupervisorServiceName,
				Usage: "keep the worker processes of this node alive",
				Action: func(c *cli.Context) error {
					return bootstrap.StartSupervisorCli(c, opts)
				},
			},
			{
				Name:  bootstrap.WorkerServiceName,
				Usage: "run a single worker process",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: bootstrap.FlagWorkerId, Usage: "the id assigned by the supervisor"},
				},
				Action: func(c *cli.Context) error {
					return bootstrap.StartWorkerCli(c, opts)
				},
			},
			{
				Name:  bootstrap.ApiServiceName,
				Usage: "serve the HTTP API",
				Action: func(c *cli.Context) error {
					return bootstrap.StartApiCli(c, opts)
				},
			},
			{
				Name:  "enqueue",
				Usage: "submit a task",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: bootstrap.FlagType, Required: true, Usage: "the registered job type"},
					&cli.StringFlag{Name: bootstrap.FlagAction, Usage: "the service method of a service job"},
					&cli.StringFlag{Name: bootstrap.FlagName},
					&cli.StringFlag{Name: bootstrap.FlagToken, Usage: "token template, e.g. account-{accountId}"},
					&cli.IntFlag{Name: bootstrap.FlagPriority, Usage: "higher runs first"},
					&cli.StringFlag{Name: bootstrap.FlagInputs, Usage: "inputs as a JSON object"},
					&cli.StringFlag{Name: bootstrap.FlagIndex1},
					&cli.StringFlag{Name: bootstrap.FlagIndex2},
					&cli.IntFlag{Name: bootstrap.FlagFrequency, Usage: "minutes between runs of a static task"},
					&cli.StringFlag{Name: bootstrap.FlagSchedule, Usage: "cron schedule of a static task"},
					&cli.StringFlag{Name: bootstrap.FlagNode, Usage: "pin the task to a node"},
					&cli.DurationFlag{Name: bootstrap.FlagDelay, Usage: "delay before the first run"},
					&cli.IntFlag{Name: bootstrap.FlagMaxTry, Usage: "attempts before the task fails permanently"},
				},
				Action: func(c *cli.Context) error {
					return bootstrap.EnqueueCli(c, opts)
				},
			},
			{
				Name:  "status",
				Usage: "print the queue summary or the tasks of an index",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: bootstrap.FlagIndex1},
					&cli.StringFlag{Name: bootstrap.FlagIndex2},
					&cli.IntFlag{Name: bootstrap.FlagLimit, Value: 100},
				},
				Action: func(c *cli.Context) error {
					return bootstrap.StatusCli(c, opts)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
