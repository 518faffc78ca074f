// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package integTests

import (
	"context"
	"flag"
	"fmt"
	"testing"
	"time"

	"github.com/xcherryio/xtask/cmd/server/bootstrap"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/engine"
	"github.com/xcherryio/xtask/extensions"
	"github.com/xcherryio/xtask/extensions/postgres"
	"github.com/xcherryio/xtask/extensions/postgres/postgrestool"
	"github.com/xcherryio/xtask/extensions/sqlite"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/service/api"
)

const serverAddress = "127.0.0.1:18801"

var serverUrl = "http://" + serverAddress

func TestMain(m *testing.M) {
	flag.Parse()
	testDBName := fmt.Sprintf("test%v", time.Now().UnixNano())
	fmt.Printf("start running integ test, "+
		"testDBName: %v, useLocalServer:%v, createServerWithPostgres: %v \n",
		testDBName, *useLocalServer, *createServerWithPostgres)

	var shutdownFunc bootstrap.GracefulShutdown
	rootCtx, rootCtxCancelFunc := context.WithCancel(context.Background())

	if !*useLocalServer {
		sqlConfig := &config.SQL{
			DBExtensionName: sqlite.ExtensionName,
			DatabaseName:    fmt.Sprintf("file:%v?mode=memory&cache=shared", testDBName),
		}
		if *createServerWithPostgres {
			sqlConfig = &config.SQL{
				ConnectAddr:     fmt.Sprintf("%v:%v", postgrestool.DefaultEndpoint, postgrestool.DefaultPort),
				User:            postgrestool.DefaultUserName,
				Password:        postgrestool.DefaultPassword,
				DBExtensionName: postgres.ExtensionName,
				DatabaseName:    testDBName,
			}
			err := extensions.CreateDatabase(*sqlConfig, testDBName)
			if err != nil {
				panic(err)
			}
			defer func() {
				err := extensions.DropDatabase(*sqlConfig, testDBName)
				if err != nil {
					fmt.Println("failed to drop database ", testDBName, err)
				} else {
					fmt.Println("testing database is deleted")
				}
			}()
			err = extensions.SetupSchema(sqlConfig, "../"+postgrestool.DefaultSchemaFilePath)
			if err != nil {
				panic(err)
			}
		}

		cfg := config.Config{
			Log: config.Logger{
				Level: "debug",
			},
			Database: config.DatabaseConfig{SQL: sqlConfig},
			Task: config.TaskConfig{
				TryDelay: 100 * time.Millisecond,
			},
			Worker: config.WorkerConfig{
				Node:      "integ",
				MinPause:  20 * time.Millisecond,
				PauseStep: 20 * time.Millisecond,
				MaxPause:  200 * time.Millisecond,
			},
			ApiService: config.ApiServiceConfig{
				HttpServer: config.HttpServerConfig{
					Address:      serverAddress,
					ReadTimeout:  5 * time.Second,
					WriteTimeout: 60 * time.Second,
				},
			},
		}

		var err error
		shutdownFunc, err = startServer(rootCtx, &cfg)
		if err != nil {
			panic(err)
		}
	}

	// the gin server starts listening asynchronously
	time.Sleep(time.Millisecond * 100)

	resultCode := m.Run()
	fmt.Println("finished running integ test with status code", resultCode)
	rootCtxCancelFunc()
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
}

// startServer runs the API and two in-process workers on one runtime
func startServer(ctx context.Context, cfg *config.Config) (bootstrap.GracefulShutdown, error) {
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	registry := job.NewRegistry()
	if err := job.RegisterBuiltins(registry); err != nil {
		return nil, err
	}
	if err := registerIntegJobs(registry); err != nil {
		return nil, err
	}

	logger := log.NewDevelopmentLogger()
	rt, err := bootstrap.NewRuntime(cfg, bootstrap.Options{Registry: registry}, logger)
	if err != nil {
		return nil, err
	}

	server := api.NewDefaultAPIServerWithGin(ctx, *cfg, api.NewServiceImpl(rt.Enqueuer, rt.Queue, logger), logger)
	if err := server.Start(); err != nil {
		return nil, err
	}

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		w := engine.NewWorker(fmt.Sprintf("integ-worker-%v", i), *cfg, rt.Store, rt.Queue, rt.Runner,
			rt.Notifier.Subscribe(), rt.TimeSource, logger)
		go func() {
			_ = w.Run(ctx)
			done <- struct{}{}
		}()
	}

	return func(shutdownCtx context.Context) error {
		err := server.Stop(shutdownCtx)
		for i := 0; i < 2; i++ {
			<-done
		}
		if closeErr := rt.Close(); err == nil {
			err = closeErr
		}
		return err
	}, nil
}
