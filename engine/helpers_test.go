// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xcherryio/xtask/common/clock"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/metrics"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/extensions/sqlite"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/persistence"
	"github.com/xcherryio/xtask/persistence/sql"
)

const testNode = "node-1"

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	cfg      config.Config
	store    persistence.Store
	ts       *clock.FakeTimeSource
	tokens   TokenManager
	queue    TaskQueue
	registry *job.Registry
	runner   *Runner
	logger   log.Logger
}

type funcJob struct {
	job.Base
	execute func(ctx *job.Context) error
	close   func(ctx *job.Context) error
}

func (f funcJob) Execute(ctx *job.Context) error {
	if f.execute == nil {
		return nil
	}
	return f.execute(ctx)
}

func (f funcJob) Close(ctx *job.Context) error {
	if f.close == nil {
		return nil
	}
	return f.close(ctx)
}

type numbersHandler struct {
	count int
}

func (h numbersHandler) List(ctx *job.Context) ([]any, error) {
	items := make([]any, 0, h.count)
	for i := 1; i <= h.count; i++ {
		items = append(items, i)
	}
	return items, nil
}

func (h numbersHandler) Process(ctx *job.Context, item json.RawMessage) error {
	if string(item) == "2" {
		return errors.New("two is not welcome")
	}
	return nil
}

func newTestConfig(t *testing.T) config.Config {
	cfg := config.Config{
		Database: config.DatabaseConfig{SQL: &config.SQL{
			DBExtensionName: sqlite.ExtensionName,
			DatabaseName:    fmt.Sprintf("file:engine%v?mode=memory&cache=shared", time.Now().UnixNano()),
		}},
		Task: config.TaskConfig{
			TryCount: 2,
			TryDelay: time.Second,
		},
		Worker: config.WorkerConfig{
			Node:          testNode,
			MaxWorkers:    2,
			WatchdogDelay: 10 * time.Second,
		},
		Supervisor: config.SupervisorConfig{
			SpawnRate:  100,
			SpawnBurst: 10,
		},
	}
	require.NoError(t, cfg.ValidateAndSetDefaults())
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	cfg := newTestConfig(t)
	logger := log.NewDevelopmentLogger()
	store, err := sql.NewSQLStore(*cfg.Database.SQL, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ts := clock.NewFakeTimeSource(testStart)
	metricsClient := metrics.NewNoopClient()
	tokens := NewTokenManager(store, ts, metricsClient, logger)
	queue := NewTaskQueue(store, tokens, cfg, ts, metricsClient, logger)
	registry := newTestRegistry(t)

	return &testEnv{
		cfg:      cfg,
		store:    store,
		ts:       ts,
		tokens:   tokens,
		queue:    queue,
		registry: registry,
		runner:   NewRunner(registry, queue, tokens, cfg, ts, metricsClient, logger),
		logger:   logger,
	}
}

func newTestRegistry(t *testing.T) *job.Registry {
	registry := job.NewRegistry()
	register := func(jobType string, j funcJob) {
		require.NoError(t, registry.RegisterSimple(jobType, func() job.Job { return j }))
	}
	register("test.ok", funcJob{execute: func(ctx *job.Context) error {
		ctx.SetOutput(map[string]any{"ok": true})
		return nil
	}})
	register("test.fail", funcJob{execute: func(ctx *job.Context) error {
		return errors.New("boom")
	}})
	register("test.panic", funcJob{execute: func(ctx *job.Context) error {
		panic("kaboom")
	}})
	register("test.closefail", funcJob{close: func(ctx *job.Context) error {
		return errors.New("cannot close")
	}})
	require.NoError(t, registry.Register(job.Definition{
		Type: "test.static",
		Kind: job.KindStatic,
		New:  func() job.Job { return funcJob{} },
		Static: &job.StaticSpec{
			Frequency: 5,
			Inputs:    map[string]any{"region": "eu"},
		},
	}))
	require.NoError(t, registry.Register(job.Definition{
		Type: "test.batch",
		Kind: job.KindBatch,
		Batch: &job.BatchSpec{
			New:      func() job.BatchHandler { return numbersHandler{count: 3} },
			PageSize: 2,
		},
	}))
	return registry
}

func (e *testEnv) insert(t *testing.T, task persistence.Task) int64 {
	id, err := e.queue.Insert(context.Background(), task)
	require.NoError(t, err)
	return id
}

// runNext claims the next task for worker w-1 and runs it
func (e *testEnv) runNext(t *testing.T) (*persistence.Task, RunResult) {
	ctx := context.Background()
	task, err := e.queue.SelectNext(ctx, testNode, "w-1")
	require.NoError(t, err)
	require.NotNil(t, task)
	result, err := e.runner.Run(ctx, *task, nil)
	require.NoError(t, err)
	return task, result
}

func (e *testEnv) get(t *testing.T, id int64) *persistence.Task {
	task, err := e.queue.Get(context.Background(), id)
	require.NoError(t, err)
	return task
}

// finished is safe to call from the condition of require.Eventually
func (e *testEnv) finished(id int64) bool {
	task, err := e.queue.Get(context.Background(), id)
	return err == nil && task.Finished
}
