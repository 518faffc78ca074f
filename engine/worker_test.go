// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/xtask/persistence"
)

func newTestWorker(env *testEnv, id string, wakeups <-chan struct{}) *Worker {
	cfg := env.cfg
	cfg.Worker.MinPause = 10 * time.Millisecond
	cfg.Worker.PauseStep = 10 * time.Millisecond
	cfg.Worker.MaxPause = 50 * time.Millisecond
	return NewWorker(id, cfg, env.store, env.queue, env.runner, wakeups, env.ts, env.logger)
}

func TestWorkerRunsTasksUntilCancelled(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	first := env.insert(t, persistence.Task{JobType: "test.ok"})
	second := env.insert(t, persistence.Task{JobType: "test.ok", Token: "W"})

	worker := newTestWorker(env, "w-loop", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return env.finished(first) && env.finished(second)
	}, 5*time.Second, 10*time.Millisecond)

	row, err := env.store.GetWorker(context.Background(), "w-loop")
	require.NoError(t, err)
	ass.Equal(testNode, row.Node)
	ass.True(row.Enabled)

	cancel()
	select {
	case err := <-done:
		ass.Nil(err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	_, err = env.store.GetWorker(context.Background(), "w-loop")
	ass.ErrorIs(err, persistence.ErrNotFound)
	ass.Equal("w-loop", env.get(t, first).FinishedBy)
}

func TestWorkerExitsWhenDisabled(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	now := env.ts.Now().UnixMilli()
	require.NoError(t, env.store.RegisterWorker(ctx, persistence.Worker{
		Id: "w-retired", Node: testNode, Pid: 1, Enabled: false, StartedAtMs: now, LastSeenMs: now,
	}))
	id := env.insert(t, persistence.Task{JobType: "test.ok"})

	err := newTestWorker(env, "w-retired", nil).Run(ctx)
	ass.Nil(err)
	ass.False(env.get(t, id).Finished)
}

func TestWorkerWakesUpOnNotification(t *testing.T) {
	env := newTestEnv(t)
	cfg := env.cfg
	cfg.Worker.MinPause = time.Hour
	cfg.Worker.MaxPause = time.Hour
	wakeups := make(chan struct{}, 1)
	worker := NewWorker("w-wake", cfg, env.store, env.queue, env.runner, wakeups, env.ts, env.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := env.store.GetWorker(context.Background(), "w-wake")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	// let the first idle poll happen before the task exists
	time.Sleep(50 * time.Millisecond)

	id := env.insert(t, persistence.Task{JobType: "test.ok"})
	wakeups <- struct{}{}
	require.Eventually(t, func() bool {
		return env.finished(id)
	}, 5*time.Second, 10*time.Millisecond)
}
