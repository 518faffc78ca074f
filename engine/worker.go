// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"os"
	"runtime"
	"time"

	"github.com/xcherryio/xtask/common/clock"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/persistence"
)

// Worker is the single threaded poll loop of a worker process
type Worker struct {
	id         string
	node       string
	cfg        config.Config
	store      persistence.WorkerStore
	queue      TaskQueue
	runner     *Runner
	pause      *PauseTimer
	gate       TimerGate
	wakeups    <-chan struct{}
	timeSource clock.TimeSource
	logger     log.Logger

	taskCount int64
}

// NewWorker creates the loop of worker id. wakeups may be nil.
func NewWorker(
	id string, cfg config.Config, store persistence.WorkerStore, queue TaskQueue, runner *Runner,
	wakeups <-chan struct{}, timeSource clock.TimeSource, logger log.Logger,
) *Worker {
	logger = logger.WithTags(tag.WorkerId(id), tag.Node(cfg.Worker.Node))
	return &Worker{
		id:         id,
		node:       cfg.Worker.Node,
		cfg:        cfg,
		store:      store,
		queue:      queue,
		runner:     runner,
		pause:      NewPauseTimer(cfg.Worker.MinPause, cfg.Worker.PauseStep, cfg.Worker.MaxPause),
		gate:       NewLocalTimerGate(clock.NewRealTimeSource(), logger),
		wakeups:    wakeups,
		timeSource: timeSource,
		logger:     logger,
	}
}

func (w *Worker) Id() string {
	return w.id
}

// Run polls until the context is cancelled or the supervisor disables the worker
func (w *Worker) Run(ctx context.Context) error {
	defer w.gate.Close()
	if err := w.register(ctx); err != nil {
		return err
	}
	w.logger.Info("worker started")
	defer w.unregister()

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker is being stopped")
			return nil
		}
		enabled, err := w.heartbeat(ctx, nil)
		if errors.Is(err, persistence.ErrNotFound) {
			w.logger.Warn("worker row was removed, exiting")
			return nil
		}
		if err != nil {
			w.logger.Error("failed to heartbeat", tag.Error(err))
			w.sleep(ctx, w.pause.Next())
			continue
		}
		if !enabled {
			w.logger.Info("worker was retired, exiting", tag.Count(w.taskCount))
			return nil
		}

		picked, err := w.pollOnce(ctx)
		if err != nil {
			w.logger.Error("failed to poll or run a task", tag.Error(err))
			w.sleep(ctx, w.pause.Next())
			continue
		}
		if picked {
			w.pause.Reset()
			continue
		}
		w.sleep(ctx, w.pause.Next())
	}
}

// pollOnce selects and runs at most one task
func (w *Worker) pollOnce(ctx context.Context) (bool, error) {
	task, err := w.queue.SelectNext(ctx, w.node, w.id)
	if err != nil || task == nil {
		return false, err
	}
	logger := w.logger.WithTags(tag.TaskId(task.Id), tag.JobType(task.JobType))
	logger.Debug("task picked up", tag.Try(task.Try))

	taskId := task.Id
	if _, err := w.heartbeat(ctx, &taskId); err != nil {
		logger.Warn("failed to report the running task", tag.Error(err))
	}
	heartbeat := func(ctx context.Context) error {
		enabled, err := w.heartbeat(ctx, &taskId)
		if err == nil && !enabled {
			// retired workers finish their current task
			logger.Debug("worker retired while running a task")
		}
		return err
	}

	_, err = w.runner.Run(ctx, *task, heartbeat)
	w.taskCount++
	return true, err
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	// a wakeup left over from an interrupted pause must not cut this one short
	w.gate.Clear()
	w.gate.Update(time.Now().Add(d))
	select {
	case <-ctx.Done():
	case <-w.gate.FireChan():
	case _, ok := <-w.wakeups:
		if !ok {
			w.wakeups = nil
			return
		}
		w.logger.Debug("woken up by a task notification")
	}
}

func (w *Worker) register(ctx context.Context) error {
	now := w.timeSource.Now().UnixMilli()
	// a supervisor creates the row before spawning the process
	_, err := w.heartbeat(ctx, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	err = w.store.RegisterWorker(ctx, persistence.Worker{
		Id:          w.id,
		Node:        w.node,
		Pid:         os.Getpid(),
		Enabled:     true,
		StartedAtMs: now,
		LastSeenMs:  now,
	})
	if err != nil {
		// the supervisor may have inserted the row in the meantime
		if _, hbErr := w.heartbeat(ctx, nil); hbErr == nil {
			return nil
		}
	}
	return err
}

func (w *Worker) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := w.store.DeleteWorker(ctx, w.id); err != nil {
		w.logger.Error("failed to delete worker row", tag.Error(err))
	}
}

func (w *Worker) heartbeat(ctx context.Context, taskId *int64) (bool, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return w.store.HeartbeatWorker(ctx, persistence.WorkerHeartbeat{
		Id:          w.id,
		NowMs:       w.timeSource.Now().UnixMilli(),
		TaskId:      taskId,
		TaskCount:   w.taskCount,
		MemoryBytes: int64(mem.HeapInuse + mem.StackInuse),
	})
}
