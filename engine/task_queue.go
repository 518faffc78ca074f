// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xcherryio/xtask/common/clock"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/common/metrics"
	"github.com/xcherryio/xtask/common/ptr"
	"github.com/xcherryio/xtask/common/uuid"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/persistence"
)

type (
	// TaskQueue is the durable queue of tasks and its selection algorithm
	TaskQueue interface {
		// SelectNext claims the next eligible task for the worker, nil when none.
		// The returned task is running, with the token held by its execution id.
		SelectNext(ctx context.Context, node, workerId string) (*persistence.Task, error)
		Insert(ctx context.Context, task persistence.Task) (int64, error)
		InsertStatic(ctx context.Context, task persistence.Task) (int64, bool, error)
		// MarkRunning claims one candidate, false when another worker won it
		MarkRunning(ctx context.Context, task *persistence.Task, workerId, executionId string) (bool, error)
		// MarkFinished applies the outcome of an execution and releases the token
		MarkFinished(ctx context.Context, task persistence.Task, outcome Outcome) error
		// Yield hands a batch task back to the queue to continue right away
		Yield(ctx context.Context, task persistence.Task, state persistence.TaskState) error
		// Purge deletes finished non-static tasks older than task.maxAge
		Purge(ctx context.Context) (int64, error)
		// RecoverOrphans fails the running tasks whose worker is gone
		RecoverOrphans(ctx context.Context) (int, error)
		// RecoverTask fails one running task of a lost worker
		RecoverTask(ctx context.Context, taskId int64, reason string) error
		GetSummary(ctx context.Context) (Summary, error)
		GetStatus(ctx context.Context, filter persistence.TaskIndexFilter) (Status, error)
		Get(ctx context.Context, id int64) (*persistence.Task, error)
	}

	// Outcome is the result of one execution
	Outcome struct {
		Success bool
		Fault   *persistence.Fault
		Output  json.RawMessage
		State   persistence.TaskState
	}

	Summary struct {
		Tasks   persistence.TaskCounts   `json:"tasks"`
		Workers persistence.WorkerCounts `json:"workers"`
	}

	Status struct {
		Counts persistence.TaskCounts `json:"counts"`
		Tasks  []persistence.Task     `json:"tasks"`
	}

	taskQueueImpl struct {
		store      persistence.Store
		tokens     TokenManager
		cfg        config.Config
		timeSource clock.TimeSource
		metrics    *metrics.Client
		logger     log.Logger
	}
)

func NewTaskQueue(
	store persistence.Store, tokens TokenManager, cfg config.Config, timeSource clock.TimeSource,
	metricsClient *metrics.Client, logger log.Logger,
) TaskQueue {
	return &taskQueueImpl{
		store:      store,
		tokens:     tokens,
		cfg:        cfg,
		timeSource: timeSource,
		metrics:    metricsClient,
		logger:     logger,
	}
}

func (q *taskQueueImpl) SelectNext(ctx context.Context, node, workerId string) (*persistence.Task, error) {
	pageSize := q.cfg.Task.SelectPageSize
	tokenTTL := q.cfg.Token.TTL

	for offset := 0; ; offset += pageSize {
		now := q.timeSource.Now()
		candidates, err := q.store.ListEligibleTasks(ctx, persistence.ListEligibleTasksRequest{
			NowMs:              now.UnixMilli(),
			Node:               node,
			TokenStaleBeforeMs: now.Add(-tokenTTL).UnixMilli(),
			PageSize:           pageSize,
			Offset:             offset,
		})
		if err != nil {
			return nil, fmt.Errorf("listing eligible tasks: %w", err)
		}

		for i := range candidates {
			task := candidates[i]
			executionId := uuid.NewExecutionId()
			if task.Token != "" {
				acquired, err := q.tokens.TryAcquire(ctx, task.Token, executionId, tokenTTL)
				if err != nil {
					return nil, err
				}
				if !acquired {
					// held by a live execution, try the next row in this cycle
					continue
				}
			}

			claimed, err := q.MarkRunning(ctx, &task, workerId, executionId)
			if err != nil || !claimed {
				if task.Token != "" {
					if _, rerr := q.tokens.Release(ctx, task.Token, executionId); rerr != nil {
						q.logger.Error("failed to release token of a lost claim", tag.Token(task.Token), tag.Error(rerr))
					}
				}
				if err != nil {
					return nil, err
				}
				continue
			}
			return &task, nil
		}

		if len(candidates) < pageSize {
			return nil, nil
		}
	}
}

func (q *taskQueueImpl) MarkRunning(
	ctx context.Context, task *persistence.Task, workerId, executionId string,
) (bool, error) {
	now := q.timeSource.Now()
	claimed, err := q.store.ClaimTask(ctx, persistence.ClaimTaskRequest{
		TaskId:          task.Id,
		PreviousVersion: task.Version,
		NowMs:           now.UnixMilli(),
		WorkerId:        workerId,
		ExecutionId:     executionId,
	})
	if err != nil || !claimed {
		return false, err
	}
	task.Running = true
	task.StartedAtMs = ptr.Any(now.UnixMilli())
	task.StartedBy = workerId
	task.ExecutionId = executionId
	task.Version++
	return true, nil
}

func (q *taskQueueImpl) Insert(ctx context.Context, task persistence.Task) (int64, error) {
	q.prepareInsert(&task)
	return q.store.InsertTask(ctx, task)
}

func (q *taskQueueImpl) InsertStatic(ctx context.Context, task persistence.Task) (int64, bool, error) {
	q.prepareInsert(&task)
	task.Static = true
	return q.store.InsertStaticTask(ctx, task)
}

func (q *taskQueueImpl) prepareInsert(task *persistence.Task) {
	now := q.timeSource.Now()
	task.CreatedAtMs = now.UnixMilli()
	task.Try = 0
	if task.MaxTry <= 0 {
		task.MaxTry = q.cfg.Task.TryCount
	}
	if task.Name == "" {
		task.Name = task.JobType
	}
}

func (q *taskQueueImpl) MarkFinished(ctx context.Context, task persistence.Task, outcome Outcome) error {
	now := q.timeSource.Now()
	logger := q.logger.WithTags(tag.TaskId(task.Id), tag.JobType(task.JobType))

	task.Running = false
	task.Output = outcome.Output
	task.State = outcome.State
	task.FinishedAtMs = ptr.Any(now.UnixMilli())
	task.FinishedBy = task.StartedBy
	if outcome.Success {
		task.Fault = nil
	} else {
		task.Fault = outcome.Fault
		if task.Fault == nil {
			task.Fault = &persistence.Fault{Message: "unknown failure"}
		}
	}

	switch {
	case task.Static:
		next, err := job.NextRun(now, task.Frequency, task.Schedule)
		if err != nil {
			// an unparsable schedule falls back to the frequency
			logger.Error("invalid schedule of static task", tag.Error(err))
			next = now.Add(time.Duration(task.Frequency) * time.Minute)
		}
		task.Finished = false
		task.Failed = false
		task.Try = 0
		// every recurrence of a batch job pages through a fresh list
		task.State.Batch = nil
		task.PlannedAtMs = ptr.Any(next.UnixMilli())
	case outcome.Success:
		task.Finished = true
		task.Failed = false
	default:
		task.Try++
		if task.Try >= maxTryOf(q.cfg.Task, task.MaxTry) {
			task.Finished = true
			task.Failed = true
			logger.Warn("task permanently failed", tag.Try(task.Try))
		} else {
			delay := NextTryDelay(q.cfg.Task, task.Try)
			task.PlannedAtMs = ptr.Any(now.Add(delay).UnixMilli())
			logger.Info("task rescheduled after failure", tag.Try(task.Try), tag.Duration(delay))
		}
	}

	return q.store.CompleteTask(ctx, persistence.CompleteTaskRequest{Task: task, NowMs: now.UnixMilli()})
}

func (q *taskQueueImpl) Yield(ctx context.Context, task persistence.Task, state persistence.TaskState) error {
	now := q.timeSource.Now()
	task.Running = false
	task.State = state
	task.PlannedAtMs = ptr.Any(now.UnixMilli())
	return q.store.CompleteTask(ctx, persistence.CompleteTaskRequest{Task: task, NowMs: now.UnixMilli()})
}

func (q *taskQueueImpl) Purge(ctx context.Context) (int64, error) {
	before := q.timeSource.Now().Add(-q.cfg.Task.MaxAge)
	return q.store.PurgeFinishedTasks(ctx, before.UnixMilli())
}

func (q *taskQueueImpl) RecoverOrphans(ctx context.Context) (int, error) {
	// a task claimed a moment ago may not be on its worker row yet
	startedBefore := q.timeSource.Now().Add(-q.cfg.Worker.WatchdogDelay)
	orphans, err := q.store.ListOrphanedTasks(ctx, startedBefore.UnixMilli(), orphanPageSize)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, task := range orphans {
		if err := q.recover(ctx, task, "worker lost"); err != nil {
			if errors.Is(err, persistence.ErrConflict) {
				continue
			}
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *taskQueueImpl) RecoverTask(ctx context.Context, taskId int64, reason string) error {
	task, err := q.store.GetTask(ctx, taskId)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		return err
	}
	if !task.Running {
		return nil
	}
	err = q.recover(ctx, *task, reason)
	if errors.Is(err, persistence.ErrConflict) {
		// finished by its worker in the meantime
		return nil
	}
	return err
}

func (q *taskQueueImpl) recover(ctx context.Context, task persistence.Task, reason string) error {
	q.logger.Warn("recovering task of a lost worker",
		tag.TaskId(task.Id), tag.WorkerId(task.StartedBy), tag.Reason(reason))
	return q.MarkFinished(ctx, task, Outcome{
		Success: false,
		Fault:   &persistence.Fault{Step: string(job.StepRecover), Message: reason},
		Output:  task.Output,
		State:   task.State,
	})
}

func (q *taskQueueImpl) GetSummary(ctx context.Context) (Summary, error) {
	tasks, err := q.store.GetTaskCounts(ctx, persistence.TaskIndexFilter{})
	if err != nil {
		return Summary{}, err
	}
	workers, err := q.store.GetWorkerCounts(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Tasks: tasks, Workers: workers}, nil
}

func (q *taskQueueImpl) GetStatus(ctx context.Context, filter persistence.TaskIndexFilter) (Status, error) {
	counts, err := q.store.GetTaskCounts(ctx, filter)
	if err != nil {
		return Status{}, err
	}
	tasks, err := q.store.ListTasksByIndex(ctx, filter)
	if err != nil {
		return Status{}, err
	}
	return Status{Counts: counts, Tasks: tasks}, nil
}

func (q *taskQueueImpl) Get(ctx context.Context, id int64) (*persistence.Task, error) {
	return q.store.GetTask(ctx, id)
}
