// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"context"
)

type (
	// Store is the durable state shared by every process of every node
	Store interface {
		TaskStore
		TokenStore
		WorkerStore
		Close() error
	}

	TaskStore interface {
		InsertTask(ctx context.Context, task Task) (int64, error)
		// InsertStaticTask returns inserted=false when the static key is already registered
		InsertStaticTask(ctx context.Context, task Task) (id int64, inserted bool, err error)
		GetTask(ctx context.Context, id int64) (*Task, error)
		ListEligibleTasks(ctx context.Context, request ListEligibleTasksRequest) ([]Task, error)
		// ClaimTask flips a waiting task to running, false when another worker won the race
		ClaimTask(ctx context.Context, request ClaimTaskRequest) (bool, error)
		// CompleteTask writes the outcome and releases the token in one transaction.
		// ErrConflict when the task was changed by someone else since the claim.
		CompleteTask(ctx context.Context, request CompleteTaskRequest) error
		ListOrphanedTasks(ctx context.Context, startedBeforeMs int64, limit int) ([]Task, error)
		PurgeFinishedTasks(ctx context.Context, finishedBeforeMs int64) (int64, error)
		GetTaskCounts(ctx context.Context, filter TaskIndexFilter) (TaskCounts, error)
		ListTasksByIndex(ctx context.Context, filter TaskIndexFilter) ([]Task, error)
	}

	TokenStore interface {
		LockToken(ctx context.Context, request LockTokenRequest) (bool, error)
		UnlockToken(ctx context.Context, name, holder string, nowMs int64) (bool, error)
		TouchToken(ctx context.Context, name, holder string, nowMs int64) (bool, error)
		GetToken(ctx context.Context, name string) (*Token, error)
		DeleteInactiveTokens(ctx context.Context, updatedBeforeMs int64) (int64, error)
	}

	WorkerStore interface {
		RegisterWorker(ctx context.Context, worker Worker) error
		// HeartbeatWorker returns the enabled flag, ErrNotFound when the row was removed
		HeartbeatWorker(ctx context.Context, heartbeat WorkerHeartbeat) (bool, error)
		GetWorker(ctx context.Context, id string) (*Worker, error)
		ListWorkers(ctx context.Context, node string) ([]Worker, error)
		DisableWorker(ctx context.Context, id string) error
		DeleteWorker(ctx context.Context, id string) error
		GetWorkerCounts(ctx context.Context) (WorkerCounts, error)
	}
)
