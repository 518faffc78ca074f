// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

// Package sqltest holds the store tests shared by every SQL extension
package sqltest

import (
	"context"
	"fmt"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xcherryio/xtask/common/ptr"
	"github.com/xcherryio/xtask/persistence"
)

const testJobType = "test-job"
const testWorkerId = "test-worker"

var baseMs = time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC).UnixMilli()

func uniqueName(prefix string) string {
	return fmt.Sprintf("%v-%v", prefix, time.Now().UnixNano())
}

func newTestTask(name string, priority int32, createdAtMs int64) persistence.Task {
	return persistence.Task{
		Name:        name,
		JobType:     testJobType,
		Action:      "run",
		Inputs:      map[string]any{"name": name},
		Priority:    priority,
		MaxTry:      3,
		CreatedAtMs: createdAtMs,
		CreatedBy:   "test",
		PlannedAtMs: ptr.Any(createdAtMs),
	}
}

func insertTask(ctx context.Context, ass *assert.Assertions, store persistence.Store, task persistence.Task) persistence.Task {
	id, err := store.InsertTask(ctx, task)
	ass.Nil(err)
	ass.True(id > 0)
	inserted, err := store.GetTask(ctx, id)
	ass.Nil(err)
	return *inserted
}

func claim(
	ctx context.Context, ass *assert.Assertions, store persistence.Store, task persistence.Task, executionId string,
	nowMs int64,
) persistence.Task {
	ok, err := store.ClaimTask(ctx, persistence.ClaimTaskRequest{
		TaskId:          task.Id,
		PreviousVersion: task.Version,
		NowMs:           nowMs,
		WorkerId:        testWorkerId,
		ExecutionId:     executionId,
	})
	ass.Nil(err)
	ass.True(ok)
	claimed, err := store.GetTask(ctx, task.Id)
	ass.Nil(err)
	return *claimed
}

func eligibleNames(ctx context.Context, ass *assert.Assertions, store persistence.Store, nowMs int64, node string) []string {
	tasks, err := store.ListEligibleTasks(ctx, persistence.ListEligibleTasksRequest{
		NowMs:              nowMs,
		Node:               node,
		TokenStaleBeforeMs: nowMs - 5000,
		PageSize:           100,
	})
	ass.Nil(err)
	var names []string
	for _, task := range tasks {
		names = append(names, task.Name)
	}
	return names
}
