// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sqltest

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/assert"
	"github.com/xcherryio/xtask/common/ptr"
	"github.com/xcherryio/xtask/persistence"
)

func SQLTaskLifecycleTest(ass *assert.Assertions, store persistence.Store) {
	ctx := context.Background()
	idx := uniqueName("lifecycle")

	task := newTestTask(idx, 0, baseMs)
	task.Index1 = idx
	task.State = persistence.TaskState{Values: map[string]any{"seen": float64(1)}}
	task = insertTask(ctx, ass, store, task)

	ass.Equal(int64(1), task.Version)
	ass.Equal(persistence.TaskStatusWaiting, task.Status())
	ass.Equal(idx, task.Inputs["name"])
	ass.Equal(float64(1), task.State.Values["seen"])
	ass.Nil(task.Fault)

	claimed := claim(ctx, ass, store, task, "exec-1", baseMs+10)
	ass.True(claimed.Running)
	ass.Equal(int64(2), claimed.Version)
	ass.Equal("exec-1", claimed.ExecutionId)
	ass.Equal(testWorkerId, claimed.StartedBy)
	ass.Equal(baseMs+10, *claimed.StartedAtMs)

	// a second claim with the stale version loses
	ok, err := store.ClaimTask(ctx, persistence.ClaimTaskRequest{
		TaskId: task.Id, PreviousVersion: task.Version, NowMs: baseMs + 11, WorkerId: "other", ExecutionId: "exec-2",
	})
	ass.Nil(err)
	ass.False(ok)

	done := claimed
	done.Running = false
	done.Finished = true
	done.Output = json.RawMessage(`{"ok":true}`)
	done.FinishedAtMs = ptr.Any(baseMs + 20)
	done.FinishedBy = testWorkerId
	err = store.CompleteTask(ctx, persistence.CompleteTaskRequest{Task: done, NowMs: baseMs + 20})
	ass.Nil(err)

	loaded, err := store.GetTask(ctx, task.Id)
	ass.Nil(err)
	ass.Equal(persistence.TaskStatusSucceeded, loaded.Status())
	ass.JSONEq(`{"ok":true}`, string(loaded.Output))
	ass.Equal(int64(3), loaded.Version)

	// completing twice with the same version conflicts
	err = store.CompleteTask(ctx, persistence.CompleteTaskRequest{Task: done, NowMs: baseMs + 21})
	ass.Equal(persistence.ErrConflict, err)

	_, err = store.GetTask(ctx, -1)
	ass.Equal(persistence.ErrNotFound, err)

	tasks, err := store.ListTasksByIndex(ctx, persistence.TaskIndexFilter{Index1: idx})
	ass.Nil(err)
	ass.Len(tasks, 1)
	ass.Equal(task.Id, tasks[0].Id)
}

func SQLTaskFailureTest(ass *assert.Assertions, store persistence.Store) {
	ctx := context.Background()
	idx := uniqueName("failure")

	task := newTestTask(idx, 0, baseMs)
	task.Index1 = idx
	task = insertTask(ctx, ass, store, task)
	claimed := claim(ctx, ass, store, task, "exec-f", baseMs)

	retry := claimed
	retry.Running = false
	retry.Try = 1
	retry.PlannedAtMs = ptr.Any(baseMs + 60_000)
	retry.Fault = &persistence.Fault{Step: "execute", Message: "boom", Trace: "stack"}
	ass.Nil(store.CompleteTask(ctx, persistence.CompleteTaskRequest{Task: retry, NowMs: baseMs}))

	loaded, err := store.GetTask(ctx, task.Id)
	ass.Nil(err)
	ass.Equal(persistence.TaskStatusWaiting, loaded.Status())
	ass.Equal(int32(1), loaded.Try)
	ass.Equal(&persistence.Fault{Step: "execute", Message: "boom", Trace: "stack"}, loaded.Fault)

	// not due before the retry delay
	ass.NotContains(eligibleNames(ctx, ass, store, baseMs+1000, ""), idx)
	ass.Contains(eligibleNames(ctx, ass, store, baseMs+60_000, ""), idx)

	counts, err := store.GetTaskCounts(ctx, persistence.TaskIndexFilter{Index1: idx})
	ass.Nil(err)
	ass.Equal(persistence.TaskCounts{Total: 1, Waiting: 1}, counts)

	claimed = claim(ctx, ass, store, *loaded, "exec-g", baseMs+60_000)
	failed := claimed
	failed.Running = false
	failed.Finished = true
	failed.Failed = true
	failed.Try = 2
	failed.FinishedAtMs = ptr.Any(baseMs + 60_001)
	failed.Fault = &persistence.Fault{Step: "execute", Message: "boom again"}
	ass.Nil(store.CompleteTask(ctx, persistence.CompleteTaskRequest{Task: failed, NowMs: baseMs + 60_001}))

	counts, err = store.GetTaskCounts(ctx, persistence.TaskIndexFilter{Index1: idx})
	ass.Nil(err)
	ass.Equal(persistence.TaskCounts{Total: 1, Finished: 1, Failed: 1}, counts)

	n, err := store.PurgeFinishedTasks(ctx, baseMs+60_002)
	ass.Nil(err)
	ass.True(n >= 1)
	_, err = store.GetTask(ctx, task.Id)
	ass.Equal(persistence.ErrNotFound, err)
}

func SQLTaskSelectionTest(ass *assert.Assertions, store persistence.Store) {
	ctx := context.Background()
	prefix := uniqueName("select")
	// Only the tasks of this run are looked at, the database may be shared.
	ours := func(names []string) []string {
		var res []string
		for _, n := range names {
			if len(n) >= len(prefix) && n[:len(prefix)] == prefix {
				res = append(res, n)
			}
		}
		return res
	}
	nowMs := baseMs + 1_000_000

	low := newTestTask(prefix+"-low", 0, nowMs-300)
	high := newTestTask(prefix+"-high", 5, nowMs-100)
	older := newTestTask(prefix+"-older", 5, nowMs-200)
	future := newTestTask(prefix+"-future", 9, nowMs-50)
	future.PlannedAtMs = ptr.Any(nowMs + 1000)
	pinned := newTestTask(prefix+"-pinned", 1, nowMs-400)
	pinned.Node = "node-b"
	for _, task := range []persistence.Task{low, high, older, future, pinned} {
		insertTask(ctx, ass, store, task)
	}

	ass.Equal([]string{prefix + "-older", prefix + "-high", prefix + "-low"},
		ours(eligibleNames(ctx, ass, store, nowMs, "node-a")))
	ass.Equal([]string{prefix + "-older", prefix + "-high", prefix + "-pinned", prefix + "-low"},
		ours(eligibleNames(ctx, ass, store, nowMs, "node-b")))

	// a task whose token is held is not a candidate
	tokenName := prefix + "-token"
	guarded := newTestTask(prefix+"-guarded", 9, nowMs-10)
	guarded.Token = tokenName
	insertTask(ctx, ass, store, guarded)
	ass.Contains(eligibleNames(ctx, ass, store, nowMs, "node-a"), prefix+"-guarded")

	locked, err := store.LockToken(ctx, persistence.LockTokenRequest{
		Name: tokenName, Holder: "someone", NowMs: nowMs, StaleBeforeMs: nowMs - 5000,
	})
	ass.Nil(err)
	ass.True(locked)
	ass.NotContains(eligibleNames(ctx, ass, store, nowMs, "node-a"), prefix+"-guarded")
	// stale locks do not hide the task
	ass.Contains(eligibleNames(ctx, ass, store, nowMs+6000, "node-a"), prefix+"-guarded")
}

func SQLStaticTaskTest(ass *assert.Assertions, store persistence.Store) {
	ctx := context.Background()
	key := uniqueName("static-key")

	task := newTestTask(uniqueName("static"), 0, baseMs)
	task.Static = true
	task.Frequency = 5
	task.StaticKey = key

	id, inserted, err := store.InsertStaticTask(ctx, task)
	ass.Nil(err)
	ass.True(inserted)
	ass.True(id > 0)

	_, inserted, err = store.InsertStaticTask(ctx, task)
	ass.Nil(err)
	ass.False(inserted)

	loaded, err := store.GetTask(ctx, id)
	ass.Nil(err)
	ass.True(loaded.Static)
	ass.Equal(int32(5), loaded.Frequency)
	ass.Equal(key, loaded.StaticKey)

	// static tasks survive purges
	claimed := claim(ctx, ass, store, *loaded, "exec-s", baseMs)
	claimed.Running = false
	claimed.Finished = true
	claimed.FinishedAtMs = ptr.Any(baseMs)
	ass.Nil(store.CompleteTask(ctx, persistence.CompleteTaskRequest{Task: claimed, NowMs: baseMs}))
	_, err = store.PurgeFinishedTasks(ctx, baseMs+1)
	ass.Nil(err)
	_, err = store.GetTask(ctx, id)
	ass.Nil(err)
}

func SQLOrphanedTaskTest(ass *assert.Assertions, store persistence.Store) {
	ctx := context.Background()
	idx := uniqueName("orphan")

	task := newTestTask(idx, 0, baseMs)
	task = insertTask(ctx, ass, store, task)
	claimed := claim(ctx, ass, store, task, "exec-o", baseMs)

	workerId := uniqueName("worker")
	ass.Nil(store.RegisterWorker(ctx, persistence.Worker{
		Id: workerId, Node: "node-o", Pid: 42, Enabled: true, StartedAtMs: baseMs, LastSeenMs: baseMs,
	}))
	_, err := store.HeartbeatWorker(ctx, persistence.WorkerHeartbeat{Id: workerId, NowMs: baseMs, TaskId: &claimed.Id})
	ass.Nil(err)

	isOrphan := func() bool {
		tasks, err := store.ListOrphanedTasks(ctx, baseMs+1, 1000)
		ass.Nil(err)
		for _, t := range tasks {
			if t.Id == claimed.Id {
				return true
			}
		}
		return false
	}
	ass.False(isOrphan())

	ass.Nil(store.DeleteWorker(ctx, workerId))
	ass.True(isOrphan())
}
