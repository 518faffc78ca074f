// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sqltest

import (
	"context"

	"github.com/stretchr/testify/assert"
	"github.com/xcherryio/xtask/common/ptr"
	"github.com/xcherryio/xtask/persistence"
)

func SQLWorkerTest(ass *assert.Assertions, store persistence.Store) {
	ctx := context.Background()
	node := uniqueName("node")
	worker1 := persistence.Worker{
		Id: uniqueName("w1"), Node: node, Pid: 100, Enabled: true, StartedAtMs: baseMs, LastSeenMs: baseMs,
	}
	worker2 := persistence.Worker{
		Id: uniqueName("w2"), Node: node, Pid: 101, Enabled: true, StartedAtMs: baseMs + 1, LastSeenMs: baseMs + 1,
	}
	supervisor := persistence.Worker{
		Id: uniqueName("s"), Node: node, Pid: 1, Enabled: true, IsSupervisor: true, StartedAtMs: baseMs, LastSeenMs: baseMs,
	}
	for _, w := range []persistence.Worker{worker1, worker2, supervisor} {
		ass.Nil(store.RegisterWorker(ctx, w))
	}

	before, err := store.GetWorkerCounts(ctx)
	ass.Nil(err)

	enabled, err := store.HeartbeatWorker(ctx, persistence.WorkerHeartbeat{
		Id: worker1.Id, NowMs: baseMs + 500, TaskId: ptr.Any(int64(7)), TaskCount: 3, MemoryBytes: 1024,
	})
	ass.Nil(err)
	ass.True(enabled)

	loaded, err := store.GetWorker(ctx, worker1.Id)
	ass.Nil(err)
	ass.True(loaded.Running)
	ass.Equal(int64(7), *loaded.TaskId)
	ass.Equal(int64(3), loaded.TaskCount)
	ass.Equal(int64(1024), loaded.MemoryBytes)
	ass.Equal(baseMs+500, loaded.LastSeenMs)
	ass.Equal(100, loaded.Pid)

	after, err := store.GetWorkerCounts(ctx)
	ass.Nil(err)
	ass.Equal(before.Running+1, after.Running)
	ass.Equal(before.Sleeping-1, after.Sleeping)
	ass.Equal(before.Total, after.Total)

	workers, err := store.ListWorkers(ctx, node)
	ass.Nil(err)
	ass.Len(workers, 3)

	ass.Nil(store.DisableWorker(ctx, worker2.Id))
	enabled, err = store.HeartbeatWorker(ctx, persistence.WorkerHeartbeat{Id: worker2.Id, NowMs: baseMs + 600})
	ass.Nil(err)
	ass.False(enabled)

	ass.Nil(store.DeleteWorker(ctx, worker2.Id))
	_, err = store.HeartbeatWorker(ctx, persistence.WorkerHeartbeat{Id: worker2.Id, NowMs: baseMs + 700})
	ass.Equal(persistence.ErrNotFound, err)
	_, err = store.GetWorker(ctx, worker2.Id)
	ass.Equal(persistence.ErrNotFound, err)

	for _, w := range []persistence.Worker{worker1, supervisor} {
		ass.Nil(store.DeleteWorker(ctx, w.Id))
	}
}
