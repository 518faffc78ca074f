// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/xtask/common/metrics"
	"github.com/xcherryio/xtask/persistence"
)

type fakeLauncher struct {
	sync.Mutex
	nextPid int
	alive   map[int]bool
	spawned []string
	killed  []int
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{nextPid: 1000, alive: map[int]bool{}}
}

func (f *fakeLauncher) Spawn(ctx context.Context, workerId string) (int, error) {
	f.Lock()
	defer f.Unlock()
	f.nextPid++
	f.alive[f.nextPid] = true
	f.spawned = append(f.spawned, workerId)
	return f.nextPid, nil
}

func (f *fakeLauncher) Alive(pid int) bool {
	f.Lock()
	defer f.Unlock()
	return f.alive[pid]
}

func (f *fakeLauncher) Kill(pid int) error {
	f.Lock()
	defer f.Unlock()
	f.alive[pid] = false
	f.killed = append(f.killed, pid)
	return nil
}

func (f *fakeLauncher) spawnCount() int {
	f.Lock()
	defer f.Unlock()
	return len(f.spawned)
}

func (f *fakeLauncher) crash(pid int) {
	f.Lock()
	defer f.Unlock()
	f.alive[pid] = false
}

func newTestSupervisor(env *testEnv, launcher Launcher) *Supervisor {
	registrar := NewRegistrar(env.registry, env.queue, env.logger)
	return NewSupervisor(env.cfg, env.store, env.queue, env.tokens, registrar, launcher, env.ts,
		metrics.NewNoopClient(), env.logger)
}

func localWorkers(t *testing.T, env *testEnv) []persistence.Worker {
	rows, err := env.store.ListWorkers(context.Background(), testNode)
	require.NoError(t, err)
	var workers []persistence.Worker
	for _, w := range rows {
		if !w.IsSupervisor {
			workers = append(workers, w)
		}
	}
	return workers
}

// heartbeatAll keeps the worker rows fresh after the fake clock moved
func heartbeatAll(t *testing.T, env *testEnv) {
	for _, w := range localWorkers(t, env) {
		_, err := env.store.HeartbeatWorker(context.Background(), persistence.WorkerHeartbeat{
			Id: w.Id, NowMs: env.ts.Now().UnixMilli(), TaskId: w.TaskId, TaskCount: w.TaskCount,
		})
		require.NoError(t, err)
	}
}

func TestSupervisorSpawnsUpToMaxWorkers(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	launcher := newFakeLauncher()
	supervisor := newTestSupervisor(env, launcher)
	ctx := context.Background()

	ass.Nil(supervisor.RunOnce(ctx))
	ass.Equal(2, launcher.spawnCount())
	workers := localWorkers(t, env)
	ass.Len(workers, 2)
	for _, w := range workers {
		ass.True(w.Enabled)
		ass.Greater(w.Pid, 1000)
	}

	self, err := env.store.GetWorker(ctx, supervisor.Id())
	require.NoError(t, err)
	ass.True(self.IsSupervisor)

	// maintenance registered the static definition
	summary, err := env.queue.GetSummary(ctx)
	ass.Nil(err)
	ass.Equal(int64(1), summary.Tasks.Total)

	ass.Nil(supervisor.RunOnce(ctx))
	ass.Equal(2, launcher.spawnCount())
}

func TestSupervisorReplacesDeadWorkerAndRecoversItsTask(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	launcher := newFakeLauncher()
	supervisor := newTestSupervisor(env, launcher)
	ctx := context.Background()
	require.NoError(t, supervisor.RunOnce(ctx))

	victim := localWorkers(t, env)[0]
	taskId := env.insert(t, persistence.Task{JobType: "test.ok", Token: "D", Priority: 10})
	task, err := env.queue.SelectNext(ctx, testNode, victim.Id)
	require.NoError(t, err)
	require.Equal(t, taskId, task.Id)
	_, err = env.store.HeartbeatWorker(ctx, persistence.WorkerHeartbeat{
		Id: victim.Id, NowMs: env.ts.Now().UnixMilli(), TaskId: &task.Id,
	})
	require.NoError(t, err)

	launcher.crash(victim.Pid)
	ass.Nil(supervisor.RunOnce(ctx))

	_, err = env.store.GetWorker(ctx, victim.Id)
	ass.ErrorIs(err, persistence.ErrNotFound)
	ass.Equal(3, launcher.spawnCount())
	ass.Len(localWorkers(t, env), 2)

	recovered := env.get(t, taskId)
	ass.False(recovered.Running)
	ass.Equal(int32(1), recovered.Try)
	ass.Equal("worker dead", recovered.Fault.Message)
}

func TestSupervisorKillsStaleWorkers(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	launcher := newFakeLauncher()
	supervisor := newTestSupervisor(env, launcher)
	ctx := context.Background()
	require.NoError(t, supervisor.RunOnce(ctx))

	workers := localWorkers(t, env)
	stuck, healthy := workers[0], workers[1]

	env.ts.Advance(env.cfg.Worker.WatchdogDelay + time.Second)
	_, err := env.store.HeartbeatWorker(ctx, persistence.WorkerHeartbeat{Id: healthy.Id, NowMs: env.ts.Now().UnixMilli()})
	require.NoError(t, err)

	ass.Nil(supervisor.RunOnce(ctx))
	ass.Equal([]int{stuck.Pid}, launcher.killed)
	_, err = env.store.GetWorker(ctx, stuck.Id)
	ass.ErrorIs(err, persistence.ErrNotFound)
	_, err = env.store.GetWorker(ctx, healthy.Id)
	ass.Nil(err)
	ass.Equal(3, launcher.spawnCount())
}

func TestSupervisorRetiresWorkersOverLimits(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	launcher := newFakeLauncher()
	supervisor := newTestSupervisor(env, launcher)
	ctx := context.Background()
	require.NoError(t, supervisor.RunOnce(ctx))

	busy := localWorkers(t, env)[0]
	enabled, err := env.store.HeartbeatWorker(ctx, persistence.WorkerHeartbeat{
		Id: busy.Id, NowMs: env.ts.Now().UnixMilli(), TaskCount: env.cfg.Worker.MaxTasks,
	})
	require.NoError(t, err)
	require.True(t, enabled)

	ass.Nil(supervisor.RunOnce(ctx))
	row, err := env.store.GetWorker(ctx, busy.Id)
	require.NoError(t, err)
	ass.False(row.Enabled)
	ass.Equal(3, launcher.spawnCount(), "a replacement is spawned right away")
	ass.Empty(launcher.killed)

	// the retired worker keeps running its task for a while, then gets killed
	env.ts.Advance(env.cfg.Worker.WatchdogDelay / 2)
	heartbeatAll(t, env)
	ass.Nil(supervisor.RunOnce(ctx))
	ass.Empty(launcher.killed)

	env.ts.Advance(env.cfg.Worker.WatchdogDelay)
	heartbeatAll(t, env)
	ass.Nil(supervisor.RunOnce(ctx))
	ass.Equal([]int{busy.Pid}, launcher.killed)
	ass.Len(localWorkers(t, env), 2)
}

func TestSupervisorMaxWorkersChange(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	launcher := newFakeLauncher()
	supervisor := newTestSupervisor(env, launcher)
	ctx := context.Background()
	require.NoError(t, supervisor.RunOnce(ctx))

	supervisor.SetMaxWorkers(1)
	ass.Equal(1, supervisor.MaxWorkers())
	ass.Nil(supervisor.RunOnce(ctx))
	disabled := 0
	for _, w := range localWorkers(t, env) {
		if !w.Enabled {
			disabled++
		}
	}
	ass.Equal(1, disabled)
	ass.Equal(2, launcher.spawnCount())

	supervisor.SetMaxWorkers(3)
	ass.Nil(supervisor.RunOnce(ctx))
	ass.Equal(4, launcher.spawnCount())
}

func TestSupervisorLeaseIsExclusive(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	leader := newTestSupervisor(env, newFakeLauncher())
	standbyLauncher := newFakeLauncher()
	standby := newTestSupervisor(env, standbyLauncher)

	ass.Nil(leader.RunOnce(ctx))
	ass.True(errors.Is(standby.RunOnce(ctx), ErrNotLeader))
	ass.Equal(0, standbyLauncher.spawnCount())

	// the leader stops refreshing, the standby takes over after the lease ttl
	env.ts.Advance(env.cfg.Supervisor.LeaseTTL + time.Second)
	heartbeatAll(t, env)
	ass.Nil(standby.RunOnce(ctx))
	ass.True(errors.Is(leader.RunOnce(ctx), ErrNotLeader))

	_, err := env.store.GetWorker(ctx, leader.Id())
	ass.ErrorIs(err, persistence.ErrNotFound)
}

func TestSupervisorShutdownRetiresWorkers(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	launcher := newFakeLauncher()
	supervisor := newTestSupervisor(env, launcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- supervisor.Run(ctx) }()
	require.Eventually(t, func() bool { return launcher.spawnCount() == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		ass.Nil(err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}

	for _, w := range localWorkers(t, env) {
		ass.False(w.Enabled)
	}
	lease, err := env.store.GetToken(context.Background(), supervisor.LeaseName())
	require.NoError(t, err)
	ass.False(lease.Locked)
	_, err = env.store.GetWorker(context.Background(), supervisor.Id())
	ass.ErrorIs(err, persistence.ErrNotFound)
}
