// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/time/rate"

	"github.com/xcherryio/xtask/common/clock"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/common/metrics"
	"github.com/xcherryio/xtask/common/uuid"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/persistence"
)

// ErrNotLeader is returned by a cycle of a standby supervisor
var ErrNotLeader = errors.New("supervisor lease is held by another process")

// Supervisor keeps the configured number of worker processes alive on one node.
// Only the holder of the node lease supervises, other supervisors stand by.
type Supervisor struct {
	id         string
	node       string
	cfg        config.Config
	store      persistence.WorkerStore
	queue      TaskQueue
	tokens     TokenManager
	registrar  *Registrar
	launcher   Launcher
	limiter    *rate.Limiter
	timeSource clock.TimeSource
	metrics    *metrics.Client
	logger     log.Logger

	maxWorkers      atomic.Int64
	leader          bool
	registered      bool
	disabledAt      map[string]time.Time
	lastMaintenance time.Time
}

func NewSupervisor(
	cfg config.Config, store persistence.WorkerStore, queue TaskQueue, tokens TokenManager,
	registrar *Registrar, launcher Launcher, timeSource clock.TimeSource, metricsClient *metrics.Client,
	logger log.Logger,
) *Supervisor {
	id := uuid.NewWorkerId()
	s := &Supervisor{
		id:         id,
		node:       cfg.Worker.Node,
		cfg:        cfg,
		store:      store,
		queue:      queue,
		tokens:     tokens,
		registrar:  registrar,
		launcher:   launcher,
		limiter:    rate.NewLimiter(rate.Limit(cfg.Supervisor.SpawnRate), cfg.Supervisor.SpawnBurst),
		timeSource: timeSource,
		metrics:    metricsClient,
		logger:     logger.WithTags(tag.Supervisor(true), tag.WorkerId(id), tag.Node(cfg.Worker.Node)),
		disabledAt: map[string]time.Time{},
	}
	s.maxWorkers.Store(int64(cfg.Worker.MaxWorkers))
	return s
}

func (s *Supervisor) Id() string {
	return s.id
}

func (s *Supervisor) LeaseName() string {
	return supervisorLeasePrefix + s.node
}

// SetMaxWorkers changes the target number of workers, extra workers are retired on the next cycle
func (s *Supervisor) SetMaxWorkers(n int) {
	old := s.maxWorkers.Swap(int64(n))
	if old != int64(n) {
		s.logger.Info("max workers changed", tag.Count(int64(n)), tag.Value(old))
	}
}

func (s *Supervisor) MaxWorkers() int {
	return int(s.maxWorkers.Load())
}

// Run supervises until the context is cancelled
func (s *Supervisor) Run(ctx context.Context) error {
	gate := NewLocalTimerGate(clock.NewRealTimeSource(), s.logger)
	defer gate.Close()
	s.logger.Info("supervisor started", tag.Pid(os.Getpid()))

	for {
		err := s.RunOnce(ctx)
		switch {
		case errors.Is(err, ErrNotLeader):
			s.logger.Debug("standing by, another supervisor holds the lease")
		case err != nil && ctx.Err() == nil:
			s.logger.Error("supervision cycle failed", tag.Error(err))
		}

		gate.Update(time.Now().Add(s.cfg.Supervisor.RefreshDelay))
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case <-gate.FireChan():
		}
	}
}

// RunOnce runs a single supervision cycle
func (s *Supervisor) RunOnce(ctx context.Context) error {
	isLeader, err := s.holdLease(ctx)
	if err != nil {
		return fmt.Errorf("supervisor lease: %w", err)
	}
	if !isLeader {
		s.dropOwnRow(ctx)
		return ErrNotLeader
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
		s.logger.Warn("failed to notify systemd watchdog", tag.Error(err))
	}
	if err := s.heartbeat(ctx); err != nil {
		return err
	}

	workers, err := s.store.ListWorkers(ctx, s.node)
	if err != nil {
		return err
	}
	alive := s.checkWorkers(ctx, workers)
	alive = s.retireExtra(ctx, alive)
	s.spawnMissing(ctx, len(alive))

	now := s.timeSource.Now()
	if s.lastMaintenance.IsZero() || now.Sub(s.lastMaintenance) >= s.cfg.Supervisor.MaintenanceInterval {
		s.lastMaintenance = now
		s.maintain(ctx)
	}
	return nil
}

func (s *Supervisor) holdLease(ctx context.Context) (bool, error) {
	if s.leader {
		ok, err := s.tokens.Refresh(ctx, s.LeaseName(), s.id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		s.leader = false
		s.logger.Warn("supervisor lease was lost")
	}
	ok, err := s.tokens.TryAcquire(ctx, s.LeaseName(), s.id, s.cfg.Supervisor.LeaseTTL)
	if err != nil {
		return false, err
	}
	if ok {
		s.logger.Info("supervisor lease acquired")
	}
	s.leader = ok
	return ok, nil
}

func (s *Supervisor) heartbeat(ctx context.Context) error {
	now := s.timeSource.Now().UnixMilli()
	_, err := s.store.HeartbeatWorker(ctx, persistence.WorkerHeartbeat{Id: s.id, NowMs: now})
	if err == nil {
		s.registered = true
		return nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return err
	}
	err = s.store.RegisterWorker(ctx, persistence.Worker{
		Id:           s.id,
		Node:         s.node,
		Pid:          os.Getpid(),
		Enabled:      true,
		IsSupervisor: true,
		StartedAtMs:  now,
		LastSeenMs:   now,
	})
	if err == nil {
		s.registered = true
	}
	return err
}

// checkWorkers removes dead, stale and retired workers and returns the healthy ones
func (s *Supervisor) checkWorkers(ctx context.Context, workers []persistence.Worker) []persistence.Worker {
	now := s.timeSource.Now()
	watchdog := s.cfg.Worker.WatchdogDelay
	var alive []persistence.Worker

	for _, w := range workers {
		if w.Id == s.id {
			continue
		}
		lastSeen := time.UnixMilli(w.LastSeenMs)
		if w.IsSupervisor {
			if now.Sub(lastSeen) > watchdog {
				s.logger.Info("deleting the row of a stale supervisor", tag.ID(w.Id))
				s.deleteRow(ctx, w.Id)
			}
			continue
		}

		logger := s.logger.WithTags(tag.ID(w.Id), tag.Pid(w.Pid))
		switch {
		case !s.launcher.Alive(w.Pid):
			logger.Warn("worker process is gone")
			s.removeWorker(ctx, w, reasonDead)
		case now.Sub(lastSeen) > watchdog:
			logger.Warn("worker heartbeat timed out", tag.UnixMilli(w.LastSeenMs))
			s.killWorker(ctx, w, reasonStale)
		case !w.Enabled:
			disabledAt, ok := s.disabledAt[w.Id]
			if !ok {
				s.disabledAt[w.Id] = now
			} else if now.Sub(disabledAt) > watchdog {
				logger.Warn("retired worker did not exit in time")
				s.killWorker(ctx, w, reasonRetired)
			}
		default:
			if reason := s.retirementReason(now, w); reason != "" {
				logger.Info("retiring worker", tag.Reason(reason), tag.Count(w.TaskCount))
				s.disable(ctx, w, now)
				continue
			}
			alive = append(alive, w)
		}
	}
	return alive
}

func (s *Supervisor) retirementReason(now time.Time, w persistence.Worker) string {
	limits := s.cfg.Worker
	switch {
	case now.Sub(time.UnixMilli(w.StartedAtMs)) > limits.MaxAge:
		return "max age"
	case w.TaskCount >= limits.MaxTasks:
		return "max tasks"
	case w.MemoryBytes > limits.MaxMemoryMB*1024*1024:
		return "max memory"
	default:
		return ""
	}
}

// retireExtra disables the newest workers above the target count
func (s *Supervisor) retireExtra(ctx context.Context, alive []persistence.Worker) []persistence.Worker {
	target := s.MaxWorkers()
	if len(alive) <= target {
		return alive
	}
	now := s.timeSource.Now()
	for _, w := range alive[target:] {
		s.logger.Info("retiring extra worker", tag.ID(w.Id))
		s.disable(ctx, w, now)
	}
	return alive[:target]
}

func (s *Supervisor) disable(ctx context.Context, w persistence.Worker, now time.Time) {
	if err := s.store.DisableWorker(ctx, w.Id); err != nil {
		s.logger.Error("failed to disable worker", tag.ID(w.Id), tag.Error(err))
		return
	}
	s.disabledAt[w.Id] = now
}

func (s *Supervisor) spawnMissing(ctx context.Context, alive int) {
	missing := s.MaxWorkers() - alive
	for i := 0; i < missing; i++ {
		if !s.limiter.Allow() {
			s.logger.Debug("worker spawn is rate limited", tag.Count(int64(missing-i)))
			return
		}
		if err := s.spawn(ctx); err != nil {
			s.logger.Error("failed to spawn worker", tag.Error(err))
			return
		}
	}
}

func (s *Supervisor) spawn(ctx context.Context) error {
	id := uuid.NewWorkerId()
	pid, err := s.launcher.Spawn(ctx, id)
	if err != nil {
		return err
	}
	now := s.timeSource.Now().UnixMilli()
	err = s.store.RegisterWorker(ctx, persistence.Worker{
		Id:          id,
		Node:        s.node,
		Pid:         pid,
		Enabled:     true,
		StartedAtMs: now,
		LastSeenMs:  now,
	})
	if err != nil {
		if _, getErr := s.store.GetWorker(ctx, id); getErr != nil {
			return fmt.Errorf("registering worker %v: %w", id, err)
		}
	}
	s.metrics.WorkerSpawned(ctx, s.node)
	s.logger.Info("worker spawned", tag.ID(id), tag.Pid(pid))
	return nil
}

func (s *Supervisor) killWorker(ctx context.Context, w persistence.Worker, reason string) {
	if err := s.launcher.Kill(w.Pid); err != nil {
		s.logger.Warn("failed to kill worker process", tag.ID(w.Id), tag.Pid(w.Pid), tag.Error(err))
	}
	s.removeWorker(ctx, w, reason)
}

// removeWorker deletes the row and fails the task the worker was running
func (s *Supervisor) removeWorker(ctx context.Context, w persistence.Worker, reason string) {
	s.deleteRow(ctx, w.Id)
	delete(s.disabledAt, w.Id)
	s.metrics.WorkerKilled(ctx, s.node, reason)
	if w.TaskId == nil {
		return
	}
	if err := s.queue.RecoverTask(ctx, *w.TaskId, "worker "+reason); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		s.logger.Error("failed to recover the task of a lost worker", tag.TaskId(*w.TaskId), tag.Error(err))
	}
}

func (s *Supervisor) deleteRow(ctx context.Context, id string) {
	if err := s.store.DeleteWorker(ctx, id); err != nil {
		s.logger.Error("failed to delete worker row", tag.ID(id), tag.Error(err))
	}
}

func (s *Supervisor) maintain(ctx context.Context) {
	if s.registrar != nil {
		if n, err := s.registrar.Register(ctx); err != nil {
			s.logger.Error("failed to register static jobs", tag.Error(err))
		} else if n > 0 {
			s.logger.Info("static jobs registered", tag.Count(int64(n)))
		}
	}
	if n, err := s.queue.Purge(ctx); err != nil {
		s.logger.Error("failed to purge finished tasks", tag.Error(err))
	} else if n > 0 {
		s.logger.Info("finished tasks purged", tag.Count(n))
	}
	if n, err := s.tokens.DeleteInactive(ctx, s.cfg.Token.DeleteTTL); err != nil {
		s.logger.Error("failed to delete inactive tokens", tag.Error(err))
	} else if n > 0 {
		s.logger.Info("inactive tokens deleted", tag.Count(n))
	}
	if n, err := s.queue.RecoverOrphans(ctx); err != nil {
		s.logger.Error("failed to recover orphaned tasks", tag.Error(err))
	} else if n > 0 {
		s.logger.Warn("orphaned tasks recovered", tag.Count(int64(n)))
	}
}

func (s *Supervisor) dropOwnRow(ctx context.Context) {
	if !s.registered {
		return
	}
	s.deleteRow(ctx, s.id)
	s.registered = false
}

// shutdown asks the workers to exit and gives up the lease
func (s *Supervisor) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if s.leader {
		workers, err := s.store.ListWorkers(ctx, s.node)
		if err != nil {
			s.logger.Error("failed to list workers on shutdown", tag.Error(err))
		}
		for _, w := range workers {
			if w.Id != s.id && !w.IsSupervisor && w.Enabled {
				if err := s.store.DisableWorker(ctx, w.Id); err != nil {
					s.logger.Error("failed to disable worker", tag.ID(w.Id), tag.Error(err))
				}
			}
		}
		if _, err := s.tokens.Release(ctx, s.LeaseName(), s.id); err != nil {
			s.logger.Error("failed to release the supervisor lease", tag.Error(err))
		}
		s.leader = false
	}
	s.dropOwnRow(ctx)
	s.logger.Info("supervisor stopped")
}
