// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/xcherryio/xtask/common/clock"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/common/metrics"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/persistence"
)

// RunStatus is the verdict of one execution
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	// RunYielded is a batch execution that has items left
	RunYielded RunStatus = "yielded"
)

type RunResult struct {
	Status RunStatus
	Fault  *persistence.Fault
}

// Runner executes one claimed task through validate, prepare, execute,
// finalize and close, then writes the outcome back to the queue
type Runner struct {
	registry   *job.Registry
	queue      TaskQueue
	tokens     TokenManager
	cfg        config.Config
	timeSource clock.TimeSource
	metrics    *metrics.Client
	logger     log.Logger
}

func NewRunner(
	registry *job.Registry, queue TaskQueue, tokens TokenManager, cfg config.Config,
	timeSource clock.TimeSource, metricsClient *metrics.Client, logger log.Logger,
) *Runner {
	return &Runner{
		registry:   registry,
		queue:      queue,
		tokens:     tokens,
		cfg:        cfg,
		timeSource: timeSource,
		metrics:    metricsClient,
		logger:     logger,
	}
}

// Run never fails on a step failure, only when the outcome cannot be written
func (r *Runner) Run(ctx context.Context, task persistence.Task, heartbeat HeartbeatFunc) (RunResult, error) {
	logger := r.logger.WithTags(tag.TaskId(task.Id), tag.TaskName(task.Name), tag.JobType(task.JobType),
		tag.Action(task.Action), tag.ExecutionId(task.ExecutionId))
	r.metrics.TaskStarted(ctx, task.JobType)

	startedAt := r.timeSource.Now()
	if task.StartedAtMs != nil {
		startedAt = time.UnixMilli(*task.StartedAtMs)
	}
	lifetime := NewLifetimeTracker(r.timeSource, startedAt, r.cfg.Task.ErrorDelay, r.cfg.Worker.WatchdogDelay, heartbeat)
	if task.Token != "" {
		lifetime.WithToken(r.tokens, task.Token, task.ExecutionId, r.cfg.Token.TTL, startedAt)
	}
	jobCtx := job.NewContext(ctx, task, lifetime, logger)

	result := r.execute(jobCtx, logger)

	output, err := jobCtx.Output()
	if err != nil && result.Status != RunFailed {
		result = RunResult{Status: RunFailed, Fault: &persistence.Fault{
			Step: string(job.StepFinalize), Message: err.Error(),
		}}
	}

	switch result.Status {
	case RunYielded:
		r.metrics.TaskYielded(ctx, task.JobType)
		logger.Debug("batch task yielded")
		err = r.queue.Yield(ctx, task, *jobCtx.State)
	case RunSucceeded:
		r.metrics.TaskSucceeded(ctx, task.JobType)
		logger.Info("task succeeded")
		err = r.queue.MarkFinished(ctx, task, Outcome{Success: true, Output: output, State: *jobCtx.State})
	default:
		r.metrics.TaskFailed(ctx, task.JobType)
		logger.Warn("task failed", tag.Step(result.Fault.Step), tag.Message(result.Fault.Message))
		err = r.queue.MarkFinished(ctx, task, Outcome{
			Success: false, Fault: result.Fault, Output: output, State: *jobCtx.State,
		})
	}
	if err != nil {
		return result, fmt.Errorf("recording outcome of task %v: %w", task.Id, err)
	}
	return result, nil
}

func (r *Runner) execute(ctx *job.Context, logger log.Logger) RunResult {
	j, err := r.registry.NewJob(ctx.Type)
	if err != nil {
		return RunResult{Status: RunFailed, Fault: &persistence.Fault{Step: string(job.StepResolve), Message: err.Error()}}
	}

	fault := runStep(ctx, job.StepValidate, j.Validate)
	if fault == nil {
		fault = runStep(ctx, job.StepPrepare, j.Prepare)
	}
	if fault == nil {
		fault = runStep(ctx, job.StepExecute, j.Execute)
	}
	yielded := fault == nil && !job.BatchDone(ctx.State)
	if fault == nil && !yielded {
		fault = runStep(ctx, job.StepFinalize, j.Finalize)
	}
	// always attempted, never overrides the verdict
	if closeFault := runStep(ctx, job.StepClose, j.Close); closeFault != nil {
		logger.Error("failed to close job", tag.Message(closeFault.Message))
	}

	switch {
	case fault != nil:
		return RunResult{Status: RunFailed, Fault: fault}
	case yielded:
		return RunResult{Status: RunYielded}
	default:
		return RunResult{Status: RunSucceeded}
	}
}

// runStep turns both returned errors and panics into a fault
func runStep(ctx *job.Context, step job.Step, fn func(*job.Context) error) (fault *persistence.Fault) {
	defer func() {
		if rec := recover(); rec != nil {
			fault = &persistence.Fault{
				Step:    string(step),
				Message: fmt.Sprintf("panic: %v", rec),
				Trace:   string(debug.Stack()),
			}
		}
	}()
	if err := fn(ctx); err != nil {
		return &persistence.Fault{Step: string(step), Message: err.Error()}
	}
	return nil
}
