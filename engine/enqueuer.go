// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/common/ptr"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/persistence"
)

type EnqueueResponse struct {
	TaskId int64 `json:"taskId"`
	// AlreadyRegistered is true for a static job that was already in the queue
	AlreadyRegistered bool `json:"alreadyRegistered,omitempty"`
}

// Enqueuer is the submission path: descriptors are validated and turned into tasks
type Enqueuer struct {
	registry *job.Registry
	queue    TaskQueue
	notifier TaskNotifier
	logger   log.Logger
}

// NewEnqueuer creates the submission path, notifier may be nil
func NewEnqueuer(registry *job.Registry, queue TaskQueue, notifier TaskNotifier, logger log.Logger) *Enqueuer {
	return &Enqueuer{
		registry: registry,
		queue:    queue,
		notifier: notifier,
		logger:   logger,
	}
}

// Enqueue returns a job.ValidationError for malformed descriptors, nothing is stored then
func (e *Enqueuer) Enqueue(ctx context.Context, d job.Descriptor) (EnqueueResponse, error) {
	resolved, err := d.Resolve(e.registry)
	if err != nil {
		return EnqueueResponse{}, err
	}

	task := persistence.Task{
		Name:      d.Name,
		JobType:   d.Type,
		Action:    d.Action,
		Inputs:    d.Inputs,
		Priority:  resolved.Priority,
		Token:     resolved.Token,
		Node:      d.Node,
		Frequency: d.Frequency,
		Schedule:  d.Schedule,
		MaxTry:    d.MaxTry,
		Index1:    d.Index1,
		Index2:    d.Index2,
		CreatedBy: "enqueue",
	}
	if d.PlannedAt != nil {
		task.PlannedAtMs = ptr.Any(d.PlannedAt.UnixMilli())
	}

	var resp EnqueueResponse
	if resolved.Static {
		key, err := StaticKey(StaticJob{
			Type: d.Type, Action: d.Action, Token: resolved.Token, Frequency: d.Frequency,
			Schedule: d.Schedule, Inputs: d.Inputs, Priority: resolved.Priority, Node: d.Node,
		})
		if err != nil {
			return EnqueueResponse{}, err
		}
		task.StaticKey = key
		id, inserted, err := e.queue.InsertStatic(ctx, task)
		if err != nil {
			return EnqueueResponse{}, err
		}
		resp = EnqueueResponse{TaskId: id, AlreadyRegistered: !inserted}
	} else {
		id, err := e.queue.Insert(ctx, task)
		if err != nil {
			return EnqueueResponse{}, err
		}
		resp = EnqueueResponse{TaskId: id}
	}

	e.logger.Info("task enqueued", tag.TaskId(resp.TaskId), tag.JobType(d.Type), tag.Token(resolved.Token))
	if e.notifier != nil && !resp.AlreadyRegistered {
		if err := e.notifier.NotifyNewTask(ctx); err != nil {
			e.logger.Warn("failed to notify workers", tag.Error(err))
		}
	}
	return resp, nil
}
