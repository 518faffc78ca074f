// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/xtask/common/ptr"
	"github.com/xcherryio/xtask/job"
)

type countingNotifier struct {
	count int
}

func (c *countingNotifier) NotifyNewTask(ctx context.Context) error {
	c.count++
	return nil
}

func TestEnqueue(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	notifier := &countingNotifier{}
	enqueuer := NewEnqueuer(env.registry, env.queue, notifier, env.logger)
	ctx := context.Background()

	planned := testStart.Add(time.Hour)
	resp, err := enqueuer.Enqueue(ctx, job.Descriptor{
		Type:      "test.ok",
		Name:      "nightly",
		Priority:  ptr.Any(int32(7)),
		Token:     ptr.Any("user-{id}"),
		Inputs:    map[string]any{"id": "42"},
		Index1:    "tenant",
		PlannedAt: &planned,
	})
	require.NoError(t, err)
	ass.False(resp.AlreadyRegistered)
	ass.Equal(1, notifier.count)

	task := env.get(t, resp.TaskId)
	ass.Equal("nightly", task.Name)
	ass.Equal(int32(7), task.Priority)
	ass.Equal("user-42", task.Token)
	ass.Equal("tenant", task.Index1)
	ass.Equal(planned.UnixMilli(), *task.PlannedAtMs)
	ass.Equal(env.cfg.Task.TryCount, task.MaxTry)
}

func TestEnqueueRejectsInvalidDescriptors(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	notifier := &countingNotifier{}
	enqueuer := NewEnqueuer(env.registry, env.queue, notifier, env.logger)

	for _, d := range []job.Descriptor{
		{Type: "test.unknown"},
		{Type: "test.ok", Token: ptr.Any("")},
		{Type: "test.ok", Frequency: -1},
		{Type: "test.ok", Schedule: "every tuesday"},
	} {
		_, err := enqueuer.Enqueue(context.Background(), d)
		ass.True(job.IsValidationError(err), "descriptor %+v", d)
	}
	ass.Equal(0, notifier.count)

	summary, err := env.queue.GetSummary(context.Background())
	ass.Nil(err)
	ass.Equal(int64(0), summary.Tasks.Total)
}

func TestEnqueueStaticIsRegisteredOnce(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	notifier := &countingNotifier{}
	enqueuer := NewEnqueuer(env.registry, env.queue, notifier, env.logger)
	d := job.Descriptor{Type: "test.ok", Frequency: 30, Inputs: map[string]any{"k": "v"}}

	first, err := enqueuer.Enqueue(context.Background(), d)
	require.NoError(t, err)
	ass.False(first.AlreadyRegistered)

	second, err := enqueuer.Enqueue(context.Background(), d)
	require.NoError(t, err)
	ass.True(second.AlreadyRegistered)
	ass.Equal(1, notifier.count)

	task := env.get(t, first.TaskId)
	ass.True(task.Static)
	ass.Equal(int32(30), task.Frequency)
}
