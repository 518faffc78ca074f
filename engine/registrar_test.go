// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/xtask/common/ptr"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/persistence"
)

func TestRegistrarIsIdempotent(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	provider := StaticProviderFunc(func(ctx context.Context) ([]StaticJob, error) {
		return []StaticJob{
			{Type: "test.ok", Token: "sync-{account}", Frequency: 15, Inputs: map[string]any{"account": "a1"}},
			{Type: "test.ok", Token: "sync-{account}", Frequency: 15, Inputs: map[string]any{"account": "a2"}},
		}, nil
	})
	registrar := NewRegistrar(env.registry, env.queue, env.logger, provider)

	n, err := registrar.Register(ctx)
	ass.Nil(err)
	ass.Equal(3, n, "two provided jobs and the static definition")

	n, err = registrar.Register(ctx)
	ass.Nil(err)
	ass.Equal(0, n)

	summary, err := env.queue.GetSummary(ctx)
	ass.Nil(err)
	ass.Equal(int64(3), summary.Tasks.Total)

	tasks, err := env.store.ListEligibleTasks(ctx, persistence.ListEligibleTasksRequest{
		NowMs: env.ts.Now().UnixMilli(), Node: testNode, PageSize: 10,
	})
	ass.Nil(err)
	tokens := map[string]bool{}
	for _, task := range tasks {
		ass.True(task.Static)
		ass.NotEmpty(task.StaticKey)
		tokens[task.Token] = true
	}
	ass.True(tokens["sync-a1"])
	ass.True(tokens["sync-a2"])
}

func TestRegisteredAndEnqueuedStaticJobsShareOneTask(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	provider := StaticProviderFunc(func(ctx context.Context) ([]StaticJob, error) {
		return []StaticJob{
			{Type: "test.ok", Token: "region-{region}", Frequency: 30, Inputs: map[string]any{"region": "eu"}},
		}, nil
	})
	registrar := NewRegistrar(env.registry, env.queue, env.logger, provider)
	_, err := registrar.Register(ctx)
	require.NoError(t, err)

	resp, err := NewEnqueuer(env.registry, env.queue, nil, env.logger).Enqueue(ctx, job.Descriptor{
		Type:      "test.ok",
		Token:     ptr.Any("region-{region}"),
		Frequency: 30,
		Inputs:    map[string]any{"region": "eu"},
	})
	require.NoError(t, err)
	ass.True(resp.AlreadyRegistered)

	task := env.get(t, resp.TaskId)
	ass.Equal("region-eu", task.Token)
	ass.Equal("registrar", task.CreatedBy)
}

func TestRegistrarSkipsInvalidJobs(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)

	provider := StaticProviderFunc(func(ctx context.Context) ([]StaticJob, error) {
		return []StaticJob{
			{Type: "test.unknown", Frequency: 5},
			{Type: "test.ok"},
			{Type: "test.ok", Schedule: "not a cron"},
			{Type: "test.ok", Token: "{missing}", Frequency: 5},
		}, nil
	})
	n, err := NewRegistrar(env.registry, env.queue, env.logger, provider).Register(context.Background())
	ass.Nil(err)
	ass.Equal(1, n)
}

func TestRegistrarProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	provider := StaticProviderFunc(func(ctx context.Context) ([]StaticJob, error) {
		return nil, errors.New("provider offline")
	})
	_, err := NewRegistrar(env.registry, env.queue, env.logger, provider).Register(context.Background())
	assert.ErrorContains(t, err, "provider offline")
}

func TestStaticKey(t *testing.T) {
	ass := assert.New(t)
	base := StaticJob{Type: "report", Token: "r", Frequency: 60, Inputs: map[string]any{"a": 1, "b": "x"}}

	k1, err := StaticKey(base)
	require.NoError(t, err)
	same := base
	same.Inputs = map[string]any{"b": "x", "a": 1}
	k2, err := StaticKey(same)
	require.NoError(t, err)
	ass.Equal(k1, k2)
	ass.Len(k1, 64)

	other := base
	other.Frequency = 30
	k3, err := StaticKey(other)
	require.NoError(t, err)
	ass.NotEqual(k1, k3)

	_, err = StaticKey(StaticJob{Type: "report", Inputs: map[string]any{"f": func() {}}})
	ass.NotNil(err)
}
