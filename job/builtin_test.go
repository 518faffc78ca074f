// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/xtask/persistence"
)

func TestRegisterBuiltins(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, RegisterBuiltins(registry))
	assert.ElementsMatch(t, []string{TypeNoop, TypeSleep}, registry.Types())
	assert.Error(t, RegisterBuiltins(registry))
}

func TestNoopEchoesInputs(t *testing.T) {
	ass := assert.New(t)
	registry := NewRegistry()
	require.NoError(t, RegisterBuiltins(registry))
	j, err := registry.NewJob(TypeNoop)
	require.NoError(t, err)

	ctx := newTestContext(persistence.TaskState{}, nil)
	ctx.Inputs = map[string]any{"accountId": "42"}
	ass.Nil(j.Execute(ctx))
	out, err := ctx.Output()
	ass.Nil(err)
	ass.JSONEq(`{"accountId":"42"}`, string(out))
}

func TestSleepValidation(t *testing.T) {
	ass := assert.New(t)
	j := &sleepJob{}
	ctx := newTestContext(persistence.TaskState{}, nil)
	ctx.Inputs = map[string]any{"seconds": -1}
	ass.True(IsRejected(j.Validate(ctx)))

	ctx.Inputs = map[string]any{"seconds": 0}
	ass.Nil(j.Validate(ctx))
	ass.Nil(j.Execute(ctx))
	out, err := ctx.Output()
	ass.Nil(err)
	ass.JSONEq(`{"slept":0}`, string(out))
}

func TestSleepKeepsProgressWhenLifetimeRunsOut(t *testing.T) {
	ass := assert.New(t)
	j := &sleepJob{}
	state := persistence.TaskState{Values: map[string]any{"slept": float64(2)}}
	ctx := newTestContext(state, &fixedLifetime{remaining: 100 * time.Millisecond})
	ctx.Inputs = map[string]any{"seconds": 5}
	require.NoError(t, j.Validate(ctx))

	err := j.Execute(ctx)
	ass.ErrorIs(err, ErrLifetimeExhausted)
	v, ok := ctx.StateValue("slept")
	ass.True(ok)
	ass.Equal(2, v)
}
