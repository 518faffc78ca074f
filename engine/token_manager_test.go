// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenExclusivity(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	ok, err := env.tokens.TryAcquire(ctx, "X", "holder-a", 5*time.Second)
	ass.Nil(err)
	ass.True(ok)
	ok, err = env.tokens.TryAcquire(ctx, "X", "holder-b", 5*time.Second)
	ass.Nil(err)
	ass.False(ok)

	// only the owner releases
	released, err := env.tokens.Release(ctx, "X", "holder-b")
	ass.Nil(err)
	ass.False(released)
	released, err = env.tokens.Release(ctx, "X", "holder-a")
	ass.Nil(err)
	ass.True(released)

	ok, err = env.tokens.TryAcquire(ctx, "X", "holder-b", 5*time.Second)
	ass.Nil(err)
	ass.True(ok)
}

func TestTokenConcurrentAcquire(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := env.tokens.TryAcquire(context.Background(), "shared", fmt.Sprintf("holder-%v", i), time.Minute)
			ass.Nil(err)
			if ok {
				winners.Add(1)
			}
		}(i)
	}
	wg.Wait()
	ass.Equal(int32(1), winners.Load())
}

func TestTokenStaleTakeover(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	ok, err := env.tokens.TryAcquire(ctx, "X", "holder-a", 5*time.Second)
	ass.Nil(err)
	ass.True(ok)

	env.ts.Advance(4 * time.Second)
	ok, err = env.tokens.TryAcquire(ctx, "X", "holder-b", 5*time.Second)
	ass.Nil(err)
	ass.False(ok)

	env.ts.Update(testStart.Add(6 * time.Second))
	ok, err = env.tokens.TryAcquire(ctx, "X", "holder-b", 5*time.Second)
	ass.Nil(err)
	ass.True(ok)

	// the previous holder lost it
	refreshed, err := env.tokens.Refresh(ctx, "X", "holder-a")
	ass.Nil(err)
	ass.False(refreshed)
	refreshed, err = env.tokens.Refresh(ctx, "X", "holder-b")
	ass.Nil(err)
	ass.True(refreshed)
}

func TestTokenRefreshKeepsLockAlive(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	ok, _ := env.tokens.TryAcquire(ctx, "X", "holder-a", 5*time.Second)
	ass.True(ok)
	env.ts.Advance(4 * time.Second)
	refreshed, err := env.tokens.Refresh(ctx, "X", "holder-a")
	ass.Nil(err)
	ass.True(refreshed)

	env.ts.Advance(4 * time.Second)
	ok, err = env.tokens.TryAcquire(ctx, "X", "holder-b", 5*time.Second)
	ass.Nil(err)
	ass.False(ok)
}

func TestTokenDeleteInactive(t *testing.T) {
	ass := assert.New(t)
	env := newTestEnv(t)
	ctx := context.Background()

	ok, _ := env.tokens.TryAcquire(ctx, "old", "holder-a", time.Minute)
	ass.True(ok)
	_, err := env.tokens.Release(ctx, "old", "holder-a")
	ass.Nil(err)

	env.ts.Advance(2 * time.Hour)
	ok, _ = env.tokens.TryAcquire(ctx, "recent", "holder-a", time.Minute)
	ass.True(ok)

	deleted, err := env.tokens.DeleteInactive(ctx, time.Hour)
	ass.Nil(err)
	ass.Equal(int64(1), deleted)

	_, err = env.store.GetToken(ctx, "old")
	ass.NotNil(err)
	token, err := env.store.GetToken(ctx, "recent")
	ass.Nil(err)
	ass.True(token.Locked)
}
