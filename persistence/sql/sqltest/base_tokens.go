// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sqltest

import (
	"context"

	"github.com/stretchr/testify/assert"
	"github.com/xcherryio/xtask/common/ptr"
	"github.com/xcherryio/xtask/persistence"
)

func SQLTokenTest(ass *assert.Assertions, store persistence.Store) {
	ctx := context.Background()
	name := uniqueName("token")
	ttlMs := int64(5000)

	lock := func(holder string, nowMs int64) bool {
		ok, err := store.LockToken(ctx, persistence.LockTokenRequest{
			Name: name, Holder: holder, NowMs: nowMs, StaleBeforeMs: nowMs - ttlMs,
		})
		ass.Nil(err)
		return ok
	}

	ass.True(lock("a", baseMs))
	ass.False(lock("b", baseMs+1000))

	token, err := store.GetToken(ctx, name)
	ass.Nil(err)
	ass.True(token.Locked)
	ass.Equal("a", token.LockedBy)

	// refresh moves the expiry forward
	touched, err := store.TouchToken(ctx, name, "a", baseMs+4000)
	ass.Nil(err)
	ass.True(touched)
	ass.False(lock("b", baseMs+6000))

	// takeover after expiry
	ass.True(lock("b", baseMs+9001))
	released, err := store.UnlockToken(ctx, name, "a", baseMs+9002)
	ass.Nil(err)
	ass.False(released)
	touched, err = store.TouchToken(ctx, name, "a", baseMs+9002)
	ass.Nil(err)
	ass.False(touched)

	released, err = store.UnlockToken(ctx, name, "b", baseMs+9003)
	ass.Nil(err)
	ass.True(released)
	ass.True(lock("c", baseMs+9004))
	_, err = store.UnlockToken(ctx, name, "c", baseMs+9005)
	ass.Nil(err)

	n, err := store.DeleteInactiveTokens(ctx, baseMs+9006)
	ass.Nil(err)
	ass.True(n >= 1)
	_, err = store.GetToken(ctx, name)
	ass.Equal(persistence.ErrNotFound, err)
}

func SQLCompleteReleasesTokenTest(ass *assert.Assertions, store persistence.Store) {
	ctx := context.Background()
	name := uniqueName("complete-token")

	task := newTestTask(uniqueName("tokened"), 0, baseMs)
	task.Token = name
	task = insertTask(ctx, ass, store, task)

	ok, err := store.LockToken(ctx, persistence.LockTokenRequest{
		Name: name, Holder: "exec-t", NowMs: baseMs, StaleBeforeMs: baseMs - 5000,
	})
	ass.Nil(err)
	ass.True(ok)

	claimed := claim(ctx, ass, store, task, "exec-t", baseMs)
	claimed.Running = false
	claimed.Finished = true
	claimed.FinishedAtMs = ptr.Any(baseMs + 1)
	ass.Nil(store.CompleteTask(ctx, persistence.CompleteTaskRequest{Task: claimed, NowMs: baseMs + 1}))

	token, err := store.GetToken(ctx, name)
	ass.Nil(err)
	ass.False(token.Locked)
	ass.Equal(baseMs+1, token.UpdatedAtMs)
}
