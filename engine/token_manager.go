// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"time"

	"github.com/xcherryio/xtask/common/clock"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/common/metrics"
	"github.com/xcherryio/xtask/persistence"
)

// TokenManager is the durable named mutex. A lock older than the ttl of
// the acquirer is abandoned and can be taken over.
type TokenManager interface {
	TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	// Release is a no-op returning false when holder does not own the lock
	Release(ctx context.Context, name, holder string) (bool, error)
	// Refresh moves the lock time to now without changing the owner
	Refresh(ctx context.Context, name, holder string) (bool, error)
	// DeleteInactive removes the rows not used for deleteTTL
	DeleteInactive(ctx context.Context, deleteTTL time.Duration) (int64, error)
}

type tokenManagerImpl struct {
	store      persistence.TokenStore
	timeSource clock.TimeSource
	metrics    *metrics.Client
	logger     log.Logger
}

func NewTokenManager(
	store persistence.TokenStore, timeSource clock.TimeSource, metricsClient *metrics.Client, logger log.Logger,
) TokenManager {
	return &tokenManagerImpl{
		store:      store,
		timeSource: timeSource,
		metrics:    metricsClient,
		logger:     logger,
	}
}

func (t *tokenManagerImpl) TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := t.timeSource.Now()
	acquired, err := t.store.LockToken(ctx, persistence.LockTokenRequest{
		Name:          name,
		Holder:        holder,
		NowMs:         now.UnixMilli(),
		StaleBeforeMs: now.Add(-ttl).UnixMilli(),
	})
	if err != nil {
		return false, err
	}
	if !acquired {
		t.metrics.TokenContended(ctx)
		t.logger.Debug("token is held by another holder", tag.Token(name), tag.Holder(holder))
	}
	return acquired, nil
}

func (t *tokenManagerImpl) Release(ctx context.Context, name, holder string) (bool, error) {
	released, err := t.store.UnlockToken(ctx, name, holder, t.timeSource.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	if !released {
		t.logger.Warn("token was not released, not the owner", tag.Token(name), tag.Holder(holder))
	}
	return released, nil
}

func (t *tokenManagerImpl) Refresh(ctx context.Context, name, holder string) (bool, error) {
	return t.store.TouchToken(ctx, name, holder, t.timeSource.Now().UnixMilli())
}

func (t *tokenManagerImpl) DeleteInactive(ctx context.Context, deleteTTL time.Duration) (int64, error) {
	return t.store.DeleteInactiveTokens(ctx, t.timeSource.Now().Add(-deleteTTL).UnixMilli())
}
