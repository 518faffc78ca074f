// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xcherryio/xtask/common/clock"
)

// ErrTokenLost is returned when a refresh finds the token taken over
var ErrTokenLost = errors.New("token is no longer held by this execution")

// HeartbeatFunc tells the supervisor the worker is alive
type HeartbeatFunc func(ctx context.Context) error

type tokenLease struct {
	name   string
	holder string
	ttl    time.Duration
	expiry time.Time
}

// LifetimeTracker tracks the time left to one execution: until the job
// deadline, the token expiry and the watchdog expiry. The job deadline is
// hard, the other two move forward with Extend.
type LifetimeTracker struct {
	timeSource clock.TimeSource
	tokens     TokenManager
	heartbeat  HeartbeatFunc

	jobDeadline    time.Time
	token          *tokenLease
	watchdogDelay  time.Duration
	watchdogExpiry time.Time
}

func NewLifetimeTracker(
	timeSource clock.TimeSource, startedAt time.Time, errorDelay, watchdogDelay time.Duration,
	heartbeat HeartbeatFunc,
) *LifetimeTracker {
	now := timeSource.Now()
	return &LifetimeTracker{
		timeSource:     timeSource,
		heartbeat:      heartbeat,
		jobDeadline:    startedAt.Add(errorDelay),
		watchdogDelay:  watchdogDelay,
		watchdogExpiry: now.Add(watchdogDelay),
	}
}

// WithToken adds the token held by the execution, it expires ttl after acquiredAt
func (l *LifetimeTracker) WithToken(tokens TokenManager, name, holder string, ttl time.Duration, acquiredAt time.Time) *LifetimeTracker {
	l.tokens = tokens
	l.token = &tokenLease{name: name, holder: holder, ttl: ttl, expiry: acquiredAt.Add(ttl)}
	return l
}

func (l *LifetimeTracker) JobRemaining() time.Duration {
	return l.jobDeadline.Sub(l.timeSource.Now())
}

// TokenRemaining returns false when the execution holds no token
func (l *LifetimeTracker) TokenRemaining() (time.Duration, bool) {
	if l.token == nil {
		return 0, false
	}
	return l.token.expiry.Sub(l.timeSource.Now()), true
}

func (l *LifetimeTracker) WatchdogRemaining() time.Duration {
	return l.watchdogExpiry.Sub(l.timeSource.Now())
}

// Remaining is the minimum of the three, negative once any of them expired
func (l *LifetimeTracker) Remaining() time.Duration {
	remaining := l.JobRemaining()
	if tr, ok := l.TokenRemaining(); ok && tr < remaining {
		remaining = tr
	}
	if wr := l.WatchdogRemaining(); wr < remaining {
		remaining = wr
	}
	return remaining
}

// Extend refreshes the token and the worker heartbeat
func (l *LifetimeTracker) Extend(ctx context.Context) error {
	now := l.timeSource.Now()
	if l.token != nil {
		held, err := l.tokens.Refresh(ctx, l.token.name, l.token.holder)
		if err != nil {
			return fmt.Errorf("refreshing token %v: %w", l.token.name, err)
		}
		if !held {
			l.token.expiry = now
			return ErrTokenLost
		}
		l.token.expiry = now.Add(l.token.ttl)
	}
	if l.heartbeat != nil {
		if err := l.heartbeat(ctx); err != nil {
			return fmt.Errorf("extending watchdog: %w", err)
		}
	}
	l.watchdogExpiry = now.Add(l.watchdogDelay)
	return nil
}
