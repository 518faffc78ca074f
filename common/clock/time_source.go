// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

type (
	// TimeSource is the clock every scheduling decision reads from.
	// All nodes are assumed to run synchronized clocks.
	TimeSource interface {
		Now() time.Time
	}

	realTimeSource struct{}

	// FakeTimeSource is a manually driven clock for tests
	FakeTimeSource struct {
		sync.RWMutex
		now time.Time
	}
)

func NewRealTimeSource() TimeSource {
	return realTimeSource{}
}

func (realTimeSource) Now() time.Time {
	return time.Now()
}

func NewFakeTimeSource(now time.Time) *FakeTimeSource {
	return &FakeTimeSource{now: now}
}

func (f *FakeTimeSource) Now() time.Time {
	f.RLock()
	defer f.RUnlock()
	return f.now
}

// Update moves the clock to now
func (f *FakeTimeSource) Update(now time.Time) {
	f.Lock()
	defer f.Unlock()
	f.now = now
}

// Advance moves the clock forward by d
func (f *FakeTimeSource) Advance(d time.Duration) {
	f.Lock()
	defer f.Unlock()
	f.now = f.now.Add(d)
}
