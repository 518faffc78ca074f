// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xcherryio/xtask/common/clock"
	"github.com/xcherryio/xtask/common/log"
)

func TestTimerGateFires(t *testing.T) {
	gate := NewLocalTimerGate(clock.NewRealTimeSource(), log.NewNoopLogger())
	defer gate.Close()

	assert.True(t, gate.Update(time.Now().Add(20*time.Millisecond)))
	// a later wakeup does not replace the pending earlier one
	assert.False(t, gate.Update(time.Now().Add(time.Hour)))
	select {
	case <-gate.FireChan():
	case <-time.After(2 * time.Second):
		t.Fatal("gate did not fire")
	}
}

func TestTimerGateClearDropsStaleWakeups(t *testing.T) {
	ass := assert.New(t)
	gate := NewLocalTimerGate(clock.NewRealTimeSource(), log.NewNoopLogger())
	defer gate.Close()

	// fired while nobody was waiting, e.g. during a task run
	gate.Update(time.Now())
	time.Sleep(50 * time.Millisecond)
	gate.Clear()

	// pending but not yet fired, e.g. a pause interrupted by a notification
	gate.Update(time.Now().Add(30 * time.Millisecond))
	gate.Clear()

	start := time.Now()
	ass.True(gate.Update(time.Now().Add(200 * time.Millisecond)))
	select {
	case <-gate.FireChan():
		ass.GreaterOrEqual(time.Since(start), 150*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("gate did not fire")
	}
}
