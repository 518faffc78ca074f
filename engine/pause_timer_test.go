// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPauseTimerIdleBackoff(t *testing.T) {
	ass := assert.New(t)
	p := NewPauseTimer(500*time.Millisecond, 500*time.Millisecond, 3*time.Second)

	var pauses []time.Duration
	for i := 0; i < 10; i++ {
		pauses = append(pauses, p.Next())
	}
	ass.Equal(500*time.Millisecond, pauses[0])
	for i := 1; i < len(pauses); i++ {
		ass.GreaterOrEqual(pauses[i], pauses[i-1])
		ass.LessOrEqual(pauses[i], 3*time.Second)
	}
	ass.Equal(3*time.Second, pauses[9])

	p.Reset()
	ass.Equal(500*time.Millisecond, p.Current())
	ass.Equal(500*time.Millisecond, p.Next())
}

func TestPauseTimerMaxBelowMin(t *testing.T) {
	p := NewPauseTimer(time.Second, time.Second, time.Millisecond)
	assert.Equal(t, time.Second, p.Next())
	assert.Equal(t, time.Second, p.Next())
}
