// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"
)

// PauseTimer computes the idle pauses of a polling loop. Every idle poll
// grows the pause by step up to max, picking up work resets it to min.
type PauseTimer struct {
	min     time.Duration
	max     time.Duration
	step    time.Duration
	current time.Duration
}

func NewPauseTimer(min, step, max time.Duration) *PauseTimer {
	if max < min {
		max = min
	}
	return &PauseTimer{min: min, max: max, step: step, current: min}
}

// Next returns the pause to apply now and grows the following one
func (p *PauseTimer) Next() time.Duration {
	pause := p.current
	p.current += p.step
	if p.current > p.max {
		p.current = p.max
	}
	return pause
}

// Reset brings the pause back to the minimum
func (p *PauseTimer) Reset() {
	p.current = p.min
}

// Current is the pause the next call to Next returns
func (p *PauseTimer) Current() time.Duration {
	return p.current
}
