// Copyright (c) 2017 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package engine

import (
	"sync"
	"time"

	"github.com/xcherryio/xtask/common/clock"
	"github.com/xcherryio/xtask/common/log"
)

type (
	// TimerGate paces a polling loop. The loop waits on FireChan and schedules
	// its next wakeup with Update.
	TimerGate interface {
		// FireChan return the signals channel of firing timers
		// after receiving an empty signal, caller should call Update to set up next one
		FireChan() <-chan struct{}
		// Update sets the next wakeup, return true if it replaced a later or fired one
		Update(nextTime time.Time) bool
		// Clear cancels the pending wakeup and drops a signal nobody consumed
		Clear()
		// Close shutdown the TimerGate
		Close()
	}

	localTimerGateImpl struct {
		sync.Mutex
		// the channel which will be used to proxy the fired timer
		fireChan  chan struct{}
		closeChan chan struct{}
		closeOnce sync.Once

		timeSource clock.TimeSource

		// the actual timer which will fire
		timer *time.Timer
		// variable indicating when the above timer will fire, zero when idle
		nextWakeupTime time.Time
		logger         log.Logger
	}
)

// NewLocalTimerGate create a new timer gate. The time source is only used to
// turn wakeup times into durations.
func NewLocalTimerGate(timeSource clock.TimeSource, logger log.Logger) TimerGate {
	tg := &localTimerGateImpl{
		timer:      time.NewTimer(time.Hour),
		fireChan:   make(chan struct{}, 1),
		closeChan:  make(chan struct{}),
		timeSource: timeSource,
		logger:     logger,
	}
	// the timer should be stopped when initialized
	tg.timer.Stop()

	go func() {
		defer tg.timer.Stop()
		for {
			select {
			case <-tg.timer.C:
				tg.Lock()
				// zero means the wakeup was cleared while this one was in flight
				pending := !tg.nextWakeupTime.IsZero()
				tg.nextWakeupTime = time.Time{}
				tg.Unlock()
				if pending {
					tg.signal()
				}
			case <-tg.closeChan:
				return
			}
		}
	}()
	return tg
}

func (tg *localTimerGateImpl) FireChan() <-chan struct{} {
	return tg.fireChan
}

func (tg *localTimerGateImpl) Update(nextTime time.Time) bool {
	tg.Lock()
	defer tg.Unlock()

	if !tg.nextWakeupTime.IsZero() && !tg.nextWakeupTime.After(nextTime) {
		// an earlier wakeup is already pending
		return false
	}
	// NOTE: negative duration will make the timer fire immediately
	tg.timer.Stop()
	tg.nextWakeupTime = nextTime
	tg.timer.Reset(nextTime.Sub(tg.timeSource.Now()))
	return true
}

func (tg *localTimerGateImpl) Clear() {
	tg.Lock()
	defer tg.Unlock()

	tg.timer.Stop()
	tg.nextWakeupTime = time.Time{}
	select {
	case <-tg.fireChan:
	default:
	}
}

func (tg *localTimerGateImpl) signal() {
	select {
	case tg.fireChan <- struct{}{}:
	default:
		// the previous signal is not consumed yet, one is enough
		tg.logger.Debug("timer gate already has a pending signal")
	}
}

// Close shutdown the timer
func (tg *localTimerGateImpl) Close() {
	tg.closeOnce.Do(func() {
		close(tg.closeChan)
	})
}
