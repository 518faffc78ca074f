// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/config"
)

// Notifier carries "new task" wakeups to idle workers. Delivery is best
// effort, workers keep polling on their own pace anyway.
type Notifier interface {
	NotifyNewTask(ctx context.Context) error
	// Subscribe returns a channel receiving at most one pending wakeup
	Subscribe() <-chan struct{}
	Close() error
}

// NewNotifier creates the notifier of the configured type
func NewNotifier(cfg config.Config, logger log.Logger) (Notifier, error) {
	switch cfg.Notifier.Type {
	case config.NotifierTypeNone, "":
		return NewLocalNotifier(), nil
	case config.NotifierTypePostgres:
		return NewPostgresNotifier(cfg.Database.SQL, cfg.Notifier.Postgres, logger)
	case config.NotifierTypePulsar:
		return NewPulsarNotifier(cfg.Notifier.Pulsar, logger)
	default:
		return nil, fmt.Errorf("unsupported notifier type %v", cfg.Notifier.Type)
	}
}

// fanout delivers wakeups to the local subscribers without ever blocking
type fanout struct {
	sync.Mutex
	subscribers []chan struct{}
	closed      bool
}

func (f *fanout) subscribe() <-chan struct{} {
	f.Lock()
	defer f.Unlock()
	ch := make(chan struct{}, 1)
	if f.closed {
		close(ch)
		return ch
	}
	f.subscribers = append(f.subscribers, ch)
	return ch
}

func (f *fanout) broadcast() {
	f.Lock()
	defer f.Unlock()
	for _, ch := range f.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// a wakeup is already pending
		}
	}
}

func (f *fanout) close() {
	f.Lock()
	defer f.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.subscribers {
		close(ch)
	}
	f.subscribers = nil
}
