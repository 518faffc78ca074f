// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package notifier

import (
	"context"
)

type localNotifierImpl struct {
	fanout
}

// NewLocalNotifier only reaches the subscribers of the same process
func NewLocalNotifier() Notifier {
	return &localNotifierImpl{}
}

func (l *localNotifierImpl) NotifyNewTask(ctx context.Context) error {
	l.broadcast()
	return nil
}

func (l *localNotifierImpl) Subscribe() <-chan struct{} {
	return l.subscribe()
}

func (l *localNotifierImpl) Close() error {
	l.close()
	return nil
}
