// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
)

// TaskNotifier is to notify the idle workers that there are new tasks so
// that they poll right away instead of waiting for the end of their pause.
// The notification is "best effort": a lost notification only delays the
// pickup until the next poll.
type TaskNotifier interface {
	NotifyNewTask(ctx context.Context) error
}

// Launcher starts and stops the worker processes of the local node
type Launcher interface {
	Spawn(ctx context.Context, workerId string) (pid int, err error)
	Alive(pid int) bool
	Kill(pid int) error
}
