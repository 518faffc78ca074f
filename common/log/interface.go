// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package log

import (
	"github.com/xcherryio/xtask/common/log/tag"
)

// Logger is the structured logging sink used by every xTask component.
// Usage:
//
//	logger = logger.WithTags(tag.WorkerId(workerId), tag.Node(node))
//	logger.Info("task picked up", tag.TaskId(task.Id), tag.JobType(task.JobType))
//
// Note: msg should be static. Anything dynamic should be tagged.
type Logger interface {
	Debug(msg string, tags ...tag.Tag)
	Info(msg string, tags ...tag.Tag)
	Warn(msg string, tags ...tag.Tag)
	Error(msg string, tags ...tag.Tag)
	Fatal(msg string, tags ...tag.Tag)
	WithTags(tags ...tag.Tag) Logger
	// Sync flushes buffered entries, call it before the process exits
	Sync() error
}
