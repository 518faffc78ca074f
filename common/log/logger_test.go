// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package log

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xcherryio/xtask/common/log/tag"
)

func newObservedLogger(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLogger(zap.New(core)), logs
}

func TestLoggerWritesTags(t *testing.T) {
	ass := assert.New(t)
	logger, logs := newObservedLogger(zapcore.DebugLevel)

	logger.Info("task picked up", tag.TaskId(42), tag.Error(errors.New("boom")))
	logger.Warn("")

	entries := logs.AllUntimed()
	if ass.Len(entries, 2) {
		fields := entries[0].ContextMap()
		ass.Equal("task picked up", entries[0].Message)
		ass.Equal(int64(42), fields["taskId"])
		ass.Equal("boom", fields["error"])
		ass.True(strings.HasPrefix(fields[tag.LoggingCallAtKey].(string), "logger_test.go:"))

		ass.Equal(defaultMsgForEmpty, entries[1].Message)
	}
}

func TestLoggerSkipsDisabledLevels(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.InfoLevel)
	logger.Debug("polling", tag.WorkerId("w-1"))
	assert.Equal(t, 0, logs.Len())
}

func TestProcessLoggerTagsRoleAndPid(t *testing.T) {
	ass := assert.New(t)
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewProcessLogger(zap.New(core), "worker").WithTags(tag.WorkerId("w-1"))

	logger.Error("heartbeat failed")
	ass.Nil(logger.Sync())

	entries := logs.AllUntimed()
	if ass.Len(entries, 1) {
		fields := entries[0].ContextMap()
		ass.Equal("worker", fields["service"])
		ass.Equal(int64(os.Getpid()), fields["pid"])
		ass.Equal("w-1", fields["workerId"])
	}
}
