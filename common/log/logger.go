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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/xcherryio/xtask/common/log/tag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// frames between the caller of Info/Warn/... and runtime.Caller in caller()
	callerSkip = 3
	// searchable placeholder for an empty message
	defaultMsgForEmpty = "none"
)

type loggerImpl struct {
	zapLogger *zap.Logger
}

func NewLogger(zapLogger *zap.Logger) Logger {
	return &loggerImpl{zapLogger: zapLogger}
}

// NewProcessLogger tags every entry with the process role and pid, so the
// output of a supervisor and its worker processes can be told apart when
// they share a journal or a log file.
func NewProcessLogger(zapLogger *zap.Logger, service string) Logger {
	return NewLogger(zapLogger).WithTags(tag.Service(service), tag.Pid(os.Getpid()))
}

// NewDevelopmentLogger returns a logger at debug level and log into STDERR
func NewDevelopmentLogger() Logger {
	zapLogger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return NewLogger(zapLogger)
}

// NewNoopLogger discards everything, used by tests and short-lived CLI commands
func NewNoopLogger() Logger {
	return NewLogger(zap.NewNop())
}

func (lg *loggerImpl) Debug(msg string, tags ...tag.Tag) {
	lg.write(zapcore.DebugLevel, msg, tags)
}

func (lg *loggerImpl) Info(msg string, tags ...tag.Tag) {
	lg.write(zapcore.InfoLevel, msg, tags)
}

func (lg *loggerImpl) Warn(msg string, tags ...tag.Tag) {
	lg.write(zapcore.WarnLevel, msg, tags)
}

func (lg *loggerImpl) Error(msg string, tags ...tag.Tag) {
	lg.write(zapcore.ErrorLevel, msg, tags)
}

func (lg *loggerImpl) Fatal(msg string, tags ...tag.Tag) {
	lg.write(zapcore.FatalLevel, msg, tags)
}

func (lg *loggerImpl) WithTags(tags ...tag.Tag) Logger {
	return &loggerImpl{zapLogger: lg.zapLogger.With(buildFields(tags)...)}
}

func (lg *loggerImpl) Sync() error {
	return lg.zapLogger.Sync()
}

// write skips building fields for disabled levels, poll loops log a lot at debug
func (lg *loggerImpl) write(level zapcore.Level, msg string, tags []tag.Tag) {
	if msg == "" {
		msg = defaultMsgForEmpty
	}
	ce := lg.zapLogger.Check(level, msg)
	if ce == nil {
		return
	}
	fields := buildFields(tags)
	fields = append(fields, zap.String(tag.LoggingCallAtKey, caller(callerSkip)))
	ce.Write(fields...)
}

func buildFields(tags []tag.Tag) []zap.Field {
	fs := make([]zap.Field, 0, len(tags)+1)
	for _, t := range tags {
		f := t.Field()
		if f.Key == "" {
			// ignore empty field(which can be constructed manually)
			continue
		}
		fs = append(fs, f)

		if obj, ok := f.Interface.(zapcore.ObjectMarshaler); ok && f.Type == zapcore.ErrorType {
			fs = append(fs, zap.Object(f.Key+"-details", obj))
		}
	}
	return fs
}

func caller(skip int) string {
	_, path, lineno, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%v:%v", filepath.Base(path), lineno)
}
