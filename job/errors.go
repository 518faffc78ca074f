// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"errors"
	"fmt"
)

// ErrLifetimeExhausted is returned by Context.Checkpoint when the execution
// has no time left for the next unit of work
var ErrLifetimeExhausted = errors.New("job lifetime exhausted")

// RejectError is a step that declined to continue without a fault
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return "rejected: " + e.Reason
}

// Reject returns the error a step uses to report a "false" result
func Reject(format string, args ...interface{}) error {
	return &RejectError{Reason: fmt.Sprintf(format, args...)}
}

func IsRejected(err error) bool {
	var re *RejectError
	return errors.As(err, &re)
}

// ValidationError is a malformed submission. It is never persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid job: " + e.Message
	}
	return fmt.Sprintf("invalid job: %v %v", e.Field, e.Message)
}

func newValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
