// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// NewWorkerId returns the identity of a worker process row
func NewWorkerId() string {
	return uuid.NewString()
}

// NewExecutionId returns a time-ordered id for one execution of a task.
// It is also the holder id written into the token row.
func NewExecutionId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ParseUUID validates s and returns its canonical form
func ParseUUID(s string) (string, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID string %q: %w", s, err)
	}
	return parsed.String(), nil
}
