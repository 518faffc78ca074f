// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package persistence

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional update matched no row
	ErrConflict = errors.New("conflict on conditional update")
)
