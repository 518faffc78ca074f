// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import "time"

// cleanupTimeout bounds the store calls made after the context is cancelled
const cleanupTimeout = 5 * time.Second

const orphanPageSize = 100

const supervisorLeasePrefix = "supervisor@"

// reasons a supervisor removes a worker
const (
	reasonDead    = "dead"
	reasonStale   = "stale"
	reasonRetired = "retired"
)
