// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"

	"github.com/xcherryio/xtask/engine"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/persistence"
)

type Server interface {
	// Start will start running on the background
	Start() error
	Stop(ctx context.Context) error
}

// Service is the interface of API service, which decoupled from REST server framework like Gin
// So that users can choose to use other REST frameworks to serve requests
type Service interface {
	Enqueue(ctx context.Context, request job.Descriptor) (*engine.EnqueueResponse, *ErrorWithStatus)
	GetSummary(ctx context.Context) (*engine.Summary, *ErrorWithStatus)
	GetStatus(ctx context.Context, request TaskStatusRequest) (*engine.Status, *ErrorWithStatus)
	GetTask(ctx context.Context, id int64) (*persistence.Task, *ErrorWithStatus)
}

type TaskStatusRequest struct {
	Index1 string `json:"index1"`
	Index2 string `json:"index2"`
	Limit  int    `json:"limit"`
}
