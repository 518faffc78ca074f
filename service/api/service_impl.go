// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/engine"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/persistence"
)

const maxStatusLimit = 1000

type serviceImpl struct {
	enqueuer *engine.Enqueuer
	queue    engine.TaskQueue
	logger   log.Logger
}

func NewServiceImpl(enqueuer *engine.Enqueuer, queue engine.TaskQueue, logger log.Logger) Service {
	return &serviceImpl{
		enqueuer: enqueuer,
		queue:    queue,
		logger:   logger,
	}
}

func (s serviceImpl) Enqueue(
	ctx context.Context, request job.Descriptor,
) (*engine.EnqueueResponse, *ErrorWithStatus) {
	resp, err := s.enqueuer.Enqueue(ctx, request)
	if err != nil {
		var verr *job.ValidationError
		if errors.As(err, &verr) {
			return nil, NewErrorResponseWithStatus(http.StatusBadRequest, ApiErrorResponse{
				Detail: verr.Error(),
				Field:  verr.Field,
			})
		}
		return nil, s.handleUnknownError(err)
	}
	return &resp, nil
}

func (s serviceImpl) GetSummary(ctx context.Context) (*engine.Summary, *ErrorWithStatus) {
	summary, err := s.queue.GetSummary(ctx)
	if err != nil {
		return nil, s.handleUnknownError(err)
	}
	return &summary, nil
}

func (s serviceImpl) GetStatus(ctx context.Context, request TaskStatusRequest) (*engine.Status, *ErrorWithStatus) {
	if request.Limit < 0 || request.Limit > maxStatusLimit {
		return nil, NewErrorWithStatus(http.StatusBadRequest, "limit must be between 0 and 1000")
	}
	status, err := s.queue.GetStatus(ctx, persistence.TaskIndexFilter{
		Index1: request.Index1,
		Index2: request.Index2,
		Limit:  request.Limit,
	})
	if err != nil {
		return nil, s.handleUnknownError(err)
	}
	return &status, nil
}

func (s serviceImpl) GetTask(ctx context.Context, id int64) (*persistence.Task, *ErrorWithStatus) {
	task, err := s.queue.Get(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, NewErrorWithStatus(http.StatusNotFound, "Task does not exist")
		}
		return nil, s.handleUnknownError(err)
	}
	return task, nil
}

func (s serviceImpl) handleUnknownError(err error) *ErrorWithStatus {
	s.logger.Error("unknown error on operation", tag.Error(err))
	return NewErrorWithStatus(http.StatusInternalServerError, err.Error())
}
