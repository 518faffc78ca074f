// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"

	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/common/ptr"
	"github.com/xcherryio/xtask/extensions"
	"github.com/xcherryio/xtask/persistence"
)

func (p sqlStoreImpl) InsertTask(ctx context.Context, task persistence.Task) (int64, error) {
	row, err := taskToRow(task)
	if err != nil {
		return 0, err
	}
	return p.session.InsertTask(ctx, row)
}

func (p sqlStoreImpl) InsertStaticTask(ctx context.Context, task persistence.Task) (int64, bool, error) {
	row, err := taskToRow(task)
	if err != nil {
		return 0, false, err
	}
	id, inserted, err := p.session.InsertStaticTask(ctx, row)
	if err != nil && p.session.IsDupEntryError(err) {
		// lost a concurrent registration of the same key
		return 0, false, nil
	}
	return id, inserted, err
}

func (p sqlStoreImpl) GetTask(ctx context.Context, id int64) (*persistence.Task, error) {
	row, err := p.session.SelectTask(ctx, id)
	if err != nil {
		return nil, p.notFound(err)
	}
	task, err := rowToTask(*row)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (p sqlStoreImpl) ListEligibleTasks(
	ctx context.Context, request persistence.ListEligibleTasksRequest,
) ([]persistence.Task, error) {
	rows, err := p.session.SelectEligibleTasks(ctx, extensions.TaskSelectFilter{
		NowMs:              request.NowMs,
		Node:               request.Node,
		TokenLockedAfterMs: request.TokenStaleBeforeMs,
		Limit:              request.PageSize,
		Offset:             request.Offset,
	})
	if err != nil {
		return nil, err
	}
	return rowsToTasks(rows)
}

func (p sqlStoreImpl) ClaimTask(ctx context.Context, request persistence.ClaimTaskRequest) (bool, error) {
	return p.session.ClaimTask(ctx, extensions.TaskRowForClaim{
		Id:              request.TaskId,
		PreviousVersion: request.PreviousVersion,
		StartedAtMs:     request.NowMs,
		StartedBy:       request.WorkerId,
		ExecutionId:     request.ExecutionId,
	})
}

func (p sqlStoreImpl) CompleteTask(ctx context.Context, request persistence.CompleteTaskRequest) error {
	return p.inTx(ctx, func(tx extensions.SQLTransaction) error {
		return p.doCompleteTaskTx(ctx, tx, request)
	})
}

func (p sqlStoreImpl) doCompleteTaskTx(
	ctx context.Context, tx extensions.SQLTransaction, request persistence.CompleteTaskRequest,
) error {
	task := request.Task
	state, err := encodeState(task.State)
	if err != nil {
		return err
	}
	row := extensions.TaskRowForCompletion{
		Id:              task.Id,
		PreviousVersion: task.Version,
		ExecutionId:     task.ExecutionId,
		Output:          string(task.Output),
		State:           state,
		PlannedAtMs:     task.PlannedAtMs,
		Running:         task.Running,
		Finished:        task.Finished,
		Failed:          task.Failed,
		Try:             task.Try,
		FinishedAtMs:    task.FinishedAtMs,
		FinishedBy:      ptr.NonEmpty(task.FinishedBy),
	}
	if task.Fault != nil {
		row.FaultStep = ptr.NonEmpty(task.Fault.Step)
		row.FaultMessage = ptr.Any(task.Fault.Message)
		row.FaultTrace = ptr.NonEmpty(task.Fault.Trace)
	}
	ok, err := tx.CompleteTask(ctx, row)
	if err != nil {
		return err
	}
	if !ok {
		return persistence.ErrConflict
	}

	if task.Token != "" {
		released, err := tx.UnlockToken(ctx, task.Token, task.ExecutionId, request.NowMs)
		if err != nil {
			return err
		}
		if !released {
			// taken over after expiry, the new holder keeps it
			p.logger.Warn("token was no longer held on completion",
				tag.TaskId(task.Id), tag.Token(task.Token), tag.ExecutionId(task.ExecutionId))
		}
	}
	return nil
}

func (p sqlStoreImpl) ListOrphanedTasks(ctx context.Context, startedBeforeMs int64, limit int) ([]persistence.Task, error) {
	rows, err := p.session.SelectOrphanedTasks(ctx, startedBeforeMs, limit)
	if err != nil {
		return nil, err
	}
	return rowsToTasks(rows)
}

func (p sqlStoreImpl) PurgeFinishedTasks(ctx context.Context, finishedBeforeMs int64) (int64, error) {
	return p.session.DeleteFinishedTasks(ctx, finishedBeforeMs)
}

func (p sqlStoreImpl) GetTaskCounts(ctx context.Context, filter persistence.TaskIndexFilter) (persistence.TaskCounts, error) {
	row, err := p.session.SelectTaskCounts(ctx, toIndexFilter(filter))
	if err != nil {
		return persistence.TaskCounts{}, err
	}
	return persistence.TaskCounts{
		Total:    row.Total,
		Waiting:  row.Waiting,
		Running:  row.Running,
		Finished: row.Finished,
		Failed:   row.Failed,
	}, nil
}

func (p sqlStoreImpl) ListTasksByIndex(ctx context.Context, filter persistence.TaskIndexFilter) ([]persistence.Task, error) {
	rows, err := p.session.SelectTasksByIndex(ctx, toIndexFilter(filter))
	if err != nil {
		return nil, err
	}
	return rowsToTasks(rows)
}

func toIndexFilter(filter persistence.TaskIndexFilter) extensions.TaskIndexFilter {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	return extensions.TaskIndexFilter{
		Index1: ptr.NonEmpty(filter.Index1),
		Index2: ptr.NonEmpty(filter.Index2),
		Limit:  limit,
	}
}
