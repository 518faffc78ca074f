// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"

	"github.com/xcherryio/xtask/extensions"
	"github.com/xcherryio/xtask/persistence"
)

func (p sqlStoreImpl) RegisterWorker(ctx context.Context, worker persistence.Worker) error {
	return p.session.InsertWorker(ctx, workerToRow(worker))
}

func (p sqlStoreImpl) HeartbeatWorker(ctx context.Context, heartbeat persistence.WorkerHeartbeat) (bool, error) {
	enabled, err := p.session.UpdateWorkerHeartbeat(ctx, extensions.WorkerRowForHeartbeat{
		Id:          heartbeat.Id,
		LastSeenMs:  heartbeat.NowMs,
		Running:     heartbeat.TaskId != nil,
		TaskId:      heartbeat.TaskId,
		TaskCount:   heartbeat.TaskCount,
		MemoryBytes: heartbeat.MemoryBytes,
	})
	if err != nil {
		return false, p.notFound(err)
	}
	return enabled, nil
}

func (p sqlStoreImpl) GetWorker(ctx context.Context, id string) (*persistence.Worker, error) {
	row, err := p.session.SelectWorker(ctx, id)
	if err != nil {
		return nil, p.notFound(err)
	}
	worker := rowToWorker(*row)
	return &worker, nil
}

func (p sqlStoreImpl) ListWorkers(ctx context.Context, node string) ([]persistence.Worker, error) {
	rows, err := p.session.SelectWorkersByNode(ctx, node)
	if err != nil {
		return nil, err
	}
	workers := make([]persistence.Worker, 0, len(rows))
	for _, row := range rows {
		workers = append(workers, rowToWorker(row))
	}
	return workers, nil
}

func (p sqlStoreImpl) DisableWorker(ctx context.Context, id string) error {
	return p.session.DisableWorker(ctx, id)
}

func (p sqlStoreImpl) DeleteWorker(ctx context.Context, id string) error {
	return p.session.DeleteWorker(ctx, id)
}

func (p sqlStoreImpl) GetWorkerCounts(ctx context.Context) (persistence.WorkerCounts, error) {
	row, err := p.session.SelectWorkerCounts(ctx)
	if err != nil {
		return persistence.WorkerCounts{}, err
	}
	return persistence.WorkerCounts{
		Total:       row.Total,
		Running:     row.Running,
		Sleeping:    row.Sleeping,
		Supervisors: row.Supervisors,
	}, nil
}
