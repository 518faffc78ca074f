// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sqlbase

import (
	"context"

	"github.com/xcherryio/xtask/extensions"
)

const workerColumns = `id, node, pid, running, enabled, is_supervisor, started_at_ms, last_seen_ms, task_id, task_count, memory_bytes`

const insertWorkerQuery = `INSERT INTO xtask_workers (` + workerColumns + `) VALUES
	(:id, :node, :pid, :running, :enabled, :is_supervisor, :started_at_ms, :last_seen_ms, :task_id, :task_count, :memory_bytes)`

func (c crud) InsertWorker(ctx context.Context, row extensions.WorkerRow) error {
	_, err := c.namedExecAffected(ctx, insertWorkerQuery, row)
	return err
}

const updateWorkerHeartbeatQuery = `UPDATE xtask_workers SET
	last_seen_ms = ?, running = ?, task_id = ?, task_count = ?, memory_bytes = ?
	WHERE id = ? RETURNING enabled`

func (c crud) UpdateWorkerHeartbeat(ctx context.Context, row extensions.WorkerRowForHeartbeat) (bool, error) {
	var enabled bool
	err := c.q.QueryRowxContext(ctx, c.q.Rebind(updateWorkerHeartbeatQuery),
		row.LastSeenMs, row.Running, row.TaskId, row.TaskCount, row.MemoryBytes, row.Id).Scan(&enabled)
	return enabled, err
}

func (c crud) SelectWorker(ctx context.Context, id string) (*extensions.WorkerRow, error) {
	var row extensions.WorkerRow
	err := c.get(ctx, &row, `SELECT `+workerColumns+` FROM xtask_workers WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (c crud) SelectWorkersByNode(ctx context.Context, node string) ([]extensions.WorkerRow, error) {
	var rows []extensions.WorkerRow
	err := c.selectRows(ctx, &rows,
		`SELECT `+workerColumns+` FROM xtask_workers WHERE node = ? ORDER BY started_at_ms ASC, id ASC`, node)
	return rows, err
}

func (c crud) DisableWorker(ctx context.Context, id string) error {
	_, err := c.exec(ctx, `UPDATE xtask_workers SET enabled = false WHERE id = ?`, id)
	return err
}

func (c crud) DeleteWorker(ctx context.Context, id string) error {
	_, err := c.exec(ctx, `DELETE FROM xtask_workers WHERE id = ?`, id)
	return err
}

const selectWorkerCountsQuery = `SELECT
	COALESCE(SUM(CASE WHEN is_supervisor = false THEN 1 ELSE 0 END), 0) AS total,
	COALESCE(SUM(CASE WHEN is_supervisor = false AND running = true THEN 1 ELSE 0 END), 0) AS running,
	COALESCE(SUM(CASE WHEN is_supervisor = false AND running = false THEN 1 ELSE 0 END), 0) AS sleeping,
	COALESCE(SUM(CASE WHEN is_supervisor = true THEN 1 ELSE 0 END), 0) AS supervisors
	FROM xtask_workers`

func (c crud) SelectWorkerCounts(ctx context.Context) (extensions.WorkerCountsRow, error) {
	var row extensions.WorkerCountsRow
	err := c.get(ctx, &row, selectWorkerCountsQuery)
	return row, err
}
