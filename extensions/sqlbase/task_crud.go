// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sqlbase

import (
	"context"
	"strings"

	"github.com/xcherryio/xtask/extensions"
)

const taskColumns = `id, name, job_type, action_name, inputs, output, state, priority, token, node,
	static, frequency, schedule, static_key, planned_at_ms, running, finished, failed, try, max_try,
	fault_step, fault_message, fault_trace, created_at_ms, created_by, started_at_ms, started_by,
	finished_at_ms, finished_by, execution_id, index1, index2, version`

const insertTaskQuery = `INSERT INTO xtask_tasks
	(name, job_type, action_name, inputs, output, state, priority, token, node, static, frequency, schedule,
	 static_key, planned_at_ms, running, finished, failed, try, max_try, created_at_ms, created_by, index1, index2, version) VALUES
	(:name, :job_type, :action_name, :inputs, :output, :state, :priority, :token, :node, :static, :frequency, :schedule,
	 :static_key, :planned_at_ms, false, false, false, 0, :max_try, :created_at_ms, :created_by, :index1, :index2, 1)`

func (c crud) InsertTask(ctx context.Context, row extensions.TaskRow) (int64, error) {
	id, _, err := c.namedReturningId(ctx, insertTaskQuery+` RETURNING id`, row)
	return id, err
}

func (c crud) InsertStaticTask(ctx context.Context, row extensions.TaskRow) (int64, bool, error) {
	return c.namedReturningId(ctx, insertTaskQuery+` ON CONFLICT (static_key) DO NOTHING RETURNING id`, row)
}

func (c crud) SelectTask(ctx context.Context, id int64) (*extensions.TaskRow, error) {
	var row extensions.TaskRow
	err := c.get(ctx, &row, `SELECT `+taskColumns+` FROM xtask_tasks WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

const selectEligibleTasksQuery = `SELECT ` + taskColumns + ` FROM xtask_tasks t
	WHERE t.finished = false AND t.running = false
	AND (t.planned_at_ms IS NULL OR t.planned_at_ms <= ?)
	AND (t.node IS NULL OR t.node = ?)
	AND (t.token IS NULL OR NOT EXISTS (
		SELECT 1 FROM xtask_tokens k WHERE k.name = t.token AND k.locked = true AND k.locked_at_ms >= ?))
	ORDER BY t.priority DESC, t.created_at_ms ASC, t.id ASC
	LIMIT ? OFFSET ?`

func (c crud) SelectEligibleTasks(ctx context.Context, filter extensions.TaskSelectFilter) ([]extensions.TaskRow, error) {
	var rows []extensions.TaskRow
	err := c.selectRows(ctx, &rows, selectEligibleTasksQuery,
		filter.NowMs, filter.Node, filter.TokenLockedAfterMs, filter.Limit, filter.Offset)
	return rows, err
}

const claimTaskQuery = `UPDATE xtask_tasks SET
	running = true,
	started_at_ms = :started_at_ms,
	started_by = :started_by,
	execution_id = :execution_id,
	version = version + 1
	WHERE id = :id AND version = :previous_version AND running = false AND finished = false`

func (c crud) ClaimTask(ctx context.Context, row extensions.TaskRowForClaim) (bool, error) {
	n, err := c.namedExecAffected(ctx, claimTaskQuery, row)
	return n == 1, err
}

const completeTaskQuery = `UPDATE xtask_tasks SET
	output = :output,
	state = :state,
	planned_at_ms = :planned_at_ms,
	running = :running,
	finished = :finished,
	failed = :failed,
	try = :try,
	fault_step = :fault_step,
	fault_message = :fault_message,
	fault_trace = :fault_trace,
	finished_at_ms = :finished_at_ms,
	finished_by = :finished_by,
	version = version + 1
	WHERE id = :id AND version = :previous_version AND execution_id = :execution_id`

func (c crud) CompleteTask(ctx context.Context, row extensions.TaskRowForCompletion) (bool, error) {
	n, err := c.namedExecAffected(ctx, completeTaskQuery, row)
	return n == 1, err
}

const selectOrphanedTasksQuery = `SELECT ` + taskColumns + ` FROM xtask_tasks t
	WHERE t.running = true AND t.started_at_ms < ?
	AND NOT EXISTS (SELECT 1 FROM xtask_workers w WHERE w.task_id = t.id)
	ORDER BY t.id ASC LIMIT ?`

func (c crud) SelectOrphanedTasks(ctx context.Context, startedBeforeMs int64, limit int) ([]extensions.TaskRow, error) {
	var rows []extensions.TaskRow
	err := c.selectRows(ctx, &rows, selectOrphanedTasksQuery, startedBeforeMs, limit)
	return rows, err
}

func (c crud) DeleteFinishedTasks(ctx context.Context, finishedBeforeMs int64) (int64, error) {
	return affected(c.exec(ctx,
		`DELETE FROM xtask_tasks WHERE finished = true AND static = false AND finished_at_ms < ?`, finishedBeforeMs))
}

const selectTaskCountsQuery = `SELECT COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN finished = false AND running = false THEN 1 ELSE 0 END), 0) AS waiting,
	COALESCE(SUM(CASE WHEN running = true THEN 1 ELSE 0 END), 0) AS running,
	COALESCE(SUM(CASE WHEN finished = true THEN 1 ELSE 0 END), 0) AS finished,
	COALESCE(SUM(CASE WHEN failed = true THEN 1 ELSE 0 END), 0) AS failed
	FROM xtask_tasks`

func (c crud) SelectTaskCounts(ctx context.Context, filter extensions.TaskIndexFilter) (extensions.TaskCountsRow, error) {
	var row extensions.TaskCountsRow
	where, args := indexWhere(filter)
	err := c.get(ctx, &row, selectTaskCountsQuery+where, args...)
	return row, err
}

func (c crud) SelectTasksByIndex(ctx context.Context, filter extensions.TaskIndexFilter) ([]extensions.TaskRow, error) {
	var rows []extensions.TaskRow
	where, args := indexWhere(filter)
	args = append(args, filter.Limit)
	err := c.selectRows(ctx, &rows, `SELECT `+taskColumns+` FROM xtask_tasks`+where+` ORDER BY id DESC LIMIT ?`, args...)
	return rows, err
}

// indexWhere builds the WHERE clause in Go, postgres cannot infer the type of "? IS NULL"
func indexWhere(filter extensions.TaskIndexFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if filter.Index1 != nil {
		conds = append(conds, "index1 = ?")
		args = append(args, *filter.Index1)
	}
	if filter.Index2 != nil {
		conds = append(conds, "index2 = ?")
		args = append(args, *filter.Index2)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
