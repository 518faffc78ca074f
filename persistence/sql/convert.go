// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"encoding/json"
	"fmt"

	"github.com/xcherryio/xtask/common/ptr"
	"github.com/xcherryio/xtask/extensions"
	"github.com/xcherryio/xtask/persistence"
)

func taskToRow(task persistence.Task) (extensions.TaskRow, error) {
	inputs, err := encodeInputs(task.Inputs)
	if err != nil {
		return extensions.TaskRow{}, err
	}
	state, err := encodeState(task.State)
	if err != nil {
		return extensions.TaskRow{}, err
	}
	return extensions.TaskRow{
		Id:           task.Id,
		Name:         task.Name,
		JobType:      task.JobType,
		ActionName:   task.Action,
		Inputs:       inputs,
		Output:       string(task.Output),
		State:        state,
		Priority:     task.Priority,
		Token:        ptr.NonEmpty(task.Token),
		Node:         ptr.NonEmpty(task.Node),
		Static:       task.Static,
		Frequency:    task.Frequency,
		Schedule:     ptr.NonEmpty(task.Schedule),
		StaticKey:    ptr.NonEmpty(task.StaticKey),
		PlannedAtMs:  task.PlannedAtMs,
		Running:      task.Running,
		Finished:     task.Finished,
		Failed:       task.Failed,
		Try:          task.Try,
		MaxTry:       task.MaxTry,
		CreatedAtMs:  task.CreatedAtMs,
		CreatedBy:    task.CreatedBy,
		StartedAtMs:  task.StartedAtMs,
		StartedBy:    ptr.NonEmpty(task.StartedBy),
		FinishedAtMs: task.FinishedAtMs,
		FinishedBy:   ptr.NonEmpty(task.FinishedBy),
		ExecutionId:  ptr.NonEmpty(task.ExecutionId),
		Index1:       ptr.NonEmpty(task.Index1),
		Index2:       ptr.NonEmpty(task.Index2),
		Version:      task.Version,
	}, nil
}

func rowToTask(row extensions.TaskRow) (persistence.Task, error) {
	task := persistence.Task{
		Id:           row.Id,
		Name:         row.Name,
		JobType:      row.JobType,
		Action:       row.ActionName,
		Priority:     row.Priority,
		Token:        ptr.Deref(row.Token),
		Node:         ptr.Deref(row.Node),
		Static:       row.Static,
		Frequency:    row.Frequency,
		Schedule:     ptr.Deref(row.Schedule),
		StaticKey:    ptr.Deref(row.StaticKey),
		PlannedAtMs:  row.PlannedAtMs,
		Running:      row.Running,
		Finished:     row.Finished,
		Failed:       row.Failed,
		Try:          row.Try,
		MaxTry:       row.MaxTry,
		CreatedAtMs:  row.CreatedAtMs,
		CreatedBy:    row.CreatedBy,
		StartedAtMs:  row.StartedAtMs,
		StartedBy:    ptr.Deref(row.StartedBy),
		FinishedAtMs: row.FinishedAtMs,
		FinishedBy:   ptr.Deref(row.FinishedBy),
		ExecutionId:  ptr.Deref(row.ExecutionId),
		Index1:       ptr.Deref(row.Index1),
		Index2:       ptr.Deref(row.Index2),
		Version:      row.Version,
	}
	if row.Inputs != "" {
		if err := json.Unmarshal([]byte(row.Inputs), &task.Inputs); err != nil {
			return task, fmt.Errorf("corrupted inputs of task %v: %w", row.Id, err)
		}
	}
	if row.State != "" {
		if err := json.Unmarshal([]byte(row.State), &task.State); err != nil {
			return task, fmt.Errorf("corrupted state of task %v: %w", row.Id, err)
		}
	}
	if row.Output != "" {
		task.Output = json.RawMessage(row.Output)
	}
	if row.FaultStep != nil || row.FaultMessage != nil {
		task.Fault = &persistence.Fault{
			Step:    ptr.Deref(row.FaultStep),
			Message: ptr.Deref(row.FaultMessage),
			Trace:   ptr.Deref(row.FaultTrace),
		}
	}
	return task, nil
}

func rowsToTasks(rows []extensions.TaskRow) ([]persistence.Task, error) {
	tasks := make([]persistence.Task, 0, len(rows))
	for _, row := range rows {
		task, err := rowToTask(row)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func encodeInputs(inputs map[string]any) (string, error) {
	if inputs == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(inputs)
	if err != nil {
		return "", fmt.Errorf("inputs are not serializable: %w", err)
	}
	return string(bytes), nil
}

func encodeState(state persistence.TaskState) (string, error) {
	bytes, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("state is not serializable: %w", err)
	}
	return string(bytes), nil
}

func workerToRow(w persistence.Worker) extensions.WorkerRow {
	return extensions.WorkerRow{
		Id:           w.Id,
		Node:         w.Node,
		Pid:          int64(w.Pid),
		Running:      w.Running,
		Enabled:      w.Enabled,
		IsSupervisor: w.IsSupervisor,
		StartedAtMs:  w.StartedAtMs,
		LastSeenMs:   w.LastSeenMs,
		TaskId:       w.TaskId,
		TaskCount:    w.TaskCount,
		MemoryBytes:  w.MemoryBytes,
	}
}

func rowToWorker(row extensions.WorkerRow) persistence.Worker {
	return persistence.Worker{
		Id:           row.Id,
		Node:         row.Node,
		Pid:          int(row.Pid),
		Running:      row.Running,
		Enabled:      row.Enabled,
		IsSupervisor: row.IsSupervisor,
		StartedAtMs:  row.StartedAtMs,
		LastSeenMs:   row.LastSeenMs,
		TaskId:       row.TaskId,
		TaskCount:    row.TaskCount,
		MemoryBytes:  row.MemoryBytes,
	}
}
