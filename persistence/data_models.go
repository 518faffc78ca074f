// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package persistence

import (
	"encoding/json"
)

type (
	// Task is a persisted unit of work. Empty strings stand for absent
	// nullable columns. Timestamps are unix milliseconds.
	Task struct {
		Id       int64           `json:"id"`
		Name     string          `json:"name"`
		JobType  string          `json:"jobType"`
		Action   string          `json:"action,omitempty"`
		Inputs   map[string]any  `json:"inputs"`
		Output   json.RawMessage `json:"output,omitempty"`
		State    TaskState       `json:"state"`
		Priority int32           `json:"priority"`
		Token    string          `json:"token,omitempty"`
		Node     string          `json:"node,omitempty"`

		Static    bool   `json:"static"`
		Frequency int32  `json:"frequency"`
		Schedule  string `json:"schedule,omitempty"`
		StaticKey string `json:"staticKey,omitempty"`

		PlannedAtMs *int64 `json:"plannedAtMs,omitempty"`
		Running     bool   `json:"running"`
		Finished    bool   `json:"finished"`
		Failed      bool   `json:"failed"`
		Try         int32  `json:"try"`
		MaxTry      int32  `json:"maxTry"`
		Fault       *Fault `json:"fault,omitempty"`

		CreatedAtMs  int64  `json:"createdAtMs"`
		CreatedBy    string `json:"createdBy,omitempty"`
		StartedAtMs  *int64 `json:"startedAtMs,omitempty"`
		StartedBy    string `json:"startedBy,omitempty"`
		FinishedAtMs *int64 `json:"finishedAtMs,omitempty"`
		FinishedBy   string `json:"finishedBy,omitempty"`
		ExecutionId  string `json:"executionId,omitempty"`

		Index1 string `json:"index1,omitempty"`
		Index2 string `json:"index2,omitempty"`

		Version int64 `json:"version"`
	}

	// Fault is the last failure of a task
	Fault struct {
		Step    string `json:"step"`
		Message string `json:"message"`
		Trace   string `json:"trace,omitempty"`
	}

	// TaskState is the bag persisted across executions of the same task
	TaskState struct {
		Values map[string]any `json:"values,omitempty"`
		Batch  *BatchState    `json:"batch,omitempty"`
	}

	// BatchState is the pagination progress of a batch job
	BatchState struct {
		Items      []json.RawMessage `json:"items,omitempty"`
		ListLoaded bool              `json:"listLoaded"`
		Cursor     int               `json:"cursor"`
		Completed  int64             `json:"completed"`
		Succeeded  int64             `json:"succeeded"`
		Failed     int64             `json:"failed"`
		Done       bool              `json:"done"`
	}

	ListEligibleTasksRequest struct {
		NowMs int64
		Node  string
		// TokenStaleBeforeMs is now minus the token TTL
		TokenStaleBeforeMs int64
		PageSize           int
		Offset             int
	}

	ClaimTaskRequest struct {
		TaskId          int64
		PreviousVersion int64
		NowMs           int64
		WorkerId        string
		ExecutionId     string
	}

	CompleteTaskRequest struct {
		// Task carries the new values, Version is the version written by the claim
		Task  Task
		NowMs int64
	}

	TaskIndexFilter struct {
		Index1 string
		Index2 string
		Limit  int
	}

	TaskCounts struct {
		Total    int64 `json:"total"`
		Waiting  int64 `json:"waiting"`
		Running  int64 `json:"running"`
		Finished int64 `json:"finished"`
		Failed   int64 `json:"failed"`
	}

	Token struct {
		Name        string
		Locked      bool
		LockedAtMs  int64
		LockedBy    string
		UpdatedAtMs int64
	}

	LockTokenRequest struct {
		Name          string
		Holder        string
		NowMs         int64
		StaleBeforeMs int64
	}

	Worker struct {
		Id           string
		Node         string
		Pid          int
		Running      bool
		Enabled      bool
		IsSupervisor bool
		StartedAtMs  int64
		LastSeenMs   int64
		TaskId       *int64
		TaskCount    int64
		MemoryBytes  int64
	}

	WorkerHeartbeat struct {
		Id          string
		NowMs       int64
		TaskId      *int64
		TaskCount   int64
		MemoryBytes int64
	}

	WorkerCounts struct {
		Total       int64 `json:"total"`
		Running     int64 `json:"running"`
		Sleeping    int64 `json:"sleeping"`
		Supervisors int64 `json:"supervisors"`
	}
)

func (t Task) Status() TaskStatus {
	switch {
	case t.Running:
		return TaskStatusRunning
	case t.Finished && t.Failed:
		return TaskStatusFailed
	case t.Finished:
		return TaskStatusSucceeded
	default:
		return TaskStatusWaiting
	}
}
