// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package extensions

// Column names are derived with strcase.ToSnake, so struct fields follow the
// table columns. Fields whose snake form would split digits carry a db tag.
// All *Ms fields are unix milliseconds.

type (
	TaskRow struct {
		Id         int64
		Name       string
		JobType    string
		ActionName string
		// Inputs, Output and State are JSON text
		Inputs   string
		Output   string
		State    string
		Priority int32
		Token    *string
		Node     *string

		Static    bool
		Frequency int32
		Schedule  *string
		StaticKey *string

		PlannedAtMs *int64
		Running     bool
		Finished    bool
		Failed      bool
		Try         int32
		MaxTry      int32

		FaultStep    *string
		FaultMessage *string
		FaultTrace   *string

		CreatedAtMs  int64
		CreatedBy    string
		StartedAtMs  *int64
		StartedBy    *string
		FinishedAtMs *int64
		FinishedBy   *string
		ExecutionId  *string

		Index1 *string `db:"index1"`
		Index2 *string `db:"index2"`

		Version int64
	}

	// TaskRowForClaim flips a waiting task to running, conditioned on PreviousVersion
	TaskRowForClaim struct {
		Id              int64
		PreviousVersion int64
		StartedAtMs     int64
		StartedBy       string
		ExecutionId     string
	}

	// TaskRowForCompletion writes the outcome of an execution, conditioned on
	// PreviousVersion and the ExecutionId that claimed the task
	TaskRowForCompletion struct {
		Id              int64
		PreviousVersion int64
		ExecutionId     string

		Output       string
		State        string
		PlannedAtMs  *int64
		Running      bool
		Finished     bool
		Failed       bool
		Try          int32
		FaultStep    *string
		FaultMessage *string
		FaultTrace   *string
		FinishedAtMs *int64
		FinishedBy   *string
	}

	TaskSelectFilter struct {
		NowMs int64
		// Node restricts to tasks without node or pinned to this node
		Node string
		// TokenLockedAfterMs: a locked token whose locked_at_ms is older is acquirable
		TokenLockedAfterMs int64
		Limit              int
		Offset             int
	}

	TaskIndexFilter struct {
		Index1 *string
		Index2 *string
		Limit  int
	}

	TaskCountsRow struct {
		Total    int64
		Waiting  int64
		Running  int64
		Finished int64
		Failed   int64
	}

	WorkerRow struct {
		Id           string
		Node         string
		Pid          int64
		Running      bool
		Enabled      bool
		IsSupervisor bool
		StartedAtMs  int64
		LastSeenMs   int64
		TaskId       *int64
		TaskCount    int64
		MemoryBytes  int64
	}

	WorkerRowForHeartbeat struct {
		Id          string
		LastSeenMs  int64
		Running     bool
		TaskId      *int64
		TaskCount   int64
		MemoryBytes int64
	}

	WorkerCountsRow struct {
		Total       int64
		Running     int64
		Sleeping    int64
		Supervisors int64
	}

	TokenRow struct {
		Name        string
		Locked      bool
		LockedAtMs  int64
		LockedBy    string
		UpdatedAtMs int64
	}
)
