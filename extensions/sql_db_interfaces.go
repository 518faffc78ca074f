// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package extensions

import (
	"context"
	"database/sql"

	"github.com/xcherryio/xtask/config"
)

type SQLDBExtension interface {
	// StartDBSession starts the session for regular business logic
	StartDBSession(cfg *config.SQL) (SQLDBSession, error)
	// StartAdminDBSession starts the session for admin operation like DDL
	StartAdminDBSession(cfg *config.SQL) (SQLAdminDBSession, error)
}

type SQLDBSession interface {
	SQLCRUD
	ErrorChecker

	StartTransaction(ctx context.Context, opts *sql.TxOptions) (SQLTransaction, error)
	Close() error
}

type SQLTransaction interface {
	SQLCRUD
	Commit() error
	Rollback() error
}

type SQLAdminDBSession interface {
	CreateDatabase(ctx context.Context, database string) error
	DropDatabase(ctx context.Context, database string) error
	ExecuteSchemaDDL(ctx context.Context, ddlQuery string) error
	Close() error
}

// SQLCRUD is available both inside and outside of a transaction
type SQLCRUD interface {
	taskCRUD
	tokenCRUD
	workerCRUD
}

type taskCRUD interface {
	InsertTask(ctx context.Context, row TaskRow) (int64, error)
	// InsertStaticTask returns inserted=false when a row with the same static key exists
	InsertStaticTask(ctx context.Context, row TaskRow) (id int64, inserted bool, err error)
	SelectTask(ctx context.Context, id int64) (*TaskRow, error)
	SelectEligibleTasks(ctx context.Context, filter TaskSelectFilter) ([]TaskRow, error)
	ClaimTask(ctx context.Context, row TaskRowForClaim) (bool, error)
	CompleteTask(ctx context.Context, row TaskRowForCompletion) (bool, error)
	SelectOrphanedTasks(ctx context.Context, startedBeforeMs int64, limit int) ([]TaskRow, error)
	DeleteFinishedTasks(ctx context.Context, finishedBeforeMs int64) (int64, error)
	SelectTaskCounts(ctx context.Context, filter TaskIndexFilter) (TaskCountsRow, error)
	SelectTasksByIndex(ctx context.Context, filter TaskIndexFilter) ([]TaskRow, error)
}

type tokenCRUD interface {
	// LockToken inserts a locked token or takes over an unlocked or stale one
	LockToken(ctx context.Context, name, holder string, nowMs, staleBeforeMs int64) (bool, error)
	UnlockToken(ctx context.Context, name, holder string, nowMs int64) (bool, error)
	TouchToken(ctx context.Context, name, holder string, nowMs int64) (bool, error)
	SelectToken(ctx context.Context, name string) (*TokenRow, error)
	DeleteInactiveTokens(ctx context.Context, updatedBeforeMs int64) (int64, error)
}

type workerCRUD interface {
	InsertWorker(ctx context.Context, row WorkerRow) error
	// UpdateWorkerHeartbeat returns the enabled flag, sql.ErrNoRows when the row is gone
	UpdateWorkerHeartbeat(ctx context.Context, row WorkerRowForHeartbeat) (bool, error)
	SelectWorker(ctx context.Context, id string) (*WorkerRow, error)
	SelectWorkersByNode(ctx context.Context, node string) ([]WorkerRow, error)
	DisableWorker(ctx context.Context, id string) error
	DeleteWorker(ctx context.Context, id string) error
	SelectWorkerCounts(ctx context.Context) (WorkerCountsRow, error)
}

type ErrorChecker interface {
	IsDupEntryError(err error) bool
	IsNotFoundError(err error) bool
	IsTimeoutError(err error) bool
	IsThrottlingError(err error) bool
}
