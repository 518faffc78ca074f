// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/persistence"
)

const DefaultBatchPageSize = 50

// BatchHandler is the user side of a batch job. List is called once per
// batch, Process once per listed item across as many executions as needed.
// Implementations may also implement any of Validate, Prepare, Finalize, Close.
type BatchHandler interface {
	List(ctx *Context) ([]any, error)
	Process(ctx *Context, item json.RawMessage) error
}

type (
	validator interface{ Validate(ctx *Context) error }
	preparer  interface{ Prepare(ctx *Context) error }
	finalizer interface{ Finalize(ctx *Context) error }
	closer    interface{ Close(ctx *Context) error }
)

// batchJob runs a page of items per execution and keeps its progress in the state bag
type batchJob struct {
	handler  BatchHandler
	pageSize int
	// itemBudget is the time reserved for one item before the lifetime is checked
	itemBudget time.Duration
}

func newBatchJob(handler BatchHandler, pageSize int, itemBudget time.Duration) Job {
	if pageSize <= 0 {
		pageSize = DefaultBatchPageSize
	}
	return &batchJob{handler: handler, pageSize: pageSize, itemBudget: itemBudget}
}

func (b *batchJob) Validate(ctx *Context) error {
	if v, ok := b.handler.(validator); ok {
		return v.Validate(ctx)
	}
	return nil
}

func (b *batchJob) Prepare(ctx *Context) error {
	if p, ok := b.handler.(preparer); ok {
		return p.Prepare(ctx)
	}
	return nil
}

func (b *batchJob) Execute(ctx *Context) error {
	batch := ctx.State.Batch
	if batch == nil {
		batch = &persistence.BatchState{}
		ctx.State.Batch = batch
	}
	if batch.Done {
		return nil
	}

	if !batch.ListLoaded {
		items, err := b.handler.List(ctx)
		if err != nil {
			return fmt.Errorf("listing batch items: %w", err)
		}
		batch.Items = make([]json.RawMessage, 0, len(items))
		for _, item := range items {
			raw, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("batch item is not serializable: %w", err)
			}
			batch.Items = append(batch.Items, raw)
		}
		batch.ListLoaded = true
		batch.Cursor = 0
	}

	for processed := 0; processed < b.pageSize && batch.Cursor < len(batch.Items); processed++ {
		if err := ctx.Checkpoint(b.itemBudget); err != nil {
			if errors.Is(err, ErrLifetimeExhausted) {
				// the rest of the page runs in the next execution
				ctx.Logger.Info("batch paused on exhausted lifetime", tag.Count(int64(batch.Cursor)))
				return nil
			}
			return err
		}
		err := b.handler.Process(ctx, batch.Items[batch.Cursor])
		batch.Completed++
		if err != nil {
			batch.Failed++
			ctx.Logger.Warn("batch item failed", tag.Count(int64(batch.Cursor)), tag.Error(err))
		} else {
			batch.Succeeded++
		}
		batch.Cursor++
	}

	if batch.Cursor >= len(batch.Items) {
		batch.Done = true
		// processed items are not needed anymore, counts are kept
		batch.Items = nil
	}
	return nil
}

func (b *batchJob) Finalize(ctx *Context) error {
	if f, ok := b.handler.(finalizer); ok {
		return f.Finalize(ctx)
	}
	return nil
}

func (b *batchJob) Close(ctx *Context) error {
	if c, ok := b.handler.(closer); ok {
		return c.Close(ctx)
	}
	return nil
}

// BatchDone reports whether the batch of the state bag has processed every item.
// Non-batch states are always done.
func BatchDone(state *persistence.TaskState) bool {
	return state == nil || state.Batch == nil || state.Batch.Done
}
