// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/persistence"
)

// Lifetime is the remaining time budget of one execution
type Lifetime interface {
	Remaining() time.Duration
	// Extend refreshes whatever can be refreshed, the job deadline never moves
	Extend(ctx context.Context) error
}

// Context is handed to every lifecycle step. It carries the task being
// executed and the state bag persisted between executions.
type Context struct {
	context.Context

	TaskId   int64
	Name     string
	Type     string
	Action   string
	Try      int32
	Inputs   map[string]any
	State    *persistence.TaskState
	Logger   log.Logger
	lifetime Lifetime

	output    any
	hasOutput bool
}

func NewContext(
	ctx context.Context, task persistence.Task, lifetime Lifetime, logger log.Logger,
) *Context {
	state := task.State
	inputs := task.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &Context{
		Context:  ctx,
		TaskId:   task.Id,
		Name:     task.Name,
		Type:     task.JobType,
		Action:   task.Action,
		Try:      task.Try,
		Inputs:   inputs,
		State:    &state,
		Logger:   logger,
		lifetime: lifetime,
	}
}

// Remaining is the minimum of the job deadline, the token expiry and the watchdog expiry
func (c *Context) Remaining() time.Duration {
	if c.lifetime == nil {
		return time.Duration(math.MaxInt64)
	}
	return c.lifetime.Remaining()
}

// Checkpoint is the cooperative cancellation point. It returns nil when at
// least need is left, extending the lifetime first if necessary, and
// ErrLifetimeExhausted otherwise.
func (c *Context) Checkpoint(need time.Duration) error {
	if err := c.Err(); err != nil {
		return err
	}
	if c.Remaining() >= need {
		return nil
	}
	if err := c.Extend(); err != nil {
		return err
	}
	if c.Remaining() >= need {
		return nil
	}
	return ErrLifetimeExhausted
}

// Extend refreshes the token lock and the worker heartbeat
func (c *Context) Extend() error {
	if c.lifetime == nil {
		return nil
	}
	return c.lifetime.Extend(c.Context)
}

func (c *Context) Input(key string) (any, bool) {
	v, ok := c.Inputs[key]
	return v, ok
}

func (c *Context) InputString(key string) string {
	v, ok := c.Inputs[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// DecodeInputs converts the inputs into v through their JSON form
func (c *Context) DecodeInputs(v any) error {
	bytes, err := json.Marshal(c.Inputs)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, v)
}

func (c *Context) StateValue(key string) (any, bool) {
	if c.State.Values == nil {
		return nil, false
	}
	v, ok := c.State.Values[key]
	return v, ok
}

func (c *Context) SetStateValue(key string, v any) {
	if c.State.Values == nil {
		c.State.Values = map[string]any{}
	}
	c.State.Values[key] = v
}

// SetOutput records the JSON output stored on the task
func (c *Context) SetOutput(v any) {
	c.output = v
	c.hasOutput = true
}

// Output returns the encoded output, nil when none was set
func (c *Context) Output() (json.RawMessage, error) {
	if !c.hasOutput {
		return nil, nil
	}
	bytes, err := json.Marshal(c.output)
	if err != nil {
		return nil, fmt.Errorf("output is not serializable: %w", err)
	}
	return bytes, nil
}
