// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"fmt"
	"time"
)

const (
	// TypeNoop echoes its inputs as output
	TypeNoop = "xtask.noop"
	// TypeSleep waits for the "seconds" input, one checkpoint per second
	TypeSleep = "xtask.sleep"
)

// RegisterBuiltins adds the job types shipped with the server binary
func RegisterBuiltins(registry *Registry) error {
	if err := registry.RegisterSimple(TypeNoop, func() Job { return &noopJob{} }); err != nil {
		return err
	}
	return registry.RegisterSimple(TypeSleep, func() Job { return &sleepJob{} })
}

type noopJob struct {
	Base
}

func (noopJob) Execute(ctx *Context) error {
	ctx.SetOutput(ctx.Inputs)
	return nil
}

type sleepJob struct {
	Base
	seconds int
}

func (s *sleepJob) Validate(ctx *Context) error {
	var inputs struct {
		Seconds int `json:"seconds"`
	}
	if err := ctx.DecodeInputs(&inputs); err != nil {
		return err
	}
	if inputs.Seconds < 0 {
		return Reject("seconds must not be negative, got %v", inputs.Seconds)
	}
	s.seconds = inputs.Seconds
	return nil
}

func (s *sleepJob) Execute(ctx *Context) error {
	slept := 0
	if v, ok := ctx.StateValue("slept"); ok {
		if f, ok := v.(float64); ok {
			slept = int(f)
		}
	}
	for ; slept < s.seconds; slept++ {
		if err := ctx.Checkpoint(time.Second); err != nil {
			ctx.SetStateValue("slept", slept)
			return fmt.Errorf("slept %v of %v seconds: %w", slept, s.seconds, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	ctx.SetOutput(map[string]any{"slept": slept})
	return nil
}
