// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

// Package job defines the user side of xTask: the lifecycle interface every
// job implements, the registry of job types and the submission descriptor.
package job

import (
	"fmt"
)

// Job is one execution of a task. A step fails by returning an error,
// Reject models a plain "false" result. Close is always called.
type Job interface {
	Validate(ctx *Context) error
	Prepare(ctx *Context) error
	Execute(ctx *Context) error
	Finalize(ctx *Context) error
	Close(ctx *Context) error
}

// Base implements every step as a no-op, embed it and override what is needed
type Base struct{}

func (Base) Validate(*Context) error { return nil }
func (Base) Prepare(*Context) error  { return nil }
func (Base) Execute(*Context) error  { return nil }
func (Base) Finalize(*Context) error { return nil }
func (Base) Close(*Context) error    { return nil }

// Factory creates a fresh Job for every execution
type Factory func() Job

// Step is a phase of the lifecycle
type Step string

const (
	StepResolve  Step = "resolve"
	StepValidate Step = "validate"
	StepPrepare  Step = "prepare"
	StepExecute  Step = "execute"
	StepFinalize Step = "finalize"
	StepClose    Step = "close"
	// StepRecover marks faults written for executions whose worker was lost
	StepRecover Step = "recover"
)

// Kind is the closed set of job categories
type Kind int

const (
	KindSimple Kind = iota
	KindStatic
	KindBatch
	KindService
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindStatic:
		return "static"
	case KindBatch:
		return "batch"
	case KindService:
		return "service"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}
