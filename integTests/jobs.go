// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package integTests

import (
	"fmt"

	"github.com/xcherryio/xtask/job"
)

const (
	jobTypeFail    = "integ.fail"
	jobTypeCounter = "integ.counter"
)

func registerIntegJobs(registry *job.Registry) error {
	if err := registry.RegisterSimple(jobTypeFail, func() job.Job { return &failJob{} }); err != nil {
		return err
	}
	return registry.RegisterSimple(jobTypeCounter, func() job.Job { return &counterJob{} })
}

type failJob struct {
	job.Base
}

func (failJob) Execute(ctx *job.Context) error {
	return fmt.Errorf("failure number %v", ctx.Try+1)
}

// counterJob counts its executions in the task state and succeeds on the third
type counterJob struct {
	job.Base
}

func (counterJob) Execute(ctx *job.Context) error {
	runs := 0
	if v, ok := ctx.StateValue("runs"); ok {
		if f, ok := v.(float64); ok {
			runs = int(f)
		}
	}
	runs++
	ctx.SetStateValue("runs", runs)
	if runs < 3 {
		return fmt.Errorf("run %v is too early", runs)
	}
	ctx.SetOutput(map[string]int{"runs": runs})
	return nil
}
