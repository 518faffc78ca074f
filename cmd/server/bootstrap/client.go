// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/persistence"
)

const (
	FlagType      = "type"
	FlagAction    = "action"
	FlagName      = "name"
	FlagToken     = "token"
	FlagPriority  = "priority"
	FlagInputs    = "inputs"
	FlagIndex1    = "index1"
	FlagIndex2    = "index2"
	FlagFrequency = "frequency"
	FlagSchedule  = "schedule"
	FlagNode      = "node"
	FlagDelay     = "delay"
	FlagMaxTry    = "max-try"
	FlagLimit     = "limit"
)

// DescriptorFromFlags builds the submission of the enqueue command
func DescriptorFromFlags(c *cli.Context) (job.Descriptor, error) {
	d := job.Descriptor{
		Type:      c.String(FlagType),
		Action:    c.String(FlagAction),
		Name:      c.String(FlagName),
		Index1:    c.String(FlagIndex1),
		Index2:    c.String(FlagIndex2),
		Frequency: int32(c.Int(FlagFrequency)),
		Schedule:  c.String(FlagSchedule),
		Node:      c.String(FlagNode),
		MaxTry:    int32(c.Int(FlagMaxTry)),
	}
	if c.IsSet(FlagToken) {
		token := c.String(FlagToken)
		d.Token = &token
	}
	if c.IsSet(FlagPriority) {
		priority := int32(c.Int(FlagPriority))
		d.Priority = &priority
	}
	if raw := c.String(FlagInputs); raw != "" {
		if err := json.Unmarshal([]byte(raw), &d.Inputs); err != nil {
			return job.Descriptor{}, fmt.Errorf("--%v must be a JSON object: %w", FlagInputs, err)
		}
	}
	if delay := c.Duration(FlagDelay); delay > 0 {
		planned := time.Now().Add(delay)
		d.PlannedAt = &planned
	}
	return d, nil
}

// EnqueueCli submits one task and prints its id
func EnqueueCli(c *cli.Context, opts Options) error {
	d, err := DescriptorFromFlags(c)
	if err != nil {
		return err
	}
	rt := mustRuntime(c, opts, CliServiceName)
	defer closeRuntime(rt)

	resp, err := rt.Enqueuer.Enqueue(c.Context, d)
	if err != nil {
		return err
	}
	return printJson(c, resp)
}

// StatusCli prints the queue summary, or the tasks of an index when one is given
func StatusCli(c *cli.Context, opts Options) error {
	rt := mustRuntime(c, opts, CliServiceName)
	defer closeRuntime(rt)

	if c.String(FlagIndex1) == "" && c.String(FlagIndex2) == "" {
		summary, err := rt.Queue.GetSummary(c.Context)
		if err != nil {
			return err
		}
		return printJson(c, summary)
	}
	status, err := rt.Queue.GetStatus(c.Context, persistence.TaskIndexFilter{
		Index1: c.String(FlagIndex1),
		Index2: c.String(FlagIndex2),
		Limit:  c.Int(FlagLimit),
	})
	if err != nil {
		return err
	}
	return printJson(c, status)
}

func printJson(c *cli.Context, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}
