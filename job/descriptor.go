// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Descriptor is a job submission
type Descriptor struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
	Name   string `json:"name,omitempty"`
	// Priority overrides the type default when set, higher runs first
	Priority *int32 `json:"priority,omitempty"`
	// Token is a template rendered from the inputs, e.g. "account-{accountId}".
	// Absent means the type default, if any.
	Token  *string        `json:"token,omitempty"`
	Index1 string         `json:"index1,omitempty"`
	Index2 string         `json:"index2,omitempty"`
	Inputs map[string]any `json:"inputs,omitempty"`
	// Frequency in minutes makes the task static
	Frequency int32 `json:"frequency,omitempty"`
	// Schedule is a cron expression making the task static
	Schedule  string     `json:"schedule,omitempty"`
	Node      string     `json:"node,omitempty"`
	PlannedAt *time.Time `json:"plannedAt,omitempty"`
	// MaxTry overrides task.tryCount when set
	MaxTry int32 `json:"maxTry,omitempty"`
}

// Resolved is a validated descriptor with the type defaults applied
type Resolved struct {
	Descriptor
	Definition Definition
	Priority   int32
	Token      string
	Static     bool
}

// Resolve validates the descriptor against the registry
func (d Descriptor) Resolve(registry *Registry) (*Resolved, error) {
	if strings.TrimSpace(d.Type) == "" {
		return nil, newValidationError("type", "is required")
	}
	def, ok := registry.Lookup(d.Type)
	if !ok {
		return nil, newValidationError("type", "%q is not registered", d.Type)
	}
	if d.Frequency < 0 {
		return nil, newValidationError("frequency", "must not be negative")
	}
	if d.MaxTry < 0 {
		return nil, newValidationError("maxTry", "must not be negative")
	}
	if d.Schedule != "" {
		if _, err := ParseSchedule(d.Schedule); err != nil {
			return nil, newValidationError("schedule", "%v", err)
		}
	}
	if def.Kind == KindService {
		if _, ok := def.Service.Methods[d.Action]; !ok {
			return nil, newValidationError("action", "%q is not a method of %v", d.Action, d.Type)
		}
	}

	template := def.Token
	if d.Token != nil {
		if strings.TrimSpace(*d.Token) == "" {
			return nil, newValidationError("token", "must not be empty when present")
		}
		template = *d.Token
	}
	token, err := RenderToken(template, d.Inputs)
	if err != nil {
		return nil, err
	}

	priority := def.Priority
	if d.Priority != nil {
		priority = *d.Priority
	}
	return &Resolved{
		Descriptor: d,
		Definition: def,
		Priority:   priority,
		Token:      token,
		Static:     d.Frequency > 0 || d.Schedule != "",
	}, nil
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)

// RenderToken replaces every {key} of the template by the input value
func RenderToken(template string, inputs map[string]any) (string, error) {
	var missing string
	rendered := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := inputs[key]
		if !ok || v == nil {
			if missing == "" {
				missing = key
			}
			return m
		}
		return fmt.Sprint(v)
	})
	if missing != "" {
		return "", newValidationError("token", "input %q required by template %q is missing", missing, template)
	}
	return rendered, nil
}
