// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type (
	// Definition describes one job type. The kind selects which of the
	// kind-specific fields are used.
	Definition struct {
		Type string
		Kind Kind
		// Priority is the default priority of submitted tasks
		Priority int32
		// Token is the default token template, e.g. "account-{accountId}"
		Token string

		// New creates the job of Simple and Static kinds
		New Factory
		// Static is required for the Static kind
		Static *StaticSpec
		// Batch is required for the Batch kind
		Batch *BatchSpec
		// Service is required for the Service kind
		Service *ServiceSpec
	}

	// StaticSpec is a recurring registration of a static job type
	StaticSpec struct {
		Action string
		// Frequency in minutes between two runs
		Frequency int32
		// Schedule is an optional cron expression replacing Frequency
		Schedule string
		Inputs   map[string]any
		// Node pins the static task to one node, empty for any
		Node string
	}

	BatchSpec struct {
		New      func() BatchHandler
		PageSize int
		// ItemBudget is the lifetime reserved for processing one item
		ItemBudget time.Duration
	}

	ServiceSpec struct {
		Name    string
		Methods map[string]ServiceMethod
	}
)

// Registry maps job type identifiers to definitions
type Registry struct {
	sync.RWMutex
	definitions map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{definitions: map[string]Definition{}}
}

func (r *Registry) Register(def Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.definitions[def.Type]; ok {
		return fmt.Errorf("job type %v is already registered", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// MustRegister is Register for package initialization
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

func (r *Registry) RegisterSimple(jobType string, factory Factory) error {
	return r.Register(Definition{Type: jobType, Kind: KindSimple, New: factory})
}

func (r *Registry) Lookup(jobType string) (Definition, bool) {
	r.RLock()
	defer r.RUnlock()
	def, ok := r.definitions[jobType]
	return def, ok
}

// NewJob instantiates the job of a task
func (r *Registry) NewJob(jobType string) (Job, error) {
	def, ok := r.Lookup(jobType)
	if !ok {
		return nil, fmt.Errorf("unknown job type %v", jobType)
	}
	return def.newJob(), nil
}

// Statics returns the static definitions sorted by type
func (r *Registry) Statics() []Definition {
	r.RLock()
	defer r.RUnlock()
	var defs []Definition
	for _, def := range r.definitions {
		if def.Kind == KindStatic {
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Type < defs[j].Type })
	return defs
}

func (r *Registry) Types() []string {
	r.RLock()
	defer r.RUnlock()
	types := make([]string, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (d Definition) validate() error {
	if d.Type == "" {
		return fmt.Errorf("job type is required")
	}
	switch d.Kind {
	case KindSimple:
		if d.New == nil {
			return fmt.Errorf("job type %v: factory is required", d.Type)
		}
	case KindStatic:
		if d.New == nil {
			return fmt.Errorf("job type %v: factory is required", d.Type)
		}
		if d.Static == nil {
			return fmt.Errorf("job type %v: StaticSpec is required", d.Type)
		}
		if d.Static.Schedule == "" && d.Static.Frequency <= 0 {
			return fmt.Errorf("job type %v: static jobs need a frequency or a schedule", d.Type)
		}
		if d.Static.Schedule != "" {
			if _, err := ParseSchedule(d.Static.Schedule); err != nil {
				return fmt.Errorf("job type %v: %w", d.Type, err)
			}
		}
	case KindBatch:
		if d.Batch == nil || d.Batch.New == nil {
			return fmt.Errorf("job type %v: batch handler is required", d.Type)
		}
	case KindService:
		if d.Service == nil || len(d.Service.Methods) == 0 {
			return fmt.Errorf("job type %v: service methods are required", d.Type)
		}
	default:
		return fmt.Errorf("job type %v: unknown kind %v", d.Type, d.Kind)
	}
	return nil
}

func (d Definition) newJob() Job {
	switch d.Kind {
	case KindBatch:
		return newBatchJob(d.Batch.New(), d.Batch.PageSize, d.Batch.ItemBudget)
	case KindService:
		name := d.Service.Name
		if name == "" {
			name = d.Type
		}
		return &serviceJob{service: name, methods: d.Service.Methods}
	default:
		return d.New()
	}
}
