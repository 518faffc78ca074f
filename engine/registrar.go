// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/persistence"
)

type (
	// StaticJob is one recurring job declared by a provider
	StaticJob struct {
		Type      string
		Action    string
		Token     string
		Frequency int32
		Schedule  string
		Inputs    map[string]any
		Priority  int32
		Node      string
	}

	// StaticProvider is asked for its recurring jobs on every registration
	StaticProvider interface {
		StaticJobs(ctx context.Context) ([]StaticJob, error)
	}

	StaticProviderFunc func(ctx context.Context) ([]StaticJob, error)

	// Registrar inserts the recurring jobs into the queue, once per derived key
	Registrar struct {
		registry  *job.Registry
		providers []StaticProvider
		queue     TaskQueue
		logger    log.Logger
	}
)

func (f StaticProviderFunc) StaticJobs(ctx context.Context) ([]StaticJob, error) {
	return f(ctx)
}

func NewRegistrar(registry *job.Registry, queue TaskQueue, logger log.Logger, providers ...StaticProvider) *Registrar {
	return &Registrar{
		registry:  registry,
		providers: providers,
		queue:     queue,
		logger:    logger,
	}
}

// Register inserts the static jobs not registered yet and returns how many were new
func (r *Registrar) Register(ctx context.Context) (int, error) {
	jobs, err := r.collect(ctx)
	if err != nil {
		return 0, err
	}
	inserted := 0
	for _, sj := range jobs {
		task, err := r.toTask(sj)
		if err != nil {
			r.logger.Error("skipping invalid static job", tag.JobType(sj.Type), tag.Error(err))
			continue
		}
		id, isNew, err := r.queue.InsertStatic(ctx, task)
		if err != nil {
			return inserted, fmt.Errorf("registering static job %v: %w", sj.Type, err)
		}
		if isNew {
			inserted++
			r.logger.Info("static job registered", tag.TaskId(id), tag.JobType(sj.Type), tag.Key(task.StaticKey))
		}
	}
	return inserted, nil
}

func (r *Registrar) collect(ctx context.Context) ([]StaticJob, error) {
	var jobs []StaticJob
	for _, def := range r.registry.Statics() {
		jobs = append(jobs, StaticJob{
			Type:      def.Type,
			Action:    def.Static.Action,
			Token:     def.Token,
			Frequency: def.Static.Frequency,
			Schedule:  def.Static.Schedule,
			Inputs:    def.Static.Inputs,
			Priority:  def.Priority,
			Node:      def.Static.Node,
		})
	}
	for _, p := range r.providers {
		provided, err := p.StaticJobs(ctx)
		if err != nil {
			return nil, fmt.Errorf("collecting static jobs: %w", err)
		}
		jobs = append(jobs, provided...)
	}
	return jobs, nil
}

func (r *Registrar) toTask(sj StaticJob) (persistence.Task, error) {
	if _, ok := r.registry.Lookup(sj.Type); !ok {
		return persistence.Task{}, fmt.Errorf("unknown job type %v", sj.Type)
	}
	if sj.Frequency <= 0 && sj.Schedule == "" {
		return persistence.Task{}, fmt.Errorf("static job needs a frequency or a schedule")
	}
	if sj.Schedule != "" {
		if _, err := job.ParseSchedule(sj.Schedule); err != nil {
			return persistence.Task{}, err
		}
	}
	token, err := job.RenderToken(sj.Token, sj.Inputs)
	if err != nil {
		return persistence.Task{}, err
	}
	// the key is built from the rendered token, like for enqueued static jobs
	keyed := sj
	keyed.Token = token
	key, err := StaticKey(keyed)
	if err != nil {
		return persistence.Task{}, err
	}
	return persistence.Task{
		Name:      sj.Type,
		JobType:   sj.Type,
		Action:    sj.Action,
		Inputs:    sj.Inputs,
		Priority:  sj.Priority,
		Token:     token,
		Node:      sj.Node,
		Static:    true,
		Frequency: sj.Frequency,
		Schedule:  sj.Schedule,
		StaticKey: key,
		CreatedBy: "registrar",
	}, nil
}

// StaticKey derives the dedup key of a recurring job. Inputs are encoded
// with sorted keys so equal maps give equal keys.
func StaticKey(sj StaticJob) (string, error) {
	inputs, err := json.Marshal(sj.Inputs)
	if err != nil {
		return "", fmt.Errorf("static job inputs are not serializable: %w", err)
	}
	parts := []string{
		sj.Type, sj.Action, sj.Token, strconv.Itoa(int(sj.Frequency)), sj.Schedule, sj.Node, string(inputs),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:]), nil
}
