// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/xcherryio/xtask/config"
)

const instrumentationName = "github.com/xcherryio/xtask"

const defaultExportInterval = time.Minute

type ShutdownFunc func(ctx context.Context) error

// Client records the scheduler counters
type Client struct {
	tasksStarted    metric.Int64Counter
	tasksSucceeded  metric.Int64Counter
	tasksFailed     metric.Int64Counter
	tasksYielded    metric.Int64Counter
	tokenContention metric.Int64Counter
	workersSpawned  metric.Int64Counter
	workersKilled   metric.Int64Counter
}

// NewNoopClient returns a client whose counters record nothing
func NewNoopClient() *Client {
	c, err := newClient(noop.NewMeterProvider().Meter(instrumentationName))
	if err != nil {
		// the noop meter never fails
		panic(err)
	}
	return c
}

// NewClient builds the meter provider described by cfg and registers it globally
func NewClient(cfg config.MetricsConfig) (*Client, ShutdownFunc, error) {
	if !cfg.Enabled {
		return NewNoopClient(), func(ctx context.Context) error { return nil }, nil
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultExportInterval
	}
	exporter, err := stdoutmetric.New()
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)

	c, err := newClient(provider.Meter(instrumentationName))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, nil, err
	}
	return c, provider.Shutdown, nil
}

func newClient(meter metric.Meter) (*Client, error) {
	c := &Client{}
	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&c.tasksStarted, "xtask.tasks.started", "task executions started"},
		{&c.tasksSucceeded, "xtask.tasks.succeeded", "task executions that succeeded"},
		{&c.tasksFailed, "xtask.tasks.failed", "task executions that failed"},
		{&c.tasksYielded, "xtask.tasks.yielded", "batch executions handed back to the queue"},
		{&c.tokenContention, "xtask.tokens.contention", "token acquisitions lost to another holder"},
		{&c.workersSpawned, "xtask.workers.spawned", "worker processes started by a supervisor"},
		{&c.workersKilled, "xtask.workers.killed", "worker processes stopped by a supervisor"},
	}
	for _, ct := range counters {
		counter, err := meter.Int64Counter(ct.name, metric.WithDescription(ct.description), metric.WithUnit("1"))
		if err != nil {
			return nil, err
		}
		*ct.target = counter
	}
	return c, nil
}

func jobTypeAttr(jobType string) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", jobType))
}

func (c *Client) TaskStarted(ctx context.Context, jobType string) {
	c.tasksStarted.Add(ctx, 1, jobTypeAttr(jobType))
}

func (c *Client) TaskSucceeded(ctx context.Context, jobType string) {
	c.tasksSucceeded.Add(ctx, 1, jobTypeAttr(jobType))
}

func (c *Client) TaskFailed(ctx context.Context, jobType string) {
	c.tasksFailed.Add(ctx, 1, jobTypeAttr(jobType))
}

func (c *Client) TaskYielded(ctx context.Context, jobType string) {
	c.tasksYielded.Add(ctx, 1, jobTypeAttr(jobType))
}

func (c *Client) TokenContended(ctx context.Context) {
	c.tokenContention.Add(ctx, 1)
}

func (c *Client) WorkerSpawned(ctx context.Context, node string) {
	c.workersSpawned.Add(ctx, 1, metric.WithAttributes(attribute.String("node", node)))
}

func (c *Client) WorkerKilled(ctx context.Context, node string, reason string) {
	c.workersKilled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("node", node), attribute.String("reason", reason)))
}
