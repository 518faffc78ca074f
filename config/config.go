// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		// Log is the logging config
		Log Logger `yaml:"log"`

		// Database is the durable store shared by every node
		Database DatabaseConfig `yaml:"database"`

		// Task holds the retry and retention policy of tasks
		Task TaskConfig `yaml:"task"`

		// Worker is the config of the worker processes of this node
		Worker WorkerConfig `yaml:"worker"`

		// Supervisor is the config of the per-node supervisor process
		Supervisor SupervisorConfig `yaml:"supervisor"`

		// Token is the config of the named distributed locks
		Token TokenConfig `yaml:"token"`

		// Notifier wakes up idle workers when new tasks are enqueued
		Notifier NotifierConfig `yaml:"notifier"`

		// Metrics is the config of the OpenTelemetry counters
		Metrics MetricsConfig `yaml:"metrics"`

		// ApiService is the API service config
		ApiService ApiServiceConfig `yaml:"apiService"`
	}

	DatabaseConfig struct {
		// SQL is the SQL database config, the only supported store for now
		SQL *SQL `yaml:"sql"`
	}

	TaskConfig struct {
		// TryCount is the default number of attempts of a task before it is
		// marked permanently failed. Default 3.
		TryCount int32 `yaml:"tryCount"`
		// TryDelay is the delay before the first retry. Default 60 seconds.
		TryDelay time.Duration `yaml:"tryDelay"`
		// TryBackoffCoefficient multiplies the delay on every further retry.
		// Default 1, meaning a constant TryDelay.
		TryBackoffCoefficient float64 `yaml:"tryBackoffCoefficient"`
		// MaxTryDelay caps the retry delay. Default 1 hour.
		MaxTryDelay time.Duration `yaml:"maxTryDelay"`
		// MaxAge is how long finished tasks are kept before being purged. Default 7 days.
		MaxAge time.Duration `yaml:"maxAge"`
		// ErrorDelay is the hard deadline of a single execution. Default 1 hour.
		ErrorDelay time.Duration `yaml:"errorDelay"`
		// SelectPageSize is the number of candidates read per selection query. Default 20.
		SelectPageSize int `yaml:"selectPageSize"`
	}

	WorkerConfig struct {
		// Node is the name of this machine. Defaults to the hostname.
		Node string `yaml:"node"`
		// MaxWorkers is the number of worker processes kept alive on this node. Default 2.
		MaxWorkers int `yaml:"maxWorkers"`
		// MaxAge retires a worker process after running this long. Default 1 hour.
		MaxAge time.Duration `yaml:"maxAge"`
		// MaxTasks retires a worker process after executing this many tasks. Default 1000.
		MaxTasks int64 `yaml:"maxTasks"`
		// MaxMemoryMB retires a worker process once its heap exceeds this size. Default 256.
		MaxMemoryMB int64 `yaml:"maxMemoryMB"`
		// WatchdogDelay is the heartbeat timeout of a worker. Default 60 seconds.
		WatchdogDelay time.Duration `yaml:"watchdogDelay"`
		// MinPause is the first idle pause between polls. Default 500ms.
		MinPause time.Duration `yaml:"minPause"`
		// MaxPause caps the idle pause between polls. Default 10 seconds.
		MaxPause time.Duration `yaml:"maxPause"`
		// PauseStep is added to the pause after every idle poll. Default 500ms.
		PauseStep time.Duration `yaml:"pauseStep"`
		// Executable is the binary spawned for worker processes. Defaults to the running binary.
		Executable string `yaml:"executable"`
	}

	SupervisorConfig struct {
		// RefreshDelay is the pacing of supervision cycles. Default 10 seconds.
		RefreshDelay time.Duration `yaml:"refreshDelay"`
		// LeaseTTL is the TTL of the per-node supervisor lease. Default 30 seconds.
		LeaseTTL time.Duration `yaml:"leaseTTL"`
		// SpawnRate limits worker spawns per second. Default 2.
		SpawnRate float64 `yaml:"spawnRate"`
		// SpawnBurst is the burst of the spawn limiter. Default 1.
		SpawnBurst int `yaml:"spawnBurst"`
		// MaintenanceInterval paces purge/token cleanup/orphan recovery. Default 1 minute.
		MaintenanceInterval time.Duration `yaml:"maintenanceInterval"`
	}

	TokenConfig struct {
		// TTL is the age after which a locked token is considered abandoned. Default 600 seconds.
		TTL time.Duration `yaml:"ttl"`
		// DeleteTTL is the inactivity after which a token row is deleted. Default 24 hours.
		DeleteTTL time.Duration `yaml:"deleteTTL"`
	}

	NotifierConfig struct {
		// Type is one of none, postgres, pulsar. Default none.
		Type NotifierType `yaml:"type"`
		// Postgres uses LISTEN/NOTIFY on the task database
		Postgres PostgresNotifierConfig `yaml:"postgres"`
		// Pulsar publishes wakeups on a topic
		Pulsar PulsarNotifierConfig `yaml:"pulsar"`
	}

	PostgresNotifierConfig struct {
		// Channel is the LISTEN channel. Default xtask_tasks_updated.
		Channel string `yaml:"channel"`
		// MinReconnectInterval default 10 seconds
		MinReconnectInterval time.Duration `yaml:"minReconnectInterval"`
		// MaxReconnectInterval default 1 minute
		MaxReconnectInterval time.Duration `yaml:"maxReconnectInterval"`
	}

	PulsarNotifierConfig struct {
		// URL of the pulsar service, e.g. pulsar://localhost:6650
		URL string `yaml:"url"`
		// Topic default persistent://public/default/xtask-tasks
		Topic string `yaml:"topic"`
		// OperationTimeout default 30 seconds
		OperationTimeout time.Duration `yaml:"operationTimeout"`
	}

	MetricsConfig struct {
		// Enabled turns on the stdout exporter. Counters are no-ops otherwise.
		Enabled bool `yaml:"enabled"`
		// Interval is the export interval, default 1 minute
		Interval time.Duration `yaml:"interval"`
	}

	ApiServiceConfig struct {
		// HttpServer is the config for starting http.Server
		HttpServer HttpServerConfig `yaml:"httpServer"`
	}

	// HttpServerConfig is the config that will be mapped into http.Server
	HttpServerConfig struct {
		// Address optionally specifies the TCP address for the server to listen on,
		// in the form "host:port". If empty, ":http" (port 80) is used.
		Address string `yaml:"address"`
		// ReadTimeout is the maximum duration for reading the entire
		// request, including the body.
		ReadTimeout time.Duration `yaml:"readTimeout"`
		// WriteTimeout is the maximum duration before timing out
		// writes of the response.
		WriteTimeout time.Duration `yaml:"writeTimeout"`
		// TLSConfig optionally provides a TLS configuration for use
		// by ServeTLS and ListenAndServeTLS
		TLSConfig *tls.Config `yaml:"tlsConfig"`
		// the rest are less frequently used
		ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
		IdleTimeout       time.Duration `yaml:"idleTimeout"`
		MaxHeaderBytes    int           `yaml:"maxHeaderBytes"`
	}

	NotifierType string
)

const (
	NotifierTypeNone     NotifierType = "none"
	NotifierTypePostgres NotifierType = "postgres"
	NotifierTypePulsar   NotifierType = "pulsar"
)

// NewConfig returns a new decoded Config struct
func NewConfig(configPath string) (*Config, error) {
	log.Printf("Loading configFile=%v\n", configPath)

	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)

	if err := d.Decode(&config); err != nil {
		return nil, err
	}

	applyEnvOverrides(config)
	return config, nil
}

func (c *Config) ValidateAndSetDefaults() error {
	if c.Database.SQL == nil {
		return fmt.Errorf("sql config is required")
	}
	if err := c.Database.SQL.validate(); err != nil {
		return err
	}

	task := &c.Task
	if task.TryCount == 0 {
		task.TryCount = 3
	}
	if task.TryCount < 0 {
		return fmt.Errorf("task.tryCount must be positive")
	}
	if task.TryDelay == 0 {
		task.TryDelay = 60 * time.Second
	}
	if task.TryBackoffCoefficient == 0 {
		task.TryBackoffCoefficient = 1
	}
	if task.TryBackoffCoefficient < 1 {
		return fmt.Errorf("task.tryBackoffCoefficient must be at least 1")
	}
	if task.MaxTryDelay == 0 {
		task.MaxTryDelay = time.Hour
	}
	if task.MaxAge == 0 {
		task.MaxAge = 7 * 24 * time.Hour
	}
	if task.ErrorDelay == 0 {
		task.ErrorDelay = time.Hour
	}
	if task.SelectPageSize == 0 {
		task.SelectPageSize = 20
	}

	worker := &c.Worker
	if worker.Node == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("worker.node is not set and hostname is unavailable: %w", err)
		}
		worker.Node = hostname
	}
	if worker.MaxWorkers == 0 {
		worker.MaxWorkers = 2
	}
	if worker.MaxWorkers < 0 {
		return fmt.Errorf("worker.maxWorkers must be positive")
	}
	if worker.MaxAge == 0 {
		worker.MaxAge = time.Hour
	}
	if worker.MaxTasks == 0 {
		worker.MaxTasks = 1000
	}
	if worker.MaxMemoryMB == 0 {
		worker.MaxMemoryMB = 256
	}
	if worker.WatchdogDelay == 0 {
		worker.WatchdogDelay = 60 * time.Second
	}
	if worker.MinPause == 0 {
		worker.MinPause = 500 * time.Millisecond
	}
	if worker.MaxPause == 0 {
		worker.MaxPause = 10 * time.Second
	}
	if worker.PauseStep == 0 {
		worker.PauseStep = 500 * time.Millisecond
	}
	if worker.MaxPause < worker.MinPause {
		return fmt.Errorf("worker.maxPause must not be smaller than worker.minPause")
	}

	supervisor := &c.Supervisor
	if supervisor.RefreshDelay == 0 {
		supervisor.RefreshDelay = 10 * time.Second
	}
	if supervisor.LeaseTTL == 0 {
		supervisor.LeaseTTL = 30 * time.Second
	}
	if supervisor.LeaseTTL <= supervisor.RefreshDelay {
		return fmt.Errorf("supervisor.leaseTTL must be longer than supervisor.refreshDelay")
	}
	if supervisor.SpawnRate == 0 {
		supervisor.SpawnRate = 2
	}
	if supervisor.SpawnBurst == 0 {
		supervisor.SpawnBurst = 1
	}
	if supervisor.MaintenanceInterval == 0 {
		supervisor.MaintenanceInterval = time.Minute
	}

	token := &c.Token
	if token.TTL == 0 {
		token.TTL = 600 * time.Second
	}
	if token.DeleteTTL == 0 {
		token.DeleteTTL = 24 * time.Hour
	}
	if token.DeleteTTL <= token.TTL {
		return fmt.Errorf("token.deleteTTL must be longer than token.ttl")
	}

	notifier := &c.Notifier
	switch notifier.Type {
	case "":
		notifier.Type = NotifierTypeNone
	case NotifierTypeNone:
	case NotifierTypePostgres:
		if notifier.Postgres.Channel == "" {
			notifier.Postgres.Channel = "xtask_tasks_updated"
		}
		if notifier.Postgres.MinReconnectInterval == 0 {
			notifier.Postgres.MinReconnectInterval = 10 * time.Second
		}
		if notifier.Postgres.MaxReconnectInterval == 0 {
			notifier.Postgres.MaxReconnectInterval = time.Minute
		}
	case NotifierTypePulsar:
		if notifier.Pulsar.URL == "" {
			return fmt.Errorf("notifier.pulsar.url is required for pulsar notifier")
		}
		if notifier.Pulsar.Topic == "" {
			notifier.Pulsar.Topic = "persistent://public/default/xtask-tasks"
		}
		if notifier.Pulsar.OperationTimeout == 0 {
			notifier.Pulsar.OperationTimeout = 30 * time.Second
		}
	default:
		return fmt.Errorf("unsupported notifier type %v", notifier.Type)
	}

	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = time.Minute
	}
	return nil
}

func anyAbsent(strs ...string) bool {
	for _, s := range strs {
		if s == "" {
			return true
		}
	}
	return false
}

// String converts the config object into a string
func (c *Config) String() string {
	out, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		panic(err)
	}
	return string(out)
}
