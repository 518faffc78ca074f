// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	EnvDatabasePassword = "XTASK_DB_PASSWORD"
	EnvDatabaseUser     = "XTASK_DB_USER"
	EnvDatabaseAddr     = "XTASK_DB_ADDR"
	EnvNode             = "XTASK_NODE"
	EnvMaxWorkers       = "XTASK_MAX_WORKERS"
)

// LoadEnv loads the given .env files into the process environment.
// With no files it loads ./.env when present.
// Variables already set in the environment win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if err != nil && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(files...)
}

func applyEnvOverrides(c *Config) {
	if c.Database.SQL != nil {
		sql := c.Database.SQL
		if v := os.Getenv(EnvDatabasePassword); v != "" {
			sql.Password = v
		}
		if v := os.Getenv(EnvDatabaseUser); v != "" {
			sql.User = v
		}
		if v := os.Getenv(EnvDatabaseAddr); v != "" {
			sql.ConnectAddr = v
		}
	}
	if v := os.Getenv(EnvNode); v != "" {
		c.Worker.Node = v
	}
	if v := os.Getenv(EnvMaxWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Worker.MaxWorkers = n
		}
	}
}
