// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"time"
)

// ExtensionNameSQLite is the embedded single-node store, it needs no ConnectAddr
const ExtensionNameSQLite = "sqlite"

type (
	// SQL is the configuration for connecting to a SQL backed datastore
	SQL struct {
		// User is the username to be used for connecting to database
		User string `yaml:"user"`
		// Password is the password corresponding to the username
		Password string `yaml:"password" json:"-"`
		// DatabaseName is the name of SQL database to connect to.
		// For sqlite it is the path of the database file.
		DatabaseName string `yaml:"databaseName"`
		// ConnectAddr is the remote addr of the database
		ConnectAddr string `yaml:"connectAddr"`
		// DBExtensionName is the name of the extension
		DBExtensionName string `yaml:"dbExtensionName"`
		// MaxOpenConns is the max number of open connections, 0 means unlimited
		MaxOpenConns int `yaml:"maxOpenConns"`
		// MaxIdleConns is the max number of idle connections
		MaxIdleConns int `yaml:"maxIdleConns"`
		// ConnMaxLifetime is the max lifetime of a connection
		ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	}
)

func (s *SQL) validate() error {
	if s.DBExtensionName == ExtensionNameSQLite {
		if s.DatabaseName == "" {
			return fmt.Errorf("sql.databaseName is required as the sqlite file path")
		}
		return nil
	}
	if anyAbsent(s.DatabaseName, s.DBExtensionName, s.ConnectAddr, s.User) {
		return fmt.Errorf("some required configs are missing: sql.DatabaseName, sql.DBExtensionName, sql.ConnectAddr, sql.User")
	}
	return nil
}
