// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

// Package sqlite is the embedded store for single-node deployments. Every
// process opens the same database file. The schema is applied on open.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/jmoiron/sqlx"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/extensions"
	"github.com/xcherryio/xtask/extensions/sqlbase"
	_ "modernc.org/sqlite" // load the SQL driver for sqlite
)

const (
	ExtensionName = config.ExtensionNameSQLite

	driverName       = "sqlite"
	busyTimeoutMs    = 5000
	memoryModeMarker = "mode=memory"
)

//go:embed schema.sql
var Schema string

type extension struct{}

var _ extensions.SQLDBExtension = (*extension)(nil)

func init() {
	extensions.RegisterSQLDBExtension(ExtensionName, &extension{})
}

func (d *extension) StartDBSession(cfg *config.SQL) (extensions.SQLDBSession, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return sqlbase.NewDBSession(db, errorChecker{}), nil
}

func (d *extension) StartAdminDBSession(cfg *config.SQL) (extensions.SQLAdminDBSession, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return &adminDBSession{db: db, path: cfg.DatabaseName}, nil
}

func open(cfg *config.SQL) (*sqlx.DB, error) {
	path := strings.TrimSpace(cfg.DatabaseName)
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}
	inMemory := strings.Contains(path, memoryModeMarker) || path == ":memory:"
	if !inMemory && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	raw, err := sql.Open(driverName, path)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers, one connection per process avoids SQLITE_BUSY storms.
	// It also keeps an in-memory database alive for the lifetime of the session.
	raw.SetMaxOpenConns(1)
	raw.SetMaxIdleConns(1)
	raw.SetConnMaxLifetime(0)

	_, _ = raw.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs))
	if !inMemory {
		_, _ = raw.Exec("PRAGMA journal_mode = WAL")
		_, _ = raw.Exec("PRAGMA synchronous = NORMAL")
	}

	db := sqlx.NewDb(raw, driverName)
	db.MapperFunc(strcase.ToSnake)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
