// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/xcherryio/xtask/extensions"
)

// adminDBSession maps databases onto files, a sqlite file is created on first open
type adminDBSession struct {
	db   *sqlx.DB
	path string
}

var _ extensions.SQLAdminDBSession = (*adminDBSession)(nil)

func (a *adminDBSession) CreateDatabase(ctx context.Context, database string) error {
	return nil
}

func (a *adminDBSession) DropDatabase(ctx context.Context, database string) error {
	err := os.Remove(database)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (a *adminDBSession) ExecuteSchemaDDL(ctx context.Context, ddlQuery string) error {
	_, err := a.db.ExecContext(ctx, ddlQuery)
	return err
}

func (a *adminDBSession) Close() error {
	return a.db.Close()
}
