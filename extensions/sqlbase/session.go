// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

// Package sqlbase holds the CRUD shared by the SQL extensions. Queries are
// written with ? placeholders and rebound to the dialect of the driver, so an
// extension only contributes the connection, the error checker and the schema.
package sqlbase

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/xcherryio/xtask/extensions"
)

type dbSession struct {
	crud
	extensions.ErrorChecker
	db *sqlx.DB
}

type dbTx struct {
	crud
	tx *sqlx.Tx
}

var _ extensions.SQLDBSession = (*dbSession)(nil)
var _ extensions.SQLTransaction = (*dbTx)(nil)

// NewDBSession wraps db, which must already carry the strcase.ToSnake mapper
func NewDBSession(db *sqlx.DB, checker extensions.ErrorChecker) extensions.SQLDBSession {
	return &dbSession{
		crud:         crud{q: db},
		ErrorChecker: checker,
		db:           db,
	}
}

func (d *dbSession) StartTransaction(ctx context.Context, opts *sql.TxOptions) (extensions.SQLTransaction, error) {
	tx, err := d.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &dbTx{
		crud: crud{q: tx},
		tx:   tx,
	}, nil
}

func (d *dbSession) Close() error {
	return d.db.Close()
}

func (d *dbTx) Commit() error {
	return d.tx.Commit()
}

func (d *dbTx) Rollback() error {
	return d.tx.Rollback()
}

// crud runs against either the pool or a transaction
type crud struct {
	q sqlx.ExtContext
}

func (c crud) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.q.Rebind(query), args...)
}

func (c crud) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.GetContext(ctx, c.q, dest, c.q.Rebind(query), args...)
}

func (c crud) selectRows(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, c.q, dest, c.q.Rebind(query), args...)
}

// namedReturningId runs an INSERT ... RETURNING id with named parameters.
// found is false when the statement returned no row.
func (c crud) namedReturningId(ctx context.Context, query string, arg interface{}) (id int64, found bool, err error) {
	rows, err := sqlx.NamedQueryContext(ctx, c.q, query, arg)
	if err != nil {
		return 0, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, false, rows.Err()
	}
	if err := rows.Scan(&id); err != nil {
		return 0, false, err
	}
	return id, true, rows.Err()
}

func (c crud) namedExecAffected(ctx context.Context, query string, arg interface{}) (int64, error) {
	result, err := sqlx.NamedExecContext(ctx, c.q, query, arg)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func affected(result sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
