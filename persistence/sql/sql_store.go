// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"
	"database/sql"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/extensions"
	"github.com/xcherryio/xtask/persistence"
)

var defaultTxOpts = &sql.TxOptions{}

type sqlStoreImpl struct {
	session extensions.SQLDBSession
	logger  log.Logger
}

var _ persistence.Store = (*sqlStoreImpl)(nil)

func NewSQLStore(sqlConfig config.SQL, logger log.Logger) (persistence.Store, error) {
	session, err := extensions.NewSQLSession(&sqlConfig)
	if err != nil {
		return nil, err
	}
	return &sqlStoreImpl{
		session: session,
		logger:  logger,
	}, nil
}

func (p sqlStoreImpl) Close() error {
	return p.session.Close()
}

// inTx runs fn in a transaction, committing on success and rolling back otherwise
func (p sqlStoreImpl) inTx(ctx context.Context, fn func(tx extensions.SQLTransaction) error) error {
	tx, err := p.session.StartTransaction(ctx, defaultTxOpts)
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		err2 := tx.Rollback()
		if err2 != nil {
			p.logger.Error("error on rollback transaction", tag.Error(err2))
		}
		return err
	}
	err = tx.Commit()
	if err != nil {
		p.logger.Error("error on committing transaction", tag.Error(err))
	}
	return err
}

func (p sqlStoreImpl) notFound(err error) error {
	if p.session.IsNotFoundError(err) {
		return persistence.ErrNotFound
	}
	return err
}
