// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package notifier

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/multierr"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/extensions/postgres"
)

type postgresNotifierImpl struct {
	fanout
	channel  string
	db       *sqlx.DB
	listener *pq.Listener
	stopCh   chan struct{}
	logger   log.Logger
}

// NewPostgresNotifier uses LISTEN/NOTIFY on the task database
func NewPostgresNotifier(sqlCfg *config.SQL, cfg config.PostgresNotifierConfig, logger log.Logger) (Notifier, error) {
	if sqlCfg == nil || sqlCfg.DBExtensionName != postgres.ExtensionName {
		return nil, fmt.Errorf("the postgres notifier needs a postgres database")
	}
	dsn, err := postgres.BuildDSN(sqlCfg)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	logger = logger.WithTags(tag.Key(cfg.Channel))
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("notification listener error", tag.Value(int(ev)), tag.Error(err))
		}
	}
	listener := pq.NewListener(dsn, cfg.MinReconnectInterval, cfg.MaxReconnectInterval, reportProblem)
	if err := listener.Listen(cfg.Channel); err != nil {
		return nil, multierr.Combine(err, listener.Close(), db.Close())
	}

	n := &postgresNotifierImpl{
		channel:  cfg.Channel,
		db:       db,
		listener: listener,
		stopCh:   make(chan struct{}),
		logger:   logger,
	}
	go n.receive()
	return n, nil
}

func (p *postgresNotifierImpl) NotifyNewTask(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, '')`, p.channel)
	return err
}

func (p *postgresNotifierImpl) Subscribe() <-chan struct{} {
	return p.subscribe()
}

func (p *postgresNotifierImpl) receive() {
	for {
		select {
		case _, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			// a nil notification follows a reconnection, tasks may have been missed
			p.broadcast()
		case <-p.stopCh:
			return
		}
	}
}

func (p *postgresNotifierImpl) Close() error {
	close(p.stopCh)
	p.close()
	return multierr.Combine(p.listener.Close(), p.db.Close())
}
