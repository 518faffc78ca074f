// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package notifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/config"
)

func TestLocalNotifierFanout(t *testing.T) {
	ass := assert.New(t)
	n := NewLocalNotifier()
	first := n.Subscribe()
	second := n.Subscribe()

	ass.Nil(n.NotifyNewTask(context.Background()))
	// pending wakeups collapse into one
	ass.Nil(n.NotifyNewTask(context.Background()))

	for _, ch := range []<-chan struct{}{first, second} {
		select {
		case <-ch:
		default:
			t.Fatal("expected a wakeup")
		}
		select {
		case <-ch:
			t.Fatal("expected a single pending wakeup")
		default:
		}
	}

	ass.Nil(n.Close())
	_, open := <-first
	ass.False(open)
	_, open = <-n.Subscribe()
	ass.False(open)
	ass.Nil(n.Close())
}

func TestNewNotifier(t *testing.T) {
	ass := assert.New(t)
	logger := log.NewDevelopmentLogger()

	n, err := NewNotifier(config.Config{Notifier: config.NotifierConfig{Type: config.NotifierTypeNone}}, logger)
	ass.Nil(err)
	ass.IsType(&localNotifierImpl{}, n)

	_, err = NewNotifier(config.Config{Notifier: config.NotifierConfig{Type: "carrier-pigeon"}}, logger)
	ass.NotNil(err)

	// postgres notifications need a postgres store
	_, err = NewNotifier(config.Config{
		Database: config.DatabaseConfig{SQL: &config.SQL{DBExtensionName: config.ExtensionNameSQLite}},
		Notifier: config.NotifierConfig{Type: config.NotifierTypePostgres},
	}, logger)
	ass.ErrorContains(err, "postgres database")
}
