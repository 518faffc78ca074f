// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tests

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/extensions/sqlite"
	"github.com/xcherryio/xtask/persistence"
	"github.com/xcherryio/xtask/persistence/sql"
	"github.com/xcherryio/xtask/persistence/sql/sqltest"
)

func newStore(t *testing.T) persistence.Store {
	sqlConfig := config.SQL{
		DBExtensionName: sqlite.ExtensionName,
		DatabaseName:    fmt.Sprintf("file:test%v?mode=memory&cache=shared", time.Now().UnixNano()),
	}
	store, err := sql.NewSQLStore(sqlConfig, log.NewDevelopmentLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteTasks(t *testing.T) {
	ass := assert.New(t)
	store := newStore(t)
	sqltest.SQLTaskLifecycleTest(ass, store)
	sqltest.SQLTaskFailureTest(ass, store)
	sqltest.SQLTaskSelectionTest(ass, store)
	sqltest.SQLStaticTaskTest(ass, store)
	sqltest.SQLOrphanedTaskTest(ass, store)
}

func TestSQLiteTokens(t *testing.T) {
	ass := assert.New(t)
	store := newStore(t)
	sqltest.SQLTokenTest(ass, store)
	sqltest.SQLCompleteReleasesTokenTest(ass, store)
}

func TestSQLiteWorkers(t *testing.T) {
	sqltest.SQLWorkerTest(assert.New(t), newStore(t))
}

func TestSQLiteFileDatabase(t *testing.T) {
	ass := assert.New(t)
	path := t.TempDir() + "/xtask.db"
	cfg := config.SQL{DBExtensionName: sqlite.ExtensionName, DatabaseName: path}

	store, err := sql.NewSQLStore(cfg, log.NewDevelopmentLogger())
	ass.Nil(err)
	sqltest.SQLTokenTest(ass, store)
	ass.Nil(store.Close())

	// reopening applies the schema again without error
	store, err = sql.NewSQLStore(cfg, log.NewDevelopmentLogger())
	ass.Nil(err)
	ass.Nil(store.Close())
}
