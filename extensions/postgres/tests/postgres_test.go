// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package tests

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/extensions"
	"github.com/xcherryio/xtask/extensions/postgres"
	"github.com/xcherryio/xtask/extensions/postgres/postgrestool"
	"github.com/xcherryio/xtask/persistence/sql"
	"github.com/xcherryio/xtask/persistence/sql/sqltest"
)

func TestPostgres(t *testing.T) {
	if os.Getenv("XTASK_POSTGRES_TEST") == "" {
		t.Skip("set XTASK_POSTGRES_TEST to run against a local postgres")
	}
	testDBName := fmt.Sprintf("test%v", time.Now().UnixNano())
	fmt.Println("using database name ", testDBName)

	sqlConfig := &config.SQL{
		ConnectAddr:     fmt.Sprintf("%v:%v", postgrestool.DefaultEndpoint, postgrestool.DefaultPort),
		User:            postgrestool.DefaultUserName,
		Password:        postgrestool.DefaultPassword,
		DBExtensionName: postgres.ExtensionName,
		DatabaseName:    testDBName,
	}
	ass := assert.New(t)

	err := extensions.CreateDatabase(*sqlConfig, testDBName)
	ass.Nil(err)

	err = extensions.SetupSchemaFromDDL(sqlConfig, postgres.Schema)
	ass.Nil(err)

	store, err := sql.NewSQLStore(*sqlConfig, log.NewDevelopmentLogger())
	ass.Nil(err)

	sqltest.SQLTaskLifecycleTest(ass, store)
	sqltest.SQLTaskFailureTest(ass, store)
	sqltest.SQLTaskSelectionTest(ass, store)
	sqltest.SQLStaticTaskTest(ass, store)
	sqltest.SQLOrphanedTaskTest(ass, store)
	sqltest.SQLTokenTest(ass, store)
	sqltest.SQLCompleteReleasesTokenTest(ass, store)
	sqltest.SQLWorkerTest(ass, store)

	_ = store.Close()
	_ = extensions.DropDatabase(*sqlConfig, testDBName)
	fmt.Println("testing database deleted")
}
