// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package integTests

import "flag"

var useLocalServer = flag.Bool("useLocalServer", false,
	"run integ test against a local server started with the sqlite config, tasks must be executed by its workers")

var createServerWithPostgres = flag.Bool("createServerWithPostgres", false,
	"when not useLocalServer, create a server with postgres instead of an in-memory sqlite database")
