// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcherryio/xtask/common/clock"
	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/metrics"
	"github.com/xcherryio/xtask/config"
	"github.com/xcherryio/xtask/engine"
	"github.com/xcherryio/xtask/extensions/sqlite"
	"github.com/xcherryio/xtask/job"
	"github.com/xcherryio/xtask/persistence"
	"github.com/xcherryio/xtask/persistence/sql"
)

func newTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Config{
		Database: config.DatabaseConfig{SQL: &config.SQL{
			DBExtensionName: sqlite.ExtensionName,
			DatabaseName:    fmt.Sprintf("file:api%v?mode=memory&cache=shared", time.Now().UnixNano()),
		}},
		Worker: config.WorkerConfig{Node: "node-1"},
	}
	require.NoError(t, cfg.ValidateAndSetDefaults())

	logger := log.NewDevelopmentLogger()
	store, err := sql.NewSQLStore(*cfg.Database.SQL, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	registry := job.NewRegistry()
	require.NoError(t, registry.RegisterSimple("email.send", func() job.Job { return job.Base{} }))

	ts := clock.NewRealTimeSource()
	metricsClient := metrics.NewNoopClient()
	tokens := engine.NewTokenManager(store, ts, metricsClient, logger)
	queue := engine.NewTaskQueue(store, tokens, cfg, ts, metricsClient, logger)
	enqueuer := engine.NewEnqueuer(registry, queue, nil, logger)
	return NewGinRouter(NewServiceImpl(enqueuer, queue, logger), logger)
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestEnqueueAndInspect(t *testing.T) {
	ass := assert.New(t)
	router := newTestRouter(t)

	w := do(router, http.MethodPost, PathEnqueueTask,
		`{"type":"email.send","token":"mailbox-{user}","inputs":{"user":"u1"},"index1":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var enqueued engine.EnqueueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &enqueued))
	ass.Greater(enqueued.TaskId, int64(0))

	w = do(router, http.MethodGet, fmt.Sprintf("/api/v1/xtask/tasks/%v", enqueued.TaskId), "")
	require.Equal(t, http.StatusOK, w.Code)
	var task persistence.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
	ass.Equal("mailbox-u1", task.Token)
	ass.Equal("email.send", task.JobType)

	w = do(router, http.MethodGet, PathSummary, "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary engine.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	ass.Equal(int64(1), summary.Tasks.Total)
	ass.Equal(int64(1), summary.Tasks.Waiting)

	w = do(router, http.MethodPost, PathTaskStatus, `{"index1":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var status engine.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	ass.Equal(int64(1), status.Counts.Total)
	ass.Len(status.Tasks, 1)
}

func TestEnqueueValidationErrors(t *testing.T) {
	ass := assert.New(t)
	router := newTestRouter(t)

	w := do(router, http.MethodPost, PathEnqueueTask, `{"type":"sms.send"}`)
	ass.Equal(http.StatusBadRequest, w.Code)
	var errResp ApiErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	ass.Equal("type", errResp.Field)

	w = do(router, http.MethodPost, PathEnqueueTask, `{"type":"email.send","token":"{user}"}`)
	ass.Equal(http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, PathEnqueueTask, `not json`)
	ass.Equal(http.StatusBadRequest, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	ass.Equal("invalid request schema", errResp.Detail)

	w = do(router, http.MethodGet, PathSummary, "")
	var summary engine.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	ass.Equal(int64(0), summary.Tasks.Total)
}

func TestGetTaskErrors(t *testing.T) {
	ass := assert.New(t)
	router := newTestRouter(t)

	ass.Equal(http.StatusNotFound, do(router, http.MethodGet, "/api/v1/xtask/tasks/999", "").Code)
	ass.Equal(http.StatusBadRequest, do(router, http.MethodGet, "/api/v1/xtask/tasks/abc", "").Code)
	ass.Equal(http.StatusBadRequest, do(router, http.MethodPost, PathTaskStatus, `{"limit":5000}`).Code)
}
