// Copyright (c) 2023 xCherryIO Organization
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xcherryio/xtask/common/log"
	"github.com/xcherryio/xtask/common/log/tag"
	"github.com/xcherryio/xtask/config"
)

const PathEnqueueTask = "/api/v1/xtask/tasks/enqueue"
const PathTaskStatus = "/api/v1/xtask/tasks/status"
const PathGetTask = "/api/v1/xtask/tasks/:id"
const PathSummary = "/api/v1/xtask/status"

type defaultSever struct {
	rootCtx    context.Context
	cfg        config.Config
	logger     log.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// NewGinRouter routes the API paths to svc
func NewGinRouter(svc Service, logger log.Logger) *gin.Engine {
	engine := gin.Default()

	handler := newGinHandler(svc, logger)

	engine.POST(PathEnqueueTask, handler.Enqueue)
	engine.POST(PathTaskStatus, handler.GetStatus)
	engine.GET(PathGetTask, handler.GetTask)
	engine.GET(PathSummary, handler.GetSummary)
	return engine
}

func NewDefaultAPIServerWithGin(
	rootCtx context.Context, cfg config.Config, svc Service, logger log.Logger,
) Server {
	engine := NewGinRouter(svc, logger)

	svrCfg := cfg.ApiService.HttpServer
	httpServer := &http.Server{
		Addr:              svrCfg.Address,
		ReadTimeout:       svrCfg.ReadTimeout,
		WriteTimeout:      svrCfg.WriteTimeout,
		ReadHeaderTimeout: svrCfg.ReadHeaderTimeout,
		IdleTimeout:       svrCfg.IdleTimeout,
		MaxHeaderBytes:    svrCfg.MaxHeaderBytes,
		TLSConfig:         svrCfg.TLSConfig,
		Handler:           engine,
		BaseContext: func(listener net.Listener) context.Context {
			// for graceful shutdown
			return rootCtx
		},
	}

	return &defaultSever{
		rootCtx:    rootCtx,
		cfg:        cfg,
		logger:     logger,
		engine:     engine,
		httpServer: httpServer,
	}
}

func (s defaultSever) Start() error {
	go func() {
		err := s.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.Info("Http Server for API service is closed")
			return
		}
		s.logger.Error("Http Server for API service failed", tag.Error(err))
	}()

	return nil
}

func (s defaultSever) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
