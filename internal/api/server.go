package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/perpflow/perpflow-keeper/config"
	"github.com/perpflow/perpflow-keeper/pkg/logger"
)

// Server 查询/写入 HTTP 服务
// 读接口对外开放，写接口只应绑定本机或内网地址
type Server struct {
	read  *http.Server
	write *http.Server
}

// NewServer 创建 API 服务
func NewServer(cfg config.API) *Server {
	gin.SetMode(gin.ReleaseMode)

	readEngine := gin.New()
	readEngine.Use(gin.Recovery())
	setupReadRoutes(readEngine)

	writeEngine := gin.New()
	writeEngine.Use(gin.Recovery())
	setupWriteRoutes(writeEngine)

	return &Server{
		read: &http.Server{
			Addr:         cfg.ReadAddr,
			Handler:      readEngine,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		write: &http.Server{
			Addr:         cfg.WriteAddr,
			Handler:      writeEngine,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start 启动读写两个监听
func (s *Server) Start() {
	go func() {
		logger.Info().Str("addr", s.read.Addr).Msg("read API listening")
		if err := s.read.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("read API server exited")
		}
	}()
	go func() {
		logger.Info().Str("addr", s.write.Addr).Msg("write API listening")
		if err := s.write.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("write API server exited")
		}
	}()
}

// Stop 优雅关闭
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.read.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("read API shutdown failed")
	}
	if err := s.write.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("write API shutdown failed")
	}
}

func setupReadRoutes(r *gin.Engine) {
	r.GET("/trade/:id", handleGetTrade)
	r.GET("/trader/:address/ids", handleTraderIDs)
	r.GET("/match/entry", handleMatchEntry)
	r.GET("/match/exits", handleMatchExits)
}

func setupWriteRoutes(r *gin.Engine) {
	r.PUT("/trade/:id", handleUpsertTrade)
	r.PATCH("/trade/:id", handlePatchTrade)
	r.POST("/trades/batchUpsert", handleBatchUpsert)
	r.POST("/trades/batchPatchStates", handleBatchPatchStates)
	r.POST("/trades/batchPatchSLTP", handleBatchPatchSLTP)
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
