// Package api 组装 HTTP 路由
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/haeter525/quark-engine/internal/api/handlers"
	"github.com/haeter525/quark-engine/internal/config"
	"github.com/haeter525/quark-engine/internal/middleware"
	"github.com/haeter525/quark-engine/internal/service"
)

// SetupRouter 创建 gin 引擎并注册全部路由
func SetupRouter(cfg *config.Config, logger *logrus.Logger, svc *service.AnalysisService, hub *Hub, promMetrics *middleware.PrometheusMetrics) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(loggerMiddleware(logger))

	if promMetrics != nil {
		r.Use(promMetrics.HTTPMiddleware())
		r.GET("/metrics", promMetrics.Handler())
	}

	analysisHandler := handlers.NewAnalysisHandler(svc, logger)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if hub != nil {
		r.GET("/ws", hub.HandleWS)
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/analyses", analysisHandler.SubmitAnalysis)
		v1.GET("/analyses", analysisHandler.ListAnalyses)
		v1.GET("/analyses/:id", analysisHandler.GetAnalysis)
		v1.GET("/analyses/:id/permissions", analysisHandler.GetPermissions)
		v1.GET("/analyses/:id/methods", analysisHandler.GetMethods)
		v1.GET("/analyses/:id/strings", analysisHandler.GetStrings)
		v1.GET("/analyses/:id/method", analysisHandler.FindMethod)
		v1.GET("/analyses/:id/xrefs", analysisHandler.GetXrefs)
		v1.GET("/analyses/:id/bytecode", analysisHandler.GetBytecode)
		v1.POST("/analyses/:id/wrapper", analysisHandler.GetWrapperEvidence)
		v1.GET("/analyses/:id/hierarchy", analysisHandler.GetClassHierarchy)
	}

	return r
}

// loggerMiddleware 记录每个请求的方法、路径、状态与耗时
func loggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(startTime),
		}).Debug("Request handled")
	}
}
