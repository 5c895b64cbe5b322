// Package web 提供 HTTP 接口层：分析查询、风险看板、运行记录与实时推送。
package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgerisk/config"
	"edgerisk/logger"
)

// WebServer Web服务器
type WebServer struct {
	server *http.Server
	cfg    *config.Config
}

// NewWebServer 创建Web服务器
func NewWebServer(cfg *config.Config) *WebServer {
	if !cfg.Web.Enabled {
		return nil
	}

	if cfg.System.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(GinLoggerMiddleware(cfg.System.LogLevel == "debug"))
	r.Use(I18nMiddleware())
	r.Use(CORSMiddleware(cfg.Web.AllowedOrigins))

	setupRoutes(r, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &WebServer{server: server, cfg: cfg}
}

// setupRoutes 设置路由
func setupRoutes(r *gin.Engine, cfg *config.Config) {
	r.GET("/", getAppInfo)

	// Prometheus 抓取端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// pprof 性能分析端点
	pprofGroup := r.Group("/debug/pprof")
	{
		pprofGroup.GET("/", gin.WrapF(pprof.Index))
		pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
		pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
		pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
	}

	api := r.Group("/api")
	api.Use(RateLimitMiddleware(cfg.Web.RateLimitQPS, cfg.Web.RateLimitBurst))
	{
		// 认证路由（不需要登录）
		auth := api.Group("/auth")
		{
			auth.GET("/status", getAuthStatus)
			auth.POST("/password/set", setPassword)
			auth.POST("/password/verify", verifyPassword)
			auth.POST("/logout", logout)
		}

		api.GET("/version", getVersion)

		// 业务API，开启认证时需要登录
		protected := api.Group("")
		if cfg.Web.AuthEnabled {
			protected.Use(authMiddleware())
		}
		{
			protected.POST("/analyze", analyzeHandler)
			protected.GET("/dashboard", dashboardHandler)
			protected.GET("/report/export", exportReportHandler)
			protected.GET("/runs", runsHandler)
			protected.GET("/runs/:run_id", runDetailHandler)
			protected.GET("/system/status", systemStatusHandler)

			// 日志API
			protected.GET("/logs", getLogsHandler)
			protected.POST("/logs/clean", cleanLogsHandler)
			protected.POST("/logs/vacuum", vacuumLogsHandler)
		}
	}

	// WebSocket 路由
	r.GET("/api/ws", handleWebSocket)

	// 分析产物与执行记录
	r.Static("/static", cfg.Sandbox.OutputDir)
	r.Static("/transcripts", cfg.Sandbox.TranscriptDir)

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Status(http.StatusNotFound)
	})
}

// Start 启动Web服务器，context 取消时优雅关闭
func (ws *WebServer) Start(ctx context.Context) error {
	if ws == nil {
		return nil
	}

	go func() {
		logger.Info("🌐 Web服务器启动在 http://%s:%d", ws.cfg.Web.Host, ws.cfg.Web.Port)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("❌ Web服务器启动失败: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ws.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("❌ Web服务器关闭失败: %v", err)
		} else {
			logger.Info("✅ Web服务器已关闭")
		}
	}()

	return nil
}

// Stop 停止Web服务器
func (ws *WebServer) Stop() {
	if ws == nil || ws.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(ctx); err != nil {
		logger.Error("❌ Web服务器关闭失败: %v", err)
	}
}
