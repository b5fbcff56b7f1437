// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/Plotforge/MysteryWeaver/internal/config"
	"github.com/Plotforge/MysteryWeaver/internal/di"
	"github.com/Plotforge/MysteryWeaver/internal/services"
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	// 获取依赖注入容器
	container := di.GetContainer()

	// 只从容器获取服务，不再创建新实例
	runService, ok := container.Get("run").(*services.RunService)
	if !ok {
		return nil, fmt.Errorf("运行服务未正确初始化")
	}

	progressService, ok := container.Get("progress").(*services.ProgressService)
	if !ok {
		return nil, fmt.Errorf("进度服务未正确初始化")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("LLM服务未正确初始化")
	}

	handler := NewHandler(runService, progressService, llmService)

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// 启用CORS
	r.Use(corsMiddleware())

	r.GET("/health", handler.HealthCheck)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/runs", handler.StartRun)
		apiGroup.GET("/runs/:id", handler.GetRun)
		apiGroup.GET("/runs/:id/warnings", handler.GetRunWarnings)
		apiGroup.POST("/runs/:id/repair", handler.RepairRun)

		apiGroup.GET("/settings/llm", handler.GetLLMSettings)
		apiGroup.PUT("/settings/llm", handler.UpdateLLMSettings)
	}

	r.GET("/ws/runs/:id", handler.RunProgressWebSocket)

	return r, nil
}

// corsMiddleware 跨域中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
