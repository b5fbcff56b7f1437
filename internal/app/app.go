// internal/app/app.go
package app

import (
	"fmt"
	"time"

	"github.com/Plotforge/MysteryWeaver/internal/config"
	"github.com/Plotforge/MysteryWeaver/internal/di"
	"github.com/Plotforge/MysteryWeaver/internal/services"
	"github.com/Plotforge/MysteryWeaver/internal/storage"
	"github.com/Plotforge/MysteryWeaver/internal/utils"
)

// InitServices 按依赖顺序初始化所有服务并注册到容器
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// LLM服务
	llmService, err := services.NewLLMService()
	if err != nil {
		return fmt.Errorf("初始化LLM服务失败: %w", err)
	}
	if !llmService.IsReady() {
		utils.GetLogger().Warn("llm service not ready", map[string]interface{}{
			"state": llmService.GetReadyState(),
		})
	}
	container.Register("llm", llmService)

	// 正文生成服务
	proseService := services.NewProseService(llmService)
	container.Register("prose", proseService)

	// 校验引擎客户端
	validationClient := services.NewHTTPValidationClient(cfg.ValidationEngineURL)
	container.Register("validation", validationClient)

	// 修复服务
	repairService := services.NewRepairService(proseService, validationClient)
	container.Register("repair", repairService)

	// 进度服务
	progressService := services.NewProgressService()
	container.Register("progress", progressService)

	// 运行存储
	runStore, err := storage.NewRunStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("初始化运行存储失败: %w", err)
	}
	container.Register("store", runStore)

	// 运行服务
	runService := services.NewRunService(proseService, validationClient, repairService, progressService, runStore)
	container.Register("run", runService)

	// 定期清理过期的进度追踪器
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			progressService.CleanupCompletedRuns(30 * time.Minute)
		}
	}()

	return nil
}
