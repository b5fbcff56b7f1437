// internal/api/handlers.go
package api

import (
	"errors"
	"net/http"

	"github.com/Plotforge/MysteryWeaver/internal/config"
	apperrors "github.com/Plotforge/MysteryWeaver/internal/errors"
	"github.com/Plotforge/MysteryWeaver/internal/llm"
	"github.com/Plotforge/MysteryWeaver/internal/models"
	"github.com/Plotforge/MysteryWeaver/internal/services"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	RunService      *services.RunService      // 运行服务
	ProgressService *services.ProgressService // 进度跟踪服务
	LLMService      *services.LLMService      // LLM服务
	Response        *ResponseHelper           // 响应助手
}

// NewHandler 创建API处理器
func NewHandler(runService *services.RunService, progressService *services.ProgressService, llmService *services.LLMService) *Handler {
	return &Handler{
		RunService:      runService,
		ProgressService: progressService,
		LLMService:      llmService,
		Response:        NewResponseHelper(),
	}
}

// StartRun 启动一次故事生成运行
func (h *Handler) StartRun(c *gin.Context) {
	var request models.ProseRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.Response.BadRequest(c, "无法解析运行请求", err.Error())
		return
	}

	if len(request.CaseData) == 0 {
		h.Response.BadRequest(c, "缺少案件数据 case_data")
		return
	}

	run, err := h.RunService.StartRun(request)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeConflict) {
			h.Response.Conflict(c, err.Error())
			return
		}
		h.Response.InternalError(c, "启动运行失败", err.Error())
		return
	}

	h.Response.Accepted(c, gin.H{
		"run_id":     run.ID,
		"project_id": run.ProjectID,
		"status":     run.Status,
	})
}

// GetRun 查询运行状态，包含告警、成本与耗时计数
func (h *Handler) GetRun(c *gin.Context) {
	runID := c.Param("id")

	run, err := h.RunService.GetRun(runID)
	if err != nil {
		h.Response.NotFound(c, "运行不存在", err.Error())
		return
	}

	h.Response.Success(c, run)
}

// GetRunWarnings 查询运行的告警日志
func (h *Handler) GetRunWarnings(c *gin.Context) {
	runID := c.Param("id")

	run, err := h.RunService.GetRun(runID)
	if err != nil {
		h.Response.NotFound(c, "运行不存在", err.Error())
		return
	}

	h.Response.Success(c, gin.H{
		"run_id":   run.ID,
		"warnings": run.Warnings,
	})
}

// RepairRun 对已完成的运行显式执行修复阶段
func (h *Handler) RepairRun(c *gin.Context) {
	runID := c.Param("id")

	outcome, err := h.RunService.RepairRun(c.Request.Context(), runID)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			switch appErr.Type {
			case apperrors.ErrorTypeNotFound:
				h.Response.NotFound(c, appErr.Message)
				return
			case apperrors.ErrorTypeConflict:
				h.Response.Conflict(c, appErr.Message)
				return
			}
		}
		h.Response.InternalError(c, "修复重试失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{
		"attempted": outcome.Attempted,
		"adopted":   outcome.Adopted,
		"report":    outcome.Report,
	})
}

// llmSettingsRequest 更新LLM设置的请求体
type llmSettingsRequest struct {
	Provider string            `json:"provider" binding:"required"`
	Config   map[string]string `json:"config"`
}

// GetLLMSettings 查询LLM设置：当前提供商、就绪状态与已注册的提供商及其模型
func (h *Handler) GetLLMSettings(c *gin.Context) {
	providers := make(map[string][]string)
	for _, name := range llm.ListProviders() {
		providers[name] = llm.GetSupportedModelsForProvider(name)
	}

	h.Response.Success(c, gin.H{
		"provider":    h.LLMService.GetProviderName(),
		"ready":       h.LLMService.IsReady(),
		"ready_state": h.LLMService.GetReadyState(),
		"providers":   providers,
	})
}

// UpdateLLMSettings 切换LLM提供商并持久化配置
func (h *Handler) UpdateLLMSettings(c *gin.Context) {
	var request llmSettingsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.Response.BadRequest(c, "无法解析LLM设置", err.Error())
		return
	}

	if err := h.LLMService.UpdateProvider(request.Provider, request.Config); err != nil {
		h.Response.BadRequest(c, "切换LLM提供商失败", err.Error())
		return
	}

	if err := config.UpdateLLMConfig(request.Provider, request.Config); err != nil {
		h.Response.InternalError(c, "保存LLM配置失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{
		"provider":    h.LLMService.GetProviderName(),
		"ready_state": h.LLMService.GetReadyState(),
	})
}

// HealthCheck 健康检查端点
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
