// internal/services/run_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Plotforge/MysteryWeaver/internal/errors"
	"github.com/Plotforge/MysteryWeaver/internal/models"
	"github.com/Plotforge/MysteryWeaver/internal/storage"
	"github.com/Plotforge/MysteryWeaver/internal/utils"
	"github.com/google/uuid"
)

// RunService 管理故事生成运行的完整生命周期：
// 生成正文 → 校验 → 修复重试 → 落盘
type RunService struct {
	Generator       ProseGenerator
	Validator       ValidationPipeline
	RepairService   *RepairService
	ProgressService *ProgressService
	Store           *storage.RunStore

	// 内存中的活动运行；repairing 标记正在执行显式修复的运行
	runsMutex sync.RWMutex
	runs      map[string]*models.PipelineRun
	repairing map[string]bool
}

// NewRunService 创建运行服务
func NewRunService(
	generator ProseGenerator,
	validator ValidationPipeline,
	repairService *RepairService,
	progressService *ProgressService,
	store *storage.RunStore,
) *RunService {
	return &RunService{
		Generator:       generator,
		Validator:       validator,
		RepairService:   repairService,
		ProgressService: progressService,
		Store:           store,
		runs:            make(map[string]*models.PipelineRun),
		repairing:       make(map[string]bool),
	}
}

// StartRun 创建新的运行并异步执行
func (s *RunService) StartRun(request models.ProseRequest) (*models.PipelineRun, error) {
	if request.RunID == "" {
		request.RunID = uuid.NewString()
	}

	s.runsMutex.Lock()
	if _, exists := s.runs[request.RunID]; exists {
		s.runsMutex.Unlock()
		return nil, errors.NewConflictError(fmt.Sprintf("运行已存在: %s", request.RunID), nil)
	}

	run := models.NewPipelineRun(request.RunID, request.ProjectID)
	run.Request = &request
	s.runs[run.ID] = run
	s.runsMutex.Unlock()

	go s.execute(run, request)

	// 执行协程已持有记录本体，向调用方返回快照
	return run.Snapshot(), nil
}

// GetRun 获取运行记录的快照，优先查询内存中的活动运行
// 活动运行由执行协程持续更新，对外只提供深拷贝
func (s *RunService) GetRun(runID string) (*models.PipelineRun, error) {
	run, err := s.liveRun(runID)
	if err != nil {
		return nil, err
	}
	return run.Snapshot(), nil
}

// liveRun 返回内存中的活动记录本体，不在内存时从存储加载
func (s *RunService) liveRun(runID string) (*models.PipelineRun, error) {
	s.runsMutex.RLock()
	run, exists := s.runs[runID]
	s.runsMutex.RUnlock()

	if exists {
		return run, nil
	}

	stored, err := s.Store.LoadRun(runID)
	if err != nil {
		return nil, errors.NewNotFoundError(fmt.Sprintf("运行不存在: %s", runID), err)
	}
	return stored, nil
}

// execute 执行完整的生成与校验流程
func (s *RunService) execute(run *models.PipelineRun, request models.ProseRequest) {
	logger := utils.GetLogger()
	tracker := s.ProgressService.CreateTracker(run.ID)
	ctx := context.Background()

	run.SetStatus(models.RunRunning)

	// 生成正文
	tracker.ReportProgress("prose", "Generating story prose", 80)
	proseStart := time.Now()
	result, err := s.Generator.GenerateProse(ctx, request)
	if err != nil {
		s.failRun(run, tracker, "正文生成失败", err)
		return
	}

	prose := SanitizeProseResult(result)
	run.AddCost(models.AgentProse, result.Cost)
	run.AddDuration(models.AgentProse, time.Since(proseStart))

	// 校验故事结构
	tracker.ReportProgress("validation", "Validating story structure", 90)
	storyForValidation := prose.BuildStory(run.ID, run.ProjectID)

	validationStart := time.Now()
	validationReport, err := s.Validator.Validate(ctx, storyForValidation, request.CaseData)
	if err != nil {
		s.failRun(run, tracker, "故事校验失败", err)
		return
	}
	run.AddDuration(models.AgentValidation, time.Since(validationStart))

	// 修复尝试失败时原始正文与报告保持为当前版本
	run.AdoptOutcome(prose, validationReport, false)

	// 针对可修复缺口执行单次修复重试
	outcome, err := s.RepairService.RepairValidationGaps(ctx, run, request, prose, validationReport, tracker)
	if err != nil {
		s.failRun(run, tracker, "修复重试失败", err)
		return
	}

	// 正文与报告成对替换或成对保留
	run.AdoptOutcome(outcome.Prose, outcome.Report, outcome.Attempted)

	s.finishRun(run, tracker)
	logger.Info("story run completed", map[string]interface{}{
		"run_id":           run.ID,
		"status":           string(outcome.Report.Status),
		"repair_attempted": outcome.Attempted,
	})
}

// RepairRun 对已完成的运行显式执行修复阶段
// 每次运行最多一个修复周期；运行仍在执行或重复请求时返回冲突错误
func (s *RunService) RepairRun(ctx context.Context, runID string) (*RepairOutcome, error) {
	run, err := s.liveRun(runID)
	if err != nil {
		return nil, err
	}

	// 同一运行的并发修复请求只放行一个
	s.runsMutex.Lock()
	if s.repairing[runID] {
		s.runsMutex.Unlock()
		return nil, errors.NewConflictError("该运行的修复重试正在执行中", nil)
	}
	s.repairing[runID] = true
	s.runsMutex.Unlock()

	defer func() {
		s.runsMutex.Lock()
		delete(s.repairing, runID)
		s.runsMutex.Unlock()
	}()

	status, repairAttempted := run.RepairState()
	if status == models.RunRunning {
		return nil, errors.NewConflictError("运行仍在执行中，无法启动修复重试", nil)
	}
	if repairAttempted {
		return nil, errors.NewConflictError("该运行已执行过修复重试", nil)
	}
	if run.Prose == nil || run.ValidationReport == nil || run.Request == nil {
		return nil, errors.NewProcessingError("运行缺少可修复的正文或校验报告", nil)
	}

	tracker, _ := s.ProgressService.GetTracker(runID)

	outcome, err := s.RepairService.RepairValidationGaps(ctx, run, *run.Request, run.Prose, run.ValidationReport, tracker)
	if err != nil {
		return nil, err
	}

	run.AdoptOutcome(outcome.Prose, outcome.Report, outcome.Attempted)

	if err := s.Store.SaveRun(run.Snapshot()); err != nil {
		utils.GetLogger().Error("failed to persist run after repair", map[string]interface{}{
			"run_id": run.ID,
			"err":    err.Error(),
		})
	}

	return outcome, nil
}

// finishRun 记录最终校验结论并落盘
// 校验未通过不会使运行失败，只降级为非阻塞告警
func (s *RunService) finishRun(run *models.PipelineRun, tracker *ProgressTracker) {
	report := run.ValidationReport

	if report.Status == models.ValidationPassed {
		tracker.ReportProgress("validation", "Story validation passed", 98)
	} else {
		run.AppendWarning(fmt.Sprintf("Story validation: failed - %d critical errors (non-blocking)", report.Summary.Critical))
		tracker.ReportProgress("validation", "Story validation flagged issues (non-blocking)", 98)
	}

	run.SetStatus(models.RunCompleted)
	tracker.Complete("Story run completed")

	if err := s.Store.SaveRun(run.Snapshot()); err != nil {
		utils.GetLogger().Error("failed to persist completed run", map[string]interface{}{
			"run_id": run.ID,
			"err":    err.Error(),
		})
	}
}

// failRun 标记运行失败并落盘
func (s *RunService) failRun(run *models.PipelineRun, tracker *ProgressTracker, message string, err error) {
	utils.GetLogger().Error(message, map[string]interface{}{
		"run_id": run.ID,
		"err":    err.Error(),
	})

	run.SetStatus(models.RunFailed)
	run.AppendWarning(fmt.Sprintf("%s: %v", message, err))
	tracker.Fail(err.Error())

	if saveErr := s.Store.SaveRun(run.Snapshot()); saveErr != nil {
		utils.GetLogger().Error("failed to persist failed run", map[string]interface{}{
			"run_id": run.ID,
			"err":    saveErr.Error(),
		})
	}
}
