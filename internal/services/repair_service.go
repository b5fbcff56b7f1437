// internal/services/repair_service.go
package services

import (
	"context"
	"time"

	"github.com/Plotforge/MysteryWeaver/internal/models"
	"github.com/Plotforge/MysteryWeaver/internal/utils"
)

// 修复重试使用的护栏指令
// Cluster A 针对甄别测试缺失，Cluster B 针对嫌疑人收束与证据链缺失；
// 两组独立判定，可同时生效，顺序固定为 A 在前 B 在后
const (
	guardrailDiscriminatingScene = "Include a clear discriminating test scene where multiple plausible suspects are explicitly evaluated and at least one suspect is ruled out using on-page evidence."
	guardrailEliminationLanguage = "Use explicit elimination language such as 'ruled out', 'cannot be the culprit', or 'excluded by the timeline/evidence'."
	guardrailSuspectClosure      = "In the solution sequence, close every major suspect thread with explicit reasoning and evidence-backed elimination."
	guardrailEvidenceChain       = "Provide a complete culprit evidence chain from clue discovery to final proof without relying on off-page information."
)

// RepairService 实现校验缺口的单次修复重试
// 每次运行最多执行一个修复周期，结果要么整体采纳要么整体放弃
type RepairService struct {
	Generator ProseGenerator
	Validator ValidationPipeline
}

// NewRepairService 创建修复服务
func NewRepairService(generator ProseGenerator, validator ValidationPipeline) *RepairService {
	return &RepairService{
		Generator: generator,
		Validator: validator,
	}
}

// RepairOutcome 修复尝试的不可变结果
// Prose 与 Report 始终成对出现：采纳时为修复后的版本，否则为原始版本
type RepairOutcome struct {
	Attempted bool                     // 是否实际调用了生成代理
	Adopted   bool                     // 修复结果是否被采纳
	Prose     *models.Prose            // 最终生效的正文
	Report    *models.ValidationReport // 最终生效的校验报告
}

// BuildRepairGuardrails 根据报告中的可修复错误类型构建护栏指令列表
// 无匹配时返回空列表，调用方必须跳过修复而不是以空护栏触发生成
func (s *RepairService) BuildRepairGuardrails(report *models.ValidationReport) []string {
	guardrails := []string{}

	if report.HasErrorType(models.ErrMissingDiscriminatingTest, models.ErrCMLTestNotRealized) {
		guardrails = append(guardrails,
			guardrailDiscriminatingScene,
			guardrailEliminationLanguage,
		)
	}

	if report.HasErrorType(models.ErrSuspectClosureMissing, models.ErrCulpritChainMissing) {
		guardrails = append(guardrails,
			guardrailSuspectClosure,
			guardrailEvidenceChain,
		)
	}

	return guardrails
}

// IsImprovement 判断修复后的报告是否严格优于原始报告
// 三个条件相互独立，满足任意一个即视为改善：
// 关键错误数下降、错误总数下降、或整体状态变为通过。
// 即使修复引入了新的非关键错误，只要任一维度改善仍会被采纳
func IsImprovement(original, repaired *models.ValidationReport) bool {
	return repaired.Summary.Critical < original.Summary.Critical ||
		len(repaired.Errors) < len(original.Errors) ||
		repaired.Status == models.ValidationPassed
}

// RepairValidationGaps 执行完整的修复周期：
// 判定缺口 → 构建护栏 → 重新生成 → 重新校验 → 严格改善比较。
// 告警写入 run.Warnings，成本与耗时累加到 run 的计数器；
// 生成或校验的失败原样向上传播，此时 run 的当前正文与报告保持不变
func (s *RepairService) RepairValidationGaps(
	ctx context.Context,
	run *models.PipelineRun,
	request models.ProseRequest,
	prose *models.Prose,
	report *models.ValidationReport,
	tracker *ProgressTracker,
) (*RepairOutcome, error) {
	keepOriginal := &RepairOutcome{Prose: prose, Report: report}

	if !report.HasRecoverableGaps() {
		return keepOriginal, nil
	}

	repairGuardrails := s.BuildRepairGuardrails(report)
	if len(repairGuardrails) == 0 {
		// 防御性分支：分类命中但未产出护栏时绝不触发生成
		run.AppendWarning("Story validation flagged recoverable gaps but no repair guardrails were produced; skipping repair")
		return keepOriginal, nil
	}

	run.AppendWarning("Story validation detected coverage gaps; running one prose repair retry")
	if tracker != nil {
		tracker.ReportProgress("prose", "Regenerating prose to repair validation coverage gaps", 95)
	}

	utils.GetLogger().Info("running prose repair retry", map[string]interface{}{
		"run_id":     run.ID,
		"guardrails": len(repairGuardrails),
	})

	proseRepairStart := time.Now()
	repairedResult, err := s.Generator.GenerateProse(ctx, request.WithGuardrails(repairGuardrails))
	if err != nil {
		return nil, err
	}

	repairedProse := SanitizeProseResult(repairedResult)
	run.AddCost(models.AgentProse, repairedResult.Cost)
	run.AddDuration(models.AgentProse, time.Since(proseRepairStart))

	// 对修复后的正文重新校验
	repairedStory := repairedProse.BuildStory(run.ID, run.ProjectID)

	retryValStart := time.Now()
	repairedReport, err := s.Validator.Validate(ctx, repairedStory, request.CaseData)
	if err != nil {
		return nil, err
	}
	run.AddDuration(models.AgentValidation, time.Since(retryValStart))

	if !IsImprovement(report, repairedReport) {
		run.AppendWarning("Prose repair retry did not improve validation; continuing with original")
		return &RepairOutcome{Attempted: true, Prose: prose, Report: report}, nil
	}

	run.AppendWarning("Prose repair retry improved validation outcomes")
	return &RepairOutcome{
		Attempted: true,
		Adopted:   true,
		Prose:     repairedProse,
		Report:    repairedReport,
	}, nil
}
