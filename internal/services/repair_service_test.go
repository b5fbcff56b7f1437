// internal/services/repair_service_test.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Plotforge/MysteryWeaver/internal/models"
	"github.com/google/go-cmp/cmp"
)

// fakeGenerator 记录调用并返回预设结果的生成代理
// block 非空时在返回前等待放行，用于让运行停留在执行状态
type fakeGenerator struct {
	result  *models.ProseResult
	err     error
	calls   int
	lastReq models.ProseRequest
	block   chan struct{}
}

func (f *fakeGenerator) GenerateProse(_ context.Context, req models.ProseRequest) (*models.ProseResult, error) {
	f.calls++
	f.lastReq = req
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeValidator 返回预设报告的校验引擎
type fakeValidator struct {
	report *models.ValidationReport
	err    error
	calls  int
}

func (f *fakeValidator) Validate(_ context.Context, _ *models.Story, _ json.RawMessage) (*models.ValidationReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

func repairedProseResult() *models.ProseResult {
	return &models.ProseResult{
		Chapters: []models.Chapter{
			{Title: "The Discriminating Test", Paragraphs: []string{"The detective gathered the suspects."}},
		},
		Cost: 0.42,
	}
}

func testRequest() models.ProseRequest {
	return models.ProseRequest{
		CaseData:  json.RawMessage(`{"culprit":"the butler"}`),
		RunID:     "run-1",
		ProjectID: "project-1",
	}
}

// TestBuildRepairGuardrailsClusterA 测试甄别测试类错误只产出A组护栏
func TestBuildRepairGuardrailsClusterA(t *testing.T) {
	s := NewRepairService(nil, nil)

	report := &models.ValidationReport{
		Errors: []models.ValidationError{{Type: models.ErrMissingDiscriminatingTest}},
	}

	want := []string{
		guardrailDiscriminatingScene,
		guardrailEliminationLanguage,
	}

	got := s.BuildRepairGuardrails(report)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("A组护栏不符合预期 (-want +got):\n%s", diff)
	}
}

// TestBuildRepairGuardrailsBothClusters 测试两组错误各自贡献护栏，A组在前
func TestBuildRepairGuardrailsBothClusters(t *testing.T) {
	s := NewRepairService(nil, nil)

	report := &models.ValidationReport{
		Errors: []models.ValidationError{
			{Type: models.ErrSuspectClosureMissing},
			{Type: models.ErrCMLTestNotRealized},
		},
	}

	want := []string{
		guardrailDiscriminatingScene,
		guardrailEliminationLanguage,
		guardrailSuspectClosure,
		guardrailEvidenceChain,
	}

	got := s.BuildRepairGuardrails(report)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("护栏顺序或内容不符合预期 (-want +got):\n%s", diff)
	}
}

// TestBuildRepairGuardrailsDeduplicated 测试同组多个错误不会重复贡献护栏
func TestBuildRepairGuardrailsDeduplicated(t *testing.T) {
	s := NewRepairService(nil, nil)

	report := &models.ValidationReport{
		Errors: []models.ValidationError{
			{Type: models.ErrMissingDiscriminatingTest},
			{Type: models.ErrCMLTestNotRealized},
			{Type: models.ErrMissingDiscriminatingTest},
		},
	}

	got := s.BuildRepairGuardrails(report)
	if len(got) != 2 {
		t.Errorf("同组错误应只产出2条护栏，实际 %d 条: %v", len(got), got)
	}
}

// TestBuildRepairGuardrailsEmpty 测试无可修复错误时返回空列表
func TestBuildRepairGuardrailsEmpty(t *testing.T) {
	s := NewRepairService(nil, nil)

	report := &models.ValidationReport{
		Errors: []models.ValidationError{{Type: "unrelated_format_issue"}},
	}

	if got := s.BuildRepairGuardrails(report); len(got) != 0 {
		t.Errorf("不可修复错误不应产出护栏，实际: %v", got)
	}
}

// TestBuildRepairGuardrailsIdempotent 测试构建的幂等性
func TestBuildRepairGuardrailsIdempotent(t *testing.T) {
	s := NewRepairService(nil, nil)

	report := &models.ValidationReport{
		Errors: []models.ValidationError{{Type: models.ErrCulpritChainMissing}},
	}

	first := s.BuildRepairGuardrails(report)
	second := s.BuildRepairGuardrails(report)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("两次构建结果不一致 (-first +second):\n%s", diff)
	}
}

// TestIsImprovement 测试严格改善比较规则
func TestIsImprovement(t *testing.T) {
	cases := []struct {
		name     string
		original *models.ValidationReport
		repaired *models.ValidationReport
		want     bool
	}{
		{
			name:     "关键错误数下降即为改善",
			original: &models.ValidationReport{Status: models.ValidationFailed, Summary: models.ValidationSummary{Critical: 2}, Errors: make([]models.ValidationError, 3)},
			repaired: &models.ValidationReport{Status: models.ValidationFailed, Summary: models.ValidationSummary{Critical: 0}, Errors: make([]models.ValidationError, 5)},
			want:     true,
		},
		{
			name:     "错误总数下降即为改善",
			original: &models.ValidationReport{Status: models.ValidationFailed, Summary: models.ValidationSummary{Critical: 1}, Errors: make([]models.ValidationError, 4)},
			repaired: &models.ValidationReport{Status: models.ValidationFailed, Summary: models.ValidationSummary{Critical: 1}, Errors: make([]models.ValidationError, 2)},
			want:     true,
		},
		{
			name:     "状态变为通过即为改善",
			original: &models.ValidationReport{Status: models.ValidationFailed, Summary: models.ValidationSummary{Critical: 1}, Errors: make([]models.ValidationError, 1)},
			repaired: &models.ValidationReport{Status: models.ValidationPassed, Summary: models.ValidationSummary{Critical: 1}, Errors: make([]models.ValidationError, 1)},
			want:     true,
		},
		{
			name:     "三个维度均无改善则不采纳",
			original: &models.ValidationReport{Status: models.ValidationFailed, Summary: models.ValidationSummary{Critical: 1}, Errors: make([]models.ValidationError, 1)},
			repaired: &models.ValidationReport{Status: models.ValidationFailed, Summary: models.ValidationSummary{Critical: 1}, Errors: make([]models.ValidationError, 1)},
			want:     false,
		},
		{
			name:     "各维度持平或恶化不算改善",
			original: &models.ValidationReport{Status: models.ValidationFailed, Summary: models.ValidationSummary{Critical: 1}, Errors: make([]models.ValidationError, 1)},
			repaired: &models.ValidationReport{Status: models.ValidationFailed, Summary: models.ValidationSummary{Critical: 2}, Errors: make([]models.ValidationError, 3)},
			want:     false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsImprovement(tc.original, tc.repaired); got != tc.want {
				t.Errorf("IsImprovement = %v, 期望 %v", got, tc.want)
			}
		})
	}
}

// TestRepairAdopted 端到端：修复改善了校验结果并被采纳
func TestRepairAdopted(t *testing.T) {
	original := &models.ValidationReport{
		Status:  models.ValidationFailed,
		Summary: models.ValidationSummary{Critical: 1},
		Errors:  []models.ValidationError{{Type: models.ErrCulpritChainMissing}},
	}
	repaired := &models.ValidationReport{
		Status:  models.ValidationPassed,
		Summary: models.ValidationSummary{Critical: 0},
		Errors:  []models.ValidationError{},
	}

	generator := &fakeGenerator{result: repairedProseResult()}
	validator := &fakeValidator{report: repaired}
	s := NewRepairService(generator, validator)

	run := models.NewPipelineRun("run-1", "project-1")
	originalProse := &models.Prose{Chapters: []models.Chapter{{Title: "Old", Paragraphs: []string{"old text"}}}}

	outcome, err := s.RepairValidationGaps(context.Background(), run, testRequest(), originalProse, original, nil)
	if err != nil {
		t.Fatalf("修复不应失败: %v", err)
	}

	if !outcome.Attempted || !outcome.Adopted {
		t.Fatalf("修复应被尝试且采纳: attempted=%v adopted=%v", outcome.Attempted, outcome.Adopted)
	}
	if outcome.Report != repaired {
		t.Error("最终报告应为修复后的报告")
	}
	if outcome.Prose == originalProse {
		t.Error("最终正文应为修复后的正文")
	}

	// 护栏应为B组的两条指令
	wantGuardrails := []string{guardrailSuspectClosure, guardrailEvidenceChain}
	if diff := cmp.Diff(wantGuardrails, generator.lastReq.QualityGuardrails); diff != "" {
		t.Errorf("转发的护栏不符合预期 (-want +got):\n%s", diff)
	}

	// 告警应包含缺口检出与改善两条消息
	if !warningsContain(run.Warnings, "coverage gaps") {
		t.Errorf("告警应包含缺口检出消息: %v", run.Warnings)
	}
	if !warningsContain(run.Warnings, "improved validation outcomes") {
		t.Errorf("告警应包含改善消息: %v", run.Warnings)
	}

	// 成本与耗时累加到运行计数器
	if run.AgentCosts[models.AgentProse] != 0.42 {
		t.Errorf("生成成本应累加0.42，实际 %v", run.AgentCosts[models.AgentProse])
	}
	if _, ok := run.AgentDurations[models.AgentValidation]; !ok {
		t.Error("校验耗时应被累加")
	}
}

// TestRepairNotImproved 端到端：修复未改善则保留原始版本
func TestRepairNotImproved(t *testing.T) {
	original := &models.ValidationReport{
		Status:  models.ValidationFailed,
		Summary: models.ValidationSummary{Critical: 1},
		Errors:  []models.ValidationError{{Type: models.ErrSuspectClosureMissing}},
	}
	// 修复后报告与原始等价：同样的关键错误数、错误数与失败状态
	unchanged := &models.ValidationReport{
		Status:  models.ValidationFailed,
		Summary: models.ValidationSummary{Critical: 1},
		Errors:  []models.ValidationError{{Type: models.ErrSuspectClosureMissing}},
	}

	generator := &fakeGenerator{result: repairedProseResult()}
	validator := &fakeValidator{report: unchanged}
	s := NewRepairService(generator, validator)

	run := models.NewPipelineRun("run-1", "project-1")
	originalProse := &models.Prose{Chapters: []models.Chapter{{Title: "Old", Paragraphs: []string{"old text"}}}}

	outcome, err := s.RepairValidationGaps(context.Background(), run, testRequest(), originalProse, original, nil)
	if err != nil {
		t.Fatalf("修复不应失败: %v", err)
	}

	if !outcome.Attempted || outcome.Adopted {
		t.Fatalf("修复应被尝试但不采纳: attempted=%v adopted=%v", outcome.Attempted, outcome.Adopted)
	}
	if outcome.Prose != originalProse || outcome.Report != original {
		t.Error("未改善时应保留原始正文与报告")
	}
	if !warningsContain(run.Warnings, "did not improve") {
		t.Errorf("告警应包含未改善消息: %v", run.Warnings)
	}
}

// TestRepairSkippedForUnrecoverable 端到端：不可修复错误不会触发生成调用
func TestRepairSkippedForUnrecoverable(t *testing.T) {
	original := &models.ValidationReport{
		Status:  models.ValidationFailed,
		Summary: models.ValidationSummary{Critical: 0, Major: 1},
		Errors:  []models.ValidationError{{Type: "unrelated_format_issue"}},
	}

	generator := &fakeGenerator{result: repairedProseResult()}
	validator := &fakeValidator{}
	s := NewRepairService(generator, validator)

	run := models.NewPipelineRun("run-1", "project-1")
	originalProse := &models.Prose{}

	outcome, err := s.RepairValidationGaps(context.Background(), run, testRequest(), originalProse, original, nil)
	if err != nil {
		t.Fatalf("跳过修复不应失败: %v", err)
	}

	if outcome.Attempted {
		t.Error("不可修复错误不应触发修复尝试")
	}
	if generator.calls != 0 {
		t.Errorf("生成代理不应被调用，实际调用 %d 次", generator.calls)
	}
	if validator.calls != 0 {
		t.Errorf("校验引擎不应被再次调用，实际调用 %d 次", validator.calls)
	}
	if len(run.Warnings) != 0 {
		t.Errorf("告警不应被写入: %v", run.Warnings)
	}
	if outcome.Prose != originalProse || outcome.Report != original {
		t.Error("跳过修复时应保留原始正文与报告")
	}
}

// TestRepairGenerationFailurePropagates 生成失败必须原样向上传播
func TestRepairGenerationFailurePropagates(t *testing.T) {
	original := &models.ValidationReport{
		Status:  models.ValidationFailed,
		Summary: models.ValidationSummary{Critical: 1},
		Errors:  []models.ValidationError{{Type: models.ErrMissingDiscriminatingTest}},
	}

	genErr := errors.New("generation agent unavailable")
	generator := &fakeGenerator{err: genErr}
	validator := &fakeValidator{}
	s := NewRepairService(generator, validator)

	run := models.NewPipelineRun("run-1", "project-1")

	_, err := s.RepairValidationGaps(context.Background(), run, testRequest(), &models.Prose{}, original, nil)
	if !errors.Is(err, genErr) {
		t.Fatalf("生成失败应向上传播，实际: %v", err)
	}
	if validator.calls != 0 {
		t.Error("生成失败后不应调用校验引擎")
	}
}

// TestRepairRevalidationFailurePropagates 重新校验失败必须原样向上传播
func TestRepairRevalidationFailurePropagates(t *testing.T) {
	original := &models.ValidationReport{
		Status:  models.ValidationFailed,
		Summary: models.ValidationSummary{Critical: 1},
		Errors:  []models.ValidationError{{Type: models.ErrCMLTestNotRealized}},
	}

	valErr := errors.New("validation engine timeout")
	generator := &fakeGenerator{result: repairedProseResult()}
	validator := &fakeValidator{err: valErr}
	s := NewRepairService(generator, validator)

	run := models.NewPipelineRun("run-1", "project-1")

	_, err := s.RepairValidationGaps(context.Background(), run, testRequest(), &models.Prose{}, original, nil)
	if !errors.Is(err, valErr) {
		t.Fatalf("校验失败应向上传播，实际: %v", err)
	}
}

func warningsContain(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
