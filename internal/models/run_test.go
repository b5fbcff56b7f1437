// internal/models/run_test.go
package models

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// TestAdoptOutcomeReplacesPair 测试正文与报告成对替换并同步词数
func TestAdoptOutcomeReplacesPair(t *testing.T) {
	run := NewPipelineRun("run-1", "project-1")

	prose := &Prose{Chapters: []Chapter{
		{Title: "Ch1", Paragraphs: []string{"The detective gathered the suspects."}},
	}}
	report := &ValidationReport{Status: ValidationPassed, Errors: []ValidationError{}}

	run.AdoptOutcome(prose, report, true)

	if run.Prose != prose || run.ValidationReport != report {
		t.Error("正文与校验报告应被成对替换")
	}
	if !run.RepairAttempted {
		t.Error("修复标记应被更新")
	}
	if run.WordCount != prose.WordCount() {
		t.Errorf("词数统计应为 %d，实际 %d", prose.WordCount(), run.WordCount)
	}
}

// TestSnapshotIsolatedFromLaterUpdates 测试快照不受后续更新影响
func TestSnapshotIsolatedFromLaterUpdates(t *testing.T) {
	run := NewPipelineRun("run-1", "project-1")
	run.AppendWarning("first warning")
	run.AddCost(AgentProse, 0.10)

	snapshot := run.Snapshot()

	run.AppendWarning("second warning")
	run.AddCost(AgentProse, 0.90)
	run.AddDuration(AgentValidation, 250*time.Millisecond)
	run.SetStatus(RunCompleted)

	if diff := cmp.Diff([]string{"first warning"}, snapshot.Warnings); diff != "" {
		t.Errorf("快照的告警不应随原记录变化 (-want +got):\n%s", diff)
	}
	if snapshot.AgentCosts[AgentProse] != 0.10 {
		t.Errorf("快照的成本计数不应随原记录变化，实际 %v", snapshot.AgentCosts[AgentProse])
	}
	if _, exists := snapshot.AgentDurations[AgentValidation]; exists {
		t.Error("快照不应包含之后累加的耗时计数")
	}
	if snapshot.Status != RunPending {
		t.Errorf("快照的状态不应随原记录变化，实际 %s", snapshot.Status)
	}
}

// TestSnapshotSafeUnderConcurrentUpdates 测试更新过程中并发快照与序列化
func TestSnapshotSafeUnderConcurrentUpdates(t *testing.T) {
	run := NewPipelineRun("run-1", "project-1")

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			run.AddCost(AgentProse, 0.001)
			run.AddDuration(AgentProse, time.Millisecond)
			run.AppendWarning("warning")
			run.SetStatus(RunRunning)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if _, err := json.Marshal(run.Snapshot()); err != nil {
				t.Errorf("序列化快照失败: %v", err)
				return
			}
		}
	}()

	wg.Wait()
}

// TestRepairStateReflectsRun 测试修复前置状态读取
func TestRepairStateReflectsRun(t *testing.T) {
	run := NewPipelineRun("run-1", "project-1")

	status, attempted := run.RepairState()
	if status != RunPending || attempted {
		t.Errorf("新建运行的修复状态异常: status=%s attempted=%v", status, attempted)
	}

	run.SetStatus(RunRunning)
	run.AdoptOutcome(nil, nil, true)

	status, attempted = run.RepairState()
	if status != RunRunning || !attempted {
		t.Errorf("修复状态未反映更新: status=%s attempted=%v", status, attempted)
	}
}
