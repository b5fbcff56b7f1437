// internal/models/run.go
package models

import (
	"sync"
	"time"
)

// RunStatus 表示流水线运行的状态
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// 成本与耗时统计使用的代理键名
const (
	AgentProse      = "agent9_prose"
	AgentValidation = "validation"
)

// PipelineRun 一次故事生成运行的记录
// Warnings 只追加不删除；成本与耗时计数只累加不清零
// 执行协程与HTTP读取方并发访问同一记录，所有字段更新必须经过带锁方法，
// 读取方通过 Snapshot 获取一致副本
type PipelineRun struct {
	mu sync.RWMutex

	ID             string             `json:"id"`
	ProjectID      string             `json:"project_id"`
	Status         RunStatus          `json:"status"`
	Warnings       []string           `json:"warnings"`
	AgentCosts     map[string]float64 `json:"agent_costs"`
	AgentDurations map[string]int64   `json:"agent_durations"` // 毫秒
	WordCount      int                `json:"word_count"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`

	// 当前生效的正文与校验报告，修复被采纳时整体替换
	Prose            *Prose            `json:"prose,omitempty"`
	ValidationReport *ValidationReport `json:"validation_report,omitempty"`

	// 原始生成请求上下文，修复重试时原样转发
	Request *ProseRequest `json:"request,omitempty"`

	// 每次运行最多允许一个修复周期
	RepairAttempted bool `json:"repair_attempted"`
}

// NewPipelineRun 创建运行记录
func NewPipelineRun(id, projectID string) *PipelineRun {
	now := time.Now()
	return &PipelineRun{
		ID:             id,
		ProjectID:      projectID,
		Status:         RunPending,
		Warnings:       []string{},
		AgentCosts:     make(map[string]float64),
		AgentDurations: make(map[string]int64),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AppendWarning 追加一条告警消息
func (r *PipelineRun) AppendWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Warnings = append(r.Warnings, msg)
	r.UpdatedAt = time.Now()
}

// AddCost 累加指定代理的成本
func (r *PipelineRun) AddCost(agent string, cost float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.AgentCosts[agent] += cost
	r.UpdatedAt = time.Now()
}

// AddDuration 累加指定代理的耗时
func (r *PipelineRun) AddDuration(agent string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.AgentDurations[agent] += d.Milliseconds()
	r.UpdatedAt = time.Now()
}

// SetStatus 更新运行状态
func (r *PipelineRun) SetStatus(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Status = status
	r.UpdatedAt = time.Now()
}

// AdoptOutcome 成对替换当前正文与校验报告，并同步字数统计
func (r *PipelineRun) AdoptOutcome(prose *Prose, report *ValidationReport, repairAttempted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Prose = prose
	r.ValidationReport = report
	r.RepairAttempted = repairAttempted
	if prose != nil {
		r.WordCount = prose.WordCount()
	}
	r.UpdatedAt = time.Now()
}

// RepairState 在锁内读取修复前置检查所需的状态
func (r *PipelineRun) RepairState() (RunStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Status, r.RepairAttempted
}

// Snapshot 返回记录的深拷贝，供并发读取方安全序列化
// 正文、报告与请求只整体替换、从不原地修改，指针可安全共享
func (r *PipelineRun) Snapshot() *PipelineRun {
	r.mu.RLock()
	defer r.mu.RUnlock()

	copied := &PipelineRun{
		ID:               r.ID,
		ProjectID:        r.ProjectID,
		Status:           r.Status,
		Warnings:         append([]string{}, r.Warnings...),
		AgentCosts:       make(map[string]float64, len(r.AgentCosts)),
		AgentDurations:   make(map[string]int64, len(r.AgentDurations)),
		WordCount:        r.WordCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		Prose:            r.Prose,
		ValidationReport: r.ValidationReport,
		Request:          r.Request,
		RepairAttempted:  r.RepairAttempted,
	}
	for agent, cost := range r.AgentCosts {
		copied.AgentCosts[agent] = cost
	}
	for agent, ms := range r.AgentDurations {
		copied.AgentDurations[agent] = ms
	}
	return copied
}
