// internal/models/prose_request.go
package models

import "encoding/json"

// ProseRequest 正文生成代理的请求上下文
// 除 QualityGuardrails 外的所有字段均由上游编排器填充，本服务只负责透传
type ProseRequest struct {
	CaseData          json.RawMessage `json:"case_data"`                    // CML 案件数据
	Outline           json.RawMessage `json:"outline,omitempty"`            // 叙事大纲
	Cast              json.RawMessage `json:"cast,omitempty"`               // 角色阵容
	CharacterProfiles json.RawMessage `json:"character_profiles,omitempty"` // 角色档案
	LocationProfiles  json.RawMessage `json:"location_profiles,omitempty"`  // 地点档案
	TemporalContext   json.RawMessage `json:"temporal_context,omitempty"`   // 时间线上下文
	TargetLength      int             `json:"target_length,omitempty"`      // 目标词数
	NarrativeStyle    string          `json:"narrative_style,omitempty"`    // 叙事风格
	QualityGuardrails []string        `json:"quality_guardrails,omitempty"` // 质量护栏指令（仅修复重试时设置）
	RunID             string          `json:"run_id"`
	ProjectID         string          `json:"project_id"`
}

// WithGuardrails 返回附加了护栏指令的请求副本，原请求不变
func (r ProseRequest) WithGuardrails(guardrails []string) ProseRequest {
	r.QualityGuardrails = guardrails
	return r
}

// ProseResult 生成代理的原始返回，含本次调用的成本
type ProseResult struct {
	Chapters []Chapter `json:"chapters"`
	Cost     float64   `json:"cost"`
}
