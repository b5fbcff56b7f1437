// internal/models/validation.go
package models

// ValidationStatus 表示一次校验的整体结论
type ValidationStatus string

const (
	// ValidationPassed 校验通过
	ValidationPassed ValidationStatus = "passed"
	// ValidationFailed 校验未通过
	ValidationFailed ValidationStatus = "failed"
	// ValidationSkipped 校验被跳过
	ValidationSkipped ValidationStatus = "skipped"
)

// 可通过正文重写修复的校验错误类型
// 校验引擎会随版本增加新的错误类型，未列入此集合的类型一律视为不可修复
const (
	ErrMissingDiscriminatingTest = "missing_discriminating_test"
	ErrCMLTestNotRealized        = "cml_test_not_realized"
	ErrSuspectClosureMissing     = "suspect_closure_missing"
	ErrCulpritChainMissing       = "culprit_evidence_chain_missing"
)

var recoverableErrorTypes = map[string]bool{
	ErrMissingDiscriminatingTest: true,
	ErrCMLTestNotRealized:        true,
	ErrSuspectClosureMissing:     true,
	ErrCulpritChainMissing:       true,
}

// IsRecoverableErrorType 判断错误类型是否属于可修复集合
func IsRecoverableErrorType(errType string) bool {
	return recoverableErrorTypes[errType]
}

// ValidationError 校验引擎产出的单条错误记录
type ValidationError struct {
	Type     string `json:"type"`                // 错误类型标签（开放枚举）
	Detail   string `json:"detail,omitempty"`    // 可读的错误描述
	SceneRef int    `json:"scene_ref,omitempty"` // 关联的场景编号（可选）
}

// ValidationSummary 按严重级别统计的错误数量
type ValidationSummary struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
	Info     int `json:"info"`
}

// ValidationReport 一次校验调用的完整快照
// 每次校验都会生成新的报告，报告本身不会被原地修改
type ValidationReport struct {
	Status  ValidationStatus  `json:"status"`
	Summary ValidationSummary `json:"summary"`
	Errors  []ValidationError `json:"errors"`
}

// HasRecoverableGaps 判断报告中是否存在可修复的覆盖缺口
// 空错误列表视为无缺口
func (r *ValidationReport) HasRecoverableGaps() bool {
	for _, e := range r.Errors {
		if IsRecoverableErrorType(e.Type) {
			return true
		}
	}
	return false
}

// HasErrorType 判断报告中是否包含指定类型之一的错误
func (r *ValidationReport) HasErrorType(types ...string) bool {
	for _, e := range r.Errors {
		for _, t := range types {
			if e.Type == t {
				return true
			}
		}
	}
	return false
}
