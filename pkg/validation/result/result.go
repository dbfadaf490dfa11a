package result

import (
	"fmt"
)

// Severity 验证结果的严重级别
// 只允许 SeverityError 与 SeverityWarning 两个值，其余值视为内部不变量被破坏
type Severity int8

const (
	SeverityError   Severity = iota + 1 // 错误
	SeverityWarning                     // 警告
)

// String 返回严重级别名称
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("severity(%d)", int8(s))
	}
}

// Valid 是否为已知的严重级别
func (s Severity) Valid() bool {
	return s == SeverityError || s == SeverityWarning
}

// MustValid 校验严重级别，未知值直接 panic
func (s Severity) MustValid() Severity {
	if !s.Valid() {
		panic(fmt.Errorf("%w: %d", ErrUnknownSeverity, int8(s)))
	}
	return s
}

// FieldResult 字段级验证结果
// 身份标识 = (Property, Severity, Message)，Tag 只是附加信息，不参与比较
type FieldResult struct {
	// Property 属性名
	Property string `json:"property"`
	// Severity 严重级别
	Severity Severity `json:"severity"`
	// Message 验证消息
	Message string `json:"message"`
	// Tag 可选标签，用于对结果分组
	Tag string `json:"tag,omitempty"`
}

// FieldError 创建字段错误结果
func FieldError(property, format string, args ...any) FieldResult {
	return FieldResult{Property: property, Severity: SeverityError, Message: sprintf(format, args...)}
}

// FieldWarning 创建字段警告结果
func FieldWarning(property, format string, args ...any) FieldResult {
	return FieldResult{Property: property, Severity: SeverityWarning, Message: sprintf(format, args...)}
}

// WithTag 设置标签
func (r FieldResult) WithTag(tag string) FieldResult {
	r.Tag = tag
	return r
}

// String 返回友好的描述
func (r FieldResult) String() string {
	return fmt.Sprintf("%s '%s': %s", r.Severity, r.Property, r.Message)
}

func (r FieldResult) key() fieldKey {
	return fieldKey{property: r.Property, severity: r.Severity, message: r.Message}
}

// BusinessRuleResult 业务规则（对象级）验证结果
// 身份标识 = (Severity, Message)
type BusinessRuleResult struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Tag      string   `json:"tag,omitempty"`
}

// BusinessRuleError 创建业务规则错误
func BusinessRuleError(format string, args ...any) BusinessRuleResult {
	return BusinessRuleResult{Severity: SeverityError, Message: sprintf(format, args...)}
}

// BusinessRuleWarning 创建业务规则警告
func BusinessRuleWarning(format string, args ...any) BusinessRuleResult {
	return BusinessRuleResult{Severity: SeverityWarning, Message: sprintf(format, args...)}
}

// WithTag 设置标签
func (r BusinessRuleResult) WithTag(tag string) BusinessRuleResult {
	r.Tag = tag
	return r
}

// String 返回友好的描述
func (r BusinessRuleResult) String() string {
	return fmt.Sprintf("%s: %s", r.Severity, r.Message)
}

func (r BusinessRuleResult) key() ruleKey {
	return ruleKey{severity: r.Severity, message: r.Message}
}

type fieldKey struct {
	property string
	severity Severity
	message  string
}

type ruleKey struct {
	severity Severity
	message  string
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
