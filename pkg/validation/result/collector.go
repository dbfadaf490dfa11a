package result

import "strings"

// FieldCollector 收集一次验证过程中产生的字段结果
// 非线程安全，只在单次验证过程内使用
type FieldCollector struct {
	results []FieldResult
	index   map[fieldKey]struct{}
}

// NewFieldCollector 创建字段结果收集器
func NewFieldCollector() *FieldCollector {
	return &FieldCollector{
		results: make([]FieldResult, 0, 4),
		index:   make(map[fieldKey]struct{}),
	}
}

// Add 添加字段结果，重复结果忽略
func (fc *FieldCollector) Add(r FieldResult) error {
	if r.Property == "" {
		return ErrEmptyProperty
	}
	r.Severity.MustValid()

	k := r.key()
	if _, ok := fc.index[k]; ok {
		return nil
	}
	fc.index[k] = struct{}{}
	fc.results = append(fc.results, r)
	return nil
}

// AddError 添加字段错误
func (fc *FieldCollector) AddError(property, format string, args ...any) error {
	return fc.Add(FieldError(property, format, args...))
}

// AddWarning 添加字段警告
func (fc *FieldCollector) AddWarning(property, format string, args ...any) error {
	return fc.Add(FieldWarning(property, format, args...))
}

// Results 已收集结果的副本
func (fc *FieldCollector) Results() []FieldResult {
	out := make([]FieldResult, len(fc.results))
	copy(out, fc.results)
	return out
}

// Len 已收集数量
func (fc *FieldCollector) Len() int {
	return len(fc.results)
}

// BusinessRuleCollector 收集一次验证过程中产生的业务规则结果
type BusinessRuleCollector struct {
	results []BusinessRuleResult
	index   map[ruleKey]struct{}
}

// NewBusinessRuleCollector 创建业务规则结果收集器
func NewBusinessRuleCollector() *BusinessRuleCollector {
	return &BusinessRuleCollector{
		results: make([]BusinessRuleResult, 0, 2),
		index:   make(map[ruleKey]struct{}),
	}
}

// Add 添加业务规则结果，重复结果忽略
func (bc *BusinessRuleCollector) Add(r BusinessRuleResult) {
	r.Severity.MustValid()

	k := r.key()
	if _, ok := bc.index[k]; ok {
		return
	}
	bc.index[k] = struct{}{}
	bc.results = append(bc.results, r)
}

// AddError 添加业务规则错误
func (bc *BusinessRuleCollector) AddError(format string, args ...any) {
	bc.Add(BusinessRuleError(format, args...))
}

// AddWarning 添加业务规则警告
func (bc *BusinessRuleCollector) AddWarning(format string, args ...any) {
	bc.Add(BusinessRuleWarning(format, args...))
}

// Results 已收集结果的副本
func (bc *BusinessRuleCollector) Results() []BusinessRuleResult {
	out := make([]BusinessRuleResult, len(bc.results))
	copy(out, bc.results)
	return out
}

// Len 已收集数量
func (bc *BusinessRuleCollector) Len() int {
	return len(bc.results)
}

// Summary 某一时刻验证结果的只读快照
type Summary struct {
	FieldErrors          []FieldResult        `json:"field_errors,omitempty"`
	FieldWarnings        []FieldResult        `json:"field_warnings,omitempty"`
	BusinessRuleErrors   []BusinessRuleResult `json:"business_rule_errors,omitempty"`
	BusinessRuleWarnings []BusinessRuleResult `json:"business_rule_warnings,omitempty"`
}

// Summarize 生成上下文快照
func Summarize(c *Context) Summary {
	if c == nil {
		return Summary{}
	}
	return Summary{
		FieldErrors:          c.FieldResultsWith("", SeverityError),
		FieldWarnings:        c.FieldResultsWith("", SeverityWarning),
		BusinessRuleErrors:   c.BusinessRuleResultsWith(SeverityError),
		BusinessRuleWarnings: c.BusinessRuleResultsWith(SeverityWarning),
	}
}

// HasErrors 快照中是否有错误
func (s Summary) HasErrors() bool {
	return len(s.FieldErrors) > 0 || len(s.BusinessRuleErrors) > 0
}

// HasWarnings 快照中是否有警告
func (s Summary) HasWarnings() bool {
	return len(s.FieldWarnings) > 0 || len(s.BusinessRuleWarnings) > 0
}

// FieldMessages 提取字段结果的消息
func FieldMessages(results []FieldResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Message)
	}
	return out
}

// BusinessRuleMessages 提取业务规则结果的消息
func BusinessRuleMessages(results []BusinessRuleResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Message)
	}
	return out
}

// JoinMessages 以换行拼接消息
func JoinMessages(messages []string) string {
	return strings.Join(messages, "\n")
}
