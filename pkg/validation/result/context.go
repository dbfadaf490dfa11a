package result

import (
	"strings"
	"sync"
)

// ChangeKind 上下文变更类型
type ChangeKind int8

const (
	ChangeAdded   ChangeKind = iota + 1 // 新增
	ChangeRemoved                       // 移除
)

// String 返回变更类型名称
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change 一次同步产生的单条变更
// Field 与 BusinessRule 二选一
type Change struct {
	Kind         ChangeKind
	Field        *FieldResult
	BusinessRule *BusinessRuleResult
}

// IsField 是否为字段结果变更
func (c Change) IsField() bool {
	return c.Field != nil
}

// Severity 变更结果的严重级别
func (c Change) Severity() Severity {
	if c.Field != nil {
		return c.Field.Severity
	}
	if c.BusinessRule != nil {
		return c.BusinessRule.Severity
	}
	return 0
}

// Property 变更对应的属性名，业务规则变更返回空字符串
func (c Change) Property() string {
	if c.Field != nil {
		return c.Field.Property
	}
	return ""
}

// Context 验证上下文
//
// 持有两个有序集合：字段结果与业务规则结果，集合内按身份去重。
// 长期存活的上下文只通过 Synchronize 变更，外部持有者可以原地观察到变化。
// 读操作返回副本，可与写操作并发。
type Context struct {
	mu sync.RWMutex

	fields     []FieldResult
	fieldIndex map[fieldKey]struct{}

	rules     []BusinessRuleResult
	ruleIndex map[ruleKey]struct{}
}

// NewContext 创建空的验证上下文
func NewContext() *Context {
	return &Context{
		fields:     make([]FieldResult, 0, 4),
		fieldIndex: make(map[fieldKey]struct{}),
		rules:      make([]BusinessRuleResult, 0, 2),
		ruleIndex:  make(map[ruleKey]struct{}),
	}
}

// AddFieldResult 添加字段结果，已存在时忽略
func (c *Context) AddFieldResult(r FieldResult) error {
	if r.Property == "" {
		return ErrEmptyProperty
	}
	r.Severity.MustValid()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.addFieldLocked(r)
	return nil
}

// AddBusinessRuleResult 添加业务规则结果，已存在时忽略
func (c *Context) AddBusinessRuleResult(r BusinessRuleResult) {
	r.Severity.MustValid()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.addRuleLocked(r)
}

// RemoveFieldResult 按身份移除字段结果
func (c *Context) RemoveFieldResult(r FieldResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.removeFieldLocked(r.key())
}

// RemoveBusinessRuleResult 按身份移除业务规则结果
func (c *Context) RemoveBusinessRuleResult(r BusinessRuleResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.removeRuleLocked(r.key())
}

// FieldResults 所有字段结果的副本
func (c *Context) FieldResults() []FieldResult {
	return c.filterFields(func(FieldResult) bool { return true })
}

// FieldResultsFor 指定属性的字段结果副本
func (c *Context) FieldResultsFor(property string) []FieldResult {
	return c.filterFields(func(r FieldResult) bool { return r.Property == property })
}

// FieldResultsWith 指定属性与严重级别的字段结果副本，property 为空时不按属性过滤
func (c *Context) FieldResultsWith(property string, severity Severity) []FieldResult {
	return c.filterFields(func(r FieldResult) bool {
		return r.Severity == severity && (property == "" || r.Property == property)
	})
}

// FieldResultsByTag 指定标签的字段结果副本
func (c *Context) FieldResultsByTag(tag string) []FieldResult {
	return c.filterFields(func(r FieldResult) bool { return r.Tag == tag })
}

// BusinessRuleResults 所有业务规则结果的副本
func (c *Context) BusinessRuleResults() []BusinessRuleResult {
	return c.filterRules(func(BusinessRuleResult) bool { return true })
}

// BusinessRuleResultsWith 指定严重级别的业务规则结果副本
func (c *Context) BusinessRuleResultsWith(severity Severity) []BusinessRuleResult {
	return c.filterRules(func(r BusinessRuleResult) bool { return r.Severity == severity })
}

// HasErrors 是否存在任何错误级别的结果
func (c *Context) HasErrors() bool {
	return c.has(SeverityError)
}

// HasWarnings 是否存在任何警告级别的结果
func (c *Context) HasWarnings() bool {
	return c.has(SeverityWarning)
}

// ErrorCount 错误数量（字段 + 业务规则）
func (c *Context) ErrorCount() int {
	return c.count(SeverityError)
}

// WarningCount 警告数量（字段 + 业务规则）
func (c *Context) WarningCount() int {
	return c.count(SeverityWarning)
}

// Count 结果总数
func (c *Context) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.fields) + len(c.rules)
}

// Clone 深拷贝上下文
func (c *Context) Clone() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := NewContext()
	for _, r := range c.fields {
		clone.addFieldLocked(r)
	}
	for _, r := range c.rules {
		clone.addRuleLocked(r)
	}
	return clone
}

// Synchronize 将当前上下文与 next 对齐，返回产生的变更
//
// 变更顺序：字段移除、字段新增、业务规则移除、业务规则新增。
// 移除保留当前顺序，新增按 next 中的顺序追加，
// 因此同一结果不会在没有真实变更的情况下先消失再出现。
func (c *Context) Synchronize(next *Context) ([]Change, error) {
	if next == nil {
		return nil, ErrNilContext
	}
	if next == c {
		return nil, nil
	}

	// 先对 next 做快照，避免同时持有两把锁
	nextFields := next.FieldResults()
	nextRules := next.BusinessRuleResults()

	nextFieldIndex := make(map[fieldKey]struct{}, len(nextFields))
	for _, r := range nextFields {
		r.Severity.MustValid()
		nextFieldIndex[r.key()] = struct{}{}
	}
	nextRuleIndex := make(map[ruleKey]struct{}, len(nextRules))
	for _, r := range nextRules {
		r.Severity.MustValid()
		nextRuleIndex[r.key()] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	changes := make([]Change, 0)

	for _, r := range c.fields {
		if _, ok := nextFieldIndex[r.key()]; !ok {
			removed := r
			changes = append(changes, Change{Kind: ChangeRemoved, Field: &removed})
		}
	}
	for _, r := range nextFields {
		if _, ok := c.fieldIndex[r.key()]; !ok {
			added := r
			changes = append(changes, Change{Kind: ChangeAdded, Field: &added})
		}
	}
	for _, r := range c.rules {
		if _, ok := nextRuleIndex[r.key()]; !ok {
			removed := r
			changes = append(changes, Change{Kind: ChangeRemoved, BusinessRule: &removed})
		}
	}
	for _, r := range nextRules {
		if _, ok := c.ruleIndex[r.key()]; !ok {
			added := r
			changes = append(changes, Change{Kind: ChangeAdded, BusinessRule: &added})
		}
	}

	for _, ch := range changes {
		switch {
		case ch.Field != nil && ch.Kind == ChangeRemoved:
			c.removeFieldLocked(ch.Field.key())
		case ch.Field != nil && ch.Kind == ChangeAdded:
			c.addFieldLocked(*ch.Field)
		case ch.BusinessRule != nil && ch.Kind == ChangeRemoved:
			c.removeRuleLocked(ch.BusinessRule.key())
		case ch.BusinessRule != nil && ch.Kind == ChangeAdded:
			c.addRuleLocked(*ch.BusinessRule)
		}
	}

	return changes, nil
}

// String 返回所有结果的描述
func (c *Context) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.fields)+len(c.rules) == 0 {
		return "validation passed: no results"
	}

	var builder strings.Builder
	for i, r := range c.fields {
		if i > 0 {
			builder.WriteString("; ")
		}
		builder.WriteString(r.String())
	}
	for i, r := range c.rules {
		if i > 0 || len(c.fields) > 0 {
			builder.WriteString("; ")
		}
		builder.WriteString(r.String())
	}
	return builder.String()
}

func (c *Context) addFieldLocked(r FieldResult) {
	k := r.key()
	if _, ok := c.fieldIndex[k]; ok {
		return
	}
	c.fieldIndex[k] = struct{}{}
	c.fields = append(c.fields, r)
}

func (c *Context) addRuleLocked(r BusinessRuleResult) {
	k := r.key()
	if _, ok := c.ruleIndex[k]; ok {
		return
	}
	c.ruleIndex[k] = struct{}{}
	c.rules = append(c.rules, r)
}

func (c *Context) removeFieldLocked(k fieldKey) bool {
	if _, ok := c.fieldIndex[k]; !ok {
		return false
	}
	delete(c.fieldIndex, k)
	for i := range c.fields {
		if c.fields[i].key() == k {
			c.fields = append(c.fields[:i], c.fields[i+1:]...)
			break
		}
	}
	return true
}

func (c *Context) removeRuleLocked(k ruleKey) bool {
	if _, ok := c.ruleIndex[k]; !ok {
		return false
	}
	delete(c.ruleIndex, k)
	for i := range c.rules {
		if c.rules[i].key() == k {
			c.rules = append(c.rules[:i], c.rules[i+1:]...)
			break
		}
	}
	return true
}

func (c *Context) filterFields(keep func(FieldResult) bool) []FieldResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]FieldResult, 0, len(c.fields))
	for _, r := range c.fields {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (c *Context) filterRules(keep func(BusinessRuleResult) bool) []BusinessRuleResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]BusinessRuleResult, 0, len(c.rules))
	for _, r := range c.rules {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (c *Context) has(severity Severity) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range c.fields {
		if r.Severity == severity {
			return true
		}
	}
	for _, r := range c.rules {
		if r.Severity == severity {
			return true
		}
	}
	return false
}

func (c *Context) count(severity Severity) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, r := range c.fields {
		if r.Severity == severity {
			n++
		}
	}
	for _, r := range c.rules {
		if r.Severity == severity {
			n++
		}
	}
	return n
}
