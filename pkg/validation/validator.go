package validation

import (
	"reflect"
	"sync"

	"katydid-common-validation/pkg/validation/result"
)

// Validator 可插拔验证器
// 职责：在验证过程的各个阶段参与字段与业务规则验证
// 所有钩子返回的错误都不会被捕获，直接从 Validate 返回给调用方
type Validator interface {
	// BeforeValidation 验证开始前，参数为当前结果的只读副本
	BeforeValidation(target any, fields []result.FieldResult, rules []result.BusinessRuleResult) error
	// BeforeValidateFields 字段验证前
	BeforeValidateFields(target any) error
	// ValidateFields 字段验证，通过 collector 添加结果
	ValidateFields(target any, collector *result.FieldCollector) error
	// AfterValidateFields 字段验证后，参数为本次收集的字段结果
	AfterValidateFields(target any, fields []result.FieldResult) error
	// BeforeValidateBusinessRules 业务规则验证前
	BeforeValidateBusinessRules(target any) error
	// ValidateBusinessRules 业务规则验证，通过 collector 添加结果
	ValidateBusinessRules(target any, collector *result.BusinessRuleCollector) error
	// AfterValidateBusinessRules 业务规则验证后
	AfterValidateBusinessRules(target any, rules []result.BusinessRuleResult) error
	// Validate 最终验证，可以直接向合并后的新上下文添加结果
	Validate(target any, ctx *result.Context) error
	// AfterValidation 验证结束后，参数为同步后的持久上下文
	AfterValidation(target any, ctx *result.Context) error
}

// BaseValidator 空实现，嵌入后只需覆盖关心的钩子
type BaseValidator struct{}

func (BaseValidator) BeforeValidation(any, []result.FieldResult, []result.BusinessRuleResult) error {
	return nil
}

func (BaseValidator) BeforeValidateFields(any) error {
	return nil
}

func (BaseValidator) ValidateFields(any, *result.FieldCollector) error {
	return nil
}

func (BaseValidator) AfterValidateFields(any, []result.FieldResult) error {
	return nil
}

func (BaseValidator) BeforeValidateBusinessRules(any) error {
	return nil
}

func (BaseValidator) ValidateBusinessRules(any, *result.BusinessRuleCollector) error {
	return nil
}

func (BaseValidator) AfterValidateBusinessRules(any, []result.BusinessRuleResult) error {
	return nil
}

func (BaseValidator) Validate(any, *result.Context) error {
	return nil
}

func (BaseValidator) AfterValidation(any, *result.Context) error {
	return nil
}

// FieldRuleChecker 由模型实现的自定义字段规则（非声明式）
type FieldRuleChecker interface {
	CheckFieldRules(collector *result.FieldCollector)
}

// BusinessRuleChecker 由模型实现的业务规则
type BusinessRuleChecker interface {
	CheckBusinessRules(collector *result.BusinessRuleCollector)
}

// ValidatorProvider 按类型解析验证器
// 每个实例最多解析一次，未找到（false）的结果同样被缓存
type ValidatorProvider interface {
	ValidatorFor(typ reflect.Type) (Validator, bool)
}

// ProviderFunc 函数适配器
type ProviderFunc func(typ reflect.Type) (Validator, bool)

// ValidatorFor 实现 ValidatorProvider
func (f ProviderFunc) ValidatorFor(typ reflect.Type) (Validator, bool) {
	return f(typ)
}

// TypeProvider 按类型注册验证器的默认提供者，并发安全
type TypeProvider struct {
	validators sync.Map // key: reflect.Type, value: Validator
}

// NewTypeProvider 创建提供者
func NewTypeProvider() *TypeProvider {
	return &TypeProvider{}
}

// Register 为 sample 的类型注册验证器，指针与值类型共用
func (p *TypeProvider) Register(sample any, v Validator) error {
	if sample == nil {
		return ErrNilTarget
	}
	if isNil(v) {
		return ErrNilValidator
	}
	p.validators.Store(indirectType(reflect.TypeOf(sample)), v)
	return nil
}

// ValidatorFor 实现 ValidatorProvider
func (p *TypeProvider) ValidatorFor(typ reflect.Type) (Validator, bool) {
	if typ == nil {
		return nil, false
	}
	stored, ok := p.validators.Load(indirectType(typ))
	if !ok {
		return nil, false
	}
	v, ok := stored.(Validator)
	return v, ok
}

func indirectType(typ reflect.Type) reflect.Type {
	for typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ
}
