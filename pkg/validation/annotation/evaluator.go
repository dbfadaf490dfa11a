package annotation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrEvaluatorFailure 评估器自身失败（规则元数据缺失、未定义标签等），与约束违反区分
var ErrEvaluatorFailure = errors.New("declarative evaluator failure")

// EvaluationContext 单个属性的评估上下文
// 只依赖属性与宿主对象，每个实例按属性名懒创建一次后缓存
type EvaluationContext struct {
	Target   any
	Type     reflect.Type
	Property PropertyDescriptor
}

// Violation 约束违反
type Violation struct {
	Property string
	Tag      string
	Param    string
	Message  string
}

// Error 实现 error 接口
func (v *Violation) Error() string {
	return v.Message
}

// Evaluator 声明式约束评估器
// 返回 (nil, nil) 表示通过；(*Violation, nil) 表示约束违反；
// (nil, err) 表示与约束无关的内部失败，err 应包装 ErrEvaluatorFailure
type Evaluator interface {
	Evaluate(ec *EvaluationContext, value any) (*Violation, error)
}

// MessageProvider 由模型实现，自定义约束违反消息
// 返回空字符串时使用默认消息
type MessageProvider interface {
	ValidationMessage(property, tag, param string) string
}

// PlaygroundEvaluator 基于 go-playground/validator 的评估器
type PlaygroundEvaluator struct {
	validate *validator.Validate
}

// NewPlaygroundEvaluator 创建评估器
func NewPlaygroundEvaluator() *PlaygroundEvaluator {
	return &PlaygroundEvaluator{validate: validator.New()}
}

// RegisterValidation 注册自定义验证标签
func (e *PlaygroundEvaluator) RegisterValidation(tag string, fn validator.Func) error {
	return e.validate.RegisterValidation(tag, fn)
}

// RegisterAlias 注册规则别名
func (e *PlaygroundEvaluator) RegisterAlias(alias, tags string) {
	e.validate.RegisterAlias(alias, tags)
}

// Underlying 底层验证器，仅用于高级定制
func (e *PlaygroundEvaluator) Underlying() *validator.Validate {
	return e.validate
}

// Evaluate 使用属性规则验证值
// 未定义的标签会让底层库 panic，这里统一转换为 ErrEvaluatorFailure
func (e *PlaygroundEvaluator) Evaluate(ec *EvaluationContext, value any) (violation *Violation, err error) {
	if ec == nil {
		return nil, fmt.Errorf("%w: nil evaluation context", ErrEvaluatorFailure)
	}
	if ec.Property.Rules == "" {
		return nil, nil
	}

	defer func() {
		if r := recover(); r != nil {
			violation = nil
			err = fmt.Errorf("%w: %s: %v", ErrEvaluatorFailure, ec.Property.Name, r)
		}
	}()

	verr := e.validate.Var(value, ec.Property.Rules)
	if verr == nil {
		return nil, nil
	}

	var fieldErrors validator.ValidationErrors
	if errors.As(verr, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		return &Violation{
			Property: ec.Property.Name,
			Tag:      fe.Tag(),
			Param:    fe.Param(),
			Message:  message(ec, fe.Tag(), fe.Param()),
		}, nil
	}

	return nil, fmt.Errorf("%w: %s: %v", ErrEvaluatorFailure, ec.Property.Name, verr)
}

func message(ec *EvaluationContext, tag, param string) string {
	if provider, ok := ec.Target.(MessageProvider); ok {
		if msg := provider.ValidationMessage(ec.Property.Name, tag, param); msg != "" {
			return msg
		}
	}
	return DefaultMessage(ec.Property.Name, tag, param)
}

// DefaultMessage 默认约束违反消息
func DefaultMessage(property, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", property)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", property, param)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", property, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", property, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", property, param)
	case "len":
		return fmt.Sprintf("%s must have length %s", property, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", property, strings.Join(strings.Fields(param), ", "))
	case "email":
		return fmt.Sprintf("%s must be a valid email address", property)
	}
	if param != "" {
		return fmt.Sprintf("%s failed on the '%s=%s' rule", property, tag, param)
	}
	return fmt.Sprintf("%s failed on the '%s' rule", property, tag)
}
