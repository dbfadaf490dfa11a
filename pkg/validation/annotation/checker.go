package annotation

import (
	"go.uber.org/zap"

	"katydid-common-validation/pkg/metrics"
)

// Outcome 单个属性声明式检查的结果
type Outcome int8

const (
	OutcomeValid     Outcome = iota + 1 // 通过，清除之前的错误
	OutcomeViolation                    // 约束违反，记录消息
	OutcomeFailure                      // 评估器失败，属性被永久忽略
	OutcomeDeferred                     // 挂起中，推迟到恢复后
	OutcomeIgnored                      // 已忽略或无法读取
)

// String 结果名称
func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return metrics.CheckValid
	case OutcomeViolation:
		return metrics.CheckViolation
	case OutcomeFailure:
		return metrics.CheckFailure
	case OutcomeDeferred:
		return metrics.CheckDeferred
	case OutcomeIgnored:
		return metrics.CheckIgnored
	default:
		return "unknown"
	}
}

// Checker 执行单个属性的声明式验证
// 共享的 Registry 与 Evaluator 由引擎注入，实例状态由调用方传入
type Checker struct {
	registry  *Registry
	evaluator Evaluator
	logger    *zap.Logger
	metrics   *metrics.Collector
}

// NewChecker 创建检查器
func NewChecker(registry *Registry, evaluator Evaluator, logger *zap.Logger, m *metrics.Collector) *Checker {
	if registry == nil {
		registry = NewRegistry(m)
	}
	if evaluator == nil {
		evaluator = NewPlaygroundEvaluator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		registry:  registry,
		evaluator: evaluator,
		logger:    logger,
		metrics:   m,
	}
}

// Registry 共享注册表
func (c *Checker) Registry() *Registry {
	return c.registry
}

// Check 对一个属性执行声明式验证
//
//  1. 已忽略的属性直接跳过
//  2. 挂起中只加入推迟队列
//  3. 没有公开访问器或没有规则的属性标记为忽略
//  4. 约束违反记录消息，通过则清除消息
//  5. 评估器失败时永久忽略该属性并记录日志，不产生验证错误
func (c *Checker) Check(state *InstanceState, td *TypeDescriptor, target any, property string, suspended bool) Outcome {
	outcome := c.check(state, td, target, property, suspended)
	c.metrics.Check(outcome.String())
	return outcome
}

// CatchUp 挂起解除后重新检查所有推迟的属性，返回检查数量
func (c *Checker) CatchUp(state *InstanceState, td *TypeDescriptor, target any) int {
	pending := state.DrainDeferred()
	for _, property := range pending {
		c.Check(state, td, target, property, false)
	}
	return len(pending)
}

func (c *Checker) check(state *InstanceState, td *TypeDescriptor, target any, property string, suspended bool) Outcome {
	typ := td.Type()
	if c.registry.IsIgnored(typ, property) {
		return OutcomeIgnored
	}

	if suspended {
		state.Defer(property)
		return OutcomeDeferred
	}

	pd, ok := td.Property(property)
	if !ok || pd.Getter == nil || pd.Rules == "" {
		c.registry.MarkIgnored(typ, property)
		return OutcomeIgnored
	}

	value, ok := pd.Getter(target)
	if !ok {
		c.registry.MarkIgnored(typ, property)
		return OutcomeIgnored
	}

	ec := state.evaluationContext(target, td, pd)
	violation, err := c.evaluator.Evaluate(ec, value)
	if err != nil {
		c.registry.MarkIgnored(typ, property)
		state.Clear(property)
		c.logger.Warn("declarative validation failed, property excluded from further checks",
			zap.Stringer("type", typ),
			zap.String("property", property),
			zap.Error(err))
		return OutcomeFailure
	}

	if violation != nil {
		state.Record(property, violation.Message)
		return OutcomeViolation
	}

	state.Clear(property)
	return OutcomeValid
}
