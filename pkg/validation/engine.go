// Package validation 可观察对象的属性验证引擎
//
// Engine 持有跨实例共享的部分（忽略属性注册表、声明式评估器、验证器提供者、
// 日志与指标）；Object 是挂在单个模型实例上的验证状态机，负责挂起、重入保护、
// 增量验证、结果同步与变更通知。
//
// 使用示例：
//
//	obj, err := validation.Default().Attach(account)
//	obj.OnErrorsChanged(func(property string) { ... })
//	err = obj.Validate(true)
package validation

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"katydid-common-validation/pkg/config"
	"katydid-common-validation/pkg/idgen"
	"katydid-common-validation/pkg/logger"
	"katydid-common-validation/pkg/metrics"
	"katydid-common-validation/pkg/validation/annotation"
)

// Engine 验证引擎，并发安全，通常整个进程共享一个
type Engine struct {
	registry  *annotation.Registry
	describer *annotation.Describer
	evaluator annotation.Evaluator
	checker   *annotation.Checker
	provider  ValidatorProvider
	ids       *idgen.Generator
	logger    *zap.Logger
	metrics   *metrics.Collector

	tagName      string
	defaultFlags Flags
	suspendAll   atomic.Bool
}

// Option 引擎选项
type Option func(*Engine)

// WithRegistry 使用指定的忽略属性注册表
func WithRegistry(registry *annotation.Registry) Option {
	return func(e *Engine) {
		e.registry = registry
	}
}

// WithEvaluator 使用指定的声明式评估器
func WithEvaluator(evaluator annotation.Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = evaluator
	}
}

// WithProvider 使用指定的验证器提供者
func WithProvider(provider ValidatorProvider) Option {
	return func(e *Engine) {
		e.provider = provider
	}
}

// WithLogger 设置日志器
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithIDGenerator 设置实例ID生成器
func WithIDGenerator(ids *idgen.Generator) Option {
	return func(e *Engine) {
		e.ids = ids
	}
}

// WithTagName 设置声明式规则所在的结构体标签
func WithTagName(tagName string) Option {
	return func(e *Engine) {
		e.tagName = tagName
	}
}

// WithDefaultFlags 设置新实例的默认标志
func WithDefaultFlags(flags Flags) Option {
	return func(e *Engine) {
		e.defaultFlags = flags
	}
}

// NewEngine 创建引擎
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tagName:      annotation.DefaultTagName,
		defaultFlags: DefaultFlags,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.logger = logger.OrNop(e.logger).Named("validation")
	if e.registry == nil {
		e.registry = annotation.NewRegistry(e.metrics)
	}
	if e.evaluator == nil {
		e.evaluator = annotation.NewPlaygroundEvaluator()
	}
	if e.provider == nil {
		e.provider = NewTypeProvider()
	}
	if e.ids == nil {
		// 参数固定合法，不会失败
		e.ids, _ = idgen.New(0, 0, e.logger)
	}
	e.describer = annotation.NewDescriber(e.tagName)
	e.checker = annotation.NewChecker(e.registry, e.evaluator, e.logger, e.metrics)
	return e
}

// NewEngineFromConfig 按配置创建引擎
// reg 为 nil 或配置关闭指标时不注册 Prometheus 指标
func NewEngineFromConfig(cfg *config.Config, l *zap.Logger, reg prometheus.Registerer) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var m *metrics.Collector
	if cfg.Metrics.Enabled && reg != nil {
		var err error
		if m, err = metrics.NewCollector(cfg.Metrics.Namespace, reg); err != nil {
			return nil, fmt.Errorf("register validation metrics: %w", err)
		}
	}

	ids, err := idgen.New(cfg.IDGen.DatacenterID, cfg.IDGen.WorkerID, l)
	if err != nil {
		return nil, err
	}

	flags := FlagNone.
		With(FlagAutoValidate, cfg.Validation.AutoValidate).
		With(FlagLean, cfg.Validation.Lean)

	e := NewEngine(
		WithLogger(l),
		WithMetrics(m),
		WithIDGenerator(ids),
		WithTagName(cfg.Validation.TagName),
		WithDefaultFlags(flags),
	)
	e.SetSuspendAll(cfg.Validation.SuspendAll)
	return e, nil
}

var (
	defaultEngine *Engine
	defaultOnce   sync.Once
)

// Default 默认引擎（单例），延迟初始化
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = NewEngine()
	})
	return defaultEngine
}

// SetSuspendAll 全局挂起或恢复所有实例的验证
// 恢复时不会自动触发验证
func (e *Engine) SetSuspendAll(suspend bool) {
	e.suspendAll.Store(suspend)
}

// SuspendedAll 是否全局挂起
func (e *Engine) SuspendedAll() bool {
	return e.suspendAll.Load()
}

// Registry 忽略属性注册表
func (e *Engine) Registry() *annotation.Registry {
	return e.registry
}

// Provider 验证器提供者
func (e *Engine) Provider() ValidatorProvider {
	return e.provider
}

// Metrics 指标收集器，未启用时为 nil
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// Describe 为结构体类型构建（并缓存）类型描述
func (e *Engine) Describe(sample any) (*annotation.TypeDescriptor, error) {
	return e.describer.Describe(sample)
}

// RegisterValidator 为模型类型注册验证器
// 仅当提供者是 *TypeProvider 时可用
func (e *Engine) RegisterValidator(sample any, v Validator) error {
	tp, ok := e.provider.(*TypeProvider)
	if !ok {
		return fmt.Errorf("validator provider %T does not support registration", e.provider)
	}
	return tp.Register(sample, v)
}
