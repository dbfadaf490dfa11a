// Package metrics 验证引擎的 Prometheus 指标
//
// Collector 的所有方法都允许 nil 接收者，未启用指标时直接传 nil。
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// 验证过程结果标签
const (
	PassCompleted        = "completed"         // 完整执行
	PassUpToDate         = "up_to_date"        // 已验证，跳过结果计算
	PassSkippedSuspended = "skipped_suspended" // 挂起跳过
	PassSkippedReentrant = "skipped_reentrant" // 重入跳过
	PassFailed           = "failed"            // 验证器钩子返回错误
)

// 声明式检查结果标签
const (
	CheckValid     = "valid"
	CheckViolation = "violation"
	CheckFailure   = "failure"
	CheckDeferred  = "deferred"
	CheckIgnored   = "ignored"
)

// Collector 验证引擎指标
type Collector struct {
	passes        *prometheus.CounterVec
	checks        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	ignored       prometheus.Counter
	listenerPanic prometheus.Counter
}

// NewCollector 创建指标并注册到 reg，reg 为 nil 时只创建不注册
// 重复注册时复用已注册的指标
func NewCollector(namespace string, reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_passes_total",
			Help:      "Number of validation passes by outcome",
		}, []string{"outcome"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "declarative_checks_total",
			Help:      "Number of declarative property checks by outcome",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_notifications_total",
			Help:      "Number of validation change notifications by event",
		}, []string{"event"}),
		ignored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ignored_properties_total",
			Help:      "Number of properties permanently excluded from declarative validation",
		}),
		listenerPanic: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_panics_total",
			Help:      "Number of recovered panics raised by event listeners",
		}),
	}

	if reg == nil {
		return c, nil
	}

	var err error
	if c.passes, err = register(reg, c.passes); err != nil {
		return nil, err
	}
	if c.checks, err = register(reg, c.checks); err != nil {
		return nil, err
	}
	if c.notifications, err = register(reg, c.notifications); err != nil {
		return nil, err
	}
	if c.ignored, err = register(reg, c.ignored); err != nil {
		return nil, err
	}
	if c.listenerPanic, err = register(reg, c.listenerPanic); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return collector, err
	}
	return collector, nil
}

// Pass 记录一次验证过程
func (c *Collector) Pass(outcome string) {
	if c == nil {
		return
	}
	c.passes.WithLabelValues(outcome).Inc()
}

// Check 记录一次声明式检查
func (c *Collector) Check(outcome string) {
	if c == nil {
		return
	}
	c.checks.WithLabelValues(outcome).Inc()
}

// Notification 记录一次变更通知
func (c *Collector) Notification(event string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(event).Inc()
}

// Ignored 记录一个被永久排除的属性
func (c *Collector) Ignored() {
	if c == nil {
		return
	}
	c.ignored.Inc()
}

// ListenerPanic 记录一次监听器 panic
func (c *Collector) ListenerPanic() {
	if c == nil {
		return
	}
	c.listenerPanic.Inc()
}

// Passes 指定结果的验证过程计数器，供测试与诊断使用
func (c *Collector) Passes(outcome string) prometheus.Counter {
	return c.passes.WithLabelValues(outcome)
}

// Checks 指定结果的声明式检查计数器
func (c *Collector) Checks(outcome string) prometheus.Counter {
	return c.checks.WithLabelValues(outcome)
}

// Notifications 指定事件的通知计数器
func (c *Collector) Notifications(event string) prometheus.Counter {
	return c.notifications.WithLabelValues(event)
}

// IgnoredProperties 被排除属性计数器
func (c *Collector) IgnoredProperties() prometheus.Counter {
	return c.ignored
}
