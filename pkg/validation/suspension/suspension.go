// Package suspension 提供引用计数式的验证挂起作用域
//
// 计数大于 0 时验证被挂起；作用域可以任意嵌套，
// 只有最外层作用域释放（计数归零）时才可能触发一次恢复验证。
//
// 使用示例：
//
//	h := counter.Enter(true)
//	defer h.Close()
package suspension

import (
	"sync"
	"sync/atomic"
)

// ResumeFunc 计数归零且要求恢复验证时调用
type ResumeFunc func() error

// Counter 挂起计数器，由被验证对象独占
type Counter struct {
	mu       sync.Mutex
	count    int
	onResume ResumeFunc
}

// NewCounter 创建挂起计数器
func NewCounter(onResume ResumeFunc) *Counter {
	return &Counter{onResume: onResume}
}

// Enter 进入挂起作用域，返回只能释放一次的句柄
// validateOnResume 为 Close 使用的默认恢复策略
func (c *Counter) Enter(validateOnResume bool) *Handle {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()

	return &Handle{counter: c, validateOnResume: validateOnResume}
}

// Active 是否处于挂起状态
func (c *Counter) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.count > 0
}

// Depth 当前嵌套深度
func (c *Counter) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.count
}

// leave 递减计数，返回是否已归零
func (c *Counter) leave() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count > 0 {
		c.count--
	}
	return c.count == 0
}

// Handle 挂起作用域句柄
type Handle struct {
	counter          *Counter
	validateOnResume bool
	released         atomic.Bool
}

// Close 按进入时指定的策略释放，适合 defer
func (h *Handle) Close() error {
	return h.Release(h.validateOnResume)
}

// Release 释放作用域，重复调用为空操作
// 计数归零且 validateOnResume 为 true 时触发恢复验证，并返回其错误
func (h *Handle) Release(validateOnResume bool) error {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return nil
	}

	resumed := h.counter.leave()
	if !resumed || !validateOnResume || h.counter.onResume == nil {
		return nil
	}
	return h.counter.onResume()
}

// Released 是否已释放
func (h *Handle) Released() bool {
	return h.released.Load()
}
