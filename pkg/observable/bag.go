// Package observable 可观察的动态属性存储
//
// Bag 基于 map[string]any 存储任意属性，每次实际变更后通知订阅者；
// 常用作被验证对象的属性来源，把 OnPropertyChanged 绑定为订阅者即可驱动验证。
package observable

import (
	"errors"
	"reflect"
	"sort"
	"sync"
)

// ErrEmptyKey 属性名为空
var ErrEmptyKey = errors.New("property key cannot be empty")

// ChangeHandler 属性变更回调，返回的错误透传给修改方
type ChangeHandler func(key string) error

// Bag 并发安全的属性存储
// 回调在锁外执行，回调内可以安全读取或修改 Bag
type Bag struct {
	mu     sync.RWMutex
	values map[string]any

	handlersMu sync.RWMutex
	handlers   map[uint64]ChangeHandler
	order      []uint64
	nextID     uint64
}

// NewBag 创建属性存储
func NewBag(capacity int) *Bag {
	return &Bag{
		values:   make(map[string]any, capacity),
		handlers: make(map[uint64]ChangeHandler),
	}
}

// OnChange 订阅属性变更，返回取消订阅函数
func (b *Bag) OnChange(handler ChangeHandler) func() {
	if handler == nil {
		return func() {}
	}

	b.handlersMu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = handler
	b.order = append(b.order, id)
	b.handlersMu.Unlock()

	return func() {
		b.handlersMu.Lock()
		defer b.handlersMu.Unlock()
		if _, ok := b.handlers[id]; !ok {
			return
		}
		delete(b.handlers, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

// Set 设置属性，值未变化时不通知
// value 为 nil 时删除属性
func (b *Bag) Set(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		return b.Delete(key)
	}

	b.mu.Lock()
	old, existed := b.values[key]
	if existed && quickEqual(old, value) {
		b.mu.Unlock()
		return nil
	}
	b.values[key] = value
	b.mu.Unlock()

	return b.notify(key)
}

// SetMultiple 批量设置，按键名顺序逐个通知，返回第一个错误
func (b *Bag) SetMultiple(pairs map[string]any) error {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var firstErr error
	for _, k := range keys {
		if err := b.Set(k, pairs[k]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Delete 删除属性，属性不存在时不通知
func (b *Bag) Delete(key string) error {
	b.mu.Lock()
	if _, ok := b.values[key]; !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.values, key)
	b.mu.Unlock()

	return b.notify(key)
}

// Get 获取属性
func (b *Bag) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.values[key]
	return v, ok
}

// GetString 获取字符串属性
func (b *Bag) GetString(key string) (string, bool) {
	v, ok := b.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt 获取整数属性，兼容各种整数类型与整数值的浮点数
func (b *Bag) GetInt(key string) (int, bool) {
	v, ok := b.Get(key)
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// GetBool 获取布尔属性
func (b *Bag) GetBool(key string) (bool, bool) {
	v, ok := b.Get(key)
	if !ok {
		return false, false
	}
	bv, ok := v.(bool)
	return bv, ok
}

// GetFloat64 获取浮点属性
func (b *Bag) GetFloat64(key string) (float64, bool) {
	v, ok := b.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// Has 属性是否存在
func (b *Bag) Has(key string) bool {
	_, ok := b.Get(key)
	return ok
}

// Keys 属性名，已排序
func (b *Bag) Keys() []string {
	b.mu.RLock()
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	b.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Len 属性数量
func (b *Bag) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.values)
}

// Snapshot 浅拷贝当前属性
func (b *Bag) Snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// Holder 持有 Bag 的模型
type Holder interface {
	Properties() *Bag
}

// Getter 返回按属性名从 Holder 读取的访问器，可直接用作属性描述的 Getter
// 目标不是 Holder 时视为没有公开访问器；属性未设置时返回 nil 值
func Getter(key string) func(target any) (any, bool) {
	return func(target any) (any, bool) {
		h, ok := target.(Holder)
		if !ok || h.Properties() == nil {
			return nil, false
		}
		v, _ := h.Properties().Get(key)
		return v, true
	}
}

func (b *Bag) notify(key string) error {
	b.handlersMu.RLock()
	handlers := make([]ChangeHandler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.handlersMu.RUnlock()

	for _, h := range handlers {
		if err := h(key); err != nil {
			return err
		}
	}
	return nil
}

// quickEqual 快速比较，基本类型直接比较，其余使用 reflect.DeepEqual
func quickEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	case float32:
		if n == float32(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
