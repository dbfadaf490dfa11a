package notify

import (
	"sync"

	"go.uber.org/zap"

	"katydid-common-validation/pkg/metrics"
)

// Listener 事件监听器
type Listener interface {
	// OnEvent 事件处理
	OnEvent(event Event)

	// EventTypes 感兴趣的事件类型（空表示所有事件）
	EventTypes() []EventType
}

// funcListener 函数适配的监听器
type funcListener struct {
	fn    func(Event)
	types []EventType
}

func (l *funcListener) OnEvent(event Event)     { l.fn(event) }
func (l *funcListener) EventTypes() []EventType { return l.types }

// Listen 用函数创建监听器
func Listen(fn func(Event), types ...EventType) Listener {
	return &funcListener{fn: fn, types: types}
}

// Bus 同步事件总线
// 职责：按订阅顺序同步分发事件，发布顺序即送达顺序
// 单个监听器 panic 会被捕获并记录，不影响其他监听器
type Bus struct {
	subscriptions []subscription
	nextID        uint64
	mu            sync.RWMutex

	logger  *zap.Logger
	metrics *metrics.Collector
}

// subscription 订阅按 ID 标识，监听器本身不需要可比较
type subscription struct {
	id       uint64
	listener Listener
}

// NewBus 创建同步事件总线
func NewBus(logger *zap.Logger, m *metrics.Collector) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscriptions: make([]subscription, 0),
		logger:        logger,
		metrics:       m,
	}
}

// Subscribe 订阅事件，返回取消订阅函数（重复调用为空操作）
// 同一个监听器订阅多次会收到多次事件
func (bus *Bus) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.nextID++
	id := bus.nextID
	bus.subscriptions = append(bus.subscriptions, subscription{id: id, listener: listener})
	return func() { bus.unsubscribe(id) }
}

func (bus *Bus) unsubscribe(id uint64) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	for i, sub := range bus.subscriptions {
		if sub.id == id {
			bus.subscriptions = append(bus.subscriptions[:i:i], bus.subscriptions[i+1:]...)
			return
		}
	}
}

// Publish 发布事件
// 先复制订阅列表再回调，监听器内可以安全地订阅或取消订阅
func (bus *Bus) Publish(event Event) {
	bus.mu.RLock()
	subs := make([]subscription, len(bus.subscriptions))
	copy(subs, bus.subscriptions)
	bus.mu.RUnlock()

	for _, sub := range subs {
		if !interestedIn(sub.listener, event.Type) {
			continue
		}
		bus.dispatch(sub.listener, event)
	}
}

// Len 监听器数量
func (bus *Bus) Len() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	return len(bus.subscriptions)
}

// Clear 清空所有监听器
func (bus *Bus) Clear() {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.subscriptions = bus.subscriptions[:0]
}

func (bus *Bus) dispatch(listener Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			bus.metrics.ListenerPanic()
			bus.logger.Error("event listener panicked",
				zap.String("event", event.Type.String()),
				zap.String("property", event.Property),
				zap.Int64("instance", event.InstanceID),
				zap.Any("panic", r))
		}
	}()
	listener.OnEvent(event)
}

func interestedIn(listener Listener, eventType EventType) bool {
	types := listener.EventTypes()
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == eventType {
			return true
		}
	}
	return false
}
