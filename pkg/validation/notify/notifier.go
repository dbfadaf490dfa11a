package notify

import (
	"sync"

	"katydid-common-validation/pkg/metrics"
)

// Notifier 将验证结果变化转换为外部通知
//
// 通知某个属性期间，该属性被标记为“进行中”；
// 由通知间接触发的同一属性的变更回调应通过 InFlight 短路，避免重入验证。
// 同一属性的嵌套通知直接丢弃。
type Notifier struct {
	bus        *Bus
	instanceID int64
	metrics    *metrics.Collector

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewNotifier 创建通知器
func NewNotifier(bus *Bus, instanceID int64, m *metrics.Collector) *Notifier {
	if bus == nil {
		bus = NewBus(nil, m)
	}
	return &Notifier{
		bus:        bus,
		instanceID: instanceID,
		metrics:    m,
		inFlight:   make(map[string]struct{}),
	}
}

// Bus 底层事件总线
func (n *Notifier) Bus() *Bus {
	return n.bus
}

// NotifyErrorsChanged 通知属性错误变化，property 为空表示对象级
// alsoNotifyAggregate 为 true 时同时通知 HasErrors 属性变更
func (n *Notifier) NotifyErrorsChanged(property string, alsoNotifyAggregate bool) {
	n.notifyResultsChanged(EventErrorsChanged, PropertyHasErrors, property, alsoNotifyAggregate)
}

// NotifyWarningsChanged 通知属性警告变化，property 为空表示对象级
// alsoNotifyAggregate 为 true 时同时通知 HasWarnings 属性变更
func (n *Notifier) NotifyWarningsChanged(property string, alsoNotifyAggregate bool) {
	n.notifyResultsChanged(EventWarningsChanged, PropertyHasWarnings, property, alsoNotifyAggregate)
}

// NotifyPropertyChanged 通知属性变更
func (n *Notifier) NotifyPropertyChanged(property string) {
	n.publish(EventPropertyChanged, property)
}

// Notify 发布生命周期事件（validating / validated 等）
func (n *Notifier) Notify(eventType EventType) {
	n.publish(eventType, "")
}

// InFlight 属性是否正在通知中
func (n *Notifier) InFlight(property string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, ok := n.inFlight[property]
	return ok
}

func (n *Notifier) notifyResultsChanged(eventType EventType, aggregate, property string, alsoNotifyAggregate bool) {
	if !n.enter(property) {
		return
	}
	defer n.leave(property)

	n.publish(eventType, property)
	if alsoNotifyAggregate {
		n.publish(EventPropertyChanged, aggregate)
	}
}

func (n *Notifier) publish(eventType EventType, property string) {
	n.metrics.Notification(eventType.String())
	n.bus.Publish(NewEvent(eventType, n.instanceID, property))
}

func (n *Notifier) enter(property string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.inFlight[property]; ok {
		return false
	}
	n.inFlight[property] = struct{}{}
	return true
}

func (n *Notifier) leave(property string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.inFlight, property)
}
