package annotation

import (
	"sync"

	"katydid-common-validation/pkg/validation/result"
)

// InstanceState 单个实例的声明式验证状态
//   - 每个属性最近一次检查的错误消息
//   - 按属性名缓存的评估上下文
//   - 挂起期间未检查的属性队列
type InstanceState struct {
	mu sync.Mutex

	messages map[string]string
	order    []string

	contexts map[string]*EvaluationContext

	deferred      map[string]struct{}
	deferredOrder []string
}

// NewInstanceState 创建实例状态
func NewInstanceState() *InstanceState {
	return &InstanceState{
		messages: make(map[string]string),
		contexts: make(map[string]*EvaluationContext),
		deferred: make(map[string]struct{}),
	}
}

// Record 记录属性的检查结果，message 为空表示清除之前的错误
func (s *InstanceState) Record(property, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message == "" {
		s.clearLocked(property)
		return
	}
	if _, ok := s.messages[property]; !ok {
		s.order = append(s.order, property)
	}
	s.messages[property] = message
}

// Clear 清除属性的错误
func (s *InstanceState) Clear(property string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked(property)
}

// Message 属性当前的错误消息
func (s *InstanceState) Message(property string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[property]
	return msg, ok
}

// Failures 当前所有声明式验证失败，按首次记录顺序转换为字段错误
func (s *InstanceState) Failures() []result.FieldResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]result.FieldResult, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, result.FieldError(p, s.messages[p]))
	}
	return out
}

// Defer 挂起期间推迟属性检查
func (s *InstanceState) Defer(property string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deferred[property]; ok {
		return
	}
	s.deferred[property] = struct{}{}
	s.deferredOrder = append(s.deferredOrder, property)
}

// DrainDeferred 取出并清空推迟队列
func (s *InstanceState) DrainDeferred() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.deferredOrder
	s.deferredOrder = nil
	s.deferred = make(map[string]struct{})
	return out
}

// DeferredLen 推迟队列长度
func (s *InstanceState) DeferredLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.deferredOrder)
}

// evaluationContext 懒创建并缓存属性的评估上下文
func (s *InstanceState) evaluationContext(target any, td *TypeDescriptor, pd PropertyDescriptor) *EvaluationContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ec, ok := s.contexts[pd.Name]; ok {
		return ec
	}
	ec := &EvaluationContext{Target: target, Type: td.Type(), Property: pd}
	s.contexts[pd.Name] = ec
	return ec
}

func (s *InstanceState) clearLocked(property string) {
	if _, ok := s.messages[property]; !ok {
		return
	}
	delete(s.messages, property)
	for i, p := range s.order {
		if p == property {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
