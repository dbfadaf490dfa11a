package annotation

import (
	"reflect"
	"sort"
	"sync"

	"katydid-common-validation/pkg/metrics"
)

// Registry 进程级的“忽略或失败属性”注册表
//
// 生命周期：按类型懒加载，只增不减，整个进程内有效。
// 同一类型的多个实例并发验证时共享同一份集合，写操作由每个类型的互斥锁串行化。
// 一旦某属性被标记，就不会再对该类型的任何实例尝试声明式验证。
type Registry struct {
	types   sync.Map // key: reflect.Type, value: *typeState
	metrics *metrics.Collector
}

type typeState struct {
	mu      sync.RWMutex
	ignored map[string]struct{}

	// exclusions 只注册一次
	exclusions sync.Once
}

// NewRegistry 创建注册表
func NewRegistry(m *metrics.Collector) *Registry {
	return &Registry{metrics: m}
}

// IsIgnored 属性是否已被标记为不可验证
func (r *Registry) IsIgnored(typ reflect.Type, property string) bool {
	st, ok := r.load(typ)
	if !ok {
		return false
	}

	st.mu.RLock()
	defer st.mu.RUnlock()

	_, ignored := st.ignored[property]
	return ignored
}

// MarkIgnored 标记属性为不可验证，幂等；返回是否为新增
func (r *Registry) MarkIgnored(typ reflect.Type, property string) bool {
	st := r.loadOrCreate(typ)

	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.ignored[property]; ok {
		return false
	}
	st.ignored[property] = struct{}{}
	r.metrics.Ignored()
	return true
}

// RegisterExclusions 注册框架内部属性，每个类型只生效一次
func (r *Registry) RegisterExclusions(typ reflect.Type, properties ...string) {
	st := r.loadOrCreate(typ)
	st.exclusions.Do(func() {
		st.mu.Lock()
		defer st.mu.Unlock()

		for _, p := range properties {
			st.ignored[p] = struct{}{}
		}
	})
}

// Ignored 某类型已忽略的属性（排序后的副本）
func (r *Registry) Ignored(typ reflect.Type) []string {
	st, ok := r.load(typ)
	if !ok {
		return nil
	}

	st.mu.RLock()
	out := make([]string, 0, len(st.ignored))
	for p := range st.ignored {
		out = append(out, p)
	}
	st.mu.RUnlock()

	sort.Strings(out)
	return out
}

func (r *Registry) load(typ reflect.Type) (*typeState, bool) {
	v, ok := r.types.Load(typeKey(typ))
	if !ok {
		return nil, false
	}
	return v.(*typeState), true
}

func (r *Registry) loadOrCreate(typ reflect.Type) *typeState {
	key := typeKey(typ)
	if v, ok := r.types.Load(key); ok {
		return v.(*typeState)
	}
	actual, _ := r.types.LoadOrStore(key, &typeState{ignored: make(map[string]struct{})})
	return actual.(*typeState)
}

// typeKey 指针类型统一为其元素类型
func typeKey(typ reflect.Type) reflect.Type {
	if typ != nil && typ.Kind() == reflect.Ptr {
		return typ.Elem()
	}
	return typ
}
