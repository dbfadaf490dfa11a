package annotation

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	// ErrNilSample 描述类型时样本为 nil
	ErrNilSample = errors.New("type sample cannot be nil")

	// ErrDuplicateProperty 属性重复注册
	ErrDuplicateProperty = errors.New("duplicate property descriptor")

	// ErrNotStruct DescribeStruct 只支持结构体
	ErrNotStruct = errors.New("type sample must be a struct or pointer to struct")
)

// DefaultTagName 声明式规则所在的结构体标签
const DefaultTagName = "validate"

// Getter 属性访问器
// ok 为 false 表示无法读取（没有公开的访问器）
type Getter func(target any) (value any, ok bool)

// PropertyDescriptor 可验证属性描述
type PropertyDescriptor struct {
	// Name 属性名
	Name string
	// Rules go-playground/validator 规则字符串，如 "required,max=32"
	Rules string
	// Getter 为 nil 表示属性没有公开访问器
	Getter Getter
}

// TypeDescriptor 类型的可验证属性列表，在类型注册时构建一次
type TypeDescriptor struct {
	typ        reflect.Type
	properties []PropertyDescriptor
	index      map[string]int
}

// NewTypeDescriptor 使用显式属性列表构建类型描述
func NewTypeDescriptor(sample any, properties ...PropertyDescriptor) (*TypeDescriptor, error) {
	if sample == nil {
		return nil, ErrNilSample
	}

	td := &TypeDescriptor{
		typ:        typeKey(reflect.TypeOf(sample)),
		properties: make([]PropertyDescriptor, 0, len(properties)),
		index:      make(map[string]int, len(properties)),
	}
	for _, p := range properties {
		if _, ok := td.index[p.Name]; ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrDuplicateProperty, td.typ, p.Name)
		}
		td.index[p.Name] = len(td.properties)
		td.properties = append(td.properties, p)
	}
	return td, nil
}

// Type 被描述的类型（非指针）
func (td *TypeDescriptor) Type() reflect.Type {
	return td.typ
}

// Properties 属性描述副本，保持注册顺序
func (td *TypeDescriptor) Properties() []PropertyDescriptor {
	out := make([]PropertyDescriptor, len(td.properties))
	copy(out, td.properties)
	return out
}

// Property 按名称查找属性
func (td *TypeDescriptor) Property(name string) (PropertyDescriptor, bool) {
	i, ok := td.index[name]
	if !ok {
		return PropertyDescriptor{}, false
	}
	return td.properties[i], true
}

// Names 属性名列表
func (td *TypeDescriptor) Names() []string {
	out := make([]string, 0, len(td.properties))
	for _, p := range td.properties {
		out = append(out, p.Name)
	}
	return out
}

// Describer 基于反射构建并缓存结构体类型描述
type Describer struct {
	tagName string
	cache   sync.Map // key: reflect.Type, value: *TypeDescriptor
}

// NewDescriber 创建描述器，tagName 为空时使用 DefaultTagName
func NewDescriber(tagName string) *Describer {
	if tagName == "" {
		tagName = DefaultTagName
	}
	return &Describer{tagName: tagName}
}

// Describe 由结构体字段构建类型描述，每个类型只反射一次
// 未导出字段保留名称但没有访问器；匿名嵌入字段不参与验证
func (d *Describer) Describe(sample any) (*TypeDescriptor, error) {
	if sample == nil {
		return nil, ErrNilSample
	}

	typ := typeKey(reflect.TypeOf(sample))
	if cached, ok := d.cache.Load(typ); ok {
		return cached.(*TypeDescriptor), nil
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, typ)
	}

	properties := make([]PropertyDescriptor, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if field.Anonymous {
			continue
		}

		pd := PropertyDescriptor{
			Name:  field.Name,
			Rules: field.Tag.Get(d.tagName),
		}
		if field.IsExported() {
			pd.Getter = fieldGetter(field.Index)
		}
		properties = append(properties, pd)
	}

	td, err := NewTypeDescriptor(sample, properties...)
	if err != nil {
		return nil, err
	}

	actual, _ := d.cache.LoadOrStore(typ, td)
	return actual.(*TypeDescriptor), nil
}

// fieldGetter 按字段索引读取，避免每次按名称查找
func fieldGetter(index []int) Getter {
	return func(target any) (any, bool) {
		val := reflect.ValueOf(target)
		if val.Kind() == reflect.Ptr {
			if val.IsNil() {
				return nil, false
			}
			val = val.Elem()
		}
		if val.Kind() != reflect.Struct {
			return nil, false
		}
		fieldVal := val.FieldByIndex(index)
		if !fieldVal.IsValid() || !fieldVal.CanInterface() {
			return nil, false
		}
		return fieldVal.Interface(), true
	}
}
