package validation

import "strings"

// Flags 实例标志位，使用位运算支持多标志叠加
type Flags uint32

// 预定义的实例标志位
const (
	FlagNone Flags = 0 // 无标志

	FlagSuspendValidation     Flags = 1 << iota // 实例级挂起验证
	FlagLean                                    // 轻量实例，不参与验证
	FlagAutoValidate                            // 属性变更后自动验证
	FlagHideValidationResults                   // 隐藏验证结果
)

// DefaultFlags 新实例的默认标志
const DefaultFlags = FlagAutoValidate

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagSuspendValidation, "suspend"},
	{FlagLean, "lean"},
	{FlagAutoValidate, "auto_validate"},
	{FlagHideValidationResults, "hide_results"},
}

// Set 设置指定的标志位
func (f *Flags) Set(flag Flags) {
	*f |= flag
}

// Unset 取消指定的标志位
func (f *Flags) Unset(flag Flags) {
	*f &^= flag
}

// Toggle 切换指定的标志位
func (f *Flags) Toggle(flag Flags) {
	*f ^= flag
}

// Contain 检查是否包含指定的标志位
func (f Flags) Contain(flag Flags) bool {
	return f&flag == flag
}

// HasAny 检查是否包含任意一个指定的标志位
func (f Flags) HasAny(flags ...Flags) bool {
	for _, flag := range flags {
		if f&flag != 0 {
			return true
		}
	}
	return false
}

// With 返回设置或取消 flag 后的副本
func (f Flags) With(flag Flags, on bool) Flags {
	if on {
		f.Set(flag)
	} else {
		f.Unset(flag)
	}
	return f
}

// SkipsValidation 是否因实例标志跳过验证
func (f Flags) SkipsValidation() bool {
	return f.HasAny(FlagSuspendValidation, FlagLean)
}

// String 标志名称，以 | 连接
func (f Flags) String() string {
	if f == FlagNone {
		return "none"
	}
	names := make([]string, 0, len(flagNames))
	for _, fn := range flagNames {
		if f.Contain(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}
