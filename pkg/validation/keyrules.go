package validation

import (
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"katydid-common-validation/pkg/observable"
	"katydid-common-validation/pkg/validation/result"
)

// maxKeyLength 属性名最大长度
const maxKeyLength = 256

// KeyRules 动态属性（observable.Bag）的键规则验证器
//
// 适用于实现 observable.Holder 的模型：检查必填键、键白名单，
// 并对指定键执行自定义验证函数。结果以字段错误的形式加入验证上下文，
// 因此同样参与结果同步与变更通知。
type KeyRules struct {
	BaseValidator

	// RequiredKeys 必须存在的键
	RequiredKeys []string
	// AllowedKeys 键白名单，为空时不限制
	AllowedKeys []string
	// KeyValidators 键的自定义验证函数，键不存在时不执行
	KeyValidators map[string]func(value any) error

	allowedOnce sync.Once
	allowed     map[string]struct{}
}

// ValidateFields 实现 Validator
func (kr *KeyRules) ValidateFields(target any, collector *result.FieldCollector) error {
	h, ok := target.(observable.Holder)
	if !ok || h.Properties() == nil {
		return nil
	}
	bag := h.Properties()

	for _, key := range kr.RequiredKeys {
		if err := kr.checkRequired(bag, key, collector); err != nil {
			return err
		}
	}

	if len(kr.AllowedKeys) > 0 {
		for _, key := range bag.Keys() {
			if err := kr.checkAllowed(key, collector); err != nil {
				return err
			}
		}
	}

	keys := make([]string, 0, len(kr.KeyValidators))
	for k := range kr.KeyValidators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, exists := bag.Get(key)
		if !exists || kr.KeyValidators[key] == nil {
			continue
		}
		if msg := runKeyValidator(kr.KeyValidators[key], value); msg != "" {
			if err := collector.Add(result.FieldError(key, msg).WithTag("custom")); err != nil {
				return err
			}
		}
	}
	return nil
}

func (kr *KeyRules) checkRequired(bag *observable.Bag, key string, collector *result.FieldCollector) error {
	if len(key) > maxKeyLength {
		return collector.Add(keyTooLong(key))
	}
	if bag.Has(key) {
		return nil
	}
	return collector.Add(result.FieldError(key, "%s is required", key).WithTag("required"))
}

func (kr *KeyRules) checkAllowed(key string, collector *result.FieldCollector) error {
	if len(key) > maxKeyLength {
		return collector.Add(keyTooLong(key))
	}

	kr.allowedOnce.Do(func() {
		kr.allowed = make(map[string]struct{}, len(kr.AllowedKeys))
		for _, k := range kr.AllowedKeys {
			kr.allowed[k] = struct{}{}
		}
	})
	if _, ok := kr.allowed[key]; ok {
		return nil
	}
	return collector.Add(result.FieldError(key, "%s is not an allowed property", key).WithTag("allowed"))
}

func keyTooLong(key string) result.FieldResult {
	return result.FieldError(truncateKey(key), "property name exceeds maximum length %d", maxKeyLength).
		WithTag("key_len")
}

// truncateKey 截断到 maxKeyLength 字节以内，不拆分多字节字符
func truncateKey(key string) string {
	if len(key) <= maxKeyLength {
		return key
	}
	cut := maxKeyLength
	for cut > 0 && !utf8.RuneStart(key[cut]) {
		cut--
	}
	return key[:cut]
}

// runKeyValidator 执行自定义验证函数，panic 转换为错误消息
func runKeyValidator(fn func(value any) error, value any) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("validator function panicked: %v", r)
		}
	}()

	if err := fn(value); err != nil {
		return err.Error()
	}
	return ""
}
